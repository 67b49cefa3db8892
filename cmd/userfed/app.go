package main

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/koustreak/userfed/internal/config"
	"github.com/koustreak/userfed/internal/filestore"
	"github.com/koustreak/userfed/internal/filestore/minio"
	"github.com/koustreak/userfed/internal/logger"
)

const envPrefix = "USERFED"

// Flag and environment names that are not provider configuration keys.
const (
	flagConfig       = "config"
	flagEnvFile      = "env-file"
	flagLogLevel     = "log-level"
	flagLogFormat    = "log-format"
	flagConfigBucket = "config-bucket"
	flagConfigKey    = "config-key"
	flagS3Endpoint   = "s3-endpoint"
	flagS3AccessKey  = "s3-access-key"
	flagS3SecretKey  = "s3-secret-key"
	flagS3UseSSL     = "s3-use-ssl"
	flagS3Region     = "s3-region"
)

// app carries state shared by the subcommands.
type app struct {
	v   *viper.Viper
	log *logger.Logger
}

func newApp() *app {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &app{v: v, log: logger.Global()}
}

func (a *app) bindFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String(flagConfig, "", "provider configuration file (YAML)")
	f.String(flagEnvFile, ".env", "dotenv file loaded before reading the environment")
	f.String(flagLogLevel, "info", "log level: debug, info, warn, error")
	f.String(flagLogFormat, "json", "log format: json, console")

	f.String(flagConfigBucket, "", "read the configuration from this object store bucket")
	f.String(flagConfigKey, "provider.yaml", "object key of the configuration document")
	f.String(flagS3Endpoint, "localhost:9000", "object store endpoint")
	f.String(flagS3AccessKey, "", "object store access key")
	f.String(flagS3SecretKey, "", "object store secret key")
	f.Bool(flagS3UseSSL, false, "use TLS for the object store")
	f.String(flagS3Region, "", "object store region")

	f.String(config.KeyConnectionURL, "", "JDBC-style connection url, e.g. jdbc:postgresql://db:5432/accounts")
	f.String(config.KeyTable, "", "user table name")

	_ = a.v.BindPFlags(f)
}

// setup loads the dotenv file and builds the process logger.
func (a *app) setup(cmd *cobra.Command) error {
	if file := a.v.GetString(flagEnvFile); file != "" {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	a.log = logger.New(&logger.Config{
		Level:      a.v.GetString(flagLogLevel),
		Format:     a.v.GetString(flagLogFormat),
		TimeFormat: "rfc3339",
		Output:     cmd.ErrOrStderr(),
	})
	logger.SetGlobal(a.log)
	return nil
}

// configSource is where the provider configuration document lives: a local
// file, an object in a bucket, or nowhere (environment and flags only).
type configSource struct {
	file    string
	store   filestore.Store
	objects *config.ObjectWatcher
}

// openSource connects to where the configuration lives. onChange receives
// reloaded documents once watching starts and may be nil for one-shot use.
func (a *app) openSource(ctx context.Context, onChange config.ReloadFunc) (*configSource, error) {
	src := &configSource{file: a.v.GetString(flagConfig)}
	bucket := a.v.GetString(flagConfigBucket)
	if src.file != "" || bucket == "" {
		return src, nil
	}

	fc := &filestore.Config{
		Endpoint:  a.v.GetString(flagS3Endpoint),
		AccessKey: a.v.GetString(flagS3AccessKey),
		SecretKey: a.v.GetString(flagS3SecretKey),
		UseSSL:    a.v.GetBool(flagS3UseSSL),
		Region:    a.v.GetString(flagS3Region),
		Bucket:    bucket,
		Key:       a.v.GetString(flagConfigKey),
	}
	store, err := minio.New(ctx, fc)
	if err != nil {
		return nil, err
	}
	src.store = store
	src.objects = config.NewObjectWatcher(store, fc.Location(), 0, onChange, a.log)
	return src, nil
}

// load reads the document and applies environment and flag overrides.
func (a *app) load(ctx context.Context, src *configSource) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case src.file != "":
		cfg, err = config.Load(src.file)
	case src.objects != nil:
		cfg, err = src.objects.Fetch(ctx)
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	return a.overlay(cfg)
}

// overlay replaces the document's values with any key set through a flag
// or a USERFED_* environment variable.
func (a *app) overlay(cfg *config.Config) (*config.Config, error) {
	vals := cfg.Values()
	for _, key := range config.Keys {
		if a.v.IsSet(key) {
			vals[key] = a.v.GetString(key)
		}
	}
	return config.Parse(vals)
}

func (s *configSource) Close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// loadOnce opens the source, reads the configuration and closes the source.
func (a *app) loadOnce(ctx context.Context) (*config.Config, error) {
	src, err := a.openSource(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return a.load(ctx, src)
}
