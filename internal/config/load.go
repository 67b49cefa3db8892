package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/userfed/internal/errs"
)

// Load reads a configuration file holding a flat YAML mapping of the stable
// keys, e.g.
//
//	connection-url: jdbc:postgresql://db:5432/accounts?user=auth
//	table: users
//	connection-pool-max-pool-size: 10
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "read config file", err)
	}
	return Decode(data)
}

// Decode parses YAML bytes in the format accepted by Load.
func Decode(data []byte) (*Config, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "decode config yaml", err)
	}

	vals := make(Values, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case nil:
		case map[string]any, []any:
			return nil, errs.Newf(errs.ErrKindInvalidInput, "config key %q must be a scalar", k)
		default:
			vals[k] = fmt.Sprint(v)
		}
	}
	return Parse(vals)
}

// Encode renders cfg in the format accepted by Load.
func Encode(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
