// Package filestore reads provider configuration documents kept in an object
// store, so a fleet of provider instances can share one centrally edited
// configuration.
//
// Usage:
//
//	store, err := minio.New(ctx, &filestore.Config{
//	    Endpoint: "minio:9000", AccessKey: "...", SecretKey: "...",
//	    Bucket: "userfed", Key: "provider.yaml",
//	})
//	if err != nil { ... }
//	defer store.Close()
//
//	info, err := store.StatObject(ctx, store.Location())
package filestore

import (
	"context"
	"io"
	"time"
)

// Config holds the settings needed to reach the object store and the
// location of the configuration document inside it.
type Config struct {
	// Endpoint is the host:port of the storage server, e.g. "localhost:9000".
	Endpoint string

	AccessKey string
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends. Leave empty for MinIO.
	Region string

	// Bucket and Key locate the configuration document.
	Bucket string
	Key    string
}

// Location returns the configured bucket and key.
func (c *Config) Location() Location {
	return Location{Bucket: c.Bucket, Key: c.Key}
}

// Location addresses one object.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return l.Bucket + "/" + l.Key
}

// ObjectInfo describes a stored object without its content.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading.
type Object interface {
	io.ReadCloser

	// Info returns the metadata captured when the object was opened.
	Info() *ObjectInfo
}

// Store is the read-only interface the configuration watcher needs.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// StatObject returns metadata for the object without downloading it.
	StatObject(ctx context.Context, loc Location) (*ObjectInfo, error)

	// GetObject opens a streaming handle to the object.
	GetObject(ctx context.Context, loc Location) (Object, error)
}
