// Package minio provides a MinIO implementation of filestore.Store.
package minio

import (
	"context"
	"io"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/userfed/internal/errs"
	"github.com/koustreak/userfed/internal/filestore"
)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
	bucket string
}

// New connects to MinIO using cfg and checks that cfg.Bucket is reachable.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	if cfg.Bucket == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "config object bucket is required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to create minio client", err)
	}

	d := &Driver{client: client, bucket: cfg.Bucket}
	if err := d.Ping(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Ping checks that the configured bucket exists. Credentials scoped to a
// single bucket cannot list buckets, so ListBuckets is not used.
func (d *Driver) Ping(ctx context.Context) error {
	ok, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return mapError(err, "ping failed")
	}
	if !ok {
		return errs.Newf(errs.ErrKindNotFound, "bucket %q does not exist", d.bucket)
	}
	return nil
}

// Close is a no-op; the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// StatObject returns the object's metadata without downloading it.
func (d *Driver) StatObject(ctx context.Context, loc filestore.Location) (*filestore.ObjectInfo, error) {
	stat, err := d.client.StatObject(ctx, loc.Bucket, loc.Key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat "+loc.String())
	}
	return infoOf(stat), nil
}

// GetObject opens a streaming handle to the object.
// The caller MUST call Object.Close() after reading.
func (d *Driver) GetObject(ctx context.Context, loc filestore.Location) (filestore.Object, error) {
	obj, err := d.client.GetObject(ctx, loc.Bucket, loc.Key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get "+loc.String())
	}

	// GetObject is lazy; Stat surfaces a missing key before the first Read.
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapError(err, "failed to stat "+loc.String()+" after get")
	}
	return &object{ReadCloser: obj, info: infoOf(stat)}, nil
}

func infoOf(stat miniogo.ObjectInfo) *filestore.ObjectInfo {
	return &filestore.ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}
}

// object wraps a MinIO GetObject response and exposes filestore.Object.
type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}
