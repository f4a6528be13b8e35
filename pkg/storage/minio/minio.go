package minio

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/faeln1/go-mockup-api/pkg/storage"
)

// Design assets are content-addressed by uuid keys and never rewritten.
const immutableCacheControl = "public, max-age=31536000, immutable"

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
	// KeyPrefix is prepended to every object key, e.g. "staging/".
	KeyPrefix string
}

type Client struct {
	core      *minio.Client
	bucket    string
	publicURL string
	prefix    string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	core, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "minio client")
	}

	if err := ensureBucket(ctx, core, cfg.Bucket, cfg.Region); err != nil {
		return nil, errors.Wrapf(err, "ensure bucket %s", cfg.Bucket)
	}

	return &Client{core: core, bucket: cfg.Bucket, publicURL: cfg.PublicURL, prefix: normalizePrefix(cfg.KeyPrefix)}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func (c *Client) PutObject(ctx context.Context, in storage.UploadInput) (string, error) {
	key := c.prefix + strings.TrimLeft(in.Key, "/")
	_, err := c.core.PutObject(ctx, c.bucket, key, in.Body, in.Size, minio.PutObjectOptions{
		ContentType:  in.ContentType,
		CacheControl: immutableCacheControl,
	})
	if err != nil {
		return "", errors.Wrapf(err, "put %s", key)
	}
	return objectURL(c.publicURL, c.core.EndpointURL(), c.bucket, key), nil
}

func (c *Client) DeleteObject(ctx context.Context, key string) error {
	key = c.prefix + strings.TrimLeft(key, "/")
	if err := c.core.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrapf(err, "remove %s", key)
	}
	return nil
}

// objectURL prefers the public base URL (CDN) over the S3 endpoint.
func objectURL(publicURL string, endpoint *url.URL, bucket, key string) string {
	key = strings.TrimLeft(key, "/")
	if publicURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(publicURL, "/"), key)
	}
	if endpoint != nil {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(endpoint.String(), "/"), bucket, key)
	}
	return fmt.Sprintf("/%s/%s", bucket, key)
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

var _ storage.Service = (*Client)(nil)
