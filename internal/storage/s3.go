// Package storage implements the media source on top of any S3-compatible
// bucket. It owns its own retry policy; callers see only the final error.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/inkwisp/mediadrop/internal/publish"
)

// Config describes the bucket holding pending media.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
	LinkTTL   time.Duration
}

const (
	defaultLinkTTL  = time.Hour
	maxRetryElapsed = 10 * time.Second
	metaKeyWidth    = "Width"
	metaKeyHeight   = "Height"
	metaKeyDuration = "Duration"
)

// Client wraps MinIO/S3 interactions for the pending-media bucket.
type Client struct {
	mc      *minio.Client
	bucket  string
	prefix  string
	linkTTL time.Duration
}

var _ publish.Storage = (*Client)(nil)

// New creates a storage client from the Config.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, publish.MissingEnvError{Provider: "storage", Variables: []string{"MEDIADROP_S3_ENDPOINT", "MEDIADROP_S3_BUCKET"}}
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	ttl := cfg.LinkTTL
	if ttl <= 0 {
		ttl = defaultLinkTTL
	}
	return &Client{mc: mc, bucket: cfg.Bucket, prefix: cfg.Prefix, linkTTL: ttl}, nil
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxRetryElapsed
	return backoff.WithContext(bo, ctx)
}

// List returns the pending items whose names carry an accepted media
// extension.
func (c *Client) List(ctx context.Context) ([]publish.UploadItem, error) {
	var items []publish.UploadItem
	op := func() error {
		items = items[:0]
		for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: c.prefix, Recursive: true}) {
			if obj.Err != nil {
				return fmt.Errorf("list objects: %w", obj.Err)
			}
			name := path.Base(obj.Key)
			if !publish.EligibleName(name) {
				continue
			}
			items = append(items, publish.UploadItem{
				Key:  obj.Key,
				Name: name,
				Kind: publish.KindForName(name),
				Size: obj.Size,
			})
		}
		return nil
	}
	if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
		return nil, err
	}
	return items, nil
}

// TemporaryLink issues a presigned GET URL the platforms can fetch the media
// from.
func (c *Client) TemporaryLink(ctx context.Context, item publish.UploadItem) (string, error) {
	var link string
	op := func() error {
		u, err := c.mc.PresignedGetObject(ctx, c.bucket, item.Key, c.linkTTL, url.Values{})
		if err != nil {
			return fmt.Errorf("presign %s: %w", item.Key, err)
		}
		link = u.String()
		return nil
	}
	if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
		return "", err
	}
	return link, nil
}

// Probe reads width/height/duration from the object's user metadata.
// Absent or unparsable values come back nil, which downstream predicates
// treat as unknown.
func (c *Client) Probe(ctx context.Context, item publish.UploadItem) (publish.MediaInfo, error) {
	var stat minio.ObjectInfo
	op := func() error {
		var err error
		stat, err = c.mc.StatObject(ctx, c.bucket, item.Key, minio.StatObjectOptions{})
		if err != nil {
			return fmt.Errorf("stat %s: %w", item.Key, err)
		}
		return nil
	}
	if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
		return publish.MediaInfo{}, err
	}
	return mediaInfoFromMetadata(stat.UserMetadata), nil
}

// Delete removes the item from the bucket.
func (c *Client) Delete(ctx context.Context, item publish.UploadItem) error {
	op := func() error {
		if err := c.mc.RemoveObject(ctx, c.bucket, item.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove %s: %w", item.Key, err)
		}
		return nil
	}
	return backoff.Retry(op, c.retryPolicy(ctx))
}

func mediaInfoFromMetadata(meta map[string]string) publish.MediaInfo {
	var info publish.MediaInfo
	if v, err := strconv.Atoi(meta[metaKeyWidth]); err == nil {
		info.Width = &v
	}
	if v, err := strconv.Atoi(meta[metaKeyHeight]); err == nil {
		info.Height = &v
	}
	if v, err := strconv.ParseFloat(meta[metaKeyDuration], 64); err == nil {
		info.Duration = &v
	}
	return info
}
