package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures the S3-compatible store.
type S3Options struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
	UseSSL     bool
	PublicRead bool
	URLExpiry  time.Duration
	Timeout    time.Duration
}

// S3Store keeps all home media in one S3-compatible bucket, each home under
// its own key prefix. With PublicRead the returned URLs are plain object
// URLs; otherwise they are presigned with the configured expiry.
type S3Store struct {
	client *minio.Client
	opts   S3Options
	logger *slog.Logger
}

// NewS3Store connects to the endpoint and makes sure the bucket exists.
func NewS3Store(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3Store, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.URLExpiry <= 0 || opts.URLExpiry > 7*24*time.Hour {
		opts.URLExpiry = 7 * 24 * time.Hour
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:       opts.UseSSL,
		Region:       opts.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}

	s := &S3Store{client: client, opts: opts, logger: logger}

	opCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	exists, err := client.BucketExists(opCtx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(opCtx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", opts.Bucket, err)
		}
		logger.Info("created media bucket", "bucket", opts.Bucket)
	}

	return s, nil
}

func (s *S3Store) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if _, err := s.client.PutObject(opCtx, s.opts.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, ErrUnavailable)
	}

	return s.objectURL(opCtx, key)
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.client.RemoveObject(opCtx, s.opts.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("deleting %s: %w", key, ErrUnavailable)
	}
	return nil
}

// EnsurePrefix drops a zero-byte marker so the home's area is visible in
// bucket listings before the first real upload.
func (s *S3Store) EnsurePrefix(ctx context.Context, homeID int64) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	key := HomePrefix(homeID) + ".keep"
	if _, err := s.client.PutObject(opCtx, s.opts.Bucket, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}); err != nil {
		return fmt.Errorf("marking prefix for home %d: %w", homeID, ErrUnavailable)
	}
	return nil
}

func (s *S3Store) RemovePrefix(ctx context.Context, homeID int64) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	objects := s.client.ListObjects(opCtx, s.opts.Bucket, minio.ListObjectsOptions{
		Prefix:    HomePrefix(homeID),
		Recursive: true,
	})
	for info := range objects {
		if info.Err != nil {
			return fmt.Errorf("listing objects for home %d: %w", homeID, ErrUnavailable)
		}
		if err := s.client.RemoveObject(opCtx, s.opts.Bucket, info.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("deleting %s: %w", info.Key, ErrUnavailable)
		}
	}
	return nil
}

func (s *S3Store) PrefixEmpty(ctx context.Context, homeID int64) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	objects := s.client.ListObjects(opCtx, s.opts.Bucket, minio.ListObjectsOptions{
		Prefix:    HomePrefix(homeID),
		Recursive: true,
		MaxKeys:   1,
	})
	for info := range objects {
		if info.Err != nil {
			return false, fmt.Errorf("listing objects for home %d: %w", homeID, ErrUnavailable)
		}
		return false, nil
	}
	return true, nil
}

func (s *S3Store) objectURL(ctx context.Context, key string) (string, error) {
	if s.opts.PublicRead {
		scheme := "http"
		if s.opts.UseSSL {
			scheme = "https"
		}
		return fmt.Sprintf("%s://%s/%s/%s", scheme, s.opts.Endpoint, s.opts.Bucket, keyEscape(key)), nil
	}

	u, err := s.client.PresignedGetObject(ctx, s.opts.Bucket, key, s.opts.URLExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, ErrUnavailable)
	}
	return u.String(), nil
}

// keyEscape escapes each path segment of an object key while keeping the
// slashes that separate them.
func keyEscape(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
