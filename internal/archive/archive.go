// Package archive uploads finished session artifacts to S3-compatible storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yok-tottii/meetscribe/internal/logger"
)

// ErrNotConfigured is returned when the bucket or keys are missing.
var ErrNotConfigured = errors.New("S3 archive is not configured")

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint        string `json:"endpoint,omitempty" validate:"omitempty,url"` // Custom S3 endpoint (empty for AWS)
	Region          string `json:"region,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
}

// IsConfigured returns true if S3 settings are configured.
func (c S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Redacted returns a copy safe to expose over the control API.
func (c S3Config) Redacted() S3Config {
	if c.SecretAccessKey != "" {
		c.SecretAccessKey = "********"
	}
	return c
}

// putter is the part of the S3 client used for uploads.
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader stores artifacts under {prefix}/{session}/{file}.
type Uploader struct {
	client   putter
	bucket   string
	prefix   string
	attempts int
	delay    time.Duration // first retry delay, doubled per attempt
	maxDelay time.Duration
	log      logger.Interface
}

// NewUploader creates an S3 uploader with static credentials.
func NewUploader(cfg S3Config, log logger.Interface) (*Uploader, error) {
	if !cfg.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if log == nil {
		log = logger.Nop()
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = region
		},
	}
	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return newUploader(s3.New(s3.Options{}, options...), cfg, log), nil
}

func newUploader(client putter, cfg S3Config, log logger.Interface) *Uploader {
	return &Uploader{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		attempts: 3,
		delay:    time.Second,
		maxDelay: 10 * time.Second,
		log:      log,
	}
}

// Key returns the object key used for a session artifact.
func (u *Uploader) Key(sessionID, localPath string) string {
	parts := []string{sessionID, filepath.Base(localPath)}
	if u.prefix != "" {
		parts = append([]string{u.prefix}, parts...)
	}
	return path.Join(parts...)
}

// Upload stores one file, retrying with exponential backoff.
func (u *Uploader) Upload(ctx context.Context, sessionID, localPath string) (string, error) {
	key := u.Key(sessionID, localPath)
	delay := u.delay

	var lastErr error
	for attempt := 1; attempt <= u.attempts; attempt++ {
		lastErr = u.put(ctx, key, localPath)
		if lastErr == nil {
			u.log.Info("archived %s to s3://%s/%s", filepath.Base(localPath), u.bucket, key)
			return key, nil
		}
		if attempt == u.attempts {
			break
		}

		u.log.Warn("upload of %s failed (attempt %d/%d), retrying in %s: %v", key, attempt, u.attempts, delay, lastErr)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, u.maxDelay)
	}
	return "", fmt.Errorf("upload %s: %w", key, lastErr)
}

// UploadAll uploads every non-empty path and returns the keys in order.
// It stops at the first failure.
func (u *Uploader) UploadAll(ctx context.Context, sessionID string, paths ...string) ([]string, error) {
	var keys []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		key, err := u.Upload(ctx, sessionID, p)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (u *Uploader) put(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(localPath)),
	})
	return err
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".wav":
		return "audio/wav"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
