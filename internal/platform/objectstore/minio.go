// Package objectstore uploads deploy artifacts and exported documents to
// S3-compatible storage.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store writes objects to the configured buckets.
type Store struct {
	client *minio.Client
	cfg    Config
}

func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, errors.New("object store is not configured")
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

// New returns a store backed by a MinIO client for cfg.
func New(cfg Config) (*Store, error) {
	client, err := NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{client: client, cfg: cfg}, nil
}

// SpecBucket is the bucket receiving exported documents.
func (s *Store) SpecBucket() string {
	if s == nil {
		return ""
	}
	return s.cfg.SpecBucket
}

// PutArtifact uploads a function archive under key in the artifact bucket
// and returns the bucket name.
func (s *Store) PutArtifact(ctx context.Context, key string, body []byte) (string, error) {
	if s == nil {
		return "", errors.New("object store not initialized")
	}
	if err := s.PutObject(ctx, s.cfg.ArtifactBucket, key, body, "application/zip"); err != nil {
		return "", err
	}
	return s.cfg.ArtifactBucket, nil
}

// PutObject uploads body to bucket/key.
func (s *Store) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if s == nil || s.client == nil {
		return errors.New("object store not initialized")
	}
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), opts); err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// EnsureBuckets creates the artifact and spec buckets when missing.
func (s *Store) EnsureBuckets(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("object store not initialized")
	}
	if err := ensureBucket(ctx, s.client, s.cfg.ArtifactBucket, s.cfg.Region); err != nil {
		return fmt.Errorf("ensure artifact bucket: %w", err)
	}
	if err := ensureBucket(ctx, s.client, s.cfg.SpecBucket, s.cfg.Region); err != nil {
		return fmt.Errorf("ensure spec bucket: %w", err)
	}
	return nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
