package blobstore

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vibast-solutions/ms-go-accounts/config"
)

// MinioStore is the MinIO/S3-backed Uploader.
type MinioStore struct {
	client        *mclient.Client
	bucket        string
	publicBaseURL string
}

// NewMinio creates the MinIO client. It strips a scheme off the
// endpoint, derives Secure from it and fail-fast checks that the target
// bucket exists.
func NewMinio(ctx context.Context, cfg *config.Config) (*MinioStore, error) {
	endpoint := cfg.S3.Endpoint
	secure := strings.HasPrefix(endpoint, "https://")

	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	client, err := mclient.New(endpoint, &mclient.Options{
		Creds:  credentials.NewStaticV4(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.S3.Bucket)
	if err != nil {
		return nil, fmt.Errorf("blobstore: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("blobstore: bucket %q does not exist", cfg.S3.Bucket)
	}

	return &MinioStore{
		client:        client,
		bucket:        cfg.S3.Bucket,
		publicBaseURL: strings.TrimRight(cfg.S3.PublicBaseURL, "/"),
	}, nil
}

// Upload stores the file under media/<uuid><ext> and returns its public
// URL.
func (s *MinioStore) Upload(ctx context.Context, localPath string) (string, error) {
	key := "media/" + uuid.NewString() + strings.ToLower(filepath.Ext(localPath))

	if _, err := s.client.FPutObject(ctx, s.bucket, key, localPath, mclient.PutObjectOptions{}); err != nil {
		return "", fmt.Errorf("blobstore: %w", err)
	}

	if s.publicBaseURL == "" {
		endpoint := s.client.EndpointURL()
		return endpoint.String() + "/" + s.bucket + "/" + key, nil
	}
	return s.publicBaseURL + "/" + key, nil
}

var _ Uploader = (*MinioStore)(nil)
