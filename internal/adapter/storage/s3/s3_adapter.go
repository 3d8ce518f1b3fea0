package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"carmarket/internal/platform/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Config holds object-store connection settings.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	// PublicBaseURL overrides the endpoint when building public object
	// URLs, for deployments where the store sits behind a CDN or proxy.
	PublicBaseURL string
}

// PhotoStorage stores listing photos in a MinIO/S3 bucket and hands out
// public URLs for them.
type PhotoStorage struct {
	client *minio.Client
	config Config
	logger *logger.Logger
}

// NewPhotoStorage connects to the object store and ensures the bucket
// exists with a public-read policy, matching how listing photos are
// served directly to browsers.
func NewPhotoStorage(ctx context.Context, cfg Config, log *logger.Logger) (*PhotoStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client init: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
		policy := fmt.Sprintf(`{
			"Version": "2012-10-17",
			"Statement": [{
				"Effect": "Allow",
				"Principal": {"AWS": ["*"]},
				"Action": ["s3:GetObject"],
				"Resource": ["arn:aws:s3:::%s/*"]
			}]
		}`, cfg.BucketName)
		if err := client.SetBucketPolicy(ctx, cfg.BucketName, policy); err != nil {
			return nil, fmt.Errorf("minio set bucket policy: %w", err)
		}
		log.Info("Created public photo bucket", zap.String("bucket", cfg.BucketName))
	}

	return &PhotoStorage{
		client: client,
		config: cfg,
		logger: log.Named("PhotoStorage"),
	}, nil
}

// Upload writes one photo under the given object key.
func (s *PhotoStorage) Upload(ctx context.Context, objectKey string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.config.BucketName, objectKey,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		s.logger.Error("Failed to upload photo to object store",
			zap.String("object_key", objectKey), zap.Error(err))
		return fmt.Errorf("minio put object: %w", err)
	}
	s.logger.Info("Photo uploaded", zap.String("object_key", objectKey), zap.Int("size_bytes", len(data)))
	return nil
}

// PublicURL returns the browser-reachable URL for a stored object key.
func (s *PhotoStorage) PublicURL(objectKey string) string {
	if s.config.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s",
			strings.TrimRight(s.config.PublicBaseURL, "/"), s.config.BucketName, objectKey)
	}
	return fmt.Sprintf("%s/%s/%s",
		strings.TrimRight(s.client.EndpointURL().String(), "/"), s.config.BucketName, objectKey)
}
