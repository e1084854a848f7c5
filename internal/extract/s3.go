package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/pkg/backoff"
)

// S3Store uploads datasets to one bucket.
type S3Store struct {
	client *minio.Client
	bucket string
	retry  backoff.Policy
}

// storeCredentials picks static keys when configured, otherwise the mounted
// shared credentials file for the configured profile.
func storeCredentials(cfg Config) *credentials.Credentials {
	if cfg.Storage.AccessKeyID != "" {
		return credentials.NewStaticV4(cfg.Storage.AccessKeyID, cfg.Storage.SecretAccessKey, cfg.Storage.SessionToken)
	}
	return credentials.NewFileAWSCredentials(cfg.CredentialsFile, cfg.Storage.Profile)
}

// NewS3Store creates a store for cfg.Storage.Bucket.
func NewS3Store(cfg Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  storeCredentials(cfg),
		Secure: cfg.Secure,
		Region: cfg.Storage.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &S3Store{
		client: client,
		bucket: cfg.Storage.Bucket,
		retry: backoff.Policy{
			Attempts:  4,
			Backoff:   backoff.Config{Initial: 500 * time.Millisecond, Max: 5 * time.Second},
			Permanent: isPermanentS3Error,
		},
	}, nil
}

// Put uploads body under key and returns its s3:// URL.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
			minio.PutObjectOptions{ContentType: contentType})
		return err
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// isPermanentS3Error reports rejections a retry cannot fix, such as a missing
// bucket or denied access.
func isPermanentS3Error(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "AccessDenied", "NoSuchBucket", "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidBucketName":
		return true
	}
	return resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests
}
