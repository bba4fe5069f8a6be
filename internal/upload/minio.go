package upload

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOUploader stores portraits in an S3 compatible bucket and hands out presigned URLs.
type MinIOUploader struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	now    func() time.Time
}

func NewMinIOUploader(cfg config.UploadConfig) (*MinIOUploader, error) {
	endpoint := strings.TrimSpace(cfg.MinIOEndpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required when UPLOAD_BACKEND=minio")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
		Secure: cfg.MinIOUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	bucket := strings.TrimSpace(cfg.MinIOBucket)
	if bucket == "" {
		bucket = "portraitkiosk"
	}
	expiry := cfg.MinIOURLExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &MinIOUploader{client: client, bucket: bucket, expiry: expiry, now: time.Now}, nil
}

func (u *MinIOUploader) Upload(ctx context.Context, path string) (string, error) {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return "", fmt.Errorf("failed to check bucket %s: %w", u.bucket, err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("failed to create bucket %s: %w", u.bucket, err)
		}
	}

	name := objectName(u.now(), path)
	if _, err := u.client.FPutObject(ctx, u.bucket, name, path, minio.PutObjectOptions{ContentType: "image/jpeg"}); err != nil {
		return "", fmt.Errorf("failed to put %s: %w", name, err)
	}

	signed, err := u.client.PresignedGetObject(ctx, u.bucket, name, u.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", name, err)
	}
	return signed.String(), nil
}

// objectName groups uploads by day: 2024/05/01/<file>.
func objectName(t time.Time, path string) string {
	return fmt.Sprintf("%s/%s", t.UTC().Format("2006/01/02"), filepath.Base(path))
}
