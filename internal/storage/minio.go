package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"moviemaker/internal/infra"
)

const defaultURLExpiry = 72 * time.Hour

// objectAPI is the subset of *minio.Client the publisher needs.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
}

type MinIOOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// URLExpiry bounds presigned download links; defaults to 72h.
	URLExpiry time.Duration
	Logger    *infra.Logger
}

// MinIOPublisher uploads finished movies and thumbnails to an S3-compatible
// bucket and hands back presigned download URLs.
type MinIOPublisher struct {
	client objectAPI
	bucket string
	expiry time.Duration
	logger zerolog.Logger

	bucketOnce sync.Once
	bucketErr  error
}

func NewMinIOPublisher(opts MinIOOptions) (*MinIOPublisher, error) {
	if strings.TrimSpace(opts.Endpoint) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("storage: minio endpoint and bucket are required")
	}
	client, err := minio.New(strings.TrimSpace(opts.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create minio client: %w", err)
	}
	return newMinIOPublisher(client, opts), nil
}

func newMinIOPublisher(client objectAPI, opts MinIOOptions) *MinIOPublisher {
	p := &MinIOPublisher{
		client: client,
		bucket: strings.TrimSpace(opts.Bucket),
		expiry: opts.URLExpiry,
		logger: zerolog.Nop(),
	}
	if p.expiry <= 0 {
		p.expiry = defaultURLExpiry
	}
	if opts.Logger != nil {
		p.logger = opts.Logger.With().Str("component", "minio").Logger()
	}
	return p
}

// Publish uploads the file at localPath under movies/<projectID>/ and
// returns a presigned URL for it.
func (p *MinIOPublisher) Publish(ctx context.Context, projectID, localPath string) (string, error) {
	if err := p.ensureBucket(ctx); err != nil {
		return "", err
	}
	object := objectName(projectID, localPath)
	if _, err := p.client.FPutObject(ctx, p.bucket, object, localPath, minio.PutObjectOptions{
		ContentType: contentTypeFor(localPath),
	}); err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", object, err)
	}
	u, err := p.client.PresignedGetObject(ctx, p.bucket, object, p.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("storage: presign %s: %w", object, err)
	}
	p.logger.Info().Str("project_id", projectID).Str("object", object).Msg("storage: artifact published")
	return u.String(), nil
}

// Unpublish removes the objects previously uploaded for the given files.
func (p *MinIOPublisher) Unpublish(ctx context.Context, projectID string, localPaths ...string) error {
	var errs []error
	for _, lp := range localPaths {
		if lp == "" {
			continue
		}
		object := objectName(projectID, lp)
		if err := p.client.RemoveObject(ctx, p.bucket, object, minio.RemoveObjectOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("storage: remove %s: %w", object, err))
		}
	}
	return errors.Join(errs...)
}

func (p *MinIOPublisher) ensureBucket(ctx context.Context) error {
	p.bucketOnce.Do(func() {
		exists, err := p.client.BucketExists(ctx, p.bucket)
		if err != nil {
			p.bucketErr = fmt.Errorf("storage: check bucket: %w", err)
			return
		}
		if !exists {
			if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
				p.bucketErr = fmt.Errorf("storage: create bucket: %w", err)
				return
			}
			p.logger.Info().Str("bucket", p.bucket).Msg("storage: bucket created")
		}
	})
	return p.bucketErr
}

func objectName(projectID, localPath string) string {
	return path.Join("movies", projectID, filepath.Base(localPath))
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".zip":
		return "application/zip"
	}
	return "application/octet-stream"
}
