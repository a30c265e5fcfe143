package artifact

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// S3Config is the upload target for built artifacts
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Validate checks that an upload can be attempted
func (c S3Config) Validate() error {
	if c.Endpoint == "" || c.AccessKey == "" || c.SecretKey == "" || c.Bucket == "" {
		return fmt.Errorf("S3 configuration is incomplete (endpoint, access_key, secret_key and bucket are required)")
	}
	return nil
}

// ObjectKey returns the key an artifact file is stored under:
// {prefix}/{buildID}/{file}
func (c S3Config) ObjectKey(buildID, file string) string {
	parts := []string{}
	if p := strings.Trim(c.Prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, buildID, filepath.Base(file))
	return path.Join(parts...)
}

// S3Uploader uploads artifacts to S3-compatible storage (AWS S3, MinIO, ...)
type S3Uploader struct {
	client *minio.Client
	cfg    S3Config
}

// NewS3Uploader creates a new S3-compatible uploader
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	log.Debug().
		Str("endpoint", cfg.Endpoint).
		Str("bucket", cfg.Bucket).
		Bool("ssl", cfg.UseSSL).
		Msg("S3 uploader initialized")

	return &S3Uploader{client: client, cfg: cfg}, nil
}

// Upload stores the code and source map of every artifact under the build ID
func (u *S3Uploader) Upload(ctx context.Context, buildID string, artifacts []Artifact) error {
	for _, art := range artifacts {
		files := []string{art.Path}
		if art.MapPath != "" {
			files = append(files, art.MapPath)
		}

		for _, file := range files {
			key := u.cfg.ObjectKey(buildID, file)
			if err := u.put(ctx, key, file, art); err != nil {
				return fmt.Errorf("failed to upload %s: %w", art.Function, err)
			}
		}
	}
	return nil
}

func (u *S3Uploader) put(ctx context.Context, key, file string, art Artifact) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	opts := minio.PutObjectOptions{
		ContentType: contentType(file),
		UserMetadata: map[string]string{
			"function": art.Function,
			"format":   art.Format,
			"strategy": art.Strategy,
		},
	}

	uploaded, err := u.client.PutObject(ctx, u.cfg.Bucket, key, f, info.Size(), opts)
	if err != nil {
		return err
	}

	log.Debug().
		Str("bucket", u.cfg.Bucket).
		Str("key", key).
		Int64("size", uploaded.Size).
		Msg("Artifact uploaded")
	return nil
}

func contentType(file string) string {
	if strings.HasSuffix(file, ".map") {
		return "application/json"
	}
	return "text/javascript"
}
