package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNoCredentials means storage is not configured, so nothing is uploaded.
var ErrNoCredentials = errors.New("storage credentials not configured")

// Uploader stores a local file under key and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// StorageConfig describes the S3-compatible bucket videos are uploaded to.
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	// PublicBaseURL prefixes object keys in returned URLs. When empty a
	// virtual-hosted S3 URL is built.
	PublicBaseURL string
}

// Configured reports whether enough is set to attempt an upload.
func (c StorageConfig) Configured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// LoadAWSConfig builds the SDK configuration with static credentials.
func LoadAWSConfig(ctx context.Context, cfg StorageConfig) (aws.Config, error) {
	if !cfg.Configured() {
		return aws.Config{}, ErrNoCredentials
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	return awsCfg, nil
}

// PutObjectAPI is the slice of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader uploads to an S3-compatible bucket.
type S3Uploader struct {
	client PutObjectAPI
	cfg    StorageConfig
	logger *slog.Logger
}

var _ Uploader = (*S3Uploader)(nil)

// NewS3Client creates an S3 client honouring a custom endpoint.
func NewS3Client(awsCfg aws.Config, cfg StorageConfig) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
}

// NewS3Uploader creates an S3Uploader.
func NewS3Uploader(client PutObjectAPI, cfg StorageConfig, logger *slog.Logger) *S3Uploader {
	return &S3Uploader{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "s3_uploader"),
	}
}

// Upload implements Uploader
func (u *S3Uploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}

	url := u.PublicURL(key)
	u.logger.Info("object uploaded", "key", key, "bytes", info.Size(), "url", url)
	return url, nil
}

// PublicURL returns the URL an uploaded key is served from.
func (u *S3Uploader) PublicURL(key string) string {
	if u.cfg.PublicBaseURL != "" {
		return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key
	}
	if u.cfg.Endpoint != "" {
		return strings.TrimRight(u.cfg.Endpoint, "/") + "/" + u.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
}

// ObjectKey renders the storage key for a task under prefix.
func ObjectKey(prefix, taskID string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return taskID + ".mp4"
	}
	return prefix + "/" + taskID + ".mp4"
}
