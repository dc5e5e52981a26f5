package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (MinIO)
	PresignDuration int    // Duration in seconds for presigned URLs (default: 3600)

	// Server-side encryption
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // AES256 or aws:kms
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms

	CreateBucketIfNotExist bool

	// KeyPrefix is prepended to every object key, letting several
	// deployments share one bucket.
	KeyPrefix string
	// CacheControl is stored with every object, e.g. "public, max-age=31536000"
	// for immutable media served through a CDN.
	CacheControl string
}

// Backend is an S3-compatible implementation of the simplecms.BlobStore interface
type Backend struct {
	client          *s3.Client
	uploader        *manager.Uploader
	presignClient   *s3.PresignClient
	bucket          string
	keyPrefix       string
	presignDuration time.Duration
	config          Config
}

// New creates a new S3-compatible storage backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.PresignDuration == 0 {
		config.PresignDuration = 3600
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}
	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &Backend{
		client:          client,
		uploader:        manager.NewUploader(client),
		presignClient:   s3.NewPresignClient(client),
		bucket:          config.Bucket,
		keyPrefix:       strings.Trim(config.KeyPrefix, "/"),
		presignDuration: time.Duration(config.PresignDuration) * time.Second,
		config:          config,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(ctx); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return backend, nil
}

// errorCode returns the S3 API error code carried by err, if any.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	switch errorCode(err) {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}

func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err == nil {
		return nil
	}
	// MinIO answers HEAD on a missing bucket with a bare 400.
	if !isNotFound(err) && errorCode(err) != "BadRequest" {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(b.bucket)}
	if b.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}
	if _, err := b.client.CreateBucket(ctx, input); err != nil {
		switch errorCode(err) {
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return nil
		}
		return err
	}
	return nil
}

func (b *Backend) applySSE(input *s3.PutObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}
}

// key maps a media object key to its bucket key.
func (b *Backend) key(objectKey string) *string {
	if b.keyPrefix == "" {
		return aws.String(objectKey)
	}
	return aws.String(b.keyPrefix + "/" + strings.TrimLeft(objectKey, "/"))
}

// putInput builds the PutObject request for one upload.
func (b *Backend) putInput(objectKey string, reader io.Reader, mimeType string) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    b.key(objectKey),
		Body:   reader,
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}
	if b.config.CacheControl != "" {
		input.CacheControl = aws.String(b.config.CacheControl)
	}
	b.applySSE(input)
	return input
}

// Upload streams content to S3 through the multipart upload manager
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader, mimeType string) error {
	if _, err := b.uploader.Upload(ctx, b.putInput(objectKey, reader, mimeType)); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// Download downloads content directly from S3
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    b.key(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", simplecms.ErrObjectNotFound, objectKey)
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	return result.Body, nil
}

// Delete deletes content from S3
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    b.key(objectKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// GetDownloadURL returns a presigned URL for downloading content
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    b.key(objectKey),
	}
	if downloadFilename != "" {
		input.ResponseContentDisposition = aws.String(fmt.Sprintf("attachment; filename=%q", downloadFilename))
	}

	result, err := b.presignClient.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = b.presignDuration
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned download URL: %w", err)
	}
	return result.URL, nil
}
