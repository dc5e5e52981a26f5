package s3

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

func TestNew_Configuration(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(ctx, Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("Defaults", func(t *testing.T) {
		b, err := New(ctx, Config{Bucket: "media", AccessKeyID: "key", SecretAccessKey: "secret"})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", b.config.Region)
		assert.Equal(t, time.Hour, b.presignDuration)
	})

	t.Run("CustomPresignDuration", func(t *testing.T) {
		b, err := New(ctx, Config{Bucket: "media", AccessKeyID: "key", SecretAccessKey: "secret", PresignDuration: 7200})
		require.NoError(t, err)
		assert.Equal(t, 2*time.Hour, b.presignDuration)
	})
}

func TestPutInput_SSE(t *testing.T) {
	b := &Backend{bucket: "media", config: Config{EnableSSE: true, SSEAlgorithm: "aws:kms", SSEKMSKeyID: "kms-1"}}
	input := b.putInput("uploads/a.png", strings.NewReader("x"), "image/png")
	assert.Equal(t, "media", *input.Bucket)
	assert.Equal(t, "image/png", *input.ContentType)
	assert.Equal(t, "aws:kms", string(input.ServerSideEncryption))
	assert.Equal(t, "kms-1", *input.SSEKMSKeyId)

	b.config = Config{}
	input = b.putInput("uploads/a.bin", strings.NewReader("x"), "")
	assert.Nil(t, input.ContentType)
	assert.Empty(t, input.ServerSideEncryption)
}

func TestKeyPrefixAndCacheControl(t *testing.T) {
	b, err := New(context.Background(), Config{
		Bucket: "media", AccessKeyID: "key", SecretAccessKey: "secret",
		KeyPrefix: "/cms/", CacheControl: "public, max-age=31536000",
	})
	require.NoError(t, err)

	input := b.putInput("2026/10/19/a.png", strings.NewReader("x"), "image/png")
	assert.Equal(t, "cms/2026/10/19/a.png", *input.Key)
	assert.Equal(t, "public, max-age=31536000", *input.CacheControl)

	b.keyPrefix = ""
	b.config.CacheControl = ""
	input = b.putInput("a.png", strings.NewReader("x"), "")
	assert.Equal(t, "a.png", *input.Key)
	assert.Nil(t, input.CacheControl)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(io.EOF))
}

func TestGetDownloadURL_Presigns(t *testing.T) {
	b, err := New(context.Background(), Config{
		Bucket: "media", AccessKeyID: "key", SecretAccessKey: "secret",
		Endpoint: "http://localhost:9000", UsePathStyle: true,
	})
	require.NoError(t, err)

	u, err := b.GetDownloadURL(context.Background(), "uploads/a.png", "a.png")
	require.NoError(t, err)
	assert.Contains(t, u, "http://localhost:9000/media/uploads/a.png")
	assert.Contains(t, u, "X-Amz-Signature")
}

// Runs against MinIO when MINIO_INTEGRATION_TEST is set.
func TestS3Backend_MinIO(t *testing.T) {
	if os.Getenv("MINIO_INTEGRATION_TEST") == "" {
		t.Skip("Skipping MinIO integration test. Set MINIO_INTEGRATION_TEST=1 to run.")
	}
	ctx := context.Background()
	b, err := New(ctx, Config{
		Bucket:                 "cms-test",
		AccessKeyID:            "minioadmin",
		SecretAccessKey:        "minioadmin",
		Endpoint:               "http://localhost:9000",
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)

	key := "uploads/test.txt"
	require.NoError(t, b.Upload(ctx, key, bytes.NewReader([]byte("hello")), "text/plain"))

	rc, err := b.Download(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "hello", string(data))

	require.NoError(t, b.Delete(ctx, key))
	_, err = b.Download(ctx, key)
	assert.ErrorIs(t, err, simplecms.ErrObjectNotFound)
}
