package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

func TestS3Store_Configuration(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(ctx, Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("InvalidSSE", func(t *testing.T) {
		_, err := New(ctx, Config{Bucket: "b", EnableSSE: true, SSEAlgorithm: "rot13"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid SSE")
	})

	t.Run("DefaultRegionAndPrefix", func(t *testing.T) {
		store, err := New(ctx, Config{
			Bucket:          "content",
			Prefix:          "cache/",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", store.config.Region)
		assert.Equal(t, "cache/umbraco.config", store.objectKey("umbraco.config"))
	})
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NotFound{})))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

// TestS3Store_Integration runs against a real endpoint such as MinIO when S3_TEST_ENDPOINT is set.
func TestS3Store_Integration(t *testing.T) {
	endpoint := os.Getenv("S3_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("S3_TEST_ENDPOINT not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := New(ctx, Config{
		Bucket:                 "published-content-test",
		Endpoint:               endpoint,
		UsePathStyle:           true,
		AccessKeyID:            os.Getenv("S3_TEST_ACCESS_KEY"),
		SecretAccessKey:        os.Getenv("S3_TEST_SECRET_KEY"),
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)

	key := fmt.Sprintf("test/%d.config", time.Now().UnixNano())
	require.NoError(t, store.Put(ctx, key, strings.NewReader("<root/>")))
	defer store.Delete(ctx, key)

	meta, err := store.Stat(ctx, key)
	require.NoError(t, err)
	assert.NotEmpty(t, meta.ETag)

	_, err = store.Stat(ctx, key+".missing")
	assert.ErrorIs(t, err, publishedcontent.ErrObjectNotFound)
}
