package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lessonforge/internal/clients/gcp"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

func TestStorageModeDefaults(t *testing.T) {
	assert.Equal(t, ObjectStorageModeMemory, storageMode(Config{}))
	assert.Equal(t, ObjectStorageModeGCS, storageMode(Config{AssetBucket: "assets"}))
	assert.Equal(t, ObjectStorageModeMemory, storageMode(Config{ObjectStorageMode: " Memory ", AssetBucket: "assets"}))
}

func TestResolveAssetStoreMemory(t *testing.T) {
	store, err := resolveAssetStore(context.Background(), logger.NewNop(), Config{AssetCDNDomain: "https://cdn.test"})
	require.NoError(t, err)
	_, ok := store.(*gcp.MemoryStore)
	require.True(t, ok)
	assert.Equal(t, "https://cdn.test/a.png", store.PublicURL("a.png"))
}

func TestResolveAssetStoreErrors(t *testing.T) {
	orig := newBucketStore
	t.Cleanup(func() { newBucketStore = orig })
	newBucketStore = func(ctx context.Context, log *logger.Logger, bucketName, cdnDomain string) (gcp.AssetStore, error) {
		return nil, errors.New("dial refused")
	}

	cases := []struct {
		name string
		cfg  Config
		code StorageProviderBootstrapErrorCode
	}{
		{"invalid mode", Config{ObjectStorageMode: "s3"}, StorageProviderBootstrapErrorInvalidMode},
		{"missing bucket", Config{ObjectStorageMode: "gcs"}, StorageProviderBootstrapErrorMissingBucket},
		{"connect failed", Config{AssetBucket: "assets"}, StorageProviderBootstrapErrorConnectFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolveAssetStore(context.Background(), logger.NewNop(), tc.cfg)
			var bootErr *StorageProviderBootstrapError
			require.ErrorAs(t, err, &bootErr)
			assert.Equal(t, tc.code, bootErr.Code)
		})
	}
}

func TestResolveAssetStoreGCS(t *testing.T) {
	orig := newBucketStore
	t.Cleanup(func() { newBucketStore = orig })
	mem := gcp.NewMemoryStore("https://bucket.test")
	var gotBucket string
	newBucketStore = func(ctx context.Context, log *logger.Logger, bucketName, cdnDomain string) (gcp.AssetStore, error) {
		gotBucket = bucketName
		return mem, nil
	}

	store, err := resolveAssetStore(context.Background(), logger.NewNop(), Config{AssetBucket: "lesson-assets"})
	require.NoError(t, err)
	assert.Same(t, mem, store)
	assert.Equal(t, "lesson-assets", gotBucket)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, splitList(" https://a.test, ,https://b.test "))
	assert.Nil(t, splitList(""))
}
