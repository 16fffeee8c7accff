package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/lessonforge/internal/clients/gcp"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

var newBucketStore = gcp.NewBucketStore

const (
	ObjectStorageModeGCS    = "gcs"
	ObjectStorageModeMemory = "memory"
)

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode   StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingBucket StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorConnectFailed StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code  StorageProviderBootstrapErrorCode
	Mode  string
	Cause error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf("object storage bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// storageMode resolves an empty mode to gcs when a bucket is configured.
func storageMode(cfg Config) string {
	mode := strings.ToLower(strings.TrimSpace(cfg.ObjectStorageMode))
	if mode != "" {
		return mode
	}
	if strings.TrimSpace(cfg.AssetBucket) != "" {
		return ObjectStorageModeGCS
	}
	return ObjectStorageModeMemory
}

func resolveAssetStore(ctx context.Context, log *logger.Logger, cfg Config) (gcp.AssetStore, error) {
	mode := storageMode(cfg)
	switch mode {
	case ObjectStorageModeMemory:
		log.Warn("Using in-process asset store; rendered assets do not survive restarts")
		return gcp.NewMemoryStore(cfg.AssetCDNDomain), nil
	case ObjectStorageModeGCS:
		if strings.TrimSpace(cfg.AssetBucket) == "" {
			return nil, &StorageProviderBootstrapError{
				Code:  StorageProviderBootstrapErrorMissingBucket,
				Mode:  mode,
				Cause: fmt.Errorf("ASSET_GCS_BUCKET_NAME is empty"),
			}
		}
		store, err := newBucketStore(ctx, log, cfg.AssetBucket, cfg.AssetCDNDomain)
		if err != nil {
			log.Error("Object storage provider bootstrap failed", "mode", mode, "bucket", cfg.AssetBucket, "error", err)
			return nil, &StorageProviderBootstrapError{Code: StorageProviderBootstrapErrorConnectFailed, Mode: mode, Cause: err}
		}
		log.Info("Object storage provider selected", "mode", mode, "bucket", cfg.AssetBucket)
		return store, nil
	default:
		return nil, &StorageProviderBootstrapError{
			Code:  StorageProviderBootstrapErrorInvalidMode,
			Mode:  mode,
			Cause: fmt.Errorf("unsupported object storage mode %q", mode),
		}
	}
}
