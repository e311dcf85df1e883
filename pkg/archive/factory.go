package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend selects the object storage implementation.
type Backend string

const (
	BackendFS  Backend = "fs"
	BackendS3  Backend = "s3"
	BackendGCS Backend = "gcs"
)

// NewObjectStoreFromEnv builds an ObjectStore from environment
// variables:
//
//	ARCHIVE_STORAGE_TYPE   "fs" (default), "s3", or "gcs"
//	DATA_DIR               base directory for the fs backend
//	ARCHIVE_S3_BUCKET      required for s3
//	ARCHIVE_S3_REGION      falls back to AWS_REGION, then us-east-1
//	ARCHIVE_S3_ENDPOINT    optional, MinIO/LocalStack
//	ARCHIVE_S3_PREFIX      optional key prefix
//	ARCHIVE_GCS_BUCKET     required for gcs (needs the gcp build tag)
//	ARCHIVE_GCS_PREFIX     optional key prefix
func NewObjectStoreFromEnv(ctx context.Context) (ObjectStore, error) {
	backend := Backend(os.Getenv("ARCHIVE_STORAGE_TYPE"))
	if backend == "" {
		backend = BackendFS
	}
	switch backend {
	case BackendFS:
		dataDir := os.Getenv("DATA_DIR")
		if dataDir == "" {
			dataDir = "data"
		}
		return NewFileStore(filepath.Join(dataDir, "archive"))
	case BackendS3:
		bucket := os.Getenv("ARCHIVE_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("archive: ARCHIVE_S3_BUCKET is required for s3 storage")
		}
		region := os.Getenv("ARCHIVE_S3_REGION")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3Config{
			Bucket:   bucket,
			Region:   region,
			Endpoint: os.Getenv("ARCHIVE_S3_ENDPOINT"),
			Prefix:   os.Getenv("ARCHIVE_S3_PREFIX"),
		})
	case BackendGCS:
		return newGCSStoreFromEnv(ctx)
	default:
		return nil, fmt.Errorf("archive: unsupported storage type %q", backend)
	}
}
