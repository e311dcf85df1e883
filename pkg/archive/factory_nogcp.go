//go:build !gcp

package archive

import (
	"context"
	"fmt"
)

func newGCSStoreFromEnv(ctx context.Context) (ObjectStore, error) {
	return nil, fmt.Errorf("archive: gcs storage needs a build with -tags gcp")
}
