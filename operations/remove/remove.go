package remove

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/forestsim/go-forestsim-geoprocess/common"
	"gocloud.dev/blob"
)

type RemoveDatasetOptions struct {
	Bucket *blob.Bucket
	// The bucket key of the dataset's primary file. Shapefile sidecars are removed alongside it.
	Key    string
	Dryrun bool
}

// RemoveDataset deletes the dataset stored at key, and any of its sidecar files, from bucket.
// Files that do not exist are ignored.
func RemoveDataset(ctx context.Context, bucket *blob.Bucket, key string) error {

	opts := &RemoveDatasetOptions{
		Bucket: bucket,
		Key:    key,
	}

	return RemoveDatasetWithOptions(ctx, opts)
}

func RemoveDatasetWithOptions(ctx context.Context, opts *RemoveDatasetOptions) error {

	logger := slog.Default()
	logger = logger.With("key", opts.Key)

	for _, k := range common.DatasetKeys(opts.Key) {

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			// pass
		}

		exists, err := opts.Bucket.Exists(ctx, k)

		if err != nil {
			return fmt.Errorf("Failed to determine if %s exists, %w", k, err)
		}

		if !exists {
			continue
		}

		if opts.Dryrun {
			logger.Info("[dryrun] delete file here", "file", k)
			continue
		}

		err = opts.Bucket.Delete(ctx, k)

		if err != nil {
			return fmt.Errorf("Failed to delete %s, %w", k, err)
		}

		logger.Debug("Deleted file", "file", k)
	}

	return nil
}

// RemoveDatasetAtPath deletes the dataset at path, and its sidecar files, from the local filesystem.
// A missing parent directory means there is nothing to remove.
func RemoveDatasetAtPath(ctx context.Context, path string) error {

	dir := filepath.Dir(path)

	_, err := os.Stat(dir)

	if os.IsNotExist(err) {
		return nil
	}

	bucket, err := common.OpenDirectoryBucket(ctx, dir)

	if err != nil {
		return err
	}

	defer bucket.Close()

	return RemoveDataset(ctx, bucket, filepath.Base(path))
}
