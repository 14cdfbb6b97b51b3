package clone

// copy a dataset and its sidecar files somewhere it can be processed without touching the original

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/forestsim/go-forestsim-geoprocess/common"
	"gocloud.dev/blob"
)

type CloneDatasetOptions struct {
	Source *blob.Bucket
	Target *blob.Bucket
	// The key of the dataset's primary file in Source.
	Key string
	// The key to write the primary file to in Target. Defaults to Key.
	TargetKey string
	// Replace files that already exist in Target.
	Force bool
}

// CloneDataset copies a dataset, and whichever of its sidecar files exist, from one bucket to another
// and returns the key of the copied primary file.
func CloneDataset(ctx context.Context, opts *CloneDatasetOptions) (string, error) {

	target_key := opts.TargetKey

	if target_key == "" {
		target_key = opts.Key
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		// pass
	}

	if !opts.Force {

		exists, err := opts.Target.Exists(ctx, target_key)

		if err != nil {
			return target_key, fmt.Errorf("Failed to determine if %s exists, %w", target_key, err)
		}

		if exists {
			return target_key, nil
		}
	}

	source_root := strings.TrimSuffix(opts.Key, filepath.Ext(opts.Key))
	target_root := strings.TrimSuffix(target_key, filepath.Ext(target_key))

	logger := slog.Default()
	logger = logger.With("key", opts.Key, "target", target_key)

	for i, k := range common.DatasetKeys(opts.Key) {

		// the primary file must exist, sidecars are optional
		if i > 0 {

			exists, err := opts.Source.Exists(ctx, k)

			if err != nil {
				return target_key, fmt.Errorf("Failed to determine if %s exists, %w", k, err)
			}

			if !exists {
				continue
			}
		}

		t := target_root + strings.TrimPrefix(k, source_root)

		err := copyKey(ctx, opts.Source, k, opts.Target, t)

		if err != nil {
			return target_key, err
		}

		logger.Debug("Copied file", "file", k)
	}

	return target_key, nil
}

func copyKey(ctx context.Context, source *blob.Bucket, source_key string, target *blob.Bucket, target_key string) error {

	source_fh, err := source.NewReader(ctx, source_key, nil)

	if err != nil {
		return fmt.Errorf("Failed to open %s for reading, %w", source_key, err)
	}

	defer source_fh.Close()

	target_wr, err := target.NewWriter(ctx, target_key, nil)

	if err != nil {
		return fmt.Errorf("Failed to open %s for writing, %w", target_key, err)
	}

	_, err = io.Copy(target_wr, source_fh)

	if err != nil {
		target_wr.Close()
		target.Delete(ctx, target_key)
		return fmt.Errorf("Failed to copy %s to %s, %w", source_key, target_key, err)
	}

	err = target_wr.Close()

	if err != nil {
		return fmt.Errorf("Failed to close %s, %w", target_key, err)
	}

	return nil
}
