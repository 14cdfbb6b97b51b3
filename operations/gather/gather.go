package gather

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/forestsim/go-forestsim-geoprocess/common"
	"gocloud.dev/blob"
)

type GatherDatasetsResponse struct {
	// The bucket key of the dataset's primary file.
	Key string `json:"key"`
	// The local filesystem path of the dataset, if the bucket was opened with GatherDatasetsInDirectory.
	Path        string `json:"path,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Size        int64  `json:"size"`
}

type GatherDatasetCallbackFunc func(*GatherDatasetsResponse) error

type GatherDatasetsOptions struct {
	// Only keys with this extension (compared case-insensitively) are gathered.
	Extension string
	// Derive a fingerprint for each dataset.
	Fingerprint bool
	// Prepended to keys to build GatherDatasetsResponse.Path.
	Root string
}

// GatherDirectoryResponse is one directory of a crawl and the datasets directly inside it.
type GatherDirectoryResponse struct {
	// The bucket prefix of the directory, "" for the root of the bucket.
	Prefix string `json:"prefix"`
	// The local filesystem path of the directory, if the bucket was opened with CrawlDirectoriesInDirectory.
	Path     string                    `json:"path,omitempty"`
	Datasets []*GatherDatasetsResponse `json:"datasets"`
}

type GatherDirectoryCallbackFunc func(*GatherDirectoryResponse) error

// GatherDatasets returns every dataset in bucket with the extension ext, in crawl order (see CrawlDirectories).
func GatherDatasets(ctx context.Context, bucket *blob.Bucket, ext string) ([]*GatherDatasetsResponse, error) {

	opts := &GatherDatasetsOptions{
		Extension:   ext,
		Fingerprint: true,
	}

	return GatherDatasetsWithOptions(ctx, bucket, opts)
}

func GatherDatasetsWithOptions(ctx context.Context, bucket *blob.Bucket, opts *GatherDatasetsOptions) ([]*GatherDatasetsResponse, error) {

	datasets := make([]*GatherDatasetsResponse, 0)

	cb := func(rsp *GatherDatasetsResponse) error {
		datasets = append(datasets, rsp)
		return nil
	}

	err := CrawlDatasets(ctx, bucket, opts, cb)

	if err != nil {
		return nil, err
	}

	return datasets, nil
}

// GatherDatasetsInDirectory opens dir as a bucket and gathers its datasets, setting each response's Path.
func GatherDatasetsInDirectory(ctx context.Context, dir string, opts *GatherDatasetsOptions) ([]*GatherDatasetsResponse, error) {

	bucket, err := common.OpenDirectoryBucket(ctx, dir)

	if err != nil {
		return nil, err
	}

	defer bucket.Close()

	dir_opts := *opts
	dir_opts.Root = dir

	return GatherDatasetsWithOptions(ctx, bucket, &dir_opts)
}

// CrawlDatasets dispatches every dataset in bucket to a user-defined callback, in crawl order.
func CrawlDatasets(ctx context.Context, bucket *blob.Bucket, opts *GatherDatasetsOptions, cb GatherDatasetCallbackFunc) error {

	dir_cb := func(dir *GatherDirectoryResponse) error {

		for _, rsp := range dir.Datasets {

			err := cb(rsp)

			if err != nil {
				return err
			}
		}

		return nil
	}

	return CrawlDirectories(ctx, bucket, opts, dir_cb)
}

// CrawlDirectoriesInDirectory opens dir as a bucket and crawls it, setting each response's Path.
func CrawlDirectoriesInDirectory(ctx context.Context, dir string, opts *GatherDatasetsOptions, cb GatherDirectoryCallbackFunc) error {

	bucket, err := common.OpenDirectoryBucket(ctx, dir)

	if err != nil {
		return err
	}

	defer bucket.Close()

	dir_opts := *opts
	dir_opts.Root = dir

	return CrawlDirectories(ctx, bucket, &dir_opts, cb)
}

// Walk the "directories" of a blob.Bucket instance top-down, starting at the root of the bucket, and dispatch
// one GatherDirectoryResponse per directory to a user-defined callback. A directory's datasets are in natural
// sort order and it is dispatched before any of its subdirectories, which are visited in natural sort order.
// Directories without a matching dataset are still dispatched. The callback for a directory returns before
// its subdirectories are crawled.
func CrawlDirectories(ctx context.Context, bucket *blob.Bucket, opts *GatherDatasetsOptions, cb GatherDirectoryCallbackFunc) error {

	var walk func(context.Context, string) error

	walk = func(ctx context.Context, prefix string) error {

		iter := bucket.List(&blob.ListOptions{
			Delimiter: "/",
			Prefix:    prefix,
		})

		keys := make([]string, 0)
		sizes := make(map[string]int64)
		subdirs := make([]string, 0)

		for {

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				// pass
			}

			obj, err := iter.Next(ctx)

			if err == io.EOF {
				break
			}

			if err != nil {
				return fmt.Errorf("Failed to list %s, %w", prefix, err)
			}

			if obj.IsDir {
				subdirs = append(subdirs, obj.Key)
				continue
			}

			if !strings.EqualFold(filepath.Ext(obj.Key), opts.Extension) {
				continue
			}

			keys = append(keys, obj.Key)
			sizes[obj.Key] = obj.Size
		}

		common.NaturalSort(keys)
		common.NaturalSort(subdirs)

		dir := &GatherDirectoryResponse{
			Prefix:   prefix,
			Datasets: make([]*GatherDatasetsResponse, 0, len(keys)),
		}

		if opts.Root != "" {
			dir.Path = filepath.Join(opts.Root, filepath.FromSlash(prefix))
		}

		for _, k := range keys {

			rsp, err := GatherDatasetResponseWithKey(ctx, bucket, k, opts)

			if err != nil {
				return err
			}

			rsp.Size = sizes[k]
			dir.Datasets = append(dir.Datasets, rsp)
		}

		err := cb(dir)

		if err != nil {
			return err
		}

		for _, sub := range subdirs {

			err := walk(ctx, sub)

			if err != nil {
				return err
			}
		}

		return nil
	}

	return walk(ctx, "")
}

func GatherDatasetResponseWithKey(ctx context.Context, bucket *blob.Bucket, key string, opts *GatherDatasetsOptions) (*GatherDatasetsResponse, error) {

	rsp := &GatherDatasetsResponse{
		Key: key,
	}

	if opts.Root != "" {
		rsp.Path = filepath.Join(opts.Root, filepath.FromSlash(key))
	}

	if opts.Fingerprint {

		fp, err := common.FingerprintDataset(ctx, bucket, key)

		if err != nil {
			return nil, fmt.Errorf("Failed to fingerprint %s, %w", key, err)
		}

		rsp.Fingerprint = fp
	}

	return rsp, nil
}
