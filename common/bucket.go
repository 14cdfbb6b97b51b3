package common

/*

You might be thinking: I know, I'll keep one bucket per experiment root open for
the whole run! It's okay, I thought that too. The problem is that if you call
the bucket's Close() method in your code (and you should call it _somewhere_)
then it will stop working (as expected) for everything else still holding it.
It's not worth the logistics, so open buckets as one-offs, as needed, and close
them when the crawl or copy is done.

*/

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
)

// DirectoryBucketURI returns a gocloud.dev/blob URI for a local directory.
func DirectoryBucketURI(dir string) (string, error) {

	abs_path, err := filepath.Abs(dir)

	if err != nil {
		return "", fmt.Errorf("Failed to derive absolute path for %s, %w", dir, err)
	}

	return directoryURI(filepath.ToSlash(abs_path)), nil
}

// directoryURI builds the fileblob URI for an absolute, slash-separated path. Windows paths ("C:/out") get a
// leading slash so the drive letter is read as part of the path and not as the URI's host.
func directoryURI(slash_path string) string {

	if !strings.HasPrefix(slash_path, "/") {
		slash_path = "/" + slash_path
	}

	// metadata=skip stops fileblob writing .attrs files next to the copies it makes

	u := url.URL{
		Scheme:   "file",
		Path:     slash_path,
		RawQuery: "metadata=skip",
	}

	return u.String()
}

// OpenDirectoryBucket opens a local directory as a gocloud.dev/blob Bucket. The caller is responsible for
// closing the bucket.
func OpenDirectoryBucket(ctx context.Context, dir string) (*blob.Bucket, error) {

	uri, err := DirectoryBucketURI(dir)

	if err != nil {
		return nil, err
	}

	bucket, err := blob.OpenBucket(ctx, uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to open bucket for %s, %w", dir, err)
	}

	return bucket, nil
}
