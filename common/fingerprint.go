package common

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"

	"gocloud.dev/blob"
)

// Generate a SHA-1 hash of a dataset stored in a blob.Bucket instance. The primary file and every
// companion file that exists (see DatasetKeys) are hashed in order, so changes to a shapefile's
// .prj or .dbf change the fingerprint too.
func FingerprintDataset(ctx context.Context, bucket *blob.Bucket, key string) (string, error) {

	h := sha1.New()

	for i, k := range DatasetKeys(key) {

		// the primary file must exist, sidecars are optional
		if i > 0 {

			exists, err := bucket.Exists(ctx, k)

			if err != nil {
				return "", fmt.Errorf("Failed to determine if %s exists, %w", k, err)
			}

			if !exists {
				continue
			}
		}

		err := hashKey(ctx, bucket, k, h)

		if err != nil {
			return "", err
		}
	}

	hash := h.Sum(nil)
	str := hex.EncodeToString(hash[:])

	return str, nil
}

func hashKey(ctx context.Context, bucket *blob.Bucket, key string, wr io.Writer) error {

	fh, err := bucket.NewReader(ctx, key, nil)

	if err != nil {
		return fmt.Errorf("Failed to open %s for reading, %w", key, err)
	}

	defer fh.Close()

	_, err = io.Copy(wr, fh)

	if err != nil {
		return fmt.Errorf("Failed to hash %s, %w", key, err)
	}

	return nil
}
