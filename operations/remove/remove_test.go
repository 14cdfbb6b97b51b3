package remove

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/forestsim/go-forestsim-geoprocess/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, paths ...string) {

	for _, p := range paths {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}
}

func TestRemoveDataset(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	touch(t,
		filepath.Join(dir, "clipped.shp"),
		filepath.Join(dir, "clipped.shx"),
		filepath.Join(dir, "clipped.dbf"),
		filepath.Join(dir, "clipped.prj"),
		filepath.Join(dir, "other.shp"),
	)

	bucket, err := common.OpenDirectoryBucket(ctx, dir)
	require.NoError(t, err)
	defer bucket.Close()

	require.NoError(t, RemoveDataset(ctx, bucket, "clipped.shp"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "other.shp", entries[0].Name())

	// removing it again is not an error
	assert.NoError(t, RemoveDataset(ctx, bucket, "clipped.shp"))
}

func TestRemoveDataset_Dryrun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	touch(t, filepath.Join(dir, "clipped.shp"), filepath.Join(dir, "clipped.dbf"))

	bucket, err := common.OpenDirectoryBucket(ctx, dir)
	require.NoError(t, err)
	defer bucket.Close()

	opts := &RemoveDatasetOptions{
		Bucket: bucket,
		Key:    "clipped.shp",
		Dryrun: true,
	}

	require.NoError(t, RemoveDatasetWithOptions(ctx, opts))

	assert.FileExists(t, filepath.Join(dir, "clipped.shp"))
	assert.FileExists(t, filepath.Join(dir, "clipped.dbf"))
}

func TestRemoveDatasetAtPath(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	touch(t, filepath.Join(dir, "plots.geojson"))

	require.NoError(t, RemoveDatasetAtPath(ctx, filepath.Join(dir, "plots.geojson")))
	assert.NoFileExists(t, filepath.Join(dir, "plots.geojson"))

	assert.NoError(t, RemoveDatasetAtPath(ctx, filepath.Join(dir, "missing", "clipped.shp")))
}
