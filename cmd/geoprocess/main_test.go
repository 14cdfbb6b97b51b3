package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/forestsim/go-forestsim-geoprocess/dataset"
	"github.com/forestsim/go-forestsim-geoprocess/operations/gather"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {

	var stdout bytes.Buffer
	var stderr bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.ExecuteContext(context.Background())

	return stdout.String(), stderr.String(), err
}

func square(x float64, size float64) orb.Polygon {
	return orb.Polygon{
		orb.Ring{{x, 0}, {x + size, 0}, {x + size, size}, {x, size}, {x, 0}},
	}
}

func writeLayer(t *testing.T, path string, dbh ...float64) {

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	ds := &dataset.Dataset{
		Fields: []dataset.Field{dataset.DoubleField("DBH")},
	}

	for i, v := range dbh {
		f := dataset.NewFeature(square(float64(i)*100, 100))
		f.Properties["DBH"] = v
		ds.Features = append(ds.Features, f)
	}

	require.NoError(t, dataset.Write(path, ds))
}

func parseRow(t *testing.T, row string) []float64 {

	require.True(t, strings.HasSuffix(row, ","), row)

	parts := strings.Split(strings.TrimSuffix(row, ","), ",")
	values := make([]float64, len(parts))

	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		require.NoError(t, err)
		values[i] = v
	}

	return values
}

func TestRun_GEOS(t *testing.T) {
	dir := t.TempDir()

	root := filepath.Join(dir, "out")
	reference := filepath.Join(dir, "roads", "roads_buffer.shp")

	// the buffer covers exactly the first plot
	writeLayer(t, reference, 0)

	writeLayer(t, filepath.Join(root, "none", "run1", "nipfo10.shp"), 10, 11, 20, 30)
	writeLayer(t, filepath.Join(root, "none", "run1", "nipfo2.shp"), 20, 11, 10, 30)

	_, stderr, err := execute(t,
		"run",
		"--root", root,
		"--experiment", "none",
		"--reference", reference,
		"--scratch", filepath.Join(dir, "scratch"),
		"--log-level", "debug",
	)

	require.NoError(t, err, stderr)

	body, err := os.ReadFile(filepath.Join(root, "none", "aesthetics.csv"))
	require.NoError(t, err)

	// the experiment directory holds no datasets of its own so its row is empty, run1 gets the second row
	rows := strings.Split(string(body), "\n")
	require.Len(t, rows, 3)
	assert.Equal(t, "", rows[0])
	assert.Equal(t, "", rows[2])

	// nipfo2 comes first: its first plot has a DBH of 20 so nothing counts
	areas := parseRow(t, rows[1])
	require.Len(t, areas, 2)
	assert.Equal(t, 0.0, areas[0])
	assert.InDelta(t, 0.01, areas[1], 1e-9)

	body, err = os.ReadFile(filepath.Join(root, "none", "habitatConnectivity.csv"))
	require.NoError(t, err)

	rows = strings.Split(string(body), "\n")
	require.Len(t, rows, 3)

	connectivity := parseRow(t, rows[1])
	require.Len(t, connectivity, 2)
	assert.InDelta(t, -1.0/13.0, connectivity[1], 1e-9)

	// the datasets were normalized in place
	ds, err := dataset.Read(filepath.Join(root, "none", "run1", "nipfo10.shp"))
	require.NoError(t, err)
	assert.Equal(t, "EPSG:26916", ds.CRS)
	assert.NotEqual(t, -1, ds.FieldIndex("HABITAT"))
}

func TestRun_ConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()

	root := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "discount"), 0755))

	config_path := filepath.Join(dir, "geoprocess.yaml")

	config_body := `
root: ` + root + `
experiments:
  - discount
  - agglomeration
dry_run: true
`

	require.NoError(t, os.WriteFile(config_path, []byte(config_body), 0644))

	// agglomeration does not exist so the run only succeeds if the flag wins
	_, stderr, err := execute(t, "--config", config_path, "--experiment", "discount", "--log-level", "info")
	require.NoError(t, err, stderr)

	assert.Contains(t, stderr, "[dryrun]")
	assert.NoFileExists(t, filepath.Join(root, "discount", "aesthetics.csv"))
}

func TestRun_InvalidConfig(t *testing.T) {

	_, _, err := execute(t, "run", "--on-error", "retry")
	assert.Error(t, err)

	_, _, err = execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, _, err = execute(t, "run", "--root", t.TempDir(), "--engine", "qgis://")
	assert.Error(t, err)
}

func TestGather(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"nipfo10.shp", "nipfo2.shp", "nipfo2.dbf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0644))
	}

	stdout, _, err := execute(t, "gather", dir)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)

	var first gather.GatherDatasetsResponse
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))

	assert.Equal(t, "nipfo2.shp", first.Key)
	assert.Equal(t, filepath.Join(dir, "nipfo2.shp"), first.Path)
	assert.Len(t, first.Fingerprint, 40)

	_, _, err = execute(t, "gather")
	assert.Error(t, err)
}

func TestEngines(t *testing.T) {

	stdout, _, err := execute(t, "engines")
	require.NoError(t, err)

	assert.Equal(t, "arcpy://\ngeos://\n", stdout)
}
