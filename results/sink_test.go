package results

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/forestsim/go-forestsim-geoprocess/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{3, "3.0"},
		{1.5, "1.5"},
		{2.25, "2.25"},
		{0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{-4, "-4.0"},
		{0.2, "0.2"},
		{0.001, "0.001"},
		{0.0001, "1.0E-4"},
		{0.0005, "5.0E-4"},
		{0.00099, "9.9E-4"},
		{0.00012345, "1.2345E-4"},
		{1e7, "1.0E7"},
		{12345678.9, "1.23456789E7"},
		{9999999, "9999999.0"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.input))
		})
	}
}

func TestSink_AccumulationFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aesthetics.csv")
	sink := NewSink(path)

	require.NoError(t, sink.AppendValue(1.5))
	require.NoError(t, sink.AppendValue(2.25))
	require.NoError(t, sink.EndPass())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1.5,2.25,\n", string(body))
}

func TestSink_AppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aesthetics.csv")

	// re-running appends rather than replaces, there is no deduplication
	for i := 0; i < 2; i++ {
		sink := NewSink(path)
		require.NoError(t, sink.AppendValue(3))
		require.NoError(t, sink.EndPass())
	}

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "3.0,\n3.0,\n", string(body))
}

func TestSink_MissingDirectory(t *testing.T) {
	sink := NewSink(filepath.Join(t.TempDir(), "missing", "aesthetics.csv"))
	assert.Error(t, sink.AppendValue(1))
}

func TestExperiment(t *testing.T) {
	dir := t.TempDir()
	e := NewExperiment(dir, config.Default().Outputs)

	require.NoError(t, e.Record(3.0, 0.2))
	require.NoError(t, e.Record(4.0, 0.5))
	require.NoError(t, e.EndPass())

	aesthetics, err := os.ReadFile(filepath.Join(dir, "aesthetics.csv"))
	require.NoError(t, err)
	assert.Equal(t, "3.0,4.0,\n", string(aesthetics))

	connectivity, err := os.ReadFile(filepath.Join(dir, "habitatConnectivity.csv"))
	require.NoError(t, err)
	assert.Equal(t, "0.2,0.5,\n", string(connectivity))
}

func TestExperiment_EmptyPass(t *testing.T) {
	dir := t.TempDir()
	e := NewExperiment(dir, config.Default().Outputs)

	require.NoError(t, e.EndPass())

	for _, name := range []string{"aesthetics.csv", "habitatConnectivity.csv"} {
		body, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, "\n", string(body))
	}
}
