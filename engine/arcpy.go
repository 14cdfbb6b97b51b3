package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os/exec"
	"strconv"
	"strings"

	"github.com/forestsim/go-forestsim-geoprocess/dataset"
	"github.com/forestsim/go-forestsim-geoprocess/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

func init() {

	ctx := context.Background()
	err := RegisterEngine(ctx, "arcpy", NewArcPyEngine)

	if err != nil {
		panic(err)
	}
}

// ArcPyEngine implements the Engine interface by running short scripts against an ArcGIS Python
// interpreter, one interpreter per operation.
type ArcPyEngine struct {
	Engine
	options *Options
	crs     *dataset.CRS
	python  string
}

// NewArcPyEngine returns a new ArcPyEngine instance. 'uri' takes the form:
//
//	arcpy://?python={PATH}
//
// Where {PATH} is the Python interpreter that can import arcpy. If omitted "python" is looked up on
// the current PATH.
func NewArcPyEngine(ctx context.Context, uri string, opts *Options) (Engine, error) {

	if opts == nil {
		return nil, fmt.Errorf("Missing engine options")
	}

	u, err := url.Parse(uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse URI, %w", err)
	}

	python := u.Query().Get("python")

	if python == "" {
		python = "python"
	}

	crs, err := opts.crs()

	if err != nil {
		return nil, err
	}

	e := &ArcPyEngine{
		options: opts,
		crs:     crs,
		python:  python,
	}

	return e, nil
}

func (e *ArcPyEngine) Normalize(ctx context.Context, path string) error {

	_, err := e.run(ctx, normalize_script, path, strconv.Itoa(e.crs.Code))

	if err != nil {
		return fmt.Errorf("Failed to normalize %s, %w", path, err)
	}

	return nil
}

func (e *ArcPyEngine) ClippedArea(ctx context.Context, path string) (float64, error) {

	if e.crs.Geographic {
		return 0, fmt.Errorf("%w: %s is %s", ErrGeographicCRS, path, e.crs.Name)
	}

	fields, err := e.run(ctx, clip_script,
		path,
		e.options.ReferenceLayer,
		e.options.ScratchPath,
		e.options.AreaField,
		e.options.DBHField,
		formatThreshold(e.options.Threshold),
	)

	if err != nil {
		return 0, fmt.Errorf("Failed to derive clipped area for %s, %w", path, err)
	}

	if len(fields) != 1 {
		return 0, fmt.Errorf("Unexpected clip output for %s: %q", path, strings.Join(fields, " "))
	}

	area, err := parsePythonFloat(fields[0])

	if err != nil {
		return 0, fmt.Errorf("Failed to parse clipped area for %s, %w", path, err)
	}

	return area, nil
}

func (e *ArcPyEngine) SpatialAutocorrelation(ctx context.Context, path string) (*stats.MoransIResult, error) {

	standardization := "NONE"

	if e.options.Standardization == stats.StandardizationRow {
		standardization = "ROW"
	}

	fields, err := e.run(ctx, autocorrelation_script,
		path,
		e.options.DBHField,
		e.options.IndicatorField,
		formatThreshold(e.options.Threshold),
		standardization,
		strconv.FormatFloat(e.options.DistanceBand, 'f', -1, 64),
	)

	if err != nil {
		return nil, fmt.Errorf("Failed to derive spatial autocorrelation for %s, %w", path, err)
	}

	// index, z-score, p-value, feature count
	if len(fields) != 4 {
		return nil, fmt.Errorf("Unexpected autocorrelation output for %s: %q", path, strings.Join(fields, " "))
	}

	values := make([]float64, 3)

	for i := 0; i < 3; i++ {

		v, err := parsePythonFloat(fields[i])

		if err != nil {
			return nil, fmt.Errorf("Failed to parse autocorrelation output for %s, %w", path, err)
		}

		values[i] = v
	}

	n, err := strconv.Atoi(fields[3])

	if err != nil {
		return nil, fmt.Errorf("Failed to parse feature count for %s, %w", path, err)
	}

	if n < 4 {
		return nil, fmt.Errorf("%w: %d", stats.ErrTooFewFeatures, n)
	}

	index := values[0]
	expected := -1 / float64(n-1)

	rsp := &stats.MoransIResult{
		N:             n,
		Index:         index,
		ExpectedIndex: expected,
		Variance:      math.NaN(),
		ZScore:        values[1],
		PValue:        values[2],
	}

	// arcpy reports the z-score rather than the variance, so work back from it
	if values[1] != 0 && !math.IsNaN(values[1]) {
		sd := (index - expected) / values[1]
		rsp.Variance = sd * sd
	}

	if math.IsNaN(rsp.PValue) && !math.IsNaN(rsp.ZScore) {
		rsp.PValue = 2 * (1 - distuv.UnitNormal.CDF(math.Abs(rsp.ZScore)))
	}

	return rsp, nil
}

// ClearMapState removes every layer from every data frame of the configured map document and saves it.
// It does nothing if no map document is configured.
func (e *ArcPyEngine) ClearMapState(ctx context.Context) error {

	if e.options.MapDocument == "" {
		return nil
	}

	_, err := e.run(ctx, clear_map_script, e.options.MapDocument)

	if err != nil {
		return fmt.Errorf("Failed to clear map document %s, %w", e.options.MapDocument, err)
	}

	return nil
}

func (e *ArcPyEngine) Close() error {
	return nil
}

// run executes script with args and returns the whitespace separated fields of the last line it
// printed to STDOUT.
func (e *ArcPyEngine) run(ctx context.Context, script string, args ...string) ([]string, error) {

	cmd_args := append([]string{"-c", script}, args...)

	cmd := exec.CommandContext(ctx, e.python, cmd_args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := slog.Default()
	logger = logger.With("python", e.python, "args", args)

	logger.Debug("Run arcpy script")

	err := cmd.Run()

	if err != nil {

		msg := strings.TrimSpace(stderr.String())

		if msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}

		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])

	return strings.Fields(last), nil
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parsePythonFloat parses the repr of a Python float, including "nan" and "inf".
func parsePythonFloat(s string) (float64, error) {

	switch strings.ToLower(s) {
	case "nan":
		return math.NaN(), nil
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}

	return strconv.ParseFloat(strings.TrimSuffix(s, "L"), 64)
}
