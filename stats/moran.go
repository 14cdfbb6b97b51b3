// Package stats implements the spatial statistics behind the habitat connectivity metric.
package stats

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrTooFewFeatures is returned when there are fewer than four features; the variance of I is
	// undefined below that.
	ErrTooFewFeatures = errors.New("too few features for Moran's I")
	// ErrZeroVariance is returned when every feature has the same value.
	ErrZeroVariance = errors.New("values have zero variance")
	// ErrNoNeighbours is returned when no pair of features has a non-zero weight.
	ErrNoNeighbours = errors.New("no feature has any neighbours")
)

// Standardization controls how spatial weights are scaled.
type Standardization int

const (
	// StandardizationNone uses raw inverse distance weights.
	StandardizationNone Standardization = iota
	// StandardizationRow divides each weight by the sum of its row.
	StandardizationRow
)

// ParseStandardization maps "none" and "row" to a Standardization.
func ParseStandardization(s string) (Standardization, error) {
	switch s {
	case "", "none":
		return StandardizationNone, nil
	case "row":
		return StandardizationRow, nil
	default:
		return StandardizationNone, fmt.Errorf("Unknown standardization %q", s)
	}
}

type MoransIOptions struct {
	Standardization Standardization
	// DistanceBand, when positive, gives pairs further apart than this a weight of zero.
	DistanceBand float64
}

// MoransIResult is the outcome of a global Moran's I test.
type MoransIResult struct {
	N             int
	Index         float64
	ExpectedIndex float64
	// Variance is computed under the randomization assumption.
	Variance float64
	ZScore   float64
	// PValue is two-sided.
	PValue float64
}

// MoransI computes global Moran's I for values observed at points, using inverse Euclidean distance
// weights. Coincident points get a weight of zero.
func MoransI(points []orb.Point, values []float64, opts *MoransIOptions) (*MoransIResult, error) {

	if len(points) != len(values) {
		return nil, fmt.Errorf("Mismatched input, %d points and %d values", len(points), len(values))
	}

	if opts == nil {
		opts = &MoransIOptions{}
	}

	n := len(values)

	if n < 4 {
		return nil, fmt.Errorf("%w: %d", ErrTooFewFeatures, n)
	}

	mean := stat.Mean(values, nil)

	z := make([]float64, n)
	copy(z, values)
	floats.AddConst(-mean, z)

	z2 := make([]float64, n)
	floats.MulTo(z2, z, z)

	sum_z2 := floats.Sum(z2)

	if sum_z2 == 0 {
		return nil, ErrZeroVariance
	}

	z4 := make([]float64, n)
	floats.MulTo(z4, z2, z2)

	weight := func(i int, j int) float64 {

		if i == j {
			return 0
		}

		d := planar.Distance(points[i], points[j])

		if d == 0 {
			return 0
		}

		if opts.DistanceBand > 0 && d > opts.DistanceBand {
			return 0
		}

		return 1 / d
	}

	// row sums of the raw weights, needed up front for row standardization
	row_scale := make([]float64, n)

	for i := 0; i < n; i++ {
		row_scale[i] = 1
	}

	if opts.Standardization == StandardizationRow {

		for i := 0; i < n; i++ {

			sum := 0.0

			for j := 0; j < n; j++ {
				sum += weight(i, j)
			}

			if sum > 0 {
				row_scale[i] = 1 / sum
			} else {
				row_scale[i] = 0
			}
		}
	}

	var s0, s1, cross float64

	row_out := make([]float64, n)
	col_in := make([]float64, n)

	for i := 0; i < n; i++ {

		for j := i + 1; j < n; j++ {

			raw := weight(i, j)

			if raw == 0 {
				continue
			}

			w_ij := raw * row_scale[i]
			w_ji := raw * row_scale[j]

			pair := w_ij + w_ji

			s0 += pair
			s1 += pair * pair
			cross += pair * z[i] * z[j]

			row_out[i] += w_ij
			row_out[j] += w_ji
			col_in[j] += w_ij
			col_in[i] += w_ji
		}
	}

	if s0 == 0 {
		return nil, ErrNoNeighbours
	}

	s2 := 0.0

	for i := 0; i < n; i++ {
		s := row_out[i] + col_in[i]
		s2 += s * s
	}

	nf := float64(n)

	index := (nf / s0) * (cross / sum_z2)
	expected := -1 / (nf - 1)

	b2 := nf * floats.Sum(z4) / (sum_z2 * sum_z2)

	a := nf * ((nf*nf-3*nf+3)*s1 - nf*s2 + 3*s0*s0)
	b := b2 * ((nf*nf-nf)*s1 - 2*nf*s2 + 6*s0*s0)
	c := (nf - 1) * (nf - 2) * (nf - 3) * s0 * s0

	variance := (a-b)/c - expected*expected

	rsp := &MoransIResult{
		N:             n,
		Index:         index,
		ExpectedIndex: expected,
		Variance:      variance,
		ZScore:        math.NaN(),
		PValue:        math.NaN(),
	}

	if variance > 0 {
		rsp.ZScore = (index - expected) / math.Sqrt(variance)
		rsp.PValue = 2 * (1 - distuv.UnitNormal.CDF(math.Abs(rsp.ZScore)))
	}

	return rsp, nil
}
