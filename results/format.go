package results

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatValue renders v the way the ForestSim simulator writes doubles to its sibling CSV files (biomass.csv
// and friends), so the rows of every file in an experiment directory read alike. That is Java's
// Double.toString and not Python's repr: integral values keep a trailing ".0", values in [1e-3, 1e7) use plain
// decimal notation with the shortest round-trip digits and anything else uses "1.0E7" style scientific
// notation. Values in [1e-4, 1e-3) therefore differ from what Python writes: 0.0005 becomes "5.0E-4".
func FormatValue(v float64) string {

	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:

		if math.Signbit(v) {
			return "-0.0"
		}

		return "0.0"
	}

	abs := math.Abs(v)

	if abs >= 1e-3 && abs < 1e7 {

		str := strconv.FormatFloat(v, 'f', -1, 64)

		if !strings.Contains(str, ".") {
			str = str + ".0"
		}

		return str
	}

	str := strconv.FormatFloat(v, 'E', -1, 64)

	mantissa, exponent, _ := strings.Cut(str, "E")

	if !strings.Contains(mantissa, ".") {
		mantissa = mantissa + ".0"
	}

	exp, err := strconv.Atoi(exponent)

	if err != nil {
		// strconv always produces a valid exponent, this is here to keep the compiler honest
		return str
	}

	return fmt.Sprintf("%sE%d", mantissa, exp)
}
