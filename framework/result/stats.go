package result

import (
	"fmt"
	"math"
)

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SampleStdDev returns the sample standard deviation (n-1 denominator). It is undefined for
// fewer than two values, in which case ok is false.
func SampleStdDev(values []float64) (stdev float64, ok bool) {
	if len(values) < 2 {
		return 0, false
	}
	mean := Mean(values)
	sq := 0.0
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(values)-1)), true
}

// FormatMeasurement renders the observations of a measurement. A single observation is
// shown bare; several are shown as mean and sample standard deviation, both rounded to the
// nearest integer. No deviation is ever printed for a single run.
func FormatMeasurement(values []float64, unit string) string {
	switch len(values) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%.0f %s", values[0], unit)
	}
	stdev, _ := SampleStdDev(values)
	return fmt.Sprintf("%.0f (± %.0f) %s", Mean(values), stdev, unit)
}
