package ema

import (
	"math"
	"strconv"
	"strings"
)

// Magazine geometry. Sample 1 sits at grid position (0, 0); positions fill
// the Y column before moving to the next X.
const (
	MinSample       = 1
	MaxSample       = 300
	MagazineRows    = 10
	MagazineColumns = MaxSample / MagazineRows
)

// SampleNumberToXY returns the magazine grid coordinates of sample n.
func SampleNumberToXY(n int) (x, y int, err error) {
	if n < MinSample || n > MaxSample {
		return 0, 0, &RangeError{Name: "sample number", Value: float64(n), Min: MinSample, Max: MaxSample}
	}
	i := n - 1
	return i / MagazineRows, i % MagazineRows, nil
}

// XYToSampleNumber converts magazine grid coordinates, as reported by the
// controller, back to a sample number. Both components must be integral.
func XYToSampleNumber(x, y float64) (int, error) {
	xi, err := toInt("x coordinate", x)
	if err != nil {
		return 0, err
	}
	yi, err := toInt("y coordinate", y)
	if err != nil {
		return 0, err
	}
	if xi < 0 || xi >= MagazineColumns {
		return 0, &RangeError{Name: "x coordinate", Value: x, Min: 0, Max: MagazineColumns - 1}
	}
	if yi < 0 || yi >= MagazineRows {
		return 0, &RangeError{Name: "y coordinate", Value: y, Min: 0, Max: MagazineRows - 1}
	}
	return xi*MagazineRows + yi + 1, nil
}

// ParseSampleNumber validates a sample number typed by a user.
func ParseSampleNumber(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
			n = int(f)
		} else {
			return 0, &NotIntegerError{Name: "sample number", Value: strconv.Quote(s)}
		}
	}
	if n < MinSample || n > MaxSample {
		return 0, &RangeError{Name: "sample number", Value: float64(n), Min: MinSample, Max: MaxSample}
	}
	return n, nil
}

func toInt(name string, v float64) (int, error) {
	if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, &NotIntegerError{Name: name, Value: strconv.FormatFloat(v, 'g', -1, 64)}
	}
	return int(v), nil
}
