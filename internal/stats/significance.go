// Package stats implements the two-variant significance test used to pick
// an A/B-test winner.
package stats

import (
	"fmt"
	"math"
)

const (
	// DefaultMinSampleSize is the minimum combined conversion count
	// required before significance is computed at all.
	DefaultMinSampleSize = 100

	// SignificanceLevel is the p-value threshold for declaring a winner.
	SignificanceLevel = 0.05
)

// VariantStats is the observed performance of one test variant.
type VariantStats struct {
	Label       string `json:"label"`
	Visits      int64  `json:"visits"`
	Conversions int64  `json:"conversions"`
}

// Result is the outcome of a significance evaluation. When
// InsufficientData is true no p-value was computed and the remaining
// fields are zero.
type Result struct {
	InsufficientData bool    `json:"insufficient_data"`
	SampleSize       int64   `json:"sample_size"`
	ChiSquare        float64 `json:"chi_square,omitempty"`
	PValue           float64 `json:"p_value,omitempty"`
	Significant      bool    `json:"significant"`
	Winner           string  `json:"winner,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
}

// Evaluate runs a two-proportion chi-square test (1 degree of freedom)
// over the 2x2 contingency table of conversions vs non-conversions.
//
// The minimum-sample gate is checked before any statistics: if the
// combined conversion count is below minSample the result is
// "insufficient data" and no p-value is reported. A winner is declared
// only when p < 0.05 and the conversion rates actually differ; a tie is
// never significant in favor of either side.
func Evaluate(a, b VariantStats, minSample int64) (*Result, error) {
	if minSample <= 0 {
		minSample = DefaultMinSampleSize
	}
	if err := validate(a); err != nil {
		return nil, err
	}
	if err := validate(b); err != nil {
		return nil, err
	}

	combined := a.Conversions + b.Conversions
	if combined < minSample {
		return &Result{InsufficientData: true, SampleSize: combined}, nil
	}

	// 2x2 table:
	//            converted  not converted
	//  variant A     ca          na
	//  variant B     cb          nb
	ca := float64(a.Conversions)
	na := float64(a.Visits - a.Conversions)
	cb := float64(b.Conversions)
	nb := float64(b.Visits - b.Conversions)
	n := ca + na + cb + nb

	chi2 := 0.0
	if diff := ca*nb - cb*na; diff != 0 {
		rowA := ca + na
		rowB := cb + nb
		colC := ca + cb
		colN := na + nb
		chi2 = n * diff * diff / (rowA * rowB * colC * colN)
	}

	// Chi-square with 1 dof: p = erfc(sqrt(x/2)).
	p := math.Erfc(math.Sqrt(chi2 / 2))

	res := &Result{
		SampleSize: combined,
		ChiSquare:  chi2,
		PValue:     p,
	}

	rateA := ca / float64(a.Visits)
	rateB := cb / float64(b.Visits)
	if p < SignificanceLevel && rateA != rateB {
		res.Significant = true
		res.Confidence = (1 - p) * 100
		if rateA > rateB {
			res.Winner = a.Label
		} else {
			res.Winner = b.Label
		}
	}
	return res, nil
}

func validate(v VariantStats) error {
	if v.Visits <= 0 {
		return fmt.Errorf("variant %q has no visits", v.Label)
	}
	if v.Conversions < 0 || v.Conversions > v.Visits {
		return fmt.Errorf("variant %q has invalid conversions %d for %d visits", v.Label, v.Conversions, v.Visits)
	}
	return nil
}
