package dist

import (
	"math"
	"testing"
)

func TestDiscreteGammaMean(tst *testing.T) {
	for _, alpha := range []float64{0.2, 0.5, 1, 2, 10} {
		r := DiscreteGamma(alpha, alpha, 4, false, nil, nil)
		mean := 0.0
		prev := 0.0
		for _, v := range r {
			if v <= 0 {
				tst.Error("Non-positive rate:", v)
			}
			if v < prev {
				tst.Error("Rates are not sorted")
			}
			prev = v
			mean += v / float64(len(r))
		}
		if math.Abs(mean-1) > 1e-6 {
			tst.Errorf("alpha=%v: expected mean rate 1, got %v", alpha, mean)
		}
	}
}

func TestDiscreteGammaSingleCategory(tst *testing.T) {
	r := DiscreteGamma(0.7, 0.7, 1, false, nil, nil)
	if len(r) != 1 || math.Abs(r[0]-1) > 1e-12 {
		tst.Error("Expected a single category with rate 1, got", r)
	}
}

func TestQuantileGamma(tst *testing.T) {
	// median of exponential distribution is ln(2)
	q := QuantileGamma(0.5, 1, 1)
	if math.Abs(q-math.Ln2) > 1e-5 {
		tst.Error("Expected ln(2), got", q)
	}
}
