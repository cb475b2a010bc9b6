package codon

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

// smallScale is a small value such that if Q-scale is less than it,
// the matrix is replaced by an identity matrix on exponentiation.
const smallScale = 1e-30

// smallFreq is a floor for codon frequencies used to symmetrize the
// Q-matrix; a zero frequency would make the scaling singular.
const smallFreq = 1e-20

// Sum calculates the sum of absolute values of matrix elements.
func Sum(m *mat64.Dense) (s float64) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			s += math.Abs(m.At(i, j))
		}
	}
	return
}

// CreateTransitionMatrix creates a codon transition rate matrix with
// the given equilibrium frequencies, transition/transversion ratio
// kappa and nonsynonymous/synonymous ratio omega. The second return
// value is the matrix scale (expected number of substitutions per
// unit time at equilibrium).
func CreateTransitionMatrix(cf Frequency, kappa, omega float64, m *mat64.Dense) (*mat64.Dense, float64) {
	gcode := cf.GCode
	ncodon := gcode.NCodon
	if m == nil {
		m = mat64.NewDense(ncodon, ncodon, nil)
	}
	for i1 := 0; i1 < ncodon; i1++ {
		for i2 := 0; i2 < ncodon; i2++ {
			if i1 == i2 {
				m.Set(i1, i2, 0)
				continue
			}
			c1 := gcode.NumCodon[byte(i1)]
			c2 := gcode.NumCodon[byte(i2)]
			dist, transitions := codonDistance(c1, c2)

			if dist > 1 {
				m.Set(i1, i2, 0)
				continue
			}
			m.Set(i1, i2, cf.Freq[i2])
			if transitions == 1 {
				m.Set(i1, i2, m.At(i1, i2)*kappa)
			}
			if gcode.Map[c1] != gcode.Map[c2] {
				m.Set(i1, i2, m.At(i1, i2)*omega)
			}
		}
	}
	for i1 := 0; i1 < ncodon; i1++ {
		rowSum := 0.0
		for i2 := 0; i2 < ncodon; i2++ {
			rowSum += m.At(i1, i2)
		}
		m.Set(i1, i1, -rowSum)
	}
	scale := 0.0
	for i := 0; i < ncodon; i++ {
		scale += -cf.Freq[i] * m.At(i, i)
	}

	return m, scale
}

// codonDistance computes the distance between two codons and the
// number of transitions.
func codonDistance(c1, c2 string) (dist, transitions int) {
	for i := 0; i < len(c1); i++ {
		s1 := c1[i]
		s2 := c2[i]
		if s1 != s2 {
			dist++
			if ((s1 == 'A' || s1 == 'G') && (s2 == 'A' || s2 == 'G')) ||
				((s1 == 'T' || s1 == 'C') && (s2 == 'T' || s2 == 'C')) {
				transitions++
			}
		}
	}
	return
}
