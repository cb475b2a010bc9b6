package codon

import (
	"errors"
	"math"

	"github.com/gonum/matrix/mat64"
)

// EMatrix stores a Q-matrix and its eigendecomposition to quickly
// compute exp(Qt).
type EMatrix struct {
	// Q is the rate matrix.
	Q *mat64.Dense
	// Scale is the matrix scale.
	Scale float64
	// CF is the codon frequency the matrix was built with.
	CF Frequency

	v  *mat64.Dense
	d  *mat64.Dense
	iv *mat64.Dense
}

// NewEMatrix creates a new EMatrix for the given codon frequency.
func NewEMatrix(cf Frequency) *EMatrix {
	return &EMatrix{CF: cf}
}

// Copy copies the matrix into dst preserving the eigendecomposition.
// If dst is nil a new EMatrix is allocated.
func (m *EMatrix) Copy(dst *EMatrix) *EMatrix {
	if dst == nil {
		dst = NewEMatrix(m.CF)
	}
	dst.Q = m.Q
	dst.Scale = m.Scale
	dst.CF = m.CF
	dst.v = m.v
	dst.d = m.d
	dst.iv = m.iv
	return dst
}

// Set sets the Q-matrix and its scale; a previously computed
// eigendecomposition is invalidated.
func (m *EMatrix) Set(Q *mat64.Dense, scale float64) {
	m.Q = Q
	m.Scale = scale
	m.v = nil
}

// ScaleD scales the diagonal eigenvalue matrix. This is equivalent to
// scaling all the rates of the Q-matrix.
func (m *EMatrix) ScaleD(scale float64) {
	if m.Scale < smallScale {
		// essentially zero matrix, exp is identity at any scale
		return
	}
	if m.d == nil {
		panic("scaling a matrix with no eigendecomposition")
	}
	m.d = scaleMatrix(m.d, scale, nil)
	m.Scale *= scale
}

// Eigen performs the eigendecomposition of the Q-matrix. It is a
// no-op if the decomposition is up to date.
//
// Q is reversible, so S = D*Q*D^-1 with D = diag(sqrt(pi)) is
// symmetric and its eigenvector matrix U is orthonormal. The
// eigenvectors of Q are then v = D^-1*U with the inverse v^-1 = U'*D,
// which avoids inverting a possibly ill-conditioned matrix.
func (m *EMatrix) Eigen() (err error) {
	if m.v != nil {
		return nil
	}
	if m.Scale < smallScale {
		// the matrix is essentially zero; exp will return identity
		return nil
	}
	rows, cols := m.Q.Dims()
	if rows != cols {
		return errors.New("Q isn't a square matrix")
	}

	sqrtF := make([]float64, rows)
	isqrtF := make([]float64, rows)
	for i, f := range m.CF.Freq {
		sqrtF[i] = math.Sqrt(math.Max(f, smallFreq))
		isqrtF[i] = 1 / sqrtF[i]
	}
	sym := mat64.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			sym.Set(i, j, sqrtF[i]*m.Q.At(i, j)*isqrtF[j])
		}
	}

	decomp := mat64.EigenSym{}
	if !decomp.Factorize(mat64.NewSymDense(rows, sym.RawMatrix().Data), true) {
		panic("error decomposing Q")
	}
	u := mat64.NewDense(rows, cols, nil)
	u.EigenvectorsSym(&decomp)
	m.d = mat64.NewDense(rows, cols, nil)
	for i, ev := range decomp.Values(nil) {
		m.d.Set(i, i, ev)
	}
	m.v = mat64.NewDense(rows, cols, nil)
	m.iv = mat64.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.v.Set(i, j, isqrtF[i]*u.At(i, j))
			m.iv.Set(i, j, u.At(j, i)*sqrtF[j])
		}
	}
	return nil
}

// Exp computes P=exp(Qt) using the dense matrix cD as a scratch
// buffer for the diagonal.
func (m *EMatrix) Exp(cD *mat64.Dense, t float64) (*mat64.Dense, error) {
	if m.Scale*t < smallScale {
		return identityMatrix(len(m.CF.Freq)), nil
	}
	rows, cols := m.Q.Dims()
	if cols != rows {
		return nil, errors.New("Q isn't a square matrix")
	}
	// This is a dirty hack to allow 0-scale matricies
	if math.IsInf(t, 1) {
		t = math.MaxFloat64
	}

	for i := 0; i < rows; i++ {
		cD.Set(i, i, math.Exp(m.d.At(i, i)*t))
	}
	res := mat64.NewDense(cols, rows, nil)
	res.Mul(m.v, cD)
	res.Mul(res, m.iv)
	// Remove slightly negative values
	res.Apply(func(r, c int, v float64) float64 {
		return math.Max(0, v)
	}, res)
	return res, nil
}

// scaleMatrix multiplies all the elements of a matrix by a scalar.
func scaleMatrix(m *mat64.Dense, scale float64, dst *mat64.Dense) *mat64.Dense {
	rows, cols := m.Dims()
	if dst == nil {
		dst = mat64.NewDense(rows, cols, nil)
	}
	dst.Scale(scale, m)
	return dst
}

// identityMatrix creates an identity matrix of the given size.
func identityMatrix(size int) *mat64.Dense {
	m := mat64.NewDense(size, size, nil)
	for i := 0; i < size; i++ {
		m.Set(i, i, 1)
	}
	return m
}
