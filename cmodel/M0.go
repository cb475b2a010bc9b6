package cmodel

import (
	"bitbucket.org/Davydov/excodon/codon"
	"bitbucket.org/Davydov/excodon/dist"
	"bitbucket.org/Davydov/excodon/optimize"
)

// M0 is the single-omega codon model, optionally with discrete-gamma
// rate variation across sites.
type M0 struct {
	*BaseModel
	q            []*codon.EMatrix
	omega, kappa float64

	// gamma rate variation
	alpha  float64
	gammas []float64
	ncat   int

	qdone     bool
	gammadone bool

	tmp []float64
}

// NewM0 creates a new M0 model. ncat is the number of discrete-gamma
// rate categories; ncat=1 means no rate variation.
func NewM0(data *Data, ncat int) (m *M0) {
	if ncat < 1 {
		ncat = 1
	}
	m = &M0{
		q:      make([]*codon.EMatrix, ncat),
		gammas: make([]float64, ncat),
		ncat:   ncat,
		tmp:    make([]float64, maxInt(ncat, 3)),
	}
	for i := 0; i < ncat; i++ {
		m.q[i] = codon.NewEMatrix(data.cFreq)
	}
	m.BaseModel = NewBaseModel(data, m)

	m.setupParameters()
	m.setBranchMatrices()
	m.SetDefaults()
	return
}

// GetNClass returns the number of site classes.
func (m *M0) GetNClass() int {
	return m.ncat
}

// Copy makes a copy of the model preserving the parameter values.
func (m *M0) Copy() optimize.Optimizable {
	newM := &M0{
		q:      make([]*codon.EMatrix, m.ncat),
		omega:  m.omega,
		kappa:  m.kappa,
		alpha:  m.alpha,
		gammas: make([]float64, m.ncat),
		ncat:   m.ncat,
		tmp:    make([]float64, len(m.tmp)),
	}
	newM.BaseModel = m.BaseModel.Copy(newM)
	for i := 0; i < m.ncat; i++ {
		newM.q[i] = codon.NewEMatrix(newM.data.cFreq)
	}
	newM.setupParameters()
	newM.setBranchMatrices()
	return newM
}

// addParameters registers the model parameters.
func (m *M0) addParameters() {
	omega := optimize.NewBasicFloatParameter(&m.omega, m.prmName("omega"))
	omega.SetOnChange(func() {
		m.qdone = false
		m.expAllBr = false
	})
	omega.SetMin(1e-4)
	omega.SetMax(1000)
	m.parameters.Append(omega)

	kappa := optimize.NewBasicFloatParameter(&m.kappa, m.prmName("kappa"))
	kappa.SetOnChange(func() {
		m.qdone = false
		m.expAllBr = false
	})
	kappa.SetMin(1e-2)
	kappa.SetMax(100)
	m.parameters.Append(kappa)

	if m.ncat > 1 {
		alpha := optimize.NewBasicFloatParameter(&m.alpha, m.prmName("alpha"))
		alpha.SetOnChange(func() {
			m.gammadone = false
		})
		alpha.SetMin(1e-2)
		alpha.SetMax(1000)
		m.parameters.Append(alpha)
	}
}

// GetParameters returns the model parameter values.
func (m *M0) GetParameters() (kappa, omega, alpha float64) {
	return m.kappa, m.omega, m.alpha
}

// SetParameters sets the model parameter values.
func (m *M0) SetParameters(kappa, omega, alpha float64) {
	m.kappa = kappa
	m.omega = omega
	m.alpha = alpha
	m.qdone = false
	m.gammadone = false
}

// SetDefaults sets the default initial parameter values.
func (m *M0) SetDefaults() {
	m.SetParameters(2, 0.5, 1)
}

// setBranchMatrices sets the matrices for all the branches.
func (m *M0) setBranchMatrices() {
	for _, node := range m.data.Tree.Nodes() {
		if node == nil {
			continue
		}
		for c := 0; c < m.ncat; c++ {
			m.qs[c][node.ID] = m.q[c]
		}
	}
}

// updateMatrices updates the Q-matrices after a change in the model
// parameter values.
func (m *M0) updateMatrices() {
	e := codon.NewEMatrix(m.data.cFreq)
	Q, s := codon.CreateTransitionMatrix(m.data.cFreq, m.kappa, m.omega, e.Q)
	e.Set(Q, s)
	err := e.Eigen()
	if err != nil {
		log.Fatal(err)
	}

	scale := 0.0
	for c, rate := range m.gammas {
		e.Copy(m.q[c])
		m.q[c].ScaleD(rate)
		m.prop[0][c] = 1 / float64(m.ncat)
		scale += m.prop[0][c] * s * rate
	}
	for _, node := range m.data.Tree.Nodes() {
		if node == nil {
			continue
		}
		m.scale[node.ID] = scale
	}

	m.qdone = true
	m.expAllBr = false
}

// update updates rates and matrices if needed.
func (m *M0) update() {
	if !m.gammadone {
		if m.ncat > 1 {
			m.gammas = dist.DiscreteGamma(m.alpha, m.alpha, m.ncat, false, m.tmp, m.gammas)
		} else {
			m.gammas[0] = 1
		}
		m.gammadone = true
		m.qdone = false
	}
	if !m.qdone {
		m.updateMatrices()
	}
}

// Rates returns the current discrete-gamma rates.
func (m *M0) Rates() []float64 {
	m.update()
	return m.gammas
}

// Likelihood computes the log-likelihood.
func (m *M0) Likelihood() float64 {
	m.update()
	return m.BaseModel.Likelihood()
}
