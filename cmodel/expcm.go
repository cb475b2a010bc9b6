package cmodel

import (
	"fmt"
	"sort"

	"bitbucket.org/Davydov/excodon/codon"
	"bitbucket.org/Davydov/excodon/dist"
	"bitbucket.org/Davydov/excodon/optimize"
)

// ExpCM is a preference-informed codon model for a single site. The
// equilibrium codon frequencies are derived from site-level
// amino-acid preferences, and the substitution process is built on
// top of them. Preferences can optionally be optimized as free
// parameters.
type ExpCM struct {
	*BaseModel
	q            []*codon.EMatrix
	omega, kappa float64

	alpha  float64
	gammas []float64
	ncat   int

	// preference parameterization
	prefNames []string
	prefVals  []float64
	optPrefs  bool

	qdone     bool
	gammadone bool

	tmp []float64
}

// NewExpCM creates a new ExpCM model over a single-site data view.
// p maps amino-acid letters or codons to preference weights. If
// optPrefs is true the preferences become free model parameters.
func NewExpCM(data *Data, p map[string]float64, ncat int, optPrefs bool) (m *ExpCM, err error) {
	if ncat < 1 {
		ncat = 1
	}
	scf, err := codon.FromPreferences(p, data.GCode())
	if err != nil {
		return nil, err
	}
	// The preference-derived frequency replaces the global one for
	// this site.
	data.cFreq = scf

	m = &ExpCM{
		q:        make([]*codon.EMatrix, ncat),
		gammas:   make([]float64, ncat),
		ncat:     ncat,
		optPrefs: optPrefs,
		tmp:      make([]float64, maxInt(ncat, 3)),
	}
	m.prefNames = make([]string, 0, len(p))
	for name, w := range p {
		if w > 0 {
			m.prefNames = append(m.prefNames, name)
		}
	}
	sort.Strings(m.prefNames)
	m.prefVals = make([]float64, len(m.prefNames))
	for i, name := range m.prefNames {
		m.prefVals[i] = p[name]
	}

	for i := 0; i < ncat; i++ {
		m.q[i] = codon.NewEMatrix(data.cFreq)
	}
	m.BaseModel = NewBaseModel(data, m)

	m.setupParameters()
	m.setBranchMatrices()
	m.SetDefaults()
	return m, nil
}

// GetNClass returns the number of site classes.
func (m *ExpCM) GetNClass() int {
	return m.ncat
}

// Copy makes a copy of the model preserving the parameter values.
func (m *ExpCM) Copy() optimize.Optimizable {
	newM := &ExpCM{
		q:         make([]*codon.EMatrix, m.ncat),
		omega:     m.omega,
		kappa:     m.kappa,
		alpha:     m.alpha,
		gammas:    make([]float64, m.ncat),
		ncat:      m.ncat,
		optPrefs:  m.optPrefs,
		prefNames: m.prefNames,
		prefVals:  append([]float64(nil), m.prefVals...),
		tmp:       make([]float64, len(m.tmp)),
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
func (m *ExpCM) addParameters() {
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

	if m.optPrefs {
		for i, name := range m.prefNames {
			pref := optimize.NewBasicFloatParameter(&m.prefVals[i],
				m.prmName("pref"+name))
			pref.SetOnChange(func() {
				m.updateFrequency()
			})
			pref.SetMin(1e-6)
			pref.SetMax(1e4)
			m.parameters.Append(pref)
		}
	}
}

// updateFrequency rebuilds the equilibrium frequency from the current
// preference values.
func (m *ExpCM) updateFrequency() {
	p := make(map[string]float64, len(m.prefNames))
	for i, name := range m.prefNames {
		p[name] = m.prefVals[i]
	}
	scf, err := codon.FromPreferences(p, m.data.GCode())
	if err != nil {
		// bounds keep weights positive, this should not happen
		log.Error("Error updating preferences:", err)
		return
	}
	m.data.cFreq = scf
	for i := range m.q {
		m.q[i].CF = scf
	}
	m.qdone = false
	m.expAllBr = false
}

// GetParameters returns the model parameter values.
func (m *ExpCM) GetParameters() (kappa, omega, alpha float64) {
	return m.kappa, m.omega, m.alpha
}

// SetParameters sets the model parameter values.
func (m *ExpCM) SetParameters(kappa, omega, alpha float64) {
	m.kappa = kappa
	m.omega = omega
	m.alpha = alpha
	m.qdone = false
	m.gammadone = false
}

// SetDefaults sets the default initial parameter values.
func (m *ExpCM) SetDefaults() {
	m.SetParameters(2, 0.5, 1)
}

// setBranchMatrices sets the matrices for all the branches.
func (m *ExpCM) setBranchMatrices() {
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
func (m *ExpCM) updateMatrices() {
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
func (m *ExpCM) update() {
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

// Likelihood computes the log-likelihood.
func (m *ExpCM) Likelihood() float64 {
	m.update()
	return m.BaseModel.Likelihood()
}

// String returns a short description of the model.
func (m *ExpCM) String() string {
	return fmt.Sprintf("ExpCM<kappa=%v, omega=%v, ncat=%v>", m.kappa, m.omega, m.ncat)
}
