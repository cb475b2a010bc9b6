// Package cmodel provides codon substitution models and tree
// likelihood computation.
package cmodel

import (
	"math"
	"runtime"
	"strconv"
	"sync"

	"github.com/gonum/matrix/mat64"

	"bitbucket.org/Davydov/excodon/codon"
	"bitbucket.org/Davydov/excodon/optimize"
	"bitbucket.org/Davydov/excodon/tree"
)

// Recursion modes for the pruning algorithm.
const (
	// SimpleRecursion is a single post-order pass evaluated at the
	// root.
	SimpleRecursion = byte('S')
	// DoubleRecursion adds an up pass and evaluates the likelihood
	// at a leaf edge. Both modes give the same likelihood.
	DoubleRecursion = byte('D')
)

const (
	// If the proportion of a site class is less than this number
	// there is no need to compute the probability.
	smallProp = 1e-20
	// Default value for the maximum branch length.
	defaultMaxBrLen = 100
)

// TreeOptimizable is an extension of optimize.Optimizable which
// includes tree-related methods.
type TreeOptimizable interface {
	optimize.Optimizable
	// SetOptimizeBranchLengths enables branch-length optimization.
	SetOptimizeBranchLengths()
	// SetMaxBranchLength changes the maximum branch length for
	// the optimization.
	SetMaxBranchLength(float64)
	// SetRecursionMode selects simple or double recursion.
	SetRecursionMode(byte)
	// TopologyChanged invalidates likelihood caches after the tree
	// topology was changed.
	TopologyChanged()
	// SiteLikelihoods returns per-site log-likelihoods from the
	// last computation.
	SiteLikelihoods() []float64
}

// Model is implemented by concrete codon models. It provides the
// number of site classes and registers the model parameters.
type Model interface {
	// GetNClass returns the number of site classes.
	GetNClass() int
	// addParameters registers all the parameters of the model.
	addParameters()
}

// BaseModel stores the tree and the alignment and implements the
// pruning algorithm. Matrices and partial likelihoods are cached.
type BaseModel struct {
	// model is the concrete model implementation.
	model Model

	data      *Data
	suffix    string
	recursion byte
	optBranch bool
	maxBrLen  float64

	lettersF [][]int
	lettersA [][]int

	qs    [][]*codon.EMatrix
	scale []float64
	// prop is site class proportions; the same slice is shared by
	// all the positions.
	prop       [][]float64
	nclass     int
	parameters optimize.FloatParameters

	// evalNode is the node the double recursion evaluates the
	// likelihood at.
	evalNode *tree.Node

	// remember computations we need to perform
	expAllBr bool
	expBr    []bool

	// exponentiated matrices, flat row-major
	eQts [][][]float64

	// likelihoods per position
	prunAllPos bool
	prunPos    []bool
	l          []float64
}

// NewBaseModel creates a new BaseModel.
func NewBaseModel(data *Data, model Model) (bm *BaseModel) {
	nclass := model.GetNClass()
	t := data.Tree
	bm = &BaseModel{
		model:     model,
		data:      data,
		recursion: SimpleRecursion,
		qs:        make([][]*codon.EMatrix, nclass),
		scale:     make([]float64, t.MaxNodeID()+1),
		expBr:     make([]bool, t.MaxNodeID()+1),
		prop:      make([][]float64, data.NSites()),
		nclass:    nclass,
		l:         make([]float64, data.NSites()),
		prunPos:   make([]bool, data.NSites()),
	}
	p := make([]float64, nclass)
	for i := range bm.prop {
		bm.prop[i] = p
	}
	for i := 0; i < nclass; i++ {
		bm.qs[i] = make([]*codon.EMatrix, t.MaxNodeID()+1)
	}
	t.NodeOrder()
	bm.ReorderAlignment()
	bm.lettersF, bm.lettersA = data.cSeqs.Letters()
	for node := range t.Terminals() {
		bm.evalNode = node
		break
	}
	return
}

// Copy creates a copy of the BaseModel. The tree is copied, the
// alignment is shared.
func (m *BaseModel) Copy(model Model) (newM *BaseModel) {
	newM = NewBaseModel(m.data.Copy(), model)
	copy(newM.prop[0], m.prop[0])
	newM.optBranch = m.optBranch
	newM.maxBrLen = m.maxBrLen
	newM.suffix = m.suffix
	newM.recursion = m.recursion
	return
}

// SetOptimizeBranchLengths enables branch-length optimization.
func (m *BaseModel) SetOptimizeBranchLengths() {
	m.optBranch = true
	m.setupParameters()
}

// SetMaxBranchLength changes the maximum branch length for the
// optimization.
func (m *BaseModel) SetMaxBranchLength(maxBrLen float64) {
	m.maxBrLen = maxBrLen
	m.setupParameters()
}

// SetRecursionMode selects the pruning recursion ('S' or 'D').
func (m *BaseModel) SetRecursionMode(mode byte) {
	if mode != SimpleRecursion && mode != DoubleRecursion {
		panic("unknown recursion mode")
	}
	if mode != m.recursion {
		m.recursion = mode
		m.prunAllPos = false
	}
}

// SetNameSuffix appends a suffix to the names of all the model
// parameters. Useful when multiple processes are combined.
func (m *BaseModel) SetNameSuffix(suffix string) {
	m.suffix = suffix
	m.setupParameters()
}

// prmName decorates a parameter name with the model suffix.
func (m *BaseModel) prmName(name string) string {
	return name + m.suffix
}

// TopologyChanged invalidates partial likelihood caches after a
// change in the tree topology. Branch matrices stay valid since node
// identifiers and branch lengths are preserved.
func (m *BaseModel) TopologyChanged() {
	m.prunAllPos = false
	for i := range m.prunPos {
		m.prunPos[i] = false
	}
}

// GetFloatParameters returns all the optimization parameters.
func (m *BaseModel) GetFloatParameters() optimize.FloatParameters {
	return m.parameters
}

// SiteLikelihoods returns per-site log-likelihoods from the last
// computation.
func (m *BaseModel) SiteLikelihoods() []float64 {
	return m.l
}

// Tree returns the tree of the model.
func (m *BaseModel) Tree() *tree.Tree {
	return m.data.Tree
}

// Frequency returns the equilibrium codon frequency of the model.
func (m *BaseModel) Frequency() codon.Frequency {
	return m.data.cFreq
}

// InvalidateBranchCache marks the transition matrices of a branch as
// stale. Used when the branch length is changed externally.
func (m *BaseModel) InvalidateBranchCache(id int) {
	m.expBr[id] = false
}

// setupParameters deletes all the parameters and adds them again.
func (m *BaseModel) setupParameters() {
	m.parameters = nil
	m.addBranchParameters()
	m.model.addParameters()
}

// addBranchParameters adds branch-length parameters.
func (m *BaseModel) addBranchParameters() {
	if m.maxBrLen == 0 {
		m.maxBrLen = defaultMaxBrLen
	}
	if !m.optBranch {
		return
	}
	for _, node := range m.data.Tree.Nodes() {
		if node == nil || node.IsRoot() {
			continue
		}
		nodeID := node.ID
		par := optimize.NewBasicFloatParameter(&node.BranchLength,
			m.prmName("br"+strconv.Itoa(nodeID)))
		par.SetOnChange(func() {
			m.expBr[nodeID] = false
		})
		par.SetMin(0)
		par.SetMax(m.maxBrLen)
		m.parameters.Append(par)
	}
}

// ReorderAlignment reorders the codon alignment so the order of
// nodes and sequences is the same. This allows faster access to
// sequences by their index in the array.
func (m *BaseModel) ReorderAlignment() {
	nm2id := make(map[string]int)
	for i, s := range m.data.cSeqs {
		nm2id[s.Name] = i
	}

	if m.data.Tree.NLeaves() != len(m.data.cSeqs) {
		log.Fatal("Tree doesn't match the alignment.")
	}
	newCali := make(codon.Sequences, m.data.Tree.NLeaves())
	for node := range m.data.Tree.Terminals() {
		seqID, ok := nm2id[node.Name]
		if !ok {
			log.Fatalf("No sequence found for the leaf <%s>.", node.Name)
		}
		newCali[node.LeafID] = m.data.cSeqs[seqID]
	}

	m.data.cSeqs = newCali
}

// expTask is a task of exponentiating matrices for a class and a
// node.
type expTask struct {
	class int
	node  *tree.Node
}

// ExpBranch exponentiates matrices for a single branch.
func (m *BaseModel) ExpBranch(br int) {
	node := m.data.Tree.Nodes()[br]
	ncodon := m.data.GCode().NCodon
	cD := mat64.NewDense(ncodon, ncodon, nil)
	for class := range m.qs {
		var oclass int
		for oclass = class - 1; oclass >= 0; oclass-- {
			if m.qs[class][node.ID] == m.qs[oclass][node.ID] {
				m.eQts[class][node.ID] = m.eQts[oclass][node.ID]
				break
			}
		}
		if oclass < 0 {
			Q, err := m.qs[class][node.ID].Exp(cD, node.BranchLength/m.scale[node.ID])
			if err != nil {
				panic("error exponentiating matrix")
			}
			m.eQts[class][node.ID] = Q.RawMatrix().Data
		}
	}
	m.expBr[br] = true
	m.prunAllPos = false
}

// ExpBranches exponentiates matrices for all branches in the tree.
func (m *BaseModel) ExpBranches() {
	if m.eQts == nil {
		m.eQts = make([][][]float64, len(m.qs))
		for class := range m.qs {
			m.eQts[class] = make([][]float64, m.data.Tree.MaxNodeID()+1)
		}
	} else {
		for class := range m.eQts {
			for nd := range m.eQts[class] {
				m.eQts[class][nd] = nil
			}
		}
	}

	ncodon := m.data.GCode().NCodon
	nTasks := len(m.qs) * m.data.Tree.NNodes()
	tasks := make(chan expTask, nTasks)
	var wg sync.WaitGroup

	for i := 0; i < runtime.GOMAXPROCS(0); i++ {
		wg.Add(1)
		go func() {
			cD := mat64.NewDense(ncodon, ncodon, nil)
			for s := range tasks {
				Q, err := m.qs[s.class][s.node.ID].Exp(cD, s.node.BranchLength/m.scale[s.node.ID])
				if err != nil {
					panic("error exponentiating matrix")
				}
				m.eQts[s.class][s.node.ID] = Q.RawMatrix().Data
			}
			wg.Done()
		}()
	}

	for class := range m.qs {
		for _, node := range m.data.Tree.Nodes() {
			if node == nil {
				continue
			}
			var oclass int
			for oclass = class - 1; oclass >= 0; oclass-- {
				if m.qs[class][node.ID] == m.qs[oclass][node.ID] {
					defer func(class, oclass, nid int) {
						m.eQts[class][nid] = m.eQts[oclass][nid]
					}(class, oclass, node.ID)
					break
				}
			}
			if oclass < 0 {
				tasks <- expTask{class, node}
			}
			m.expBr[node.ID] = true
		}
	}
	close(tasks)
	wg.Wait()
	m.expAllBr = true
}

// Likelihood computes the tree log-likelihood.
func (m *BaseModel) Likelihood() (lnL float64) {
	log.Debugf("x=%v", m.parameters.Values(nil))
	if !m.expAllBr {
		m.ExpBranches()
		m.prunAllPos = false
	} else {
		for _, node := range m.data.Tree.Nodes() {
			if node == nil {
				continue
			}
			if !m.expBr[node.ID] {
				m.ExpBranch(node.ID)
				m.prunAllPos = false
			}
		}
	}

	if len(m.prop) != m.data.NSites() {
		panic("incorrect proportion length")
	}

	ncodon := m.data.GCode().NCodon
	nPos := m.data.NSites()
	nWorkers := runtime.GOMAXPROCS(0)
	done := make(chan struct{}, nWorkers)
	tasks := make(chan int, nPos)

	for i := 0; i < nWorkers; i++ {
		go func() {
			nni := m.data.Tree.MaxNodeID() + 1
			plh := make([][]float64, nni)
			for i := 0; i < nni; i++ {
				plh[i] = make([]float64, ncodon+1)
			}
			var uplh [][]float64
			if m.recursion == DoubleRecursion {
				uplh = make([][]float64, nni)
				for i := 0; i < nni; i++ {
					uplh[i] = make([]float64, ncodon+1)
				}
			}
			for pos := range tasks {
				if m.prunAllPos && m.prunPos[pos] {
					continue
				}
				res := 0.0
				for class, p := range m.prop[pos] {
					switch {
					case p <= smallProp:
						// proportion is too small
						continue
					case len(m.lettersF[pos]) == 1:
						// no letters in the current position
						// probability = 1, res += p
						res += 1 * p
					case m.recursion == DoubleRecursion:
						res += m.doubleSubL(class, pos, plh, uplh) * p
					default:
						res += m.fullSubL(class, pos, plh) * p
					}
				}
				m.l[pos] = math.Log(res)
				m.prunPos[pos] = true
			}
			done <- struct{}{}
		}()
	}

	for pos := 0; pos < nPos; pos++ {
		tasks <- pos
	}
	close(tasks)

	// wait for all assignments to finish
	for i := 0; i < nWorkers; i++ {
		<-done
	}

	for i := 0; i < nPos; i++ {
		lnL += m.l[i]
	}
	m.prunAllPos = true
	if math.IsNaN(lnL) {
		lnL = math.Inf(-1)
	}
	log.Debugf("L=%v", lnL)
	return
}

// downPass fills partial likelihood vectors for all the nodes,
// bottom-up.
func (m *BaseModel) downPass(class, pos int, plh [][]float64) {
	ncodon := m.data.GCode().NCodon
	for i := 0; i < m.data.Tree.MaxNodeID()+1; i++ {
		plh[i][0] = math.NaN()
	}

	for node := range m.data.Tree.Terminals() {
		cod := m.data.cSeqs[node.LeafID].Sequence[pos]
		for l := 0; l < ncodon; l++ {
			if cod == codon.NOCODON || l == int(cod) {
				plh[node.ID][l] = 1
			} else {
				plh[node.ID][l] = 0
			}
		}
	}

	for _, node := range m.data.Tree.NodeOrder() {
		for l1 := 0; l1 < ncodon; l1++ {
			l := 1.0
			for _, child := range node.ChildNodes() {
				// the row of the transition matrix
				q := m.eQts[class][child.ID][l1*ncodon:]
				cplh := plh[child.ID]
				s := 0.0
				for l2 := 0; l2 < ncodon; l2++ {
					s += q[l2] * cplh[l2]
				}
				l *= s
			}
			plh[node.ID][l1] = l
		}
	}
}

// fullSubL calculates the likelihood for a given site class and
// position with the simple recursion.
func (m *BaseModel) fullSubL(class, pos int, plh [][]float64) (res float64) {
	m.downPass(class, pos, plh)
	ncodon := m.data.GCode().NCodon
	root := m.data.Tree.Node
	for l := 0; l < ncodon; l++ {
		res += m.data.cFreq.Freq[l] * plh[root.ID][l]
	}
	return
}

// doubleSubL calculates the likelihood for a given site class and
// position with the double recursion: a down pass followed by an up
// pass, with the likelihood evaluated at a leaf. The result equals
// fullSubL up to numerical noise.
func (m *BaseModel) doubleSubL(class, pos int, plh, uplh [][]float64) (res float64) {
	m.downPass(class, pos, plh)
	ncodon := m.data.GCode().NCodon

	for i := 0; i < m.data.Tree.MaxNodeID()+1; i++ {
		uplh[i][0] = math.NaN()
	}
	root := m.data.Tree.Node
	copy(uplh[root.ID][:ncodon], m.data.cFreq.Freq)

	order := m.data.Tree.NodeOrder()
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		children := node.ChildNodes()
		for _, child := range children {
			cuplh := uplh[child.ID]
			for x := 0; x < ncodon; x++ {
				cuplh[x] = 0
			}
			for y := 0; y < ncodon; y++ {
				w := uplh[node.ID][y]
				if w == 0 {
					continue
				}
				for _, sib := range children {
					if sib == child {
						continue
					}
					q := m.eQts[class][sib.ID][y*ncodon:]
					splh := plh[sib.ID]
					s := 0.0
					for z := 0; z < ncodon; z++ {
						s += q[z] * splh[z]
					}
					w *= s
				}
				if w == 0 {
					continue
				}
				q := m.eQts[class][child.ID][y*ncodon:]
				for x := 0; x < ncodon; x++ {
					cuplh[x] += w * q[x]
				}
			}
		}
	}

	cplh := plh[m.evalNode.ID]
	cuplh := uplh[m.evalNode.ID]
	for x := 0; x < ncodon; x++ {
		res += cplh[x] * cuplh[x]
	}
	return
}
