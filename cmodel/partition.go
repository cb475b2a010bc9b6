package cmodel

import (
	"fmt"
	"strconv"

	"bitbucket.org/Davydov/excodon/codon"
	"bitbucket.org/Davydov/excodon/optimize"
)

// SiteModel is a model usable as a sub-process of a Partition.
type SiteModel interface {
	TreeOptimizable
	// SetNameSuffix decorates parameter names so sub-processes do
	// not collide.
	SetNameSuffix(string)
	// InvalidateBranchCache marks a branch matrix stale.
	InvalidateBranchCache(id int)
	// Frequency returns the equilibrium codon frequency.
	Frequency() codon.Frequency
}

// MakeSiteModel constructs a sub-process model for a data view. pos
// is the 0-based site the view covers, -1 for the whole alignment.
type MakeSiteModel func(data *Data, pos int) (SiteModel, error)

// Partition is a collection of substitution processes over a shared
// tree. Each sub-process covers either the whole alignment or a
// single site. Branch lengths are owned by the partition; model
// parameters belong to the sub-processes.
type Partition struct {
	data      *Data
	subs      []SiteModel
	mkSub     MakeSiteModel
	perSite   bool
	optBranch bool
	maxBrLen  float64
	recursion byte

	parameters optimize.FloatParameters
	l          []float64
}

// NewPartition creates a partition. With perSite=false a single
// sub-process covers the whole alignment; with perSite=true one
// sub-process is created per codon site.
func NewPartition(data *Data, perSite bool, mkSub MakeSiteModel) (*Partition, error) {
	p := &Partition{
		data:      data,
		mkSub:     mkSub,
		perSite:   perSite,
		maxBrLen:  defaultMaxBrLen,
		recursion: SimpleRecursion,
		l:         make([]float64, data.NSites()),
	}
	if !perSite {
		sub, err := mkSub(data, -1)
		if err != nil {
			return nil, err
		}
		p.subs = []SiteModel{sub}
	} else {
		p.subs = make([]SiteModel, data.NSites())
		for pos := 0; pos < data.NSites(); pos++ {
			sub, err := mkSub(data.Site(pos), pos)
			if err != nil {
				return nil, fmt.Errorf("site %d: %v", pos+1, err)
			}
			sub.SetNameSuffix("_p" + strconv.Itoa(pos+1))
			p.subs[pos] = sub
		}
	}
	p.setupParameters()
	return p, nil
}

// NSubs returns the number of sub-processes.
func (p *Partition) NSubs() int {
	return len(p.subs)
}

// Sub returns the i-th sub-process.
func (p *Partition) Sub(i int) SiteModel {
	return p.subs[i]
}

// SiteFrequency returns the equilibrium codon frequency of the
// process covering a 0-based site.
func (p *Partition) SiteFrequency(pos int) codon.Frequency {
	if !p.perSite {
		return p.subs[0].Frequency()
	}
	return p.subs[pos].Frequency()
}

// setupParameters collects branch parameters and the parameters of
// all sub-processes.
func (p *Partition) setupParameters() {
	p.parameters = nil
	if p.optBranch {
		for _, node := range p.data.Tree.Nodes() {
			if node == nil || node.IsRoot() {
				continue
			}
			nodeID := node.ID
			par := optimize.NewBasicFloatParameter(&node.BranchLength,
				"br"+strconv.Itoa(nodeID))
			par.SetOnChange(func() {
				for _, sub := range p.subs {
					sub.InvalidateBranchCache(nodeID)
				}
			})
			par.SetMin(0)
			par.SetMax(p.maxBrLen)
			p.parameters.Append(par)
		}
	}
	for _, sub := range p.subs {
		for _, par := range sub.GetFloatParameters() {
			p.parameters.Append(par)
		}
	}
}

// SetOptimizeBranchLengths enables branch-length optimization. The
// partition owns branch parameters; sub-processes never do.
func (p *Partition) SetOptimizeBranchLengths() {
	p.optBranch = true
	p.setupParameters()
}

// SetMaxBranchLength changes the maximum branch length for the
// optimization.
func (p *Partition) SetMaxBranchLength(maxBrLen float64) {
	p.maxBrLen = maxBrLen
	p.setupParameters()
}

// SetRecursionMode selects the pruning recursion for all the
// sub-processes.
func (p *Partition) SetRecursionMode(mode byte) {
	p.recursion = mode
	for _, sub := range p.subs {
		sub.SetRecursionMode(mode)
	}
}

// TopologyChanged invalidates the caches of all the sub-processes.
func (p *Partition) TopologyChanged() {
	p.data.Tree.ClearCache()
	for _, sub := range p.subs {
		sub.TopologyChanged()
	}
}

// GetFloatParameters returns branch parameters followed by the
// sub-process parameters.
func (p *Partition) GetFloatParameters() optimize.FloatParameters {
	return p.parameters
}

// Likelihood computes the total log-likelihood as the sum over the
// sub-processes.
func (p *Partition) Likelihood() (lnL float64) {
	if !p.perSite {
		lnL = p.subs[0].Likelihood()
		copy(p.l, p.subs[0].SiteLikelihoods())
		return
	}
	for i, sub := range p.subs {
		l := sub.Likelihood()
		p.l[i] = l
		lnL += l
	}
	return
}

// SiteLikelihoods returns per-site log-likelihoods from the last
// computation.
func (p *Partition) SiteLikelihoods() []float64 {
	return p.l
}

// Copy rebuilds the partition on a copy of the data and transfers the
// parameter values. Sub-process construction is deterministic, so the
// parameter order is preserved.
func (p *Partition) Copy() optimize.Optimizable {
	newP, err := NewPartition(p.data.Copy(), p.perSite, p.mkSub)
	if err != nil {
		// the original was built from the same inputs
		panic(fmt.Sprintf("error copying partition: %v", err))
	}
	newP.maxBrLen = p.maxBrLen
	newP.SetRecursionMode(p.recursion)
	if p.optBranch {
		newP.SetOptimizeBranchLengths()
	}
	pars := newP.GetFloatParameters()
	pars.Update(&p.parameters)
	return newP
}
