// Package treelik ties sequences, a tree and a codon model into a
// single likelihood engine: it validates the input, builds the
// requested model, optimizes the likelihood and answers queries about
// the fitted process.
package treelik

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/excodon/bio"
	"bitbucket.org/Davydov/excodon/cmodel"
	"bitbucket.org/Davydov/excodon/codon"
	"bitbucket.org/Davydov/excodon/optimize"
	"bitbucket.org/Davydov/excodon/tree"
)

// log is the global logging variable.
var log = logging.MustGetLogger("treelik")

const tiny = 1e-10

// TreeLikelihood combines an alignment, a tree and a codon model and
// provides likelihood optimization and queries.
type TreeLikelihood struct {
	settings    Settings
	data        *cmodel.Data
	model       cmodel.TreeOptimizable
	constraints optimize.Constraints
	ignored     []string

	lnL float64
}

// modelBuilder constructs a model for validated data.
type modelBuilder func(tl *TreeLikelihood) (cmodel.TreeOptimizable, error)

// modelBuilders is the model dispatch table.
var modelBuilders = map[string]modelBuilder{
	"M0":    buildM0,
	"ExpCM": buildExpCM,
}

// KnownModels returns the names of the supported models.
func KnownModels() []string {
	names := make([]string, 0, len(modelBuilders))
	for name := range modelBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New validates the input, builds the model and returns a ready
// engine. names and seqs are parallel slices of sequence names and
// nucleotide sequences; treeNewick is the tree in newick format.
func New(names, seqs []string, treeNewick string, s Settings) (*TreeLikelihood, error) {
	if len(names) != len(seqs) {
		return nil, fmt.Errorf("%d names for %d sequences: %w",
			len(names), len(seqs), ErrDataMismatch)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("empty alignment: %w", ErrDataMismatch)
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("duplicate sequence name <%s>: %w",
				name, ErrDataMismatch)
		}
		seen[name] = true
	}
	for i, seq := range seqs {
		if len(seq) != len(seqs[0]) {
			return nil, fmt.Errorf("sequence <%s> has length %d, expected %d: %w",
				names[i], len(seq), len(seqs[0]), ErrDataMismatch)
		}
	}

	gcode, ok := bio.GeneticCodes[s.GCodeID]
	if !ok {
		return nil, fmt.Errorf("unknown genetic code id=%d: %w",
			s.GCodeID, ErrDataMismatch)
	}

	ali := make(bio.Sequences, len(names))
	for i := range names {
		ali[i] = bio.Sequence{Name: names[i], Sequence: seqs[i]}
	}

	t, err := tree.ParseNewick(strings.NewReader(treeNewick))
	if err != nil {
		return nil, fmt.Errorf("parsing tree: %v: %w", err, ErrDataMismatch)
	}

	// leaf names and sequence names must be identical sets
	leaves := make(map[string]bool)
	for _, name := range t.LeafNames() {
		if leaves[name] {
			return nil, fmt.Errorf("duplicate leaf name <%s>: %w",
				name, ErrDataMismatch)
		}
		leaves[name] = true
	}
	for _, name := range names {
		if !leaves[name] {
			return nil, fmt.Errorf("sequence <%s> has no leaf in the tree: %w",
				name, ErrDataMismatch)
		}
	}
	for name := range leaves {
		if !seen[name] {
			return nil, fmt.Errorf("leaf <%s> has no sequence: %w",
				name, ErrDataMismatch)
		}
	}

	data, err := cmodel.MakeData(gcode, ali, t, s.CodonFrequency)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrDataMismatch)
	}
	if s.CodonFrequencyFileName != "" {
		if err := data.SetCodonFreqFromFile(s.CodonFrequencyFileName); err != nil {
			return nil, fmt.Errorf("reading codon frequencies: %v: %w",
				err, ErrDataMismatch)
		}
	}

	if s.NCat < 1 {
		s.NCat = 1
	}
	if s.Recursion == 0 {
		s.Recursion = cmodel.SimpleRecursion
	}
	if s.Recursion != cmodel.SimpleRecursion && s.Recursion != cmodel.DoubleRecursion {
		return nil, fmt.Errorf("unknown recursion mode %q: %w",
			s.Recursion, ErrDataMismatch)
	}

	tl := &TreeLikelihood{
		settings:    s,
		data:        data,
		constraints: make(optimize.Constraints),
	}

	builder, ok := modelBuilders[s.Model]
	if !ok {
		return nil, fmt.Errorf("model <%s> (supported: %s): %w",
			s.Model, strings.Join(KnownModels(), ", "), ErrUnknownModel)
	}
	tl.model, err = builder(tl)
	if err != nil {
		return nil, err
	}

	if s.FixBranchLengths {
		tl.ignored = append(tl.ignored, "br*")
	}
	tl.model.SetRecursionMode(s.Recursion)

	return tl, nil
}

// buildM0 builds the M0 model: a single omega shared by all sites, or
// one omega per site with OmegaBySite.
func buildM0(tl *TreeLikelihood) (cmodel.TreeOptimizable, error) {
	s := &tl.settings
	if s.OmegaBySite {
		if s.OldLikelihoodMethod {
			return nil, fmt.Errorf("per-site omega needs the process collection: %w",
				ErrUnknownModel)
		}
		p, err := cmodel.NewPartition(tl.data, true,
			func(d *cmodel.Data, pos int) (cmodel.SiteModel, error) {
				return cmodel.NewM0(d, s.NCat), nil
			})
		if err != nil {
			return nil, err
		}
		tl.shareAcrossSites("kappa")
		if s.NCat > 1 {
			tl.shareAcrossSites("alpha")
		}
		return p, nil
	}
	if s.OldLikelihoodMethod {
		return cmodel.NewM0(tl.data, s.NCat), nil
	}
	return cmodel.NewPartition(tl.data, false,
		func(d *cmodel.Data, pos int) (cmodel.SiteModel, error) {
			return cmodel.NewM0(d, s.NCat), nil
		})
}

// buildExpCM builds the preference-informed model: one process per
// site, with kappa (and omega, unless OmegaBySite) shared across
// sites through constraints.
func buildExpCM(tl *TreeLikelihood) (cmodel.TreeOptimizable, error) {
	s := &tl.settings
	if s.OldLikelihoodMethod {
		return nil, fmt.Errorf("ExpCM needs the process collection: %w",
			ErrUnknownModel)
	}
	if s.Preferences == nil {
		return nil, fmt.Errorf("ExpCM needs a preference table: %w",
			ErrPreferenceCoverage)
	}
	if err := s.Preferences.Validate(tl.data.NSites()); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrPreferenceCoverage)
	}

	p, err := cmodel.NewPartition(tl.data, true,
		func(d *cmodel.Data, pos int) (cmodel.SiteModel, error) {
			return cmodel.NewExpCM(d, s.Preferences.Site(pos+1), s.NCat,
				!s.FixPreferences)
		})
	if err != nil {
		return nil, err
	}
	tl.shareAcrossSites("kappa")
	if !s.OmegaBySite {
		tl.shareAcrossSites("omega")
	}
	if s.NCat > 1 {
		tl.shareAcrossSites("alpha")
	}
	if s.FixPreferences {
		tl.ignored = append(tl.ignored, "pref*")
	}
	return p, nil
}

// shareAcrossSites constrains the named parameter of every site
// process to follow the first site.
func (tl *TreeLikelihood) shareAcrossSites(name string) {
	for pos := 2; pos <= tl.data.NSites(); pos++ {
		err := tl.constraints.Add(name+"_p"+strconv.Itoa(pos), name+"_p1")
		if err != nil {
			// construction is the only writer, duplicates cannot happen
			log.Fatal(err)
		}
	}
}

// restricted returns a fresh restricted view of the model honoring
// the ignore patterns and constraints.
func (tl *TreeLikelihood) restricted() *optimize.Restriction {
	return optimize.NewRestriction(tl.model, tl.constraints, tl.ignored)
}

// OptimizeLikelihood optimizes the model parameters (and optionally
// the topology) and returns the maximum log-likelihood found. On
// budget exhaustion the best parameters are kept and the error wraps
// ErrNonConvergence.
func (tl *TreeLikelihood) OptimizeLikelihood() (float64, error) {
	s := &tl.settings
	if !s.FixBranchLengths {
		tl.model.SetOptimizeBranchLengths()
	}
	if s.MaxBranchLength > 0 {
		tl.model.SetMaxBranchLength(s.MaxBranchLength)
	}

	if s.StartFileName != "" {
		if err := tl.readStart(s.StartFileName); err != nil {
			return 0, err
		}
	}

	if s.Checkpoint != nil {
		if data, err := s.Checkpoint.GetParameters(); err == nil && data != nil {
			pars := tl.model.GetFloatParameters()
			for name, v := range data.Parameters {
				if par := pars.ByName(name); par != nil {
					par.Set(v)
				}
			}
		}
	}

	maxRounds := s.MaxRounds
	if maxRounds < 1 {
		maxRounds = 1
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = 1e-6
	}

	prev := math.Inf(-1)
	converged := false
	for round := 0; round < maxRounds; round++ {
		r := tl.restricted()
		if s.RandomStart && round == 0 {
			fp := r.GetFloatParameters()
			fp.Randomize()
		}

		opt, err := optimize.NewOptimizer(s.Method)
		if err != nil {
			return 0, err
		}
		opt.SetQuiet(s.Quiet)
		repPeriod := s.ReportPeriod
		if repPeriod < 1 {
			repPeriod = 10
		}
		opt.SetReportPeriod(repPeriod)
		if s.Checkpoint != nil {
			opt.SetCheckpointIO(s.Checkpoint)
		}
		opt.SetOptimizable(r)
		opt.Run(s.MaxIterations)
		lnL := r.Likelihood()

		topoImproved := false
		if s.InferTopology {
			lnL, topoImproved = tl.nniSweep(r, lnL)
		}
		tl.lnL = lnL

		if s.Method == "none" {
			converged = true
			break
		}
		if !topoImproved &&
			math.Abs(lnL-prev)/(math.Abs(prev)+tiny) < tol {
			converged = true
			break
		}
		prev = lnL
	}

	if err := tl.checkFinite(); err != nil {
		return tl.lnL, err
	}
	if !converged {
		return tl.lnL, fmt.Errorf("%d rounds exhausted: %w",
			maxRounds, ErrNonConvergence)
	}
	return tl.lnL, nil
}

// readStart sets parameter values from a trajectory file (last line)
// or a JSON file of parameter values.
func (tl *TreeLikelihood) readStart(filename string) error {
	pars := tl.model.GetFloatParameters()
	line, err := lastLine(filename)
	if err == nil {
		err = pars.ReadLine(line)
	}
	if err != nil {
		log.Debug("Reading start file as JSON")
		if err2 := pars.ReadFromJSON(filename); err2 != nil {
			return fmt.Errorf("reading start position: %v: %w",
				err, ErrDataMismatch)
		}
	}
	if !pars.InRange() {
		return fmt.Errorf("starting parameters are out of range: %w",
			ErrDataMismatch)
	}
	return nil
}

// lastLine returns the last line of a file content.
func lastLine(fn string) (line string, err error) {
	f, err := os.Open(fn)
	if err != nil {
		return line, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line = scanner.Text()
	}
	err = scanner.Err()
	return line, err
}

// nniSweep tries every nearest-neighbor interchange once, keeping the
// ones that improve the likelihood. Returns the final likelihood and
// whether the topology changed.
func (tl *TreeLikelihood) nniSweep(r *optimize.Restriction, base float64) (float64, bool) {
	t := tl.data.Tree
	var nodes []*tree.Node
	for node := range t.NonTerminals() {
		if !node.IsRoot() {
			nodes = append(nodes, node)
		}
	}
	improved := false
	for _, node := range nodes {
		for ci := 0; ci < len(node.ChildNodes()); ci++ {
			if err := t.NNISwap(node, ci); err != nil {
				continue
			}
			tl.invalidateTopology()
			lnL := r.Likelihood()
			if lnL > base+tiny {
				log.Noticef("Accepted interchange at node %d (lnL %f -> %f)",
					node.ID, base, lnL)
				base = lnL
				improved = true
				continue
			}
			// revert: the same call undoes the interchange
			if err := t.NNISwap(node, ci); err != nil {
				log.Fatal("Error reverting interchange:", err)
			}
			tl.invalidateTopology()
		}
	}
	if improved {
		base = r.Likelihood()
	}
	return base, improved
}

// invalidateTopology resets tree and model caches after a topology
// change.
func (tl *TreeLikelihood) invalidateTopology() {
	tl.data.Tree.ClearCache()
	tl.model.TopologyChanged()
}

// checkFinite returns ErrNumericalInstability if any per-site
// log-likelihood is not finite.
func (tl *TreeLikelihood) checkFinite() error {
	for i, l := range tl.model.SiteLikelihoods() {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return fmt.Errorf("site %d has log-likelihood %v: %w",
				i+1, l, ErrNumericalInstability)
		}
	}
	return nil
}

// LogLikelihood computes the log-likelihood with the current
// parameter values.
func (tl *TreeLikelihood) LogLikelihood() (float64, error) {
	lnL := tl.restricted().Likelihood()
	tl.lnL = lnL
	if err := tl.checkFinite(); err != nil {
		return lnL, err
	}
	return lnL, nil
}

// SiteLogLikelihoods returns per-site log-likelihoods from the last
// computation.
func (tl *TreeLikelihood) SiteLogLikelihoods() []float64 {
	return tl.model.SiteLikelihoods()
}

// ModelParams returns the values of all model parameters, including
// branch lengths and constrained parameters.
func (tl *TreeLikelihood) ModelParams() map[string]float64 {
	pars := tl.model.GetFloatParameters()
	if len(tl.constraints) > 0 {
		if err := tl.constraints.Apply(pars); err != nil {
			log.Error("Error applying constraints:", err)
		}
	}
	res := make(map[string]float64, len(pars))
	for _, par := range pars {
		res[par.Name()] = par.Get()
	}
	return res
}

// StationaryState returns the equilibrium codon frequencies of the
// process covering a 1-based site.
func (tl *TreeLikelihood) StationaryState(site int) (map[string]float64, error) {
	if site < 1 || site > tl.data.NSites() {
		return nil, fmt.Errorf("site %d of %d: %w",
			site, tl.data.NSites(), ErrSiteIndex)
	}
	var cf codon.Frequency
	switch m := tl.model.(type) {
	case *cmodel.Partition:
		cf = m.SiteFrequency(site - 1)
	case *cmodel.M0:
		cf = m.Frequency()
	default:
		return nil, fmt.Errorf("no frequencies for model: %w", ErrUnknownModel)
	}
	res := make(map[string]float64, len(cf.Freq))
	for i, f := range cf.Freq {
		res[cf.GCode.NumCodon[byte(i)]] = f
	}
	return res, nil
}

// NewickTree returns the current tree in newick format.
func (tl *TreeLikelihood) NewickTree() string {
	return tl.data.Tree.String()
}

// SaveNewickTree writes the current tree to a file.
func (tl *TreeLikelihood) SaveNewickTree(path string) error {
	return os.WriteFile(path, []byte(tl.NewickTree()+"\n"), 0644)
}

// NSeqs returns the number of sequences.
func (tl *TreeLikelihood) NSeqs() int {
	return tl.data.NSeqs()
}

// NSites returns the number of codon sites.
func (tl *TreeLikelihood) NSites() int {
	return tl.data.NSites()
}

// OptimizationIgnoredParameters returns the comma-joined patterns of
// parameters excluded from optimization.
func (tl *TreeLikelihood) OptimizationIgnoredParameters() string {
	return strings.Join(tl.ignored, ",")
}
