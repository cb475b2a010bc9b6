package treelik

import (
	"errors"
	"math"
	"strings"
	"testing"

	"bitbucket.org/Davydov/excodon/prefs"
)

var (
	smallNames = []string{"s1", "s2", "s3", "s4"}
	smallSeqs  = []string{
		"GTGTCGTTCGTACCTCTACTCCGGGTATCACCTGTAGGTACCTCCAATCGACGCCCTTCCCTTCTCCGAAACTTCTGTTGGGTTAGTAGG",
		"AAGGTCTTCTCCCTTCTACTCTATGCATCAAGAAACTCAACCTCCAATCGATTATTCTCCCTTCTCATGAACCATACATGGGTTAGTAGG",
		"AAGTCGTTCGGACCTCTACTCTATGTATCAAGAGTATCCACCACCAATCGACCCTGGGAGCTTCTCATGAACTTCACAAAGCAAAGTAGG",
		"AAGAGCTTCGTACCTCTACTCGCTGTATCCAGAGTACCTACCAAGAATCGATTATTCTCCCTTCTCTCTAACTTCACATGGTCAAGTAGG",
	}
	smallTree = "((s1:0.1,s2:0.15):0.05,(s3:0.2,s4:0.1):0.07):0.0;"
)

// flatPrefs builds a uniform preference table for nSites sites,
// optionally skipping some.
func flatPrefs(nSites int, skip ...int) prefs.Table {
	skipped := make(map[int]bool)
	for _, s := range skip {
		skipped[s] = true
	}
	table := make(prefs.Table, nSites)
	for site := 1; site <= nSites; site++ {
		if skipped[site] {
			continue
		}
		row := make(map[string]float64, 20)
		for _, aa := range "ACDEFGHIKLMNPQRSTVWY" {
			row[string(aa)] = 0.05
		}
		table[site] = row
	}
	return table
}

func TestM0Build(t *testing.T) {
	tl, err := New(smallNames, smallSeqs, smallTree, DefaultSettings())
	if err != nil {
		t.Fatal("Error creating engine:", err)
	}
	if tl.NSeqs() != 4 || tl.NSites() != 30 {
		t.Error("Wrong dimensions:", tl.NSeqs(), tl.NSites())
	}
	lnL, err := tl.LogLikelihood()
	if err != nil {
		t.Fatal("Error computing likelihood:", err)
	}
	if math.IsInf(lnL, 0) || math.IsNaN(lnL) || lnL >= 0 {
		t.Error("Implausible log-likelihood:", lnL)
	}
	sites := tl.SiteLogLikelihoods()
	if len(sites) != 30 {
		t.Fatal("Wrong number of site likelihoods:", len(sites))
	}
	sum := 0.0
	for _, l := range sites {
		sum += l
	}
	if math.Abs(sum-lnL) > 1e-6 {
		t.Error("Site likelihoods sum", sum, "!=", lnL)
	}
}

func TestM0Optimize(t *testing.T) {
	s := DefaultSettings()
	s.Method = "simplex"
	s.MaxIterations = 200
	s.MaxRounds = 3
	s.Tolerance = 1e-4
	tl, err := New(smallNames, smallSeqs, smallTree, s)
	if err != nil {
		t.Fatal("Error creating engine:", err)
	}
	l0, err := tl.LogLikelihood()
	if err != nil {
		t.Fatal("Error computing likelihood:", err)
	}
	lnL, err := tl.OptimizeLikelihood()
	if err != nil && !errors.Is(err, ErrNonConvergence) {
		t.Fatal("Error optimizing:", err)
	}
	if lnL < l0 {
		t.Error("Optimization decreased likelihood:", l0, "->", lnL)
	}
	pars := tl.ModelParams()
	if _, ok := pars["omega"]; !ok {
		t.Error("Missing omega in parameters:", pars)
	}
}

func TestFixedBranchLengths(t *testing.T) {
	s := DefaultSettings()
	s.Method = "simplex"
	s.MaxIterations = 100
	s.MaxRounds = 1
	s.FixBranchLengths = true
	tl, err := New(smallNames, smallSeqs, smallTree, s)
	if err != nil {
		t.Fatal("Error creating engine:", err)
	}
	if !strings.Contains(tl.OptimizationIgnoredParameters(), "br*") {
		t.Error("Branch lengths not ignored:",
			tl.OptimizationIgnoredParameters())
	}
	before := tl.NewickTree()
	_, err = tl.OptimizeLikelihood()
	if err != nil && !errors.Is(err, ErrNonConvergence) {
		t.Fatal("Error optimizing:", err)
	}
	if tl.NewickTree() != before {
		t.Error("Fixed branch lengths changed:", before, "->", tl.NewickTree())
	}
}

func TestBackendEquivalence(t *testing.T) {
	s := DefaultSettings()
	tl1, err := New(smallNames, smallSeqs, smallTree, s)
	if err != nil {
		t.Fatal("Error creating engine:", err)
	}
	s.OldLikelihoodMethod = true
	tl2, err := New(smallNames, smallSeqs, smallTree, s)
	if err != nil {
		t.Fatal("Error creating engine:", err)
	}
	l1, err := tl1.LogLikelihood()
	if err != nil {
		t.Fatal(err)
	}
	l2, err := tl2.LogLikelihood()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(l1-l2) > 1e-6 {
		t.Error("Backends disagree:", l1, l2)
	}
}

func TestUnknownModel(t *testing.T) {
	s := DefaultSettings()
	s.Model = "M8"
	_, err := New(smallNames, smallSeqs, smallTree, s)
	if !errors.Is(err, ErrUnknownModel) {
		t.Error("Expected unknown model error, got:", err)
	}
}

func TestDataMismatch(t *testing.T) {
	// a sequence with no leaf in the tree
	badTree := "((s1:0.1,s2:0.15):0.05,(s3:0.2,s5:0.1):0.07):0.0;"
	_, err := New(smallNames, smallSeqs, badTree, DefaultSettings())
	if !errors.Is(err, ErrDataMismatch) {
		t.Error("Expected data mismatch, got:", err)
	}
	if err == nil || !strings.Contains(err.Error(), "s4") {
		t.Error("Error does not name the offending sequence:", err)
	}

	// length not divisible by three
	badSeqs := make([]string, len(smallSeqs))
	for i, seq := range smallSeqs {
		badSeqs[i] = seq + "A"
	}
	_, err = New(smallNames, badSeqs, smallTree, DefaultSettings())
	if !errors.Is(err, ErrDataMismatch) {
		t.Error("Expected data mismatch, got:", err)
	}

	// unequal lengths
	badSeqs = append([]string{}, smallSeqs...)
	badSeqs[2] = badSeqs[2][:30]
	_, err = New(smallNames, badSeqs, smallTree, DefaultSettings())
	if !errors.Is(err, ErrDataMismatch) {
		t.Error("Expected data mismatch, got:", err)
	}
	if err == nil || !strings.Contains(err.Error(), "s3") {
		t.Error("Error does not name the offending sequence:", err)
	}
}

func TestExpCMMissingPreference(t *testing.T) {
	s := DefaultSettings()
	s.Model = "ExpCM"
	s.Preferences = flatPrefs(30, 5)
	_, err := New(smallNames, smallSeqs, smallTree, s)
	if !errors.Is(err, ErrPreferenceCoverage) {
		t.Error("Expected preference coverage error, got:", err)
	}
	if err == nil || !strings.Contains(err.Error(), "site 5") {
		t.Error("Error does not name the missing site:", err)
	}
}

func TestExpCMLikelihood(t *testing.T) {
	s := DefaultSettings()
	s.Model = "ExpCM"
	s.Preferences = flatPrefs(30)
	tl, err := New(smallNames, smallSeqs, smallTree, s)
	if err != nil {
		t.Fatal("Error creating engine:", err)
	}
	lnL, err := tl.LogLikelihood()
	if err != nil {
		t.Fatal("Error computing likelihood:", err)
	}
	if math.IsInf(lnL, 0) || math.IsNaN(lnL) || lnL >= 0 {
		t.Error("Implausible log-likelihood:", lnL)
	}

	// shared parameters follow site 1 through constraints
	pars := tl.ModelParams()
	if pars["kappa_p7"] != pars["kappa_p1"] {
		t.Error("kappa not shared across sites:",
			pars["kappa_p7"], pars["kappa_p1"])
	}
	if pars["omega_p7"] != pars["omega_p1"] {
		t.Error("omega not shared across sites:",
			pars["omega_p7"], pars["omega_p1"])
	}
	if !strings.Contains(tl.OptimizationIgnoredParameters(), "pref*") {
		t.Error("Preferences not ignored by default:",
			tl.OptimizationIgnoredParameters())
	}
}

func TestStationaryState(t *testing.T) {
	s := DefaultSettings()
	s.Model = "ExpCM"
	s.Preferences = flatPrefs(30)
	tl, err := New(smallNames, smallSeqs, smallTree, s)
	if err != nil {
		t.Fatal("Error creating engine:", err)
	}
	freqs, err := tl.StationaryState(3)
	if err != nil {
		t.Fatal("Error getting stationary state:", err)
	}
	if len(freqs) != 61 {
		t.Error("Wrong number of codons:", len(freqs))
	}
	sum := 0.0
	for codon, f := range freqs {
		if f < 0 {
			t.Error("Negative frequency for", codon)
		}
		sum += f
	}
	if math.Abs(sum-1) > 1e-8 {
		t.Error("Frequencies sum to", sum)
	}

	if _, err := tl.StationaryState(0); !errors.Is(err, ErrSiteIndex) {
		t.Error("Expected site index error, got:", err)
	}
	if _, err := tl.StationaryState(31); !errors.Is(err, ErrSiteIndex) {
		t.Error("Expected site index error, got:", err)
	}
}

func TestNewickRoundTrip(t *testing.T) {
	tl, err := New(smallNames, smallSeqs, smallTree, DefaultSettings())
	if err != nil {
		t.Fatal("Error creating engine:", err)
	}
	nwk := tl.NewickTree()
	for _, name := range smallNames {
		if !strings.Contains(nwk, name) {
			t.Error("Tree string misses leaf", name, ":", nwk)
		}
	}
	tl2, err := New(smallNames, smallSeqs, nwk, DefaultSettings())
	if err != nil {
		t.Fatal("Error reparsing tree:", err)
	}
	l1, err := tl.LogLikelihood()
	if err != nil {
		t.Fatal(err)
	}
	l2, err := tl2.LogLikelihood()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(l1-l2) > 1e-6 {
		t.Error("Round-tripped tree changes likelihood:", l1, l2)
	}
}

func TestNoneMethod(t *testing.T) {
	s := DefaultSettings()
	s.Method = "none"
	tl, err := New(smallNames, smallSeqs, smallTree, s)
	if err != nil {
		t.Fatal("Error creating engine:", err)
	}
	lnL, err := tl.OptimizeLikelihood()
	if err != nil {
		t.Fatal("Error with none optimizer:", err)
	}
	l0, err := tl.LogLikelihood()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(lnL-l0) > 1e-6 {
		t.Error("None optimizer changed likelihood:", lnL, l0)
	}
}

func TestOmegaBySite(t *testing.T) {
	s := DefaultSettings()
	s.Method = "simplex"
	s.MaxIterations = 100
	s.MaxRounds = 1
	s.OmegaBySite = true
	s.FixBranchLengths = true
	tl, err := New(smallNames, smallSeqs, smallTree, s)
	if err != nil {
		t.Fatal("Error creating engine:", err)
	}
	l0, err := tl.LogLikelihood()
	if err != nil {
		t.Fatal("Error computing likelihood:", err)
	}
	lnL, err := tl.OptimizeLikelihood()
	if err != nil && !errors.Is(err, ErrNonConvergence) {
		t.Fatal("Error optimizing:", err)
	}
	if lnL < l0 {
		t.Error("Optimization decreased likelihood:", l0, "->", lnL)
	}
	pars := tl.ModelParams()
	if _, ok := pars["omega"]; ok {
		t.Error("Found shared omega with per-site omegas enabled")
	}
	for _, name := range []string{"omega_p1", "omega_p15", "omega_p30"} {
		if _, ok := pars[name]; !ok {
			t.Error("Missing per-site parameter", name)
		}
	}
	if pars["kappa_p7"] != pars["kappa_p1"] {
		t.Error("kappa not shared across sites:",
			pars["kappa_p7"], pars["kappa_p1"])
	}
}

func TestInferTopology(t *testing.T) {
	// s3 moved into the cherry with s1
	wrongTree := "(((s1:0.1,s3:0.2):0.05,s2:0.15):0.05,s4:0.1):0.0;"
	s := DefaultSettings()
	s.Method = "none"
	s.InferTopology = true
	s.FixBranchLengths = true
	tl, err := New(smallNames, smallSeqs, wrongTree, s)
	if err != nil {
		t.Fatal("Error creating engine:", err)
	}
	before := tl.NewickTree()
	l0, err := tl.LogLikelihood()
	if err != nil {
		t.Fatal("Error computing likelihood:", err)
	}
	lnL, err := tl.OptimizeLikelihood()
	if err != nil {
		t.Fatal("Error optimizing:", err)
	}
	if lnL <= l0 {
		t.Error("Interchanges did not improve the likelihood:",
			l0, "->", lnL)
	}
	if tl.NewickTree() == before {
		t.Error("Topology was not changed:", before)
	}
	// the likelihood must match a fresh computation on the new tree
	l1, err := tl.LogLikelihood()
	if err != nil {
		t.Fatal("Error computing likelihood:", err)
	}
	if math.Abs(lnL-l1) > 1e-6 {
		t.Error("Stale likelihood after interchanges:", lnL, l1)
	}
}

func TestRandomStart(t *testing.T) {
	s := DefaultSettings()
	s.Method = "simplex"
	s.MaxIterations = 100
	s.MaxRounds = 1
	s.RandomStart = true
	s.FixBranchLengths = true
	tl, err := New(smallNames, smallSeqs, smallTree, s)
	if err != nil {
		t.Fatal("Error creating engine:", err)
	}
	lnL, err := tl.OptimizeLikelihood()
	if err != nil && !errors.Is(err, ErrNonConvergence) {
		t.Fatal("Error optimizing:", err)
	}
	if math.IsNaN(lnL) || math.IsInf(lnL, 0) {
		t.Error("Implausible log-likelihood:", lnL)
	}
	pars := tl.ModelParams()
	if !(pars["omega"] > 0) || !(pars["kappa"] > 0) {
		t.Error("Parameters out of range after optimization:", pars)
	}
}
