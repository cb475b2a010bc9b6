package treelik

import (
	"bitbucket.org/Davydov/excodon/checkpoint"
	"bitbucket.org/Davydov/excodon/prefs"
)

// Settings controls model construction and optimization.
type Settings struct {
	// Model is the substitution model name ("M0" or "ExpCM").
	Model string
	// GCodeID is the NCBI genetic code identifier.
	GCodeID int
	// CodonFrequency selects equilibrium frequency estimation
	// ("F0" or "F3X4"). ExpCM sites derive frequencies from the
	// preferences instead.
	CodonFrequency string
	// CodonFrequencyFileName reads frequencies from a file,
	// overriding CodonFrequency.
	CodonFrequencyFileName string
	// NCat is the number of discrete-gamma rate categories; 1
	// disables rate variation.
	NCat int
	// Recursion selects the pruning recursion ('S' or 'D').
	Recursion byte
	// OldLikelihoodMethod computes the likelihood with a single
	// direct model instead of a process collection. Only valid for
	// site-homogeneous models.
	OldLikelihoodMethod bool
	// OmegaBySite gives every site its own omega parameter.
	OmegaBySite bool
	// Preferences is the site preference table (required for
	// ExpCM).
	Preferences prefs.Table
	// FixPreferences keeps preferences fixed during optimization.
	FixPreferences bool
	// FixBranchLengths excludes branch lengths from optimization.
	FixBranchLengths bool
	// InferTopology enables nearest-neighbor-interchange topology
	// search during optimization.
	InferTopology bool
	// Method is the optimization method ("lbfgsb", "simplex" or
	// "none").
	Method string
	// MaxIterations is the per-round iteration budget of the
	// numerical optimizer.
	MaxIterations int
	// MaxRounds is the number of optimization rounds (topology
	// sweeps happen between rounds).
	MaxRounds int
	// Tolerance is the relative log-likelihood improvement below
	// which the optimization is considered converged.
	Tolerance float64
	// MaxBranchLength is the upper bound for branch-length
	// optimization.
	MaxBranchLength float64
	// RandomStart randomizes free parameters before optimization.
	RandomStart bool
	// StartFileName reads the starting point from a trajectory or
	// JSON file.
	StartFileName string
	// ReportPeriod is the progress report interval in iterations.
	ReportPeriod int
	// Quiet suppresses progress output.
	Quiet bool
	// Checkpoint enables saving optimization state.
	Checkpoint *checkpoint.CheckpointIO
}

// DefaultSettings returns settings for a basic M0 optimization.
func DefaultSettings() Settings {
	return Settings{
		Model:          "M0",
		GCodeID:        1,
		CodonFrequency: "F3X4",
		NCat:           1,
		Recursion:      'S',
		FixPreferences: true,
		Method:         "lbfgsb",
		MaxIterations:  500,
		MaxRounds:      5,
		Tolerance:      1e-6,
		ReportPeriod:   10,
		Quiet:          true,
	}
}
