package main

// RunSummary stores excodon run summary information.
type RunSummary struct {
	// Version stores excodon version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// Model is the model name.
	Model string `json:"model"`
	// NSequences is the number of sequences in the alignment.
	NSequences int `json:"nSequences"`
	// NSites is the number of codon sites in the alignment.
	NSites int `json:"nSites"`
	// StartingTree is the input tree.
	StartingTree string `json:"startingTree"`
	// FinalTree is the tree after optimization (if performed).
	FinalTree string `json:"finalTree,omitempty"`
	// MaxLnL is the maximum log likelihood.
	MaxLnL float64 `json:"maxLnL"`
	// MaxLParameters is the maximum likelihood parameter values.
	MaxLParameters map[string]float64 `json:"maxLParameters,omitempty"`
	// SiteLnL is the per-site log likelihood.
	SiteLnL []float64 `json:"siteLnL,omitempty"`
	// IgnoredParameters are patterns of parameters excluded from
	// optimization.
	IgnoredParameters string `json:"ignoredParameters,omitempty"`
	// Converged tells if the optimization converged within the budget.
	Converged bool `json:"converged"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
}
