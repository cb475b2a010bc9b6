package treelik

import "errors"

// Sentinel errors returned by the tree likelihood engine. Returned
// errors wrap these, so callers can test with errors.Is.
var (
	// ErrDataMismatch means sequences and tree are inconsistent or
	// malformed.
	ErrDataMismatch = errors.New("data mismatch")
	// ErrUnknownModel means the requested model name is not
	// supported.
	ErrUnknownModel = errors.New("unknown model")
	// ErrPreferenceCoverage means the preference table does not
	// cover every alignment site.
	ErrPreferenceCoverage = errors.New("incomplete preference coverage")
	// ErrNumericalInstability means a non-finite likelihood was
	// produced.
	ErrNumericalInstability = errors.New("numerical instability")
	// ErrNonConvergence means the optimization budget was exhausted
	// before convergence. The best parameters found are retained.
	ErrNonConvergence = errors.New("optimization did not converge")
	// ErrSiteIndex means a site query was out of range.
	ErrSiteIndex = errors.New("site index out of range")
)
