package optimize

// None is an optimizer which computes the initial value and exits.
type None struct {
	BaseOptimizer
}

// NewNone creates an optimizer which computes initial likelihood only.
func NewNone() *None {
	return &None{}
}

// Run computes the likelihood once.
func (n *None) Run(iterations int) {
	n.l = n.Likelihood()
	n.calls++
	n.maxL = n.l
	n.maxLPar = n.parameters.Values(n.maxLPar)
	n.PrintHeader(n.parameters)
	n.PrintLine(n.parameters, n.l)
	n.SaveCheckpoint(true)
}
