package optimize

import (
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
)

// LBFGSB is a L-BFGS-B optimizer. Gradients are estimated with
// central differences on a copy of the model.
type LBFGSB struct {
	BaseOptimizer
	dH   float64
	grad []float64
}

// NewLBFGSB creates a new L-BFGS-B optimizer.
func NewLBFGSB() (l *LBFGSB) {
	l = &LBFGSB{
		BaseOptimizer: BaseOptimizer{
			repPeriod: 10,
		},
		dH: 1e-6,
	}
	return
}

// Logger is called by the lbfgsb library on every iteration.
func (l *LBFGSB) Logger(info *lbfgsb.OptimizationIterationInformation) {
	l.i = info.Iteration
	if l.i%l.repPeriod == 0 {
		l.PrintLine(l.parameters, -info.F)
	}
	l.SaveCheckpoint(false)
	select {
	case s := <-l.sig:
		log.Fatal("Received signal, exiting:", s)
	default:
	}
}

// EvaluateFunction computes the negative log-likelihood at a point.
func (l *LBFGSB) EvaluateFunction(x []float64) float64 {
	if !l.parameters.ValuesInRange(x) {
		return math.Inf(+1)
	}

	l.parameters.SetValues(x)

	L := l.Likelihood()
	l.calls++
	l.l = L
	l.saveMaxL(l.parameters, L)
	return -L
}

// EvaluateGradient computes the gradient of the negative
// log-likelihood with central differences.
func (l *LBFGSB) EvaluateGradient(x []float64) (grad []float64) {
	if l.grad == nil {
		l.grad = make([]float64, len(x))
	}
	grad = l.grad
	no := l.Optimizable.Copy()
	par := no.GetFloatParameters()
	for i := range x {
		par.SetValues(x)
		par[i].Set(x[i] - l.dH)
		l1 := -no.Likelihood()
		l.calls++

		par[i].Set(x[i] + l.dH)
		l2 := -no.Likelihood()
		l.calls++

		grad[i] = (l2 - l1) / 2 / l.dH
	}
	select {
	case s := <-l.sig:
		log.Fatal("Received signal, exiting:", s)
	default:
	}
	return
}

// Run runs the optimization for at most iterations iterations.
func (l *LBFGSB) Run(iterations int) {
	l.maxL = math.Inf(-1)
	l.PrintHeader(l.parameters)

	if len(l.parameters) == 0 {
		log.Info("No free parameters, computing likelihood")
		l.l = l.Likelihood()
		l.maxL = l.l
		l.maxLPar = l.parameters.Values(nil)
		return
	}

	bounds := make([][2]float64, len(l.parameters))
	for i, par := range l.parameters {
		bounds[i][0] = par.GetMin() + 1e-5
		bounds[i][1] = par.GetMax() - 1e-5
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-9)
	opt.SetGTolerance(1e-9)

	opt.SetBounds(bounds)
	opt.SetLogger(l.Logger)

	_, exitStatus := opt.Minimize(l, l.parameters.Values(nil))

	log.Info("Exit status: ", exitStatus)

	l.restoreMaxL()
	l.SaveCheckpoint(true)

	if !l.Quiet {
		log.Info("Finished LBFGSB")
		log.Noticef("Maximum likelihood: %v", l.maxL)
		log.Infof("Likelihood function calls: %v", l.calls)
		log.Infof("Parameter  names: %v", l.parameters.NamesString())
		log.Infof("Parameter values: %v", l.GetMaxLParameters())
	}
	l.PrintFinal(l.parameters)
}
