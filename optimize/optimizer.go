package optimize

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/excodon/checkpoint"
)

// log is the global logging variable.
var log = logging.MustGetLogger("optimize")

// Optimizable is something which can be optimized: it exposes
// parameters and computes a log-likelihood.
type Optimizable interface {
	GetFloatParameters() FloatParameters
	Likelihood() float64
	Copy() Optimizable
}

// Optimizer is a maximum-likelihood optimizer.
type Optimizer interface {
	SetOptimizable(Optimizable)
	GetOptimizable() Optimizable
	WatchSignals(...os.Signal)
	SetReportPeriod(period int)
	SetQuiet(bool)
	SetCheckpointIO(*checkpoint.CheckpointIO)
	Run(iterations int)
	GetL() float64
	GetMaxL() float64
	GetMaxLParameters() string
	GetNCalls() int
	GetNIter() int
	LoadFromOptimizer(Optimizer)
}

// BaseOptimizer contains basic data for an optimizer.
type BaseOptimizer struct {
	Optimizable
	parameters FloatParameters
	i          int
	calls      int
	l          float64
	maxL       float64
	maxLPar    []float64
	repPeriod  int
	sig        chan os.Signal
	cio        *checkpoint.CheckpointIO
	Quiet      bool
}

// SetOptimizable sets the model to optimize.
func (o *BaseOptimizer) SetOptimizable(opt Optimizable) {
	o.Optimizable = opt
	o.parameters = opt.GetFloatParameters()
}

// GetOptimizable returns the model.
func (o *BaseOptimizer) GetOptimizable() Optimizable {
	return o.Optimizable
}

// WatchSignals installs OS signal watchers.
func (o *BaseOptimizer) WatchSignals(sigs ...os.Signal) {
	o.sig = make(chan os.Signal, 1)
	signal.Notify(o.sig, sigs...)
}

// SetReportPeriod sets how often progress lines are printed.
func (o *BaseOptimizer) SetReportPeriod(period int) {
	o.repPeriod = period
}

// SetQuiet suppresses progress output.
func (o *BaseOptimizer) SetQuiet(quiet bool) {
	o.Quiet = quiet
}

// SetCheckpointIO enables periodic checkpointing.
func (o *BaseOptimizer) SetCheckpointIO(cio *checkpoint.CheckpointIO) {
	o.cio = cio
}

// SaveCheckpoint saves the current best point if the checkpoint is
// due (or final).
func (o *BaseOptimizer) SaveCheckpoint(final bool) {
	if o.cio == nil {
		return
	}
	if !final && !o.cio.Old() {
		return
	}
	pars := make(map[string]float64, len(o.parameters))
	values := o.maxLPar
	if values == nil {
		values = o.parameters.Values(nil)
	}
	for i, par := range o.parameters {
		pars[par.Name()] = values[i]
	}
	err := o.cio.Save(&checkpoint.CheckpointData{
		Parameters: pars,
		Likelihood: o.maxL,
		Iter:       o.i,
		Final:      final,
	})
	if err != nil {
		log.Error("Error saving checkpoint:", err)
	}
}

// LoadFromOptimizer copies the state from another optimizer.
func (o *BaseOptimizer) LoadFromOptimizer(opt Optimizer) {
	o.i = opt.GetNIter()
	o.calls = opt.GetNCalls()
	o.SetOptimizable(opt.GetOptimizable())
}

// saveMaxL remembers the best point seen so far.
func (o *BaseOptimizer) saveMaxL(parameters FloatParameters, l float64) {
	if l > o.maxL {
		o.maxL = l
		o.maxLPar = parameters.Values(o.maxLPar)
	}
}

// PrintHeader prints the report header.
func (o *BaseOptimizer) PrintHeader(parameters FloatParameters) {
	if !o.Quiet {
		fmt.Printf("iteration\tlikelihood\t%s\n", parameters.NamesString())
	}
}

// PrintLine prints one progress line.
func (o *BaseOptimizer) PrintLine(parameters FloatParameters, l float64) {
	if !o.Quiet {
		fmt.Printf("%d\t%f\t%s\n", o.i, l, parameters.ValuesString())
	}
}

// PrintFinal logs final parameter values.
func (o *BaseOptimizer) PrintFinal(parameters FloatParameters) {
	if !o.Quiet {
		for _, par := range parameters {
			log.Noticef("%s=%v", par.Name(), par.Get())
		}
	}
}

// GetL returns the last computed likelihood.
func (o *BaseOptimizer) GetL() float64 {
	return o.l
}

// GetMaxL returns the maximum likelihood found.
func (o *BaseOptimizer) GetMaxL() float64 {
	return o.maxL
}

// GetMaxLParameters returns the parameters of the best point as a
// tab-separated string.
func (o *BaseOptimizer) GetMaxLParameters() (s string) {
	for i, v := range o.maxLPar {
		if i != 0 {
			s += "\t"
		}
		s += fmt.Sprintf("%v", v)
	}
	return s
}

// GetNCalls returns the number of likelihood function calls.
func (o *BaseOptimizer) GetNCalls() int {
	return o.calls
}

// GetNIter returns the number of iterations.
func (o *BaseOptimizer) GetNIter() int {
	return o.i
}

// restoreMaxL sets the model parameters to the best point found.
func (o *BaseOptimizer) restoreMaxL() {
	if o.maxLPar != nil {
		o.parameters.SetValues(o.maxLPar)
	}
}

// NewOptimizer returns an optimizer by method name.
func NewOptimizer(method string) (Optimizer, error) {
	switch method {
	case "lbfgsb":
		return NewLBFGSB(), nil
	case "simplex":
		return NewDS(), nil
	case "none":
		return NewNone(), nil
	}
	return nil, fmt.Errorf("unknown optimization method <%s>", method)
}
