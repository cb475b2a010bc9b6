package optimize

import (
	"math"
)

// Convergence constants for the downhill simplex.
const (
	TINY  = 1e-10
	SMALL = 1e-6
	// SMALL_DELTA is the step used to rebuild the simplex after
	// convergence. It must differ from the initial delta, otherwise a
	// restart from a point straddling the optimum recreates the same
	// degenerate simplex.
	SMALL_DELTA = 1.1
)

// DS is a downhill simplex optimizer.
type DS struct {
	BaseOptimizer
	delta      float64
	ftol       float64
	repeat     bool
	oldL       float64
	points     []Optimizable
	psum       []float64
	simplexPar []FloatParameters
	simplexL   []float64
	newOpt     Optimizable
	newPar     FloatParameters
}

// NewDS creates a new downhill simplex optimizer.
func NewDS() (ds *DS) {
	ds = &DS{
		delta: 1,
		ftol:  TINY,
	}
	ds.repPeriod = 10
	return
}

func (ds *DS) createSimplex(opt Optimizable, delta float64) {
	parameters := opt.GetFloatParameters()
	ds.points = make([]Optimizable, len(parameters)+1)
	ds.simplexPar = make([]FloatParameters, len(ds.points))
	ds.simplexL = make([]float64, len(ds.points))
	ds.points[0] = opt
	ds.simplexPar[0] = parameters
	for i := 1; i < len(ds.points); i++ {
		point := opt.Copy()
		ds.points[i] = point
		ds.simplexPar[i] = point.GetFloatParameters()
	}
	for i := 0; i < len(parameters); i++ {
		parameter := ds.simplexPar[i+1][i]
		parameter.Set(parameter.Get() + delta)
	}
	for i := range ds.points {
		if ds.simplexPar[i].InRange() {
			ds.simplexL[i] = ds.points[i].Likelihood()
			ds.calls++
		} else {
			ds.simplexL[i] = math.Inf(-1)
		}
	}
}

// amotry extrapolates by factor fac through the face of the simplex
// across from the low point, tries it, and replaces the low point if
// the new point is better.
func (ds *DS) amotry(ilo int, fac float64) float64 {
	if ds.newOpt == nil {
		ds.newOpt = ds.points[0].Copy()
		ds.newPar = ds.newOpt.GetFloatParameters()
	}
	ds.calcPsum()
	ndim := len(ds.newPar)
	fac1 := (1 - fac) / float64(ndim)
	fac2 := fac1 - fac
	for j := 0; j < ndim; j++ {
		ds.newPar[j].Set(ds.psum[j]*fac1 - ds.simplexPar[ilo][j].Get()*fac2)
	}
	var l float64
	if ds.newPar.InRange() {
		l = ds.newOpt.Likelihood()
		ds.calls++
	} else {
		l = math.Inf(-1)
	}
	if l > ds.simplexL[ilo] {
		ds.points[ilo], ds.newOpt = ds.newOpt, ds.points[ilo]
		ds.simplexPar[ilo], ds.newPar = ds.newPar, ds.simplexPar[ilo]
		ds.simplexL[ilo] = l
	}
	return l
}

func (ds *DS) calcPsum() {
	ds.psum = make([]float64, len(ds.simplexPar[0]))
	for i := range ds.psum {
		for _, parameters := range ds.simplexPar {
			ds.psum[i] += parameters[i].Get()
		}
	}
}

// SetOptimizable sets the model and creates the initial simplex.
func (ds *DS) SetOptimizable(opt Optimizable) {
	ds.BaseOptimizer.SetOptimizable(opt)
	ds.createSimplex(opt, ds.delta)
}

// Run runs the optimization for at most iterations iterations.
func (ds *DS) Run(iterations int) {
	// Lowest (worst), next-lowest and highest points.
	var ilo, inlo, ihi int
	var llo, lnlo, lhi float64
	ds.PrintHeader(ds.simplexPar[0])
	ds.maxL = math.Inf(-1)

	if len(ds.simplexPar[0]) == 0 {
		log.Info("No free parameters, computing likelihood")
		ds.l = ds.points[0].Likelihood()
		ds.calls++
		ds.maxL = ds.l
		ds.maxLPar = ds.simplexPar[0].Values(nil)
		return
	}

Iter:
	for ds.i = 1; ds.i <= iterations; ds.i++ {
		if ds.simplexL[0] < ds.simplexL[1] {
			ilo, inlo, ihi = 0, 1, 1
		} else {
			ilo, inlo, ihi = 1, 0, 0
		}
		llo = ds.simplexL[ilo]
		lnlo = ds.simplexL[inlo]
		lhi = ds.simplexL[ihi]
		for i := 2; i < len(ds.points); i++ {
			if ds.simplexL[i] >= lhi {
				lhi = ds.simplexL[i]
				ihi = i
			}
			if ds.simplexL[i] < llo {
				lnlo = llo
				inlo = ilo
				llo = ds.simplexL[i]
				ilo = i
			} else if ds.simplexL[i] < lnlo {
				lnlo = ds.simplexL[i]
				inlo = i
			}
		}
		ds.saveMaxL(ds.simplexPar[ihi], lhi)
		ds.l = lhi
		if ds.i%ds.repPeriod == 0 {
			log.Debugf("%d: L=%f (%f)", ds.i, lhi, lhi-llo)
			ds.PrintLine(ds.simplexPar[ihi], lhi)
		}
		ds.SaveCheckpoint(false)
		rtol := 2 * math.Abs(ds.simplexL[ihi]-ds.simplexL[ilo]) /
			(math.Abs(ds.simplexL[ilo]) + math.Abs(ds.simplexL[ihi]) + TINY)
		if rtol < ds.ftol {
			if ds.repeat && math.Abs(ds.oldL-lhi) < SMALL {
				break Iter
			}
			ds.repeat = true
			ds.oldL = lhi
			log.Infof("converged. retrying")
			ds.createSimplex(ds.points[ihi], SMALL_DELTA)
			continue
		}
		l := ds.amotry(ilo, -1)
		switch {
		case l >= lhi:
			ds.amotry(ilo, 2)
		case l <= lnlo:
			lsave := llo
			l := ds.amotry(ilo, 0.5)
			if l <= lsave {
				for i, point := range ds.points {
					if i != ihi {
						for j := range ds.simplexPar[i] {
							ds.simplexPar[i][j].Set(0.5 * (ds.simplexPar[i][j].Get() + ds.simplexPar[ihi][j].Get()))
						}
						if ds.simplexPar[i].InRange() {
							ds.simplexL[i] = point.Likelihood()
							ds.calls++
						} else {
							ds.simplexL[i] = math.Inf(-1)
						}
					}
				}
			}
		}
		select {
		case s := <-ds.sig:
			log.Warningf("Received signal %v, exiting.", s)
			break Iter
		default:
		}
	}
	if ds.i >= iterations {
		log.Warningf("Iterations exceeded (%d)", iterations)
	}

	// Propagate the best point seen back to the model which was passed
	// to SetOptimizable. The last simplex point is not necessarily the
	// best one after a restart.
	ds.restoreMaxL()
	ds.SaveCheckpoint(true)

	log.Info("Finished downhill simplex")
	log.Noticef("Maximum likelihood: %v", ds.maxL)
	log.Infof("Parameter  names: %v", ds.parameters.NamesString())
	log.Infof("Parameter values: %v", ds.parameters.ValuesString())
	ds.PrintFinal(ds.parameters)
}
