package optimize

import (
	"math"
	"testing"
)

// quadratic is a simple concave test target.
type quadratic struct {
	x, y, z    float64
	parameters FloatParameters
}

func newQuadratic() *quadratic {
	q := &quadratic{x: 0.5, y: 0.5, z: 0.5}
	for _, p := range []struct {
		v    *float64
		name string
	}{{&q.x, "x"}, {&q.y, "y"}, {&q.z, "z"}} {
		par := NewBasicFloatParameter(p.v, p.name)
		par.SetMin(-100)
		par.SetMax(100)
		q.parameters.Append(par)
	}
	return q
}

func (q *quadratic) GetFloatParameters() FloatParameters {
	return q.parameters
}

func (q *quadratic) Likelihood() float64 {
	return -(q.x-1)*(q.x-1) - (q.y-2)*(q.y-2) - (q.z-q.y)*(q.z-q.y)
}

func (q *quadratic) Copy() Optimizable {
	nq := newQuadratic()
	nq.x, nq.y, nq.z = q.x, q.y, q.z
	return nq
}

func TestConstraintCycle(tst *testing.T) {
	c := make(Constraints)
	if err := c.Add("a", "a"); err == nil {
		tst.Error("expected error for self-reference")
	}
	if err := c.Add("a", "b"); err != nil {
		tst.Error("unexpected error:", err)
	}
	if err := c.Add("b", "c"); err != nil {
		tst.Error("unexpected error:", err)
	}
	if err := c.Add("c", "a"); err == nil {
		tst.Error("expected error for constraint cycle")
	}
	if err := c.Add("a", "c"); err == nil {
		tst.Error("expected error for duplicate constraint")
	}
	if c.resolve("a") != "c" {
		tst.Error("wrong chain resolution:", c.resolve("a"))
	}
}

func TestMatchPattern(tst *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"omega", "omega", true},
		{"omega", "omega1", false},
		{"br*", "br12", true},
		{"br*", "kappa", false},
		{"*omega", "p1omega", true},
		{"*", "anything", true},
	}
	for _, c := range cases {
		if MatchPattern(c.pattern, c.name) != c.want {
			tst.Errorf("MatchPattern(%q, %q) != %v", c.pattern, c.name, c.want)
		}
	}
}

func TestRestrictionHidesParameters(tst *testing.T) {
	q := newQuadratic()
	c := make(Constraints)
	if err := c.Add("z", "y"); err != nil {
		tst.Fatal(err)
	}
	r := NewRestriction(q, c, []string{"x"})
	free := r.GetFloatParameters()
	names := free.Names(nil)
	if len(names) != 1 || names[0] != "y" {
		tst.Error("wrong free parameters:", names)
	}

	free.ByName("y").Set(3)
	r.Likelihood()
	if q.z != 3 {
		tst.Error("constraint was not applied, z =", q.z)
	}
	if q.x != 0.5 {
		tst.Error("ignored parameter changed, x =", q.x)
	}
}

func TestRestrictedOptimization(tst *testing.T) {
	q := newQuadratic()
	c := make(Constraints)
	if err := c.Add("z", "y"); err != nil {
		tst.Fatal(err)
	}
	r := NewRestriction(q, c, []string{"x"})

	ds := NewDS()
	ds.Quiet = true
	ds.SetOptimizable(r)
	ds.Run(1000)
	// Sync the constrained parameter with the final point.
	r.Likelihood()

	// With z tied to y the maximum is at y = 2 and the ignored x
	// stays put.
	if math.Abs(q.y-2) > 1e-3 {
		tst.Error("wrong optimum for y:", q.y)
	}
	if math.Abs(q.z-q.y) > 1e-8 {
		tst.Error("constraint broken at optimum:", q.z, q.y)
	}
	if q.x != 0.5 {
		tst.Error("ignored parameter moved:", q.x)
	}
	if math.Abs(ds.GetMaxL()-(-0.25)) > 1e-3 {
		tst.Error("wrong maximum likelihood:", ds.GetMaxL())
	}
}
