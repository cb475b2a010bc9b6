package optimize

import (
	"fmt"
	"sort"
	"strings"
)

// Constraints maps constrained parameter names to the names of the
// parameters they follow. A constrained parameter is excluded from
// optimization; before every likelihood evaluation its value is set
// to the value of its reference.
type Constraints map[string]string

// Add declares that parameter name follows parameter ref. Chains are
// allowed (a follows b, b follows c); self-references and cycles are
// rejected.
func (c Constraints) Add(name, ref string) error {
	if name == ref {
		return fmt.Errorf("parameter <%s> cannot be constrained to itself", name)
	}
	if _, ok := c[name]; ok {
		return fmt.Errorf("parameter <%s> is already constrained", name)
	}
	seen := map[string]bool{name: true}
	for cur := ref; ; {
		if seen[cur] {
			return fmt.Errorf("constraint cycle involving <%s>", cur)
		}
		seen[cur] = true
		next, ok := c[cur]
		if !ok {
			break
		}
		cur = next
	}
	c[name] = ref
	return nil
}

// resolve follows a constraint chain to its free root.
func (c Constraints) resolve(name string) string {
	for {
		ref, ok := c[name]
		if !ok {
			return name
		}
		name = ref
	}
}

// Apply sets every constrained parameter to the value of its
// reference. Unknown names are an error.
func (c Constraints) Apply(parameters FloatParameters) error {
	for name := range c {
		target := parameters.ByName(name)
		if target == nil {
			return fmt.Errorf("unknown constrained parameter <%s>", name)
		}
		source := parameters.ByName(c.resolve(name))
		if source == nil {
			return fmt.Errorf("unknown constraint reference <%s>", c[name])
		}
		target.Set(source.Get())
	}
	return nil
}

// Names returns sorted constrained parameter names.
func (c Constraints) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MatchPattern returns true if a parameter name matches a pattern.
// Supported patterns: an exact name, "*" for everything, "prefix*"
// and "*suffix".
func MatchPattern(pattern, name string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, pattern[1:])
	}
	return pattern == name
}

// MatchAnyPattern returns true if the name matches any of the
// patterns.
func MatchAnyPattern(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if MatchPattern(pattern, name) {
			return true
		}
	}
	return false
}

// Restriction wraps an Optimizable and exposes only the free
// parameters: parameters matching an ignore pattern and constrained
// parameters are hidden from the optimizer. Constraints are applied
// before every likelihood computation.
type Restriction struct {
	model       Optimizable
	constraints Constraints
	ignored     []string
	active      FloatParameters
}

// NewRestriction creates a restricted view of a model.
func NewRestriction(model Optimizable, constraints Constraints, ignored []string) *Restriction {
	r := &Restriction{
		model:       model,
		constraints: constraints,
		ignored:     ignored,
	}
	all := model.GetFloatParameters()
	for _, par := range all {
		if _, ok := constraints[par.Name()]; ok {
			continue
		}
		if MatchAnyPattern(ignored, par.Name()) {
			continue
		}
		r.active.Append(par)
	}
	return r
}

// GetFloatParameters returns the free parameters only.
func (r *Restriction) GetFloatParameters() FloatParameters {
	return r.active
}

// Likelihood applies the constraints and computes the model
// likelihood.
func (r *Restriction) Likelihood() float64 {
	if len(r.constraints) > 0 {
		if err := r.constraints.Apply(r.model.GetFloatParameters()); err != nil {
			log.Error("Error applying constraints:", err)
		}
	}
	return r.model.Likelihood()
}

// Copy copies the underlying model and restricts the copy the same
// way.
func (r *Restriction) Copy() Optimizable {
	return NewRestriction(r.model.Copy(), r.constraints, r.ignored)
}

// Model returns the underlying model.
func (r *Restriction) Model() Optimizable {
	return r.model
}
