package param

import (
	"errors"
	"fmt"
	"math"
)

// Epsilon is the relative distance kept from a strict bound when a value has
// to be moved inside an interval.
const Epsilon = 1e-12

// Interval is a bound constraint on a parameter value.
// Infinite bounds mean the corresponding side is unconstrained.
type Interval struct {
	Lower, Upper             float64
	StrictLower, StrictUpper bool
}

// NewInterval creates a constraint [lower, upper], with open sides where strict is set.
func NewInterval(lower, upper float64, strictLower, strictUpper bool) (*Interval, error) {
	switch {
	case math.IsNaN(lower) || math.IsNaN(upper):
		return nil, errors.New("interval bounds cannot be NaN")
	case lower > upper:
		return nil, fmt.Errorf("interval lower bound %g greater than upper bound %g", lower, upper)
	case lower == upper && (strictLower || strictUpper):
		return nil, fmt.Errorf("interval (%g, %g) is empty", lower, upper)
	}
	return &Interval{Lower: lower, Upper: upper, StrictLower: strictLower, StrictUpper: strictUpper}, nil
}

// Closed returns the interval [lower, upper].
func Closed(lower, upper float64) *Interval {
	return &Interval{Lower: lower, Upper: upper}
}

// Open returns the interval (lower, upper).
func Open(lower, upper float64) *Interval {
	return &Interval{Lower: lower, Upper: upper, StrictLower: true, StrictUpper: true}
}

// Positive returns (0, +Inf).
func Positive() *Interval {
	return &Interval{Lower: 0, Upper: math.Inf(1), StrictLower: true}
}

// HasLower reports whether the lower side is finite.
func (c *Interval) HasLower() bool {
	return !math.IsInf(c.Lower, -1)
}

// HasUpper reports whether the upper side is finite.
func (c *Interval) HasUpper() bool {
	return !math.IsInf(c.Upper, 1)
}

// Contains reports whether v satisfies the constraint.
func (c *Interval) Contains(v float64) bool {
	if c == nil {
		return !math.IsNaN(v)
	}
	if math.IsNaN(v) {
		return false
	}
	if c.StrictLower {
		if v <= c.Lower {
			return false
		}
	} else if v < c.Lower {
		return false
	}
	if c.StrictUpper {
		return v < c.Upper
	}
	return v <= c.Upper
}

// Clamp returns the admissible value closest to v.
// Strict bounds are replaced by the bound moved inside by a relative Epsilon.
func (c *Interval) Clamp(v float64) float64 {
	if c == nil || c.Contains(v) {
		return v
	}
	lo, hi := c.EffectiveLower(), c.EffectiveUpper()
	if v < lo || math.IsNaN(v) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EffectiveLower returns the smallest admissible value.
func (c *Interval) EffectiveLower() float64 {
	if !c.StrictLower || !c.HasLower() {
		return c.Lower
	}
	return c.Lower + Epsilon*math.Max(1, math.Abs(c.Lower))
}

// EffectiveUpper returns the largest admissible value.
func (c *Interval) EffectiveUpper() float64 {
	if !c.StrictUpper || !c.HasUpper() {
		return c.Upper
	}
	return c.Upper - Epsilon*math.Max(1, math.Abs(c.Upper))
}

func (c *Interval) String() string {
	if c == nil {
		return "]-inf, +inf["
	}
	l, r := "[", "]"
	if c.StrictLower || !c.HasLower() {
		l = "]"
	}
	if c.StrictUpper || !c.HasUpper() {
		r = "["
	}
	return fmt.Sprintf("%s%g, %g%s", l, c.Lower, c.Upper, r)
}

// ConstraintError reports a value outside a parameter's constraint.
type ConstraintError struct {
	Name       string
	Value      float64
	Constraint *Interval
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("parameter %s: value %g violates constraint %s", e.Name, e.Value, e.Constraint)
}

// IsConstraintError reports whether err wraps a *ConstraintError.
func IsConstraintError(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}
