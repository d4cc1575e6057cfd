// Package reparam maps bounded parameters onto the real line so that
// unconstrained algorithms can be used on constrained problems.
package reparam

import (
	"math"

	"github.com/cwbudde/numopt/internal/param"
)

// Transform is a bijection between an unconstrained value t and an original value x.
type Transform interface {
	// Original maps t to x.
	Original(t float64) float64
	// Transformed maps x to t.
	Transformed(x float64) float64
	// D1 returns dx/dt at t.
	D1(t float64) float64
	// D2 returns d²x/dt² at t.
	D2(t float64) float64
}

// Identity leaves values untouched.
type Identity struct{}

func (Identity) Original(t float64) float64    { return t }
func (Identity) Transformed(x float64) float64 { return x }
func (Identity) D1(float64) float64            { return 1 }
func (Identity) D2(float64) float64            { return 0 }

// Interval maps the real line onto (Lower, Upper) through tanh.
type Interval struct {
	Lower, Upper float64
}

func (iv Interval) half() float64 { return (iv.Upper - iv.Lower) / 2 }

func (iv Interval) Original(t float64) float64 {
	return iv.Lower + iv.half()*(math.Tanh(t)+1)
}

func (iv Interval) Transformed(x float64) float64 {
	return math.Atanh((x-iv.Lower)/iv.half() - 1)
}

func (iv Interval) D1(t float64) float64 {
	th := math.Tanh(t)
	return iv.half() * (1 - th*th)
}

func (iv Interval) D2(t float64) float64 {
	th := math.Tanh(t)
	return -2 * iv.half() * th * (1 - th*th)
}

// HalfLine maps the real line onto (Bound, +Inf), or (-Inf, Bound) when
// Negative is set. The distance to the bound is exp(t-1) for t <= 1 and
// t beyond, which keeps large values from overflowing.
type HalfLine struct {
	Bound    float64
	Negative bool
}

func (hl HalfLine) sign() float64 {
	if hl.Negative {
		return -1
	}
	return 1
}

func (hl HalfLine) Original(t float64) float64 {
	y := t
	if t <= 1 {
		y = math.Exp(t - 1)
	}
	return hl.Bound + hl.sign()*y
}

func (hl HalfLine) Transformed(x float64) float64 {
	y := hl.sign() * (x - hl.Bound)
	if y <= 1 {
		return 1 + math.Log(y)
	}
	return y
}

func (hl HalfLine) D1(t float64) float64 {
	if t <= 1 {
		return hl.sign() * math.Exp(t-1)
	}
	return hl.sign()
}

func (hl HalfLine) D2(t float64) float64 {
	if t <= 1 {
		return hl.sign() * math.Exp(t-1)
	}
	return 0
}

// For picks the transform matching a constraint. Closed sides are widened by
// a relative param.Epsilon so that values lying on them keep a finite image.
func For(c *param.Interval) Transform {
	if c == nil {
		return Identity{}
	}
	lower, upper := widen(c)
	switch {
	case c.HasLower() && c.HasUpper():
		return Interval{Lower: lower, Upper: upper}
	case c.HasLower():
		return HalfLine{Bound: lower}
	case c.HasUpper():
		return HalfLine{Bound: upper, Negative: true}
	default:
		return Identity{}
	}
}

func widen(c *param.Interval) (lower, upper float64) {
	lower, upper = c.Lower, c.Upper
	if c.HasLower() && !c.StrictLower {
		lower -= param.Epsilon * math.Max(1, math.Abs(lower))
	}
	if c.HasUpper() && !c.StrictUpper {
		upper += param.Epsilon * math.Max(1, math.Abs(upper))
	}
	return lower, upper
}
