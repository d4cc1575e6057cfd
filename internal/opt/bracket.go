package opt

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrBracketing is returned when no bracket of a minimum could be found.
var ErrBracketing = errors.New("failed to bracket a minimum")

const (
	// gold is the default magnification of successive bracketing intervals.
	gold = 1.618034
	// glimit caps the magnification of a parabolic extrapolation.
	glimit = 100.0
	tiny   = 1e-20

	maxShrink            = 30
	maxBracketIterations = 1000
)

// ScalarFunc is a function of one variable.
type ScalarFunc func(x float64) (float64, error)

// BracketPoint is an abscissa with its function value.
type BracketPoint struct {
	X, F float64
}

// Bracket holds three points with B between A and C and
// B.F <= A.F, B.F <= C.F.
type Bracket struct {
	A, B, C BracketPoint
}

func (b Bracket) String() string {
	return fmt.Sprintf("[%g (%g), %g (%g), %g (%g)]", b.A.X, b.A.F, b.B.X, b.B.F, b.C.X, b.C.F)
}

// Valid reports whether b satisfies the bracket invariant.
func (b Bracket) Valid() bool {
	ordered := (b.A.X < b.B.X && b.B.X < b.C.X) || (b.A.X > b.B.X && b.B.X > b.C.X)
	return ordered && b.B.F <= b.A.F && b.B.F <= b.C.F
}

// finite evaluates f at x. When the value is not finite, x is moved halfway
// towards anchor and retried, up to maxShrink times.
func finite(f ScalarFunc, x, anchor float64) (float64, float64, error) {
	for i := 0; ; i++ {
		fx, err := f(x)
		if err != nil {
			return x, 0, err
		}
		if !math.IsNaN(fx) && !math.IsInf(fx, 0) {
			return x, fx, nil
		}
		if i >= maxShrink {
			return x, fx, fmt.Errorf("%w: no finite value between %g and %g", ErrBracketing, anchor, x)
		}
		x = anchor + (x-anchor)/2
	}
}

// BracketMinimum searches downhill from a and b, using parabolic
// extrapolation with a golden ratio fallback, until it finds a bracket.
func BracketMinimum(a, b float64, f ScalarFunc) (Bracket, error) {
	if a == b {
		return Bracket{}, fmt.Errorf("%w: identical seeds %g", ErrBracketing, a)
	}
	fa, err := f(a)
	if err != nil {
		return Bracket{}, err
	}
	if math.IsNaN(fa) || math.IsInf(fa, 0) {
		return Bracket{}, fmt.Errorf("%w: non finite value %g at %g", ErrBracketing, fa, a)
	}
	b, fb, err := finite(f, b, a)
	if err != nil {
		return Bracket{}, err
	}
	if fb > fa {
		a, b = b, a
		fa, fb = fb, fa
	}
	c, fc, err := finite(f, b+gold*(b-a), b)
	if err != nil {
		return Bracket{}, err
	}

	for iter := 0; fb > fc; iter++ {
		if iter >= maxBracketIterations {
			return Bracket{}, fmt.Errorf("%w: still descending at %g after %d iterations", ErrBracketing, c, iter)
		}
		r := (b - a) * (fb - fc)
		q := (b - c) * (fb - fa)
		u := b - ((b-c)*q-(b-a)*r)/(2*math.Copysign(math.Max(math.Abs(q-r), tiny), q-r))
		ulim := b + glimit*(c-b)
		var fu float64

		switch {
		case (b-u)*(u-c) > 0:
			// Parabolic u between b and c.
			if u, fu, err = finite(f, u, c); err != nil {
				return Bracket{}, err
			}
			if fu < fc {
				return bracketOf(b, u, c, fb, fu, fc), nil
			}
			if fu > fb {
				return bracketOf(a, b, u, fa, fb, fu), nil
			}
			if u, fu, err = finite(f, c+gold*(c-b), c); err != nil {
				return Bracket{}, err
			}
		case (c-u)*(u-ulim) > 0:
			// Parabolic u between c and its allowed limit.
			if u, fu, err = finite(f, u, c); err != nil {
				return Bracket{}, err
			}
			if fu < fc {
				b, c = c, u
				fb, fc = fc, fu
				if u, fu, err = finite(f, c+gold*(c-b), c); err != nil {
					return Bracket{}, err
				}
			}
		case (u-ulim)*(ulim-c) >= 0:
			if u, fu, err = finite(f, ulim, c); err != nil {
				return Bracket{}, err
			}
		default:
			if u, fu, err = finite(f, c+gold*(c-b), c); err != nil {
				return Bracket{}, err
			}
		}
		a, b, c = b, c, u
		fa, fb, fc = fb, fc, fu
	}
	return bracketOf(a, b, c, fa, fb, fc), nil
}

func bracketOf(a, b, c, fa, fb, fc float64) Bracket {
	return Bracket{A: BracketPoint{a, fa}, B: BracketPoint{b, fb}, C: BracketPoint{c, fc}}
}

// InwardBracketMinimum samples n equally spaced interior points of the
// finite range (a, b) and brackets the best of them by its neighbours. The
// range endpoints are never evaluated; when the best point is next to one,
// that endpoint closes the bracket with an infinite value.
func InwardBracketMinimum(a, b float64, f ScalarFunc, n int) (Bracket, error) {
	return inwardBracket(a, b, f, n, math.NaN())
}

// inwardBracket is InwardBracketMinimum with x added to the samples when it
// lies strictly inside the range.
func inwardBracket(a, b float64, f ScalarFunc, n int, x float64) (Bracket, error) {
	if n < 1 {
		return Bracket{}, fmt.Errorf("%w: need at least one interior point, got %d", ErrBracketing, n)
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) || math.IsNaN(a) || math.IsNaN(b) || a == b {
		return Bracket{}, fmt.Errorf("%w: invalid range [%g, %g]", ErrBracketing, a, b)
	}
	if a > b {
		a, b = b, a
	}

	xs := make([]float64, 0, n+3)
	xs = append(xs, a)
	width := (b - a) / float64(n+1)
	for i := 1; i <= n; i++ {
		xs = append(xs, a+float64(i)*width)
	}
	xs = append(xs, b)
	if x > a && x < b {
		if i, found := slices.BinarySearch(xs, x); !found {
			xs = slices.Insert(xs, i, x)
		}
	}

	last := len(xs) - 1
	fs := make([]float64, len(xs))
	fs[0], fs[last] = math.Inf(1), math.Inf(1)
	best := 1
	for i := 1; i < last; i++ {
		fx, err := f(xs[i])
		if err != nil {
			return Bracket{}, err
		}
		if math.IsNaN(fx) {
			fx = math.Inf(1)
		}
		fs[i] = fx
		if fx < fs[best] {
			best = i
		}
	}
	return bracketOf(xs[best-1], xs[best], xs[best+1], fs[best-1], fs[best], fs[best+1]), nil
}
