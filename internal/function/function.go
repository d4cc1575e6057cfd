// Package function defines the capability contract between objective
// functions and optimizers.
//
// A Function holds a current point and a memoized value. Derivative support is
// an optional capability expressed by the FirstOrder and SecondOrder
// interfaces; wrappers forward to an inner function and override only what
// they change.
package function

import (
	"errors"
	"fmt"

	"github.com/cwbudde/numopt/internal/param"
)

var (
	// ErrUnsupported is returned when a derivative the function cannot provide is requested.
	ErrUnsupported = errors.New("unsupported derivative")

	// ErrUnknownParameter is returned for derivatives requested on names the function does not know.
	ErrUnknownParameter = param.ErrUnknownParameter
)

// Function is a scalar function of a parameter list.
type Function interface {
	// SetParameters moves the function to p. p may hold all parameters or a
	// subset; values are matched by name. A constraint violation is reported
	// as a *param.ConstraintError and leaves the point unchanged.
	SetParameters(p *param.List) error

	// Parameters returns a copy of the current point.
	Parameters() *param.List

	// Value returns the value at the current point. Calling it twice without
	// an intervening SetParameters returns the same value without recomputation.
	Value() float64
}

// FirstOrder is a Function with first order partial derivatives.
type FirstOrder interface {
	Function
	EnableFirstOrderDerivatives(yes bool)
	FirstOrderDerivativesEnabled() bool
	FirstOrderDerivative(name string) (float64, error)
}

// SecondOrder is a Function with second order partial derivatives.
type SecondOrder interface {
	FirstOrder
	EnableSecondOrderDerivatives(yes bool)
	SecondOrderDerivativesEnabled() bool
	SecondOrderDerivative(name string) (float64, error)
	SecondOrderCrossDerivative(name1, name2 string) (float64, error)
}

// Eval sets p on f and returns the value there.
func Eval(f Function, p *param.List) (float64, error) {
	if err := f.SetParameters(p); err != nil {
		return 0, err
	}
	return f.Value(), nil
}

// Gradient collects the first order derivatives of f for names at the current point.
func Gradient(f FirstOrder, names []string, dst []float64) ([]float64, error) {
	if dst == nil {
		dst = make([]float64, len(names))
	}
	if len(dst) != len(names) {
		return nil, fmt.Errorf("gradient buffer has length %d, expected %d", len(dst), len(names))
	}
	for i, name := range names {
		d, err := f.FirstOrderDerivative(name)
		if err != nil {
			return nil, err
		}
		dst[i] = d
	}
	return dst, nil
}

// EnableDerivatives toggles first and, when order is 2, second order
// derivatives on f if it supports them. It reports whether f supports the
// requested order.
func EnableDerivatives(f Function, order int, yes bool) bool {
	switch order {
	case 0:
		return true
	case 1:
		d, ok := f.(FirstOrder)
		if ok {
			d.EnableFirstOrderDerivatives(yes)
		}
		return ok
	default:
		d, ok := f.(SecondOrder)
		if ok {
			d.EnableFirstOrderDerivatives(yes)
			d.EnableSecondOrderDerivatives(yes)
		}
		return ok
	}
}
