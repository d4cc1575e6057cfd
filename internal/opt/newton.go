package opt

import (
	"fmt"
	"math"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

// DefaultMaxCorrections bounds the step halvings of NewtonOneDimension.
const DefaultMaxCorrections = 10

// NewtonOneDimension minimizes a function of one parameter with Newton steps
// -f'/f''. A step that increases the value is halved until it does not
// (Felsenstein-Churchill correction); after MaxCorrections halvings the
// optimizer stops at the best point found.
type NewtonOneDimension struct {
	Base
	oneDimension
	MaxCorrections int
	f              function.SecondOrder
}

// NewNewtonOneDimension creates a Newton optimizer over f.
func NewNewtonOneDimension(f function.SecondOrder) *NewtonOneDimension {
	o := &NewtonOneDimension{MaxCorrections: DefaultMaxCorrections, f: f}
	o.setup(o, f, NewFunctionStopCondition(o, DefaultTolerance))
	return o
}

func (o *NewtonOneDimension) doInit(p *param.List) error {
	o.f.EnableFirstOrderDerivatives(true)
	o.f.EnableSecondOrderDerivatives(true)
	return nil
}

func (o *NewtonOneDimension) doStep() (float64, error) {
	if err := o.fn.SetParameters(o.params); err != nil {
		return o.currentValue, err
	}
	name := o.params.At(0).Name
	d1, err := o.f.FirstOrderDerivative(name)
	if err != nil {
		return o.currentValue, fmt.Errorf("newton step: %w", err)
	}
	d2, err := o.f.SecondOrderDerivative(name)
	if err != nil {
		return o.currentValue, fmt.Errorf("newton step: %w", err)
	}

	movement := d1 / d2
	if d2 <= 0 {
		o.log.Warn("Second order derivative is not positive, moving downhill instead",
			"parameter", name, "value", o.params.At(0).Value, "d2", d2)
		movement = -d1 / d2
	}
	if math.IsNaN(movement) || math.IsInf(movement, 0) {
		o.log.Warn("Non derivable point, no move performed",
			"parameter", name, "f", o.currentValue, "d1", d1, "d2", d2)
		o.tolIsReached = true
		return o.currentValue, nil
	}

	x0 := o.params.At(0).Value
	x := o.clampScalar(x0 - movement)
	fx, err := o.scalarAt(x)
	if err != nil {
		return o.currentValue, err
	}
	for halvings := 0; fx > o.currentValue; halvings++ {
		if halvings >= o.MaxCorrections {
			o.log.Warn("Felsenstein-Churchill correction applied too many times, stopping",
				"parameter", name, "value", x0, "corrections", halvings)
			o.tolIsReached = true
			// Leave the function at the retained point.
			if err := o.fn.SetParameters(o.params); err != nil {
				return o.currentValue, err
			}
			return o.currentValue, nil
		}
		movement /= 2
		x = o.clampScalar(x0 - movement)
		if fx, err = o.scalarAt(x); err != nil {
			return o.currentValue, err
		}
	}
	if err := o.params.SetValue(0, x); err != nil {
		return o.currentValue, err
	}
	return fx, nil
}
