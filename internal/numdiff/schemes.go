package numdiff

import (
	"fmt"

	"github.com/cwbudde/numopt/internal/function"
)

// maxHalvings bounds the step reductions of the two-point scheme once both
// x+h and x-h were rejected.
const maxHalvings = 10

// TwoPointsDerivative computes forward differences (f(x+h) - f(x))/h.
type TwoPointsDerivative struct {
	base
}

// NewTwoPoints wraps f with forward differences.
func NewTwoPoints(f function.Function) *TwoPointsDerivative {
	d := &TwoPointsDerivative{}
	d.base = newBase(f, d)
	return d
}

func (d *TwoPointsDerivative) update() error {
	for _, name := range d.variables {
		x, err := d.last.Value(name)
		if err != nil {
			return err
		}
		h := d.stepFor(x)
		var fh float64
		found := false
		for try := 0; try <= maxHalvings+1; try++ {
			v, ok, err := d.probe1(name, x+h)
			if err != nil {
				return err
			}
			if ok {
				fh, found = v, true
				break
			}
			if try == 0 {
				h = -h
			} else {
				h /= 2
			}
		}
		if !found {
			return fmt.Errorf("%w: %s at %g", ErrProbe, name, x)
		}
		d.d1[name] = (fh - d.f0) / h
	}
	return nil
}

func (d *TwoPointsDerivative) SecondOrderCrossDerivative(name1, name2 string) (float64, error) {
	return 0, fmt.Errorf("%w: two-point scheme has no cross derivatives", function.ErrUnsupported)
}

// ThreePointsDerivative computes central first and second order differences
// and, when enabled, cross derivatives.
type ThreePointsDerivative struct {
	base
	crossEnabled bool
	// side remembers, per variable, the sign of a feasible step and the
	// value obtained there, for the cross derivative corners.
	side map[string]sidedProbe
}

type sidedProbe struct {
	h, fh   float64
	central bool
}

// NewThreePoints wraps f with central differences.
func NewThreePoints(f function.Function) *ThreePointsDerivative {
	d := &ThreePointsDerivative{side: make(map[string]sidedProbe)}
	d.base = newBase(f, d)
	return d
}

// EnableCrossDerivatives toggles the computation of mixed second order derivatives.
func (d *ThreePointsDerivative) EnableCrossDerivatives(yes bool) {
	d.crossEnabled = yes
	d.computed = false
}

func (d *ThreePointsDerivative) update() error {
	for _, name := range d.variables {
		x, err := d.last.Value(name)
		if err != nil {
			return err
		}
		h := d.stepFor(x)
		fp, okp, err := d.probe1(name, x+h)
		if err != nil {
			return err
		}
		fm, okm, err := d.probe1(name, x-h)
		if err != nil {
			return err
		}
		switch {
		case okp && okm:
			d.d1[name] = (fp - fm) / (2 * h)
			d.d2[name] = (fp - 2*d.f0 + fm) / (h * h)
			d.side[name] = sidedProbe{h: h, fh: fp, central: true}
		case okm:
			fmm, ok, err := d.probe1(name, x-2*h)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s at %g", ErrProbe, name, x)
			}
			d.d1[name] = (d.f0 - fm) / h
			d.d2[name] = (d.f0 - 2*fm + fmm) / (h * h)
			d.side[name] = sidedProbe{h: -h, fh: fm}
		case okp:
			fpp, ok, err := d.probe1(name, x+2*h)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s at %g", ErrProbe, name, x)
			}
			d.d1[name] = (fp - d.f0) / h
			d.d2[name] = (fpp - 2*fp + d.f0) / (h * h)
			d.side[name] = sidedProbe{h: h, fh: fp}
		default:
			return fmt.Errorf("%w: %s at %g", ErrProbe, name, x)
		}
	}
	if d.d2Enabled && d.crossEnabled {
		return d.updateCross()
	}
	return nil
}

func (d *ThreePointsDerivative) updateCross() error {
	clear(d.cross)
	for i, a := range d.variables {
		for _, b := range d.variables[i+1:] {
			xa, _ := d.last.Value(a)
			xb, _ := d.last.Value(b)
			sa, sb := d.side[a], d.side[b]
			names := []string{a, b}
			if sa.central && sb.central {
				ha, hb := sa.h, sb.h
				var f [4]float64
				corners := [4][2]float64{{ha, hb}, {ha, -hb}, {-ha, hb}, {-ha, -hb}}
				central := true
				for k, c := range corners {
					v, err := d.probe(names, []float64{xa + c[0], xb + c[1]})
					if err != nil {
						central = false
						break
					}
					f[k] = v
				}
				if central {
					d.cross[crossKey(a, b)] = (f[0] - f[1] - f[2] + f[3]) / (4 * ha * hb)
					continue
				}
			}
			// One-sided corner towards the feasible side of each parameter.
			fab, err := d.probe(names, []float64{xa + sa.h, xb + sb.h})
			if err != nil {
				return fmt.Errorf("%w: cross derivative %s/%s: %v", ErrProbe, a, b, err)
			}
			d.cross[crossKey(a, b)] = (fab - sa.fh - sb.fh + d.f0) / (sa.h * sb.h)
		}
	}
	return nil
}

func (d *ThreePointsDerivative) SecondOrderCrossDerivative(name1, name2 string) (float64, error) {
	if name1 == name2 {
		return d.SecondOrderDerivative(name1)
	}
	if !d.isVariable(name1) || !d.isVariable(name2) {
		if inner, ok := d.f.(function.SecondOrder); ok {
			return inner.SecondOrderCrossDerivative(name1, name2)
		}
		return 0, fmt.Errorf("%w: cross derivative %s/%s", function.ErrUnsupported, name1, name2)
	}
	if !d.crossEnabled {
		return 0, fmt.Errorf("%w: cross derivatives are disabled", function.ErrUnsupported)
	}
	if !d.d2Enabled {
		// Cross terms are only computed alongside second order derivatives.
		d.d2Enabled = true
		defer func() { d.d2Enabled = false }()
		d.computed = false
	}
	if err := d.ensure(); err != nil {
		return 0, err
	}
	return d.cross[crossKey(name1, name2)], nil
}

// FivePointsDerivative computes the central 5-point stencil.
type FivePointsDerivative struct {
	base
}

// NewFivePoints wraps f with 5-point central differences.
func NewFivePoints(f function.Function) *FivePointsDerivative {
	d := &FivePointsDerivative{}
	d.base = newBase(f, d)
	return d
}

func (d *FivePointsDerivative) update() error {
	for _, name := range d.variables {
		x, err := d.last.Value(name)
		if err != nil {
			return err
		}
		h := d.stepFor(x)
		var fs [4]float64 // f(x-2h), f(x-h), f(x+h), f(x+2h)
		var ok [4]bool
		for k, off := range []float64{-2, -1, 1, 2} {
			fs[k], ok[k], err = d.probe1(name, x+off*h)
			if err != nil {
				return err
			}
		}
		switch {
		case ok[0] && ok[1] && ok[2] && ok[3]:
			d.d1[name] = (fs[0] - 8*fs[1] + 8*fs[2] - fs[3]) / (12 * h)
			d.d2[name] = (-fs[0] + 16*fs[1] - 30*d.f0 + 16*fs[2] - fs[3]) / (12 * h * h)
		case ok[0] && ok[1]:
			d.d1[name] = (3*d.f0 - 4*fs[1] + fs[0]) / (2 * h)
			d.d2[name] = (d.f0 - 2*fs[1] + fs[0]) / (h * h)
		case ok[2] && ok[3]:
			d.d1[name] = (-3*d.f0 + 4*fs[2] - fs[3]) / (2 * h)
			d.d2[name] = (fs[3] - 2*fs[2] + d.f0) / (h * h)
		case ok[1] && ok[2]:
			d.d1[name] = (fs[2] - fs[1]) / (2 * h)
			d.d2[name] = (fs[2] - 2*d.f0 + fs[1]) / (h * h)
		default:
			return fmt.Errorf("%w: %s at %g", ErrProbe, name, x)
		}
	}
	return nil
}

func (d *FivePointsDerivative) SecondOrderCrossDerivative(name1, name2 string) (float64, error) {
	if name1 == name2 {
		return d.SecondOrderDerivative(name1)
	}
	return 0, fmt.Errorf("%w: five-point scheme has no cross derivatives", function.ErrUnsupported)
}
