package objective

import "math"

func rosenbrock(x []float64, o Options) float64 {
	a := o["a"]
	s := 0.0
	for i := 0; i < len(x)-1; i++ {
		d := x[i+1] - x[i]*x[i]
		s += a*d*d + (1-x[i])*(1-x[i])
	}
	return s
}

func rosenbrockGrad(x []float64, i int, o Options) float64 {
	a := o["a"]
	g := 0.0
	if i < len(x)-1 {
		g += -4*a*x[i]*(x[i+1]-x[i]*x[i]) - 2*(1-x[i])
	}
	if i > 0 {
		g += 2 * a * (x[i] - x[i-1]*x[i-1])
	}
	return g
}

func rosenbrockHess(x []float64, i, j int, o Options) float64 {
	a := o["a"]
	if i > j {
		i, j = j, i
	}
	switch {
	case i == j:
		h := 0.0
		if i < len(x)-1 {
			h += -4*a*(x[i+1]-x[i]*x[i]) + 8*a*x[i]*x[i] + 2
		}
		if i > 0 {
			h += 2 * a
		}
		return h
	case j == i+1:
		return -4 * a * x[i]
	default:
		return 0
	}
}

// jcProbs returns the probabilities of an identical and of one given
// different nucleotide after a branch of length t.
func jcProbs(t float64) (u, same, diff float64) {
	u = math.Exp(-4 * t / 3)
	return u, 0.25 + 0.75*u, 0.25 - 0.25*u
}

func jc69(x []float64, o Options) float64 {
	_, ps, pd := jcProbs(x[0])
	if pd <= 0 {
		return math.Inf(1)
	}
	return -(o["same"]*math.Log(ps) + o["diff"]*math.Log(pd))
}

func jc69Grad(t float64, o Options) float64 {
	u, ps, pd := jcProbs(t)
	return o["same"]*u/ps - o["diff"]*u/(3*pd)
}

func jc69Hess(t float64, o Options) float64 {
	u, ps, pd := jcProbs(t)
	return -o["same"]*u/(3*ps*ps) + o["diff"]*u/(9*pd*pd)
}

// JC69Distance returns the maximum likelihood branch length for the given
// site counts, or +Inf when the sequences are saturated.
func JC69Distance(same, diff float64) float64 {
	p := diff / (same + diff)
	if p >= 0.75 {
		return math.Inf(1)
	}
	return -0.75 * math.Log(1-4*p/3)
}
