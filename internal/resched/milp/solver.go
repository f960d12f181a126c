package milp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Status classifies the outcome of a Solve call.
type Status int

const (
	// StatusOptimal means the search tree was exhausted and the incumbent
	// is a proven optimum.
	StatusOptimal Status = iota
	// StatusFeasible means an integer solution was found but the search was
	// cut short, so optimality is not proven.
	StatusFeasible
	// StatusInfeasible means no integer solution exists.
	StatusInfeasible
	// StatusTimeout means the search was cut short before any integer
	// solution was found.
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Solution carries the best integer assignment found by Solve. Values is
// indexed by Var and is nil unless Status is optimal or feasible.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
}

const (
	intTol = 1e-6
	// Hard cap on branch-and-bound nodes, independent of the context
	// deadline. Each node costs one LP solve.
	maxNodes = 50000
)

type node struct {
	lo, hi []float64
}

// Solve runs branch and bound over LP relaxations of m. The context deadline
// bounds the search; when it expires the best incumbent so far is returned.
func Solve(ctx context.Context, m *Model) (*Solution, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	root := node{lo: append([]float64(nil), m.lb...), hi: append([]float64(nil), m.ub...)}
	stack := []node{root}

	var (
		incumbent    []float64
		incumbentObj = math.Inf(1)
		nodes        int
		cutShort     bool
	)

	for len(stack) > 0 {
		if ctx.Err() != nil || nodes >= maxNodes {
			cutShort = true
			break
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		obj, x, feasible, err := solveRelaxation(m, nd.lo, nd.hi)
		if err != nil {
			return nil, err
		}
		if !feasible || obj >= incumbentObj-1e-9 {
			continue
		}

		branch := -1
		worst := intTol
		for j, isInt := range m.integer {
			if !isInt {
				continue
			}
			frac := math.Abs(x[j] - math.Round(x[j]))
			if frac > worst {
				worst = frac
				branch = j
			}
		}

		if branch < 0 {
			// Integral within tolerance. Snap and record the incumbent.
			for j, isInt := range m.integer {
				if isInt {
					x[j] = math.Round(x[j])
				}
			}
			incumbent = x
			incumbentObj = obj
			continue
		}

		down := node{lo: append([]float64(nil), nd.lo...), hi: append([]float64(nil), nd.hi...)}
		up := node{lo: append([]float64(nil), nd.lo...), hi: append([]float64(nil), nd.hi...)}
		down.hi[branch] = math.Floor(x[branch])
		up.lo[branch] = math.Ceil(x[branch])

		// Depth-first, exploring the nearer child first.
		if x[branch]-math.Floor(x[branch]) >= 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}

	sol := &Solution{Nodes: nodes}
	switch {
	case incumbent != nil && !cutShort && len(stack) == 0:
		sol.Status = StatusOptimal
		sol.Objective = incumbentObj
		sol.Values = incumbent
	case incumbent != nil:
		sol.Status = StatusFeasible
		sol.Objective = incumbentObj
		sol.Values = incumbent
	case cutShort:
		sol.Status = StatusTimeout
	default:
		sol.Status = StatusInfeasible
	}
	return sol, nil
}

// solveRelaxation solves the LP relaxation of m with the node's variable
// bounds. Variables are shifted to their lower bounds and upper bounds become
// slack rows, giving the standard form min c'x s.t. Ax = b, x >= 0.
func solveRelaxation(m *Model, lo, hi []float64) (obj float64, x []float64, feasible bool, err error) {
	n := len(m.names)
	nRows := len(m.cons) + n

	nSlack := n // one per upper-bound row
	for _, c := range m.cons {
		if c.sense != EQ {
			nSlack++
		}
	}
	nCols := n + nSlack

	a := mat.NewDense(nRows, nCols, nil)
	b := make([]float64, nRows)
	c := make([]float64, nCols)

	var offset float64
	for j := 0; j < n; j++ {
		c[j] = m.obj[Var(j)]
		offset += c[j] * lo[j]
	}

	slack := n
	for i, con := range m.cons {
		rhs := con.rhs
		for _, t := range con.terms {
			a.Set(i, int(t.Var), a.At(i, int(t.Var))+t.Coeff)
			rhs -= t.Coeff * lo[t.Var]
		}
		b[i] = rhs
		switch con.sense {
		case LE:
			a.Set(i, slack, 1)
			slack++
		case GE:
			a.Set(i, slack, -1)
			slack++
		}
	}
	for j := 0; j < n; j++ {
		i := len(m.cons) + j
		a.Set(i, j, 1)
		a.Set(i, slack, 1)
		slack++
		b[i] = hi[j] - lo[j]
	}

	// The simplex expects b >= 0.
	for i := 0; i < nRows; i++ {
		if b[i] < 0 {
			b[i] = -b[i]
			for j := 0; j < nCols; j++ {
				a.Set(i, j, -a.At(i, j))
			}
		}
	}

	optF, optX, err := lp.Simplex(c, a, b, 0, nil)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return 0, nil, false, nil
		}
		return 0, nil, false, fmt.Errorf("lp relaxation: %w", err)
	}

	x = make([]float64, n)
	for j := 0; j < n; j++ {
		x[j] = optX[j] + lo[j]
	}
	return optF + offset, x, true, nil
}
