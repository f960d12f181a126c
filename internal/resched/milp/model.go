// Package milp provides a small mixed-integer linear programming layer:
// a model builder plus a branch-and-bound solver over LP relaxations.
package milp

import "fmt"

// Var indexes a decision variable within its Model.
type Var int

// Sense is the relation of a linear constraint to its right-hand side.
type Sense int

const (
	LE Sense = iota
	EQ
	GE
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case EQ:
		return "=="
	case GE:
		return ">="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Term is one coefficient-variable product in a linear expression.
type Term struct {
	Var   Var
	Coeff float64
}

type constraint struct {
	terms []Term
	sense Sense
	rhs   float64
	name  string
}

// Model is a minimization MILP under construction. The zero value is not
// usable; call NewModel.
type Model struct {
	names   []string
	lb, ub  []float64
	integer []bool
	obj     map[Var]float64
	cons    []constraint
}

func NewModel() *Model {
	return &Model{obj: make(map[Var]float64)}
}

// Continuous adds a bounded continuous variable. Bounds must satisfy lb <= ub.
func (m *Model) Continuous(name string, lb, ub float64) Var {
	return m.addVar(name, lb, ub, false)
}

// Binary adds a 0/1 integer variable.
func (m *Model) Binary(name string) Var {
	return m.addVar(name, 0, 1, true)
}

func (m *Model) addVar(name string, lb, ub float64, integer bool) Var {
	m.names = append(m.names, name)
	m.lb = append(m.lb, lb)
	m.ub = append(m.ub, ub)
	m.integer = append(m.integer, integer)
	return Var(len(m.names) - 1)
}

// AddConstraint appends the row sum(terms) sense rhs. The name is only used
// in diagnostics.
func (m *Model) AddConstraint(terms []Term, sense Sense, rhs float64, name string) {
	// Terms are copied so callers may reuse their slice.
	row := make([]Term, len(terms))
	copy(row, terms)
	m.cons = append(m.cons, constraint{terms: row, sense: sense, rhs: rhs, name: name})
}

// ObjectiveTerm adds coeff*v to the minimization objective. Repeated calls
// for the same variable accumulate.
func (m *Model) ObjectiveTerm(v Var, coeff float64) {
	m.obj[v] += coeff
}

// NumVars reports the number of variables added so far.
func (m *Model) NumVars() int { return len(m.names) }

// NumConstraints reports the number of constraint rows added so far.
func (m *Model) NumConstraints() int { return len(m.cons) }

// VarName reports the name a variable was declared with.
func (m *Model) VarName(v Var) string { return m.names[v] }

func (m *Model) validate() error {
	for i := range m.names {
		if m.lb[i] > m.ub[i] {
			return fmt.Errorf("variable %q has lb %.3f > ub %.3f", m.names[i], m.lb[i], m.ub[i])
		}
	}
	for _, c := range m.cons {
		for _, t := range c.terms {
			if int(t.Var) < 0 || int(t.Var) >= len(m.names) {
				return fmt.Errorf("constraint %q references unknown variable %d", c.name, t.Var)
			}
		}
	}
	return nil
}
