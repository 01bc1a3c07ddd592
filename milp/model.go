// Package milp implements a small 0/1 integer-linear-program solver. The
// model surface is deliberately narrow (AddVariable, AddConstraint,
// SetObjective, Solve) so a different backend can be substituted without
// touching the schedule builder or materializer.
package milp

import "fmt"

// VarID indexes a binary decision variable within a model. Variables are
// numbered in registration order; the solver branches in exactly this
// order, which is what makes solves reproducible.
type VarID int

// Relation is a linear constraint's comparison operator.
type Relation int

const (
	LE Relation = iota // sum <= rhs
	GE                 // sum >= rhs
	EQ                 // sum == rhs
)

func (r Relation) String() string {
	switch r {
	case LE:
		return "<="
	case GE:
		return ">="
	case EQ:
		return "=="
	}
	return "?"
}

// Term is one coefficient*variable product in a linear expression.
type Term struct {
	Var  VarID
	Coef int64
}

// Constraint is a linear constraint over binary variables.
type Constraint struct {
	Terms []Term
	Rel   Relation
	RHS   int64
}

// Model is a 0/1 integer linear program: binary variables, linear
// constraints, and a linear objective to minimize. Objective
// coefficients must be non-negative; the schedule builder only ever
// emits penalty terms, and the solver's bounding relies on it.
type Model struct {
	names       []string
	constraints []Constraint
	objective   []int64 // per-variable cost, minimize
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{}
}

// AddVariable registers a binary variable and returns its id. The name
// is only used for diagnostics.
func (m *Model) AddVariable(name string) VarID {
	m.names = append(m.names, name)
	m.objective = append(m.objective, 0)
	return VarID(len(m.names) - 1)
}

// NumVariables returns the number of registered variables.
func (m *Model) NumVariables() int {
	return len(m.names)
}

// VarName returns the diagnostic name of a variable.
func (m *Model) VarName(v VarID) string {
	return m.names[v]
}

// NumConstraints returns the number of constraints.
func (m *Model) NumConstraints() int {
	return len(m.constraints)
}

// AddConstraint adds a linear constraint. The terms slice is retained.
func (m *Model) AddConstraint(terms []Term, rel Relation, rhs int64) {
	m.constraints = append(m.constraints, Constraint{Terms: terms, Rel: rel, RHS: rhs})
}

// Fix pins a variable to a value by adding an equality constraint.
func (m *Model) Fix(v VarID, val int64) {
	m.AddConstraint([]Term{{Var: v, Coef: 1}}, EQ, val)
}

// SetObjective sets the cost of each term's variable; terms for the same
// variable accumulate. Costs must be non-negative.
func (m *Model) SetObjective(terms []Term) error {
	for _, t := range terms {
		if t.Coef < 0 {
			return fmt.Errorf("negative objective coefficient %d on %s", t.Coef, m.names[t.Var])
		}
		m.objective[t.Var] += t.Coef
	}
	return nil
}

// AddObjectiveTerm accumulates a single cost term.
func (m *Model) AddObjectiveTerm(v VarID, coef int64) error {
	return m.SetObjective([]Term{{Var: v, Coef: coef}})
}
