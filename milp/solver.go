package milp

import (
	"context"
	"errors"
)

// Status is the outcome of a solve.
type Status int

const (
	// StatusOptimal means the returned assignment is proven optimal.
	StatusOptimal Status = iota
	// StatusFeasibleTimeout means the search budget ran out; the
	// returned assignment is the best feasible one found so far.
	StatusFeasibleTimeout
	// StatusInfeasible means no assignment satisfies the constraints.
	StatusInfeasible
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasibleTimeout:
		return "feasible-timeout"
	case StatusInfeasible:
		return "infeasible"
	}
	return "unknown"
}

// ErrBudgetExhausted is returned when the node or wall-clock budget ran
// out before any feasible assignment was found.
var ErrBudgetExhausted = errors.New("search budget exhausted before finding a feasible assignment")

// Solution carries the result of a successful solve. Values holds one
// entry per variable, indexed by VarID.
type Solution struct {
	Status    Status
	Objective int64
	Values    []uint8
	Nodes     uint64
}

const (
	// DefaultNodeLimit bounds the branch-and-bound tree so a solve never
	// blocks indefinitely even without a context deadline.
	DefaultNodeLimit = uint64(4_000_000)
	// DefaultProgressEvery is how many nodes pass between progress
	// callbacks.
	DefaultProgressEvery = uint64(20_000)
)

// Solver is a deterministic branch-and-bound solver for 0/1 programs.
// It branches on variables in registration order, value 0 before 1, and
// only replaces the incumbent on a strict improvement, so the same model
// always yields the same assignment. A Solver holds configuration only;
// no state is retained between Solve calls.
type Solver struct {
	NodeLimit     uint64
	ProgressEvery uint64
	// Progress, when set, is invoked periodically with the number of
	// nodes searched so far. It is called from the solving goroutine.
	Progress func(nodes uint64)
}

// Solve runs branch and bound on the model. Cancellation via ctx aborts
// the search and discards any incumbent; a deadline or node budget
// instead returns the incumbent tagged StatusFeasibleTimeout, or
// ErrBudgetExhausted if there is none yet.
func (s *Solver) Solve(ctx context.Context, m *Model) (*Solution, error) {
	limit := s.NodeLimit
	if limit == 0 {
		limit = DefaultNodeLimit
	}
	every := s.ProgressEvery
	if every == 0 {
		every = DefaultProgressEvery
	}
	st := newSearch(ctx, m, limit, every, s.Progress)

	err := st.run()
	switch {
	case err == nil:
		if !st.found {
			return &Solution{Status: StatusInfeasible, Nodes: st.nodes}, nil
		}
		return &Solution{Status: StatusOptimal, Objective: st.best, Values: st.bestVals, Nodes: st.nodes}, nil
	case errors.Is(err, context.Canceled):
		return nil, err
	case errors.Is(err, ErrBudgetExhausted), errors.Is(err, context.DeadlineExceeded):
		if st.found {
			return &Solution{Status: StatusFeasibleTimeout, Objective: st.best, Values: st.bestVals, Nodes: st.nodes}, nil
		}
		return nil, ErrBudgetExhausted
	default:
		return nil, err
	}
}

type conRef struct {
	ci   int
	coef int64
}

type search struct {
	ctx context.Context
	m   *Model

	val     []int8 // -1 unfixed
	varCons [][]conRef
	// low and high are, per constraint, the minimum and maximum sum
	// achievable given the variables fixed so far.
	low  []int64
	high []int64

	cost     int64
	found    bool
	best     int64
	bestVals []uint8

	nodes         uint64
	limit         uint64
	progressEvery uint64
	progress      func(uint64)
}

func newSearch(ctx context.Context, m *Model, limit, every uint64, progress func(uint64)) *search {
	n := m.NumVariables()
	st := &search{
		ctx:           ctx,
		m:             m,
		val:           make([]int8, n),
		varCons:       make([][]conRef, n),
		low:           make([]int64, len(m.constraints)),
		high:          make([]int64, len(m.constraints)),
		limit:         limit,
		progressEvery: every,
		progress:      progress,
	}
	for i := range st.val {
		st.val[i] = -1
	}
	for ci := range m.constraints {
		for _, t := range m.constraints[ci].Terms {
			st.varCons[t.Var] = append(st.varCons[t.Var], conRef{ci: ci, coef: t.Coef})
			if t.Coef < 0 {
				st.low[ci] += t.Coef
			} else {
				st.high[ci] += t.Coef
			}
		}
	}
	return st
}

func (st *search) feasible(ci int) bool {
	c := &st.m.constraints[ci]
	switch c.Rel {
	case LE:
		return st.low[ci] <= c.RHS
	case GE:
		return st.high[ci] >= c.RHS
	default:
		return st.low[ci] <= c.RHS && st.high[ci] >= c.RHS
	}
}

// assign fixes v to value and narrows the bounds of every constraint it
// appears in. It reports whether all touched constraints remain
// satisfiable.
func (st *search) assign(v VarID, value int8) bool {
	st.val[v] = value
	if value == 1 {
		st.cost += st.m.objective[v]
	}
	ok := true
	for _, cr := range st.varCons[v] {
		fixed := cr.coef * int64(value)
		if cr.coef < 0 {
			st.low[cr.ci] += fixed - cr.coef
			st.high[cr.ci] += fixed
		} else {
			st.low[cr.ci] += fixed
			st.high[cr.ci] += fixed - cr.coef
		}
		if !st.feasible(cr.ci) {
			ok = false
		}
	}
	return ok
}

func (st *search) unassign(v VarID) {
	value := st.val[v]
	if value == 1 {
		st.cost -= st.m.objective[v]
	}
	for _, cr := range st.varCons[v] {
		fixed := cr.coef * int64(value)
		if cr.coef < 0 {
			st.low[cr.ci] -= fixed - cr.coef
			st.high[cr.ci] -= fixed
		} else {
			st.low[cr.ci] -= fixed
			st.high[cr.ci] -= fixed - cr.coef
		}
	}
	st.val[v] = -1
}

// propagate repeatedly fixes variables whose value is forced by some
// constraint's remaining slack. It returns the trail of assignments made
// (for undo) and whether the state is still feasible.
func (st *search) propagate() ([]VarID, bool) {
	var trail []VarID
	for {
		changed := false
		for ci := range st.m.constraints {
			c := &st.m.constraints[ci]
			for _, t := range c.Terms {
				if st.val[t.Var] != -1 {
					continue
				}
				forced := int8(-1)
				if !st.valueAllowed(ci, t.Coef, 1) {
					forced = 0
				} else if !st.valueAllowed(ci, t.Coef, 0) {
					forced = 1
				}
				if forced == -1 {
					continue
				}
				trail = append(trail, t.Var)
				if !st.assign(t.Var, forced) {
					return trail, false
				}
				changed = true
			}
		}
		if !changed {
			return trail, true
		}
	}
}

// valueAllowed reports whether fixing a free variable with the given
// coefficient to value keeps constraint ci satisfiable.
func (st *search) valueAllowed(ci int, coef int64, value int8) bool {
	c := &st.m.constraints[ci]
	fixed := coef * int64(value)
	low, high := st.low[ci], st.high[ci]
	if coef < 0 {
		low += fixed - coef
		high += fixed
	} else {
		low += fixed
		high += fixed - coef
	}
	switch c.Rel {
	case LE:
		return low <= c.RHS
	case GE:
		return high >= c.RHS
	default:
		return low <= c.RHS && high >= c.RHS
	}
}

func (st *search) undo(trail []VarID) {
	for i := len(trail) - 1; i >= 0; i-- {
		st.unassign(trail[i])
	}
}

func (st *search) run() error {
	if err := st.ctx.Err(); err != nil {
		return err
	}
	// Constraints with no variables are either trivially true or the
	// model is unsatisfiable outright.
	for ci := range st.m.constraints {
		if len(st.m.constraints[ci].Terms) == 0 && !st.feasible(ci) {
			return nil
		}
	}
	trail, ok := st.propagate()
	var err error
	if ok {
		err = st.branch()
	}
	st.undo(trail)
	return err
}

func (st *search) firstUnfixed() VarID {
	for v := range st.val {
		if st.val[v] == -1 {
			return VarID(v)
		}
	}
	return -1
}

func (st *search) branch() error {
	st.nodes++
	if st.nodes >= st.limit {
		return ErrBudgetExhausted
	}
	if st.nodes%1024 == 0 {
		if err := st.ctx.Err(); err != nil {
			return err
		}
	}
	if st.progress != nil && st.nodes%st.progressEvery == 0 {
		st.progress(st.nodes)
	}
	if st.found && st.cost >= st.best {
		return nil // bound: every objective coefficient is non-negative
	}

	v := st.firstUnfixed()
	if v == -1 {
		// Complete assignment; bounds collapsed, so all constraints hold.
		st.found = true
		st.best = st.cost
		st.bestVals = make([]uint8, len(st.val))
		for i, x := range st.val {
			st.bestVals[i] = uint8(x)
		}
		return nil
	}

	for _, value := range [2]int8{0, 1} {
		if st.assign(v, value) {
			trail, ok := st.propagate()
			if ok {
				if err := st.branch(); err != nil {
					st.undo(trail)
					st.unassign(v)
					return err
				}
			}
			st.undo(trail)
		}
		st.unassign(v)
	}
	return nil
}
