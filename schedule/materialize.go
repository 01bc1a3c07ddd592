package schedule

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rotaplanhq/rotaplan/lineup"
	"github.com/rotaplanhq/rotaplan/milp"
)

// Materialize maps a solved variable assignment back into the domain.
// It is a pure transformation: no randomness, no mutation of the
// request. Play percentage is rounded to the nearest integer, halves
// away from zero (so 1 of 3 rotations is 33%, 2 of 3 is 67%).
func (m *Model) Materialize(sol *milp.Solution) (*lineup.RotationSchedule, error) {
	if sol.Status == milp.StatusInfeasible {
		return nil, lineup.Infeasible("no assignment satisfies the hard constraints")
	}
	if len(sol.Values) < m.ILP.NumVariables() {
		return nil, fmt.Errorf("solution has %d values for %d variables", len(sol.Values), m.ILP.NumVariables())
	}

	total := m.numRotations()
	sched := &lineup.RotationSchedule{
		Rotations:   make([]lineup.Rotation, total),
		Stats:       make(map[lineup.PlayerID]lineup.PlayerStats, len(m.players)),
		Approximate: sol.Status == milp.StatusFeasibleTimeout,
	}

	for ri := range m.rotations {
		rot := lineup.Rotation{
			Index:       ri,
			Period:      m.rotations[ri].period,
			Assignments: make(map[lineup.PlayerID]lineup.Assignment, len(m.players)),
		}
		if m.req.Config.UsePositions {
			rot.FieldPositions = make(map[lineup.PlayerID]string)
		}
		for pi := range m.players {
			id := m.players[pi].ID
			assigned := false
			for si := range m.slots {
				if sol.Values[m.varX(pi, ri, si)] != 1 {
					continue
				}
				if assigned {
					return nil, fmt.Errorf("player %s occupies two slots in rotation %d", id, ri)
				}
				assigned = true
				rot.Assignments[id] = m.slots[si].kind
				if m.req.Config.UsePositions && m.slots[si].kind.OnField() {
					rot.FieldPositions[id] = m.slots[si].id
				}
			}
			if !assigned {
				return nil, fmt.Errorf("player %s has no slot in rotation %d", id, ri)
			}
		}
		sched.Rotations[ri] = rot
	}

	for pi := range m.players {
		id := m.players[pi].ID
		var st lineup.PlayerStats
		for ri := range sched.Rotations {
			switch sched.Rotations[ri].Assignments[id] {
			case lineup.AssignBench:
				st.Benched++
			case lineup.AssignGoalie:
				st.Goalie++
				st.Played++
			default:
				st.Played++
			}
		}
		if total > 0 {
			st.PlayPct = int(math.Round(float64(st.Played) / float64(total) * 100))
		}
		sched.Stats[id] = st
	}
	return sched, nil
}

// Solve is the build-solve-materialize pipeline in one call, used by the
// orchestrator and the division optimizer. Engine statuses map onto the
// domain error taxonomy: a proven-infeasible model and an exhausted
// budget with no incumbent both surface as lineup.ErrModelInfeasible;
// cancellation propagates untouched.
func Solve(ctx context.Context, req *lineup.SolveRequest, solver *milp.Solver) (*lineup.RotationSchedule, error) {
	model, err := Build(req)
	if err != nil {
		return nil, err
	}
	sol, err := solver.Solve(ctx, model.ILP)
	if err != nil {
		if errors.Is(err, milp.ErrBudgetExhausted) {
			return nil, lineup.Infeasible("search budget exhausted before any feasible schedule was found")
		}
		return nil, err
	}
	return model.Materialize(sol)
}
