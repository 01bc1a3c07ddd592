// Package divopt explores alternative rotation-division configurations
// for an already-solved game. Each candidate varies a single period's
// rotation count while every other period is held fixed by pinning its
// baseline assignments, so the search cost grows linearly with the
// period count instead of combinatorially.
package divopt

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/rotaplanhq/rotaplan/lineup"
	"github.com/rotaplanhq/rotaplan/milp"
	"github.com/rotaplanhq/rotaplan/schedule"
)

// Optimizer runs the per-period greedy division search.
type Optimizer struct {
	// Solver is the engine configuration used for candidate solves. A
	// milp.Solver retains no state, so one instance is shared safely
	// across the worker pool.
	Solver *milp.Solver
	// Concurrency bounds the candidate worker pool. Zero means one
	// worker per CPU.
	Concurrency int
}

type candidateResult struct {
	candidate lineup.DivisionCandidate
	improves  bool
}

// Suggest evaluates every (period, division count) candidate against the
// baseline schedule and returns the ones that strictly improve the
// extra-rotation spread or the maximum play percentage, best first.
// Infeasible candidates are silently excluded; only cancellation aborts
// the search.
func (o *Optimizer) Suggest(ctx context.Context, req *lineup.SolveRequest, baseline *lineup.RotationSchedule) (*lineup.OptimizationSuggestion, error) {
	present := req.PresentPlayerIDs()
	out := &lineup.OptimizationSuggestion{
		CurrentExtraCount: baseline.ExtraCount(present),
		CurrentMaxPercent: baseline.MaxPlayPercent(present),
	}

	resolved := req.Divisions.Resolve(&req.Config)

	var (
		mu      sync.Mutex
		results []candidateResult
	)
	g, gctx := errgroup.WithContext(ctx)
	workers := o.Concurrency
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g.SetLimit(workers)

	for period := 0; period < req.Config.Periods; period++ {
		for count := 1; count <= lineup.MaxDivisions; count++ {
			if count == resolved[period] {
				continue
			}
			period, count := period, count
			g.Go(func() error {
				res, err := o.evaluate(gctx, req, baseline, resolved, period, count, present, out)
				if err != nil {
					return err
				}
				if res != nil {
					mu.Lock()
					results = append(results, *res)
					mu.Unlock()
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.Candidates = lo.FilterMap(results, func(r candidateResult, _ int) (lineup.DivisionCandidate, bool) {
		return r.candidate, r.improves
	})
	sortCandidates(out)
	return out, nil
}

func (o *Optimizer) evaluate(ctx context.Context, req *lineup.SolveRequest, baseline *lineup.RotationSchedule,
	resolved []int, period, count int, present []lineup.PlayerID, out *lineup.OptimizationSuggestion) (*candidateResult, error) {

	candReq := candidateRequest(req, baseline, resolved, period, count)
	sched, err := schedule.Solve(ctx, candReq, o.Solver)
	if err != nil {
		if errors.Is(err, lineup.ErrModelInfeasible) {
			// An infeasible candidate is not an error; it is just not a
			// suggestion.
			log.Debug().Int("period", period).Int("count", count).Msg("division-candidate-infeasible")
			return nil, nil
		}
		return nil, err
	}

	extra := sched.ExtraCount(present)
	maxPct := sched.MaxPlayPercent(present)
	return &candidateResult{
		candidate: lineup.DivisionCandidate{
			Period:             period,
			Count:              count,
			Divisions:          candReq.Divisions,
			ExpectedExtraCount: extra,
			ExpectedMaxPercent: maxPct,
		},
		improves: extra < out.CurrentExtraCount || maxPct < out.CurrentMaxPercent,
	}, nil
}

// candidateRequest clones the request with one period's division count
// changed and every other period frozen to its baseline assignments via
// manual overrides. Rotation indices shift when the varied period's
// count changes, so both the pins and any surviving original overrides
// are remapped onto the candidate layout.
func candidateRequest(req *lineup.SolveRequest, baseline *lineup.RotationSchedule,
	resolved []int, period, count int) *lineup.SolveRequest {

	divisions := req.Divisions.Clone()
	if divisions == nil {
		divisions = lineup.PeriodDivisions{}
	}
	divisions[period] = count

	oldStart := startOffsets(resolved)
	newResolved := append([]int(nil), resolved...)
	newResolved[period] = count
	newStart := startOffsets(newResolved)

	cand := &lineup.SolveRequest{
		GameID:    req.GameID,
		Roster:    req.Roster,
		Config:    req.Config,
		Divisions: divisions,
		Goalies:   req.Goalies,
	}

	// Freeze the untouched periods.
	for pd := 0; pd < req.Config.Periods; pd++ {
		if pd == period {
			continue
		}
		for ord := 0; ord < resolved[pd]; ord++ {
			rot := &baseline.Rotations[oldStart[pd]+ord]
			for id, a := range rot.Assignments {
				ov := lineup.ManualOverride{
					Player:     id,
					Rotation:   newStart[pd] + ord,
					Assignment: a,
				}
				if req.Config.UsePositions && a.OnField() {
					ov.Position = rot.FieldPositions[id]
				}
				cand.Overrides = append(cand.Overrides, ov)
			}
		}
	}

	// Original overrides inside the varied period survive when their
	// rotation still exists in the new layout.
	for _, ov := range req.Overrides {
		pd, ord := locate(resolved, ov.Rotation)
		if pd != period || ord >= count {
			continue
		}
		remapped := ov
		remapped.Rotation = newStart[pd] + ord
		cand.Overrides = append(cand.Overrides, remapped)
	}
	return cand
}

func startOffsets(resolved []int) []int {
	offsets := make([]int, len(resolved))
	total := 0
	for i, c := range resolved {
		offsets[i] = total
		total += c
	}
	return offsets
}

func locate(resolved []int, global int) (period, ordinal int) {
	for pd, c := range resolved {
		if global < c {
			return pd, global
		}
		global -= c
	}
	return -1, -1
}

// sortCandidates ranks candidates by combined improvement over the
// baseline, best first; ties prefer the lower division count (a simpler
// schedule), then the earlier period.
func sortCandidates(out *lineup.OptimizationSuggestion) {
	improvement := func(c lineup.DivisionCandidate) int {
		return (out.CurrentExtraCount - c.ExpectedExtraCount) + (out.CurrentMaxPercent - c.ExpectedMaxPercent)
	}
	sort.SliceStable(out.Candidates, func(i, j int) bool {
		a, b := out.Candidates[i], out.Candidates[j]
		ia, ib := improvement(a), improvement(b)
		if ia != ib {
			return ia > ib
		}
		if a.Count != b.Count {
			return a.Count < b.Count
		}
		return a.Period < b.Period
	})
}
