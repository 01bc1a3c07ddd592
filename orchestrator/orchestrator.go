// Package orchestrator runs the build-solve-materialize pipeline off the
// caller's goroutine. Each solve owns a bounded progress channel and a
// single terminal result; cancellation abandons the solve without ever
// publishing a partial schedule, while an expired wall-clock budget
// delivers the best schedule found so far tagged approximate. The
// orchestrator also tracks in-flight
// solves per game so a new request supersedes a stale one, and owns the
// "current schedule per game" that successful solves replace atomically.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rotaplanhq/rotaplan/fairness"
	"github.com/rotaplanhq/rotaplan/lineup"
	"github.com/rotaplanhq/rotaplan/milp"
	"github.com/rotaplanhq/rotaplan/schedule"
)

const progressBuffer = 16

// Result is the terminal outcome of one solve. Exactly one of these
// holds: Schedule is set (success), Err is set (infeasible), or the Done
// channel closes without any Result at all (cancelled).
type Result struct {
	Schedule *lineup.RotationSchedule
	// Outliers flags players whose play percentage sits unusually far
	// above the group, for UI highlighting.
	Outliers []lineup.PlayerID
	Err      error
}

// Solve is a handle on an in-flight solve.
type Solve struct {
	// Progress delivers events in the order initializing,
	// calculating_goalie, generating_patterns (searching...),
	// building_schedule, checking_optimizations, complete. It closes
	// when the solve ends for any reason. Delivery never blocks the
	// solve: a consumer that is not draining this channel misses
	// searching events, never the pipeline steps.
	Progress <-chan lineup.Progress
	// Done delivers at most one Result, then closes. A close without a
	// Result means the solve was cancelled or superseded.
	Done <-chan Result

	cancel context.CancelFunc
}

// Cancel abandons the solve. Safe to call more than once.
func (s *Solve) Cancel() {
	s.cancel()
}

type inflight struct {
	cancel context.CancelFunc
}

// Orchestrator coordinates solves across games. The zero value is not
// usable; call New.
type Orchestrator struct {
	// NodeLimit bounds each solve's branch-and-bound tree.
	NodeLimit uint64
	// Timeout is the per-solve wall-clock budget. Zero means no
	// deadline; the node limit still applies. A solve whose deadline
	// expires still delivers the best schedule found so far, tagged
	// approximate.
	Timeout time.Duration

	mu       sync.Mutex
	running  map[string]*inflight
	accepted map[string]*lineup.RotationSchedule
}

// New returns an Orchestrator with the given search budgets.
func New(nodeLimit uint64, timeout time.Duration) *Orchestrator {
	if nodeLimit == 0 {
		nodeLimit = milp.DefaultNodeLimit
	}
	return &Orchestrator{
		NodeLimit: nodeLimit,
		Timeout:   timeout,
		running:   make(map[string]*inflight),
		accepted:  make(map[string]*lineup.RotationSchedule),
	}
}

// Accepted returns the last schedule accepted for a game, or nil.
func (o *Orchestrator) Accepted(gameID string) *lineup.RotationSchedule {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.accepted[gameID]
}

// CancelGame cancels the in-flight solve for a game, if any.
func (o *Orchestrator) CancelGame(gameID string) {
	o.mu.Lock()
	h := o.running[gameID]
	o.mu.Unlock()
	if h != nil {
		h.cancel()
	}
}

// Start launches a solve for the request's game. Any in-flight solve for
// the same game is cancelled first; at most one solve per game runs at a
// time. Solves for different games are independent.
func (o *Orchestrator) Start(ctx context.Context, req *lineup.SolveRequest) *Solve {
	var cancel context.CancelFunc
	if o.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	h := &inflight{cancel: cancel}
	o.mu.Lock()
	if prev, ok := o.running[req.GameID]; ok {
		prev.cancel()
	}
	o.running[req.GameID] = h
	o.mu.Unlock()

	progress := make(chan lineup.Progress, progressBuffer)
	done := make(chan Result, 1)
	s := &Solve{Progress: progress, Done: done, cancel: cancel}

	go o.run(ctx, req, h, progress, done)
	return s
}

func (o *Orchestrator) run(ctx context.Context, req *lineup.SolveRequest, h *inflight,
	progress chan<- lineup.Progress, done chan<- Result) {

	defer close(done)
	defer close(progress)
	defer o.unregister(req.GameID, h)
	defer h.cancel()

	lastPct := 0
	emit := func(step lineup.ProgressStep, pct int, combos uint64) {
		if pct < lastPct {
			pct = lastPct
		}
		lastPct = pct
		// Searching events keep headroom in the buffer so the fixed
		// pipeline steps always fit; only this goroutine sends, so the
		// check cannot race. Nothing here blocks the solve on a consumer
		// that is not draining Progress.
		if step == lineup.StepSearching && len(progress) >= progressBuffer-8 {
			return
		}
		select {
		case progress <- lineup.Progress{Step: step, Percent: pct, Combinations: combos}:
		default:
		}
	}
	sent := false
	finish := func(res Result) {
		if sent {
			return
		}
		sent = true
		done <- res
	}

	// A panic inside the pipeline must not escape the solve goroutine;
	// it resolves to a typed infeasible result like every other failure.
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("gameID", req.GameID).Interface("panic", r).Msg("solve-panicked")
			finish(Result{Err: lineup.Infeasible("internal solver failure: %v", r)})
		}
	}()

	start := time.Now()
	emit(lineup.StepInitializing, 0, 0)
	emit(lineup.StepCalculatingGoalie, 10, 0)

	model, err := schedule.Build(req)
	if err != nil {
		finish(Result{Err: err})
		return
	}
	emit(lineup.StepGeneratingPatterns, 25, 0)

	solver := &milp.Solver{
		NodeLimit: o.NodeLimit,
		Progress: func(nodes uint64) {
			pct := 25 + int(nodes*45/o.NodeLimit)
			if pct > 69 {
				pct = 69
			}
			emit(lineup.StepSearching, pct, nodes)
		},
	}
	sol, err := solver.Solve(ctx, model.ILP)
	if err != nil {
		if errors.Is(err, milp.ErrBudgetExhausted) {
			finish(Result{Err: lineup.Infeasible("search budget exhausted before any feasible schedule was found")})
		}
		// Cancellation closes both channels without a result.
		return
	}

	emit(lineup.StepBuildingSchedule, 70, 0)
	sched, err := model.Materialize(sol)
	if err != nil {
		finish(Result{Err: err})
		return
	}

	emit(lineup.StepCheckingOptimizations, 85, 0)
	outliers := fairness.HighOutliers(fairness.FromStats(sched.Stats), fairness.Options{})

	if errors.Is(context.Cause(ctx), context.Canceled) {
		// Cancelled late: the new schedule is discarded, never published.
		// An expired deadline is not a cancellation; the incumbent came
		// back tagged feasible-timeout and is still delivered.
		return
	}

	o.mu.Lock()
	current := o.running[req.GameID] == h
	if current {
		o.accepted[req.GameID] = sched
	}
	o.mu.Unlock()
	if !current {
		// Superseded while finishing; this stale result must not land.
		return
	}

	emit(lineup.StepComplete, 100, 0)
	log.Info().
		Str("gameID", req.GameID).
		Str("status", fmt.Sprintf("%v", sol.Status)).
		Uint64("nodes", sol.Nodes).
		Float64("elapsed-sec", time.Since(start).Seconds()).
		Msg("solve-returning")
	finish(Result{Schedule: sched, Outliers: outliers})
}

func (o *Orchestrator) unregister(gameID string, h *inflight) {
	o.mu.Lock()
	if o.running[gameID] == h {
		delete(o.running, gameID)
	}
	o.mu.Unlock()
}
