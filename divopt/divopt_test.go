package divopt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotaplanhq/rotaplan/lineup"
	"github.com/rotaplanhq/rotaplan/milp"
	"github.com/rotaplanhq/rotaplan/schedule"
)

func threePlayerRequest() *lineup.SolveRequest {
	req := &lineup.SolveRequest{
		GameID: "g1",
		Config: lineup.GameConfig{
			Periods:            1,
			PeriodMinutes:      20,
			RotationsPerPeriod: 2,
			Formation: lineup.Formation{
				Name: "pair",
				Slots: []lineup.Slot{
					{ID: "a", Name: "a"},
					{ID: "b", Name: "b"},
				},
			},
		},
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		req.Roster = append(req.Roster, lineup.Player{ID: lineup.PlayerID(id), Name: id, Skill: 3})
	}
	return req
}

func TestSuggestFindsFairerDivision(t *testing.T) {
	req := threePlayerRequest()
	baseline, err := schedule.Solve(context.Background(), req, &milp.Solver{})
	require.NoError(t, err)

	// Two rotations with two field slots over three players: somebody
	// plays both rotations (100%) while the others play one.
	assert.Equal(t, 1, baseline.ExtraCount(req.PresentPlayerIDs()))
	assert.Equal(t, 100, baseline.MaxPlayPercent(req.PresentPlayerIDs()))

	opt := &Optimizer{Solver: &milp.Solver{}, Concurrency: 2}
	sug, err := opt.Suggest(context.Background(), req, baseline)
	require.NoError(t, err)

	assert.Equal(t, 1, sug.CurrentExtraCount)
	assert.Equal(t, 100, sug.CurrentMaxPercent)
	require.NotEmpty(t, sug.Candidates)

	// Three rotations split six field-slot-rotations perfectly; the
	// equally-good six-way split loses the tie to the simpler schedule.
	best := sug.Candidates[0]
	assert.Equal(t, 3, best.Count)
	assert.Equal(t, 0, best.Period)
	assert.Equal(t, 0, best.ExpectedExtraCount)
	assert.Equal(t, 67, best.ExpectedMaxPercent)

	for _, c := range sug.Candidates {
		better := c.ExpectedExtraCount < sug.CurrentExtraCount ||
			c.ExpectedMaxPercent < sug.CurrentMaxPercent
		assert.True(t, better, "candidate %+v does not improve the baseline", c)
	}
}

func TestSuggestExcludesInfeasibleCandidates(t *testing.T) {
	req := threePlayerRequest()
	baseline, err := schedule.Solve(context.Background(), req, &milp.Solver{})
	require.NoError(t, err)

	// A two-node budget exhausts before any candidate finds a feasible
	// assignment; every candidate must be dropped silently.
	opt := &Optimizer{Solver: &milp.Solver{NodeLimit: 2}, Concurrency: 1}
	sug, err := opt.Suggest(context.Background(), req, baseline)
	require.NoError(t, err)
	assert.Empty(t, sug.Candidates)
}

func TestSuggestCancellation(t *testing.T) {
	req := threePlayerRequest()
	baseline, err := schedule.Solve(context.Background(), req, &milp.Solver{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opt := &Optimizer{Solver: &milp.Solver{}}
	_, err = opt.Suggest(ctx, req, baseline)
	assert.Error(t, err)
}

func TestCandidateRequestFreezesOtherPeriods(t *testing.T) {
	req := threePlayerRequest()
	req.Config.Periods = 2
	baseline, err := schedule.Solve(context.Background(), req, &milp.Solver{})
	require.NoError(t, err)

	resolved := req.Divisions.Resolve(&req.Config)
	cand := candidateRequest(req, baseline, resolved, 1, 4)

	// Period 0 keeps its two rotations; every player is pinned there.
	assert.Equal(t, 4, cand.Divisions[1])
	pinned := 0
	for _, ov := range cand.Overrides {
		assert.Less(t, ov.Rotation, 2, "pins must target the frozen period")
		pinned++
	}
	assert.Equal(t, 2*len(req.Roster), pinned)

	// The candidate still solves, and the frozen rotations match the
	// baseline exactly.
	sched, err := schedule.Solve(context.Background(), cand, &milp.Solver{})
	require.NoError(t, err)
	for ri := 0; ri < 2; ri++ {
		assert.Equal(t, baseline.Rotations[ri].Assignments, sched.Rotations[ri].Assignments)
	}
}
