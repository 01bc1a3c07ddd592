package shell

import (
	"strings"
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"

	"github.com/rotaplanhq/rotaplan/lineup"
)

func displayRequest() *lineup.SolveRequest {
	return &lineup.SolveRequest{
		GameID: "g1",
		Roster: []lineup.Player{
			{ID: "p1", Name: "Alex", Skill: 4},
			{ID: "p2", Name: "Bo", Skill: 2, GoalieEligible: true},
			{ID: "p3", Name: "Charlie", Skill: 3, AbsentPeriods: []int{1}},
		},
		Config: lineup.GameConfig{
			Periods:            1,
			PeriodMinutes:      20,
			RotationsPerPeriod: 2,
			UseGoalie:          true,
			Formation: lineup.Formation{
				Name: "tiny",
				Slots: []lineup.Slot{
					{ID: "fw", Name: "forward"},
					{ID: "gk", Name: "goalkeeper", Goalie: true},
				},
			},
		},
	}
}

func displaySchedule() *lineup.RotationSchedule {
	return &lineup.RotationSchedule{
		Rotations: []lineup.Rotation{
			{
				Index:  0,
				Period: 0,
				Assignments: map[lineup.PlayerID]lineup.Assignment{
					"p1": lineup.AssignField,
					"p2": lineup.AssignGoalie,
					"p3": lineup.AssignBench,
				},
				FieldPositions: map[lineup.PlayerID]string{"p1": "fw"},
			},
			{
				Index:  1,
				Period: 0,
				Assignments: map[lineup.PlayerID]lineup.Assignment{
					"p1": lineup.AssignBench,
					"p2": lineup.AssignGoalie,
					"p3": lineup.AssignField,
				},
				FieldPositions: map[lineup.PlayerID]string{"p3": "fw"},
			},
		},
		Stats: map[lineup.PlayerID]lineup.PlayerStats{
			"p1": {Played: 1, Benched: 1, PlayPct: 50},
			"p2": {Played: 2, Goalie: 2, PlayPct: 100},
			"p3": {Played: 1, Benched: 1, PlayPct: 50},
		},
	}
}

func TestRenderSchedule(t *testing.T) {
	is := is.New(t)
	out := renderSchedule(displayRequest(), displaySchedule())
	is.True(strings.Contains(out, "period 1"))
	is.True(strings.Contains(out, "Bo(GK)"))
	is.True(strings.Contains(out, "Alex(fw)"))
	is.True(strings.Contains(out, "bench: Charlie"))
}

func TestRenderScheduleApproximate(t *testing.T) {
	sched := displaySchedule()
	sched.Approximate = true
	out := renderSchedule(displayRequest(), sched)
	assert.Contains(t, out, "approximate")
}

func TestRenderStats(t *testing.T) {
	out := renderStats(displayRequest(), displaySchedule())
	assert.Contains(t, out, "Bo")
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "spread: 1 extra rotation(s), max play 100%")
}

func TestRenderPlayHistogram(t *testing.T) {
	out := renderPlayHistogram(displaySchedule())
	assert.Contains(t, out, "play% distribution:")
	// Two players at 50% and one at 100% put samples in more than one
	// bucket.
	assert.Greater(t, strings.Count(out, "\n"), 1)
}

func TestRenderPlayHistogramEmpty(t *testing.T) {
	assert.Empty(t, renderPlayHistogram(&lineup.RotationSchedule{}))
}

func TestRenderTransitions(t *testing.T) {
	sched := displaySchedule()
	transitions := lineup.Diff(&sched.Rotations[0], &sched.Rotations[1])
	out := renderTransitions(displayRequest(), 2, transitions)
	assert.Contains(t, out, "changes entering rotation 2")
	assert.Contains(t, out, "Alex comes off")
	assert.Contains(t, out, "Charlie comes on")
	assert.NotContains(t, out, "Bo")
}

func TestRenderTransitionsEmpty(t *testing.T) {
	out := renderTransitions(displayRequest(), 2, nil)
	assert.Equal(t, "no changes entering rotation 2", out)
}

func TestRenderSuggestion(t *testing.T) {
	sug := &lineup.OptimizationSuggestion{
		CurrentExtraCount: 1,
		CurrentMaxPercent: 100,
		Candidates: []lineup.DivisionCandidate{
			{Period: 0, Count: 3, ExpectedExtraCount: 0, ExpectedMaxPercent: 67},
		},
	}
	out := renderSuggestion(sug)
	assert.Contains(t, out, "period 1 -> 3 rotations")
	assert.Contains(t, out, "max play 67%")

	assert.Equal(t, "no division change improves on the current schedule",
		renderSuggestion(&lineup.OptimizationSuggestion{}))
}

func TestRenderRoster(t *testing.T) {
	out := renderRoster(displayRequest())
	assert.Contains(t, out, "Charlie")
	assert.Contains(t, out, "absent [1]")
	assert.Contains(t, out, "goalie")
}
