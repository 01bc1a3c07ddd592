package automatic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotaplanhq/rotaplan/lineup"
	"github.com/rotaplanhq/rotaplan/milp"
	"github.com/rotaplanhq/rotaplan/schedule"
)

func TestGeneratorIsDeterministic(t *testing.T) {
	a := NewGenerator(42)
	b := NewGenerator(42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.GenerateRequest(), b.GenerateRequest(), "request %d diverged", i)
	}
}

func TestGeneratorSeedsDiverge(t *testing.T) {
	a := NewGenerator(1).GenerateRequest()
	b := NewGenerator(2).GenerateRequest()
	assert.NotEqual(t, a.GameID, b.GameID)
}

func TestGeneratedRequestsAreSolvable(t *testing.T) {
	if testing.Short() {
		t.Skip("solves several games")
	}
	err := RunGames(context.Background(), 7, 5, &milp.Solver{})
	require.NoError(t, err)
}

func TestVerifyScheduleCatchesTampering(t *testing.T) {
	req := NewGenerator(3).GenerateRequest()
	sched, err := schedule.Solve(context.Background(), req, &milp.Solver{})
	require.NoError(t, err)
	require.NoError(t, VerifySchedule(req, sched))

	// Benching an on-field player breaks field coverage.
	rot := &sched.Rotations[0]
	for id, a := range rot.Assignments {
		if a == lineup.AssignField {
			rot.Assignments[id] = lineup.AssignBench
			break
		}
	}
	assert.Error(t, VerifySchedule(req, sched))
}

func TestVerifyScheduleCatchesStatDrift(t *testing.T) {
	req := NewGenerator(4).GenerateRequest()
	sched, err := schedule.Solve(context.Background(), req, &milp.Solver{})
	require.NoError(t, err)

	id := req.Roster[0].ID
	st := sched.Stats[id]
	st.Played++
	sched.Stats[id] = st
	assert.Error(t, VerifySchedule(req, sched))
}
