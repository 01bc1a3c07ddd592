package svc

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotaplanhq/rotaplan/divopt"
	"github.com/rotaplanhq/rotaplan/lineup"
	"github.com/rotaplanhq/rotaplan/milp"
	"github.com/rotaplanhq/rotaplan/orchestrator"
	"github.com/rotaplanhq/rotaplan/store"
)

// The handlers are exercised directly; NATS only moves the bytes.

func testService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewService(nil, orchestrator.New(0, 0), &divopt.Optimizer{Solver: &milp.Solver{}}, st)
}

func solveBody(t *testing.T, gameID string, players int) []byte {
	t.Helper()
	req := &lineup.SolveRequest{
		GameID: gameID,
		Config: lineup.GameConfig{
			Periods:            1,
			PeriodMinutes:      20,
			RotationsPerPeriod: 2,
			Formation: lineup.Formation{
				Name:  "pair",
				Slots: []lineup.Slot{{ID: "a", Name: "a"}, {ID: "b", Name: "b"}},
			},
		},
	}
	ids := []string{"p1", "p2", "p3", "p4"}
	for i := 0; i < players; i++ {
		req.Roster = append(req.Roster, lineup.Player{ID: lineup.PlayerID(ids[i]), Name: ids[i], Skill: 3})
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return body
}

func TestHandleSolve(t *testing.T) {
	s := testService(t)
	var published []string
	reply := s.handleSolve(context.Background(), solveBody(t, "g1", 3), func(subject string, _ []byte) {
		published = append(published, subject)
	})

	var resp SolveResponse
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.Empty(t, resp.Error)
	require.NotNil(t, resp.Schedule)
	assert.Equal(t, 2, resp.Schedule.TotalRotations())

	require.NotEmpty(t, published)
	for _, subject := range published {
		assert.Equal(t, SubjectProgress+"g1", subject)
	}

	// The accepted schedule was persisted alongside the request.
	sched, err := s.st.LoadSchedule(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, resp.Schedule, sched)
}

func TestHandleSolveBadRequest(t *testing.T) {
	s := testService(t)
	reply := s.handleSolve(context.Background(), []byte("{"), func(string, []byte) {})
	var resp SolveResponse
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.Contains(t, resp.Error, "bad request")
	assert.Nil(t, resp.Schedule)
}

func TestHandleSolveInfeasible(t *testing.T) {
	s := testService(t)
	var req lineup.SolveRequest
	require.NoError(t, json.Unmarshal(solveBody(t, "g1", 3), &req))
	req.Overrides = []lineup.ManualOverride{
		{Player: "p1", Rotation: 0, Assignment: lineup.AssignField},
		{Player: "p1", Rotation: 0, Assignment: lineup.AssignBench},
	}
	body, err := json.Marshal(&req)
	require.NoError(t, err)

	reply := s.handleSolve(context.Background(), body, func(string, []byte) {})
	var resp SolveResponse
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.Contains(t, resp.Error, "solve failed")

	// Nothing persisted for a failed solve.
	_, err = s.st.LoadSchedule(context.Background(), "g1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleSuggest(t *testing.T) {
	s := testService(t)
	body := solveBody(t, "g1", 3)
	s.handleSolve(context.Background(), body, func(string, []byte) {})

	reply := s.handleSuggest(context.Background(), body)
	var resp SuggestResponse
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.Empty(t, resp.Error)
	require.NotNil(t, resp.Suggestion)
}

func TestHandleSuggestWithoutSchedule(t *testing.T) {
	s := testService(t)
	reply := s.handleSuggest(context.Background(), solveBody(t, "unknown", 3))
	var resp SuggestResponse
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.Contains(t, resp.Error, "no accepted schedule")
}
