package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotaplanhq/rotaplan/lineup"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRequest(gameID string) *lineup.SolveRequest {
	return &lineup.SolveRequest{
		GameID: gameID,
		Roster: []lineup.Player{
			{ID: "p1", Name: "one", Skill: 2},
			{ID: "p2", Name: "two", Skill: 4, AbsentPeriods: []int{1}},
			{ID: "p3", Name: "three", Skill: 3},
		},
		Config: lineup.GameConfig{
			Periods:            2,
			PeriodMinutes:      20,
			RotationsPerPeriod: 2,
			Formation: lineup.Formation{
				Name:  "pair",
				Slots: []lineup.Slot{{ID: "a", Name: "a"}, {ID: "b", Name: "b"}},
			},
		},
		Overrides: []lineup.ManualOverride{
			{Player: "p1", Rotation: 0, Assignment: lineup.AssignBench},
		},
	}
}

func TestRequestRoundtrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	req := sampleRequest("g1")
	id, err := s.SaveRequest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "g1", id)

	got, err := s.LoadRequest(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestSaveRequestAssignsID(t *testing.T) {
	s := openTemp(t)
	req := sampleRequest("")
	id, err := s.SaveRequest(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, req.GameID)
}

func TestSaveRequestUpserts(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	req := sampleRequest("g1")
	_, err := s.SaveRequest(ctx, req)
	require.NoError(t, err)

	req.Roster = req.Roster[:2]
	_, err = s.SaveRequest(ctx, req)
	require.NoError(t, err)

	got, err := s.LoadRequest(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, got.Roster, 2)
}

func TestScheduleRoundtrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, err := s.SaveRequest(ctx, sampleRequest("g1"))
	require.NoError(t, err)

	sched := &lineup.RotationSchedule{
		Rotations: []lineup.Rotation{
			{
				Index:  0,
				Period: 0,
				Assignments: map[lineup.PlayerID]lineup.Assignment{
					"p1": lineup.AssignBench,
					"p2": lineup.AssignField,
					"p3": lineup.AssignField,
				},
			},
		},
		Stats: map[lineup.PlayerID]lineup.PlayerStats{
			"p1": {Benched: 1},
			"p2": {Played: 1, PlayPct: 100},
			"p3": {Played: 1, PlayPct: 100},
		},
	}
	require.NoError(t, s.SaveSchedule(ctx, "g1", sched))

	got, err := s.LoadSchedule(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, sched, got)
}

func TestSaveScheduleForUnknownGame(t *testing.T) {
	s := openTemp(t)
	err := s.SaveSchedule(context.Background(), "nope", &lineup.RotationSchedule{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadMissing(t *testing.T) {
	s := openTemp(t)
	_, err := s.LoadRequest(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadSchedule(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListGames(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, err := s.SaveRequest(ctx, sampleRequest("g1"))
	require.NoError(t, err)
	_, err = s.SaveRequest(ctx, sampleRequest("g2"))
	require.NoError(t, err)
	require.NoError(t, s.SaveSchedule(ctx, "g2", &lineup.RotationSchedule{}))

	games, err := s.ListGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 2)
	byID := map[string]GameRecord{}
	for _, g := range games {
		byID[g.ID] = g
	}
	assert.False(t, byID["g1"].HasSchedule)
	assert.True(t, byID["g2"].HasSchedule)
	assert.Equal(t, 3, byID["g1"].PlayerCount)
}

func TestDeleteGame(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, err := s.SaveRequest(ctx, sampleRequest("g1"))
	require.NoError(t, err)
	require.NoError(t, s.SaveSchedule(ctx, "g1", &lineup.RotationSchedule{}))
	require.NoError(t, s.DeleteGame(ctx, "g1"))

	_, err = s.LoadRequest(ctx, "g1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteGame(ctx, "g1"), ErrNotFound)
}
