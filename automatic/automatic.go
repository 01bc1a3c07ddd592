// Package automatic generates random but well-formed solve requests and
// checks solved schedules against the scheduling invariants. It exists
// for stress testing: run many randomized games and verify every
// schedule the engine produces.
package automatic

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"lukechampine.com/frand"

	"github.com/rotaplanhq/rotaplan/lineup"
	"github.com/rotaplanhq/rotaplan/milp"
	"github.com/rotaplanhq/rotaplan/schedule"
)

var positionNames = []string{
	"striker", "left wing", "right wing", "center mid",
	"left back", "right back", "sweeper",
}

// Generator produces random solve requests from a deterministic seed, so
// a failing case can be replayed from its seed alone.
type Generator struct {
	rng *frand.RNG
}

// NewGenerator seeds a generator. The same seed yields the same sequence
// of requests.
func NewGenerator(seed uint64) *Generator {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	return &Generator{rng: frand.NewCustom(key[:], 1024, 12)}
}

// GenerateRequest builds one random request. Rosters always carry at
// least one more player than the formation has slots, so the base model
// is feasible by construction.
func (g *Generator) GenerateRequest() *lineup.SolveRequest {
	fieldSlots := 2 + g.rng.Intn(2) // 2..3
	useGoalie := g.rng.Intn(3) == 0
	rosterSize := fieldSlots + 1 + g.rng.Intn(3)
	if useGoalie {
		rosterSize++
	}

	formation := lineup.Formation{Name: "generated"}
	for i := 0; i < fieldSlots; i++ {
		formation.Slots = append(formation.Slots, lineup.Slot{
			ID:   fmt.Sprintf("s%d", i),
			Name: positionNames[i%len(positionNames)],
		})
	}
	if useGoalie {
		formation.Slots = append(formation.Slots, lineup.Slot{ID: "gk", Name: "goalkeeper", Goalie: true})
	}

	req := &lineup.SolveRequest{
		GameID: uuid.NewSHA1(uuid.NameSpaceOID, g.rng.Bytes(16)).String(),
		Config: lineup.GameConfig{
			Periods:            1 + g.rng.Intn(2),
			PeriodMinutes:      10 + 5*g.rng.Intn(4),
			RotationsPerPeriod: 2,
			UsePositions:       g.rng.Intn(2) == 0,
			UseGoalie:          useGoalie,
			Formation:          formation,
		},
	}

	for i := 0; i < rosterSize; i++ {
		p := lineup.Player{
			ID:    lineup.PlayerID(fmt.Sprintf("p%02d", i+1)),
			Name:  fmt.Sprintf("player %d", i+1),
			Skill: 1 + g.rng.Intn(5),
		}
		// An occasional single-period absence, never enough of them to
		// starve a period below the field slot count.
		if g.rng.Intn(8) == 0 && rosterSize-g.absences(req) > formation.FieldSlotCount()+1 {
			p.AbsentPeriods = []int{g.rng.Intn(req.Config.Periods)}
		}
		req.Roster = append(req.Roster, p)
	}
	return req
}

func (g *Generator) absences(req *lineup.SolveRequest) int {
	n := 0
	for i := range req.Roster {
		if len(req.Roster[i].AbsentPeriods) > 0 {
			n++
		}
	}
	return n
}

// VerifySchedule checks a solved schedule against the invariants that
// must hold for any request: full field coverage, complete assignments,
// absences benched, goalie continuity, override fidelity, and stats that
// add up. It returns the first violation found.
func VerifySchedule(req *lineup.SolveRequest, sched *lineup.RotationSchedule) error {
	total := req.TotalRotations()
	if sched.TotalRotations() != total {
		return fmt.Errorf("schedule has %d rotations, want %d", sched.TotalRotations(), total)
	}
	fieldCount := req.Config.Formation.FieldSlotCount()

	for ri := range sched.Rotations {
		rot := &sched.Rotations[ri]
		if rot.Index != ri {
			return fmt.Errorf("rotation %d carries index %d", ri, rot.Index)
		}
		if got := rot.OnFieldCount(); got != fieldCount {
			return fmt.Errorf("rotation %d has %d players on field, want %d", ri, got, fieldCount)
		}
		if len(rot.Assignments) != len(req.Roster) {
			return fmt.Errorf("rotation %d assigns %d players, want %d", ri, len(rot.Assignments), len(req.Roster))
		}
		goalies := 0
		for id, a := range rot.Assignments {
			p := req.PlayerByID(id)
			if p == nil {
				return fmt.Errorf("rotation %d assigns unknown player %s", ri, id)
			}
			if p.AbsentIn(rot.Period) && a != lineup.AssignBench {
				return fmt.Errorf("player %s is absent in period %d but assigned %s", id, rot.Period, a)
			}
			if a == lineup.AssignGoalie {
				goalies++
			}
		}
		if req.Config.UseGoalie && goalies != 1 {
			return fmt.Errorf("rotation %d has %d goalies", ri, goalies)
		}
		if !req.Config.UseGoalie && goalies != 0 {
			return fmt.Errorf("rotation %d has a goalie but the game uses none", ri)
		}
		if err := verifyPositions(req, rot); err != nil {
			return err
		}
	}

	if err := verifyGoalieContinuity(req, sched); err != nil {
		return err
	}
	for _, ov := range req.Overrides {
		if got := sched.Rotations[ov.Rotation].Assignments[ov.Player]; got != ov.Assignment {
			return fmt.Errorf("override for %s in rotation %d not honored: got %s, want %s",
				ov.Player, ov.Rotation, got, ov.Assignment)
		}
	}
	return verifyStats(req, sched, total)
}

func verifyPositions(req *lineup.SolveRequest, rot *lineup.Rotation) error {
	if !req.Config.UsePositions {
		return nil
	}
	seen := map[string]lineup.PlayerID{}
	for id, a := range rot.Assignments {
		if !a.OnField() {
			continue
		}
		pos, ok := rot.FieldPositions[id]
		if !ok {
			return fmt.Errorf("player %s on field in rotation %d without a position", id, rot.Index)
		}
		if other, dup := seen[pos]; dup {
			return fmt.Errorf("position %s double-booked by %s and %s in rotation %d", pos, other, id, rot.Index)
		}
		seen[pos] = id
	}
	return nil
}

func verifyGoalieContinuity(req *lineup.SolveRequest, sched *lineup.RotationSchedule) error {
	if !req.Config.UseGoalie {
		return nil
	}
	perPeriod := map[int]lineup.PlayerID{}
	for ri := range sched.Rotations {
		rot := &sched.Rotations[ri]
		for id, a := range rot.Assignments {
			if a != lineup.AssignGoalie {
				continue
			}
			if prev, ok := perPeriod[rot.Period]; ok && prev != id {
				return fmt.Errorf("period %d has two goalies: %s and %s", rot.Period, prev, id)
			}
			perPeriod[rot.Period] = id
		}
	}
	for period, want := range req.Goalies {
		if got := perPeriod[period]; got != want {
			return fmt.Errorf("period %d goalie is %s, want pinned %s", period, got, want)
		}
	}
	return nil
}

func verifyStats(req *lineup.SolveRequest, sched *lineup.RotationSchedule, total int) error {
	for _, p := range req.Roster {
		st, ok := sched.Stats[p.ID]
		if !ok {
			return fmt.Errorf("player %s missing from stats", p.ID)
		}
		if st.Played+st.Benched != total {
			return fmt.Errorf("player %s: played %d + benched %d != %d rotations", p.ID, st.Played, st.Benched, total)
		}
		played, goalie := 0, 0
		for ri := range sched.Rotations {
			switch sched.Rotations[ri].Assignments[p.ID] {
			case lineup.AssignField:
				played++
			case lineup.AssignGoalie:
				played++
				goalie++
			}
		}
		if st.Played != played || st.Goalie != goalie {
			return fmt.Errorf("player %s stats disagree with rotations: %+v", p.ID, st)
		}
	}
	return nil
}

// RunGames solves n random games and verifies every schedule, returning
// the first failure. Infeasible generated games count as failures too;
// the generator is supposed to only emit solvable ones.
func RunGames(ctx context.Context, seed uint64, n int, solver *milp.Solver) error {
	gen := NewGenerator(seed)
	for i := 0; i < n; i++ {
		req := gen.GenerateRequest()
		sched, err := schedule.Solve(ctx, req, solver)
		if err != nil {
			return fmt.Errorf("game %d (seed %d): %w", i, seed, err)
		}
		if err := VerifySchedule(req, sched); err != nil {
			return fmt.Errorf("game %d (seed %d): %w", i, seed, err)
		}
		log.Debug().Int("game", i).Str("gameID", req.GameID).
			Int("roster", len(req.Roster)).Int("rotations", req.TotalRotations()).
			Msg("verified")
	}
	return nil
}
