// Package lineup contains the domain model for rotation scheduling:
// rosters, game configuration, rotations and their assignments, and the
// derived per-player statistics. Everything here is plain data; solving
// lives in the schedule and milp packages.
package lineup

import (
	"fmt"
	"sort"
)

// PlayerID identifies a player within a roster. IDs are assigned by the
// roster owner and are never duplicated across a game.
type PlayerID string

// Player is a roster entry. Skill is an ordinal ranking from 1 (weakest)
// to 5 (strongest). AbsentPeriods lists zero-based period indexes during
// which the player is unavailable.
type Player struct {
	ID             PlayerID `yaml:"id" json:"id"`
	Name           string   `yaml:"name" json:"name"`
	Skill          int      `yaml:"skill" json:"skill"`
	GoalieEligible bool     `yaml:"goalie_eligible,omitempty" json:"goalieEligible,omitempty"`
	AbsentPeriods  []int    `yaml:"absent_periods,omitempty,flow" json:"absentPeriods,omitempty"`
}

// AbsentIn reports whether the player is absent for the given period.
func (p *Player) AbsentIn(period int) bool {
	for _, ap := range p.AbsentPeriods {
		if ap == period {
			return true
		}
	}
	return false
}

// AbsentAllGame reports whether the player misses every period of a game
// with the given period count.
func (p *Player) AbsentAllGame(periods int) bool {
	for pd := 0; pd < periods; pd++ {
		if !p.AbsentIn(pd) {
			return false
		}
	}
	return periods > 0
}

// Slot is a single on-field position in a formation. At most one slot in
// a formation may be the goalie slot.
type Slot struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Goalie bool   `yaml:"goalie,omitempty" json:"goalie,omitempty"`
}

// Formation is the on-field slot layout, goalie included when the game
// uses one. The number of slots is the number of players on the field
// simultaneously.
type Formation struct {
	Name  string `yaml:"name" json:"name"`
	Slots []Slot `yaml:"slots" json:"slots"`
}

// FieldSlotCount returns the number of simultaneous on-field players.
func (f *Formation) FieldSlotCount() int {
	return len(f.Slots)
}

// GoalieSlot returns the goalie slot, if the formation has one.
func (f *Formation) GoalieSlot() (Slot, bool) {
	for _, s := range f.Slots {
		if s.Goalie {
			return s, true
		}
	}
	return Slot{}, false
}

// GameConfig is the fixed configuration of a single game. It is immutable
// once a solve has been accepted, except through explicit reconfiguration
// by the caller.
type GameConfig struct {
	Periods            int       `yaml:"periods" json:"periods"`
	PeriodMinutes      int       `yaml:"period_minutes" json:"periodMinutes"`
	RotationsPerPeriod int       `yaml:"rotations_per_period" json:"rotationsPerPeriod"`
	UsePositions       bool      `yaml:"use_positions" json:"usePositions"`
	UseGoalie          bool      `yaml:"use_goalie" json:"useGoalie"`
	Formation          Formation `yaml:"formation" json:"formation"`
	// MinPlayPct is an advisory target used for display; the solver's
	// fairness objective is what actually levels playing time.
	MinPlayPct int `yaml:"min_play_pct,omitempty" json:"minPlayPct,omitempty"`
}

// MaxDivisions is the largest allowed rotation count for one period.
const MaxDivisions = 6

// PeriodDivisions optionally overrides the rotation count of individual
// periods. Absent entries inherit GameConfig.RotationsPerPeriod.
type PeriodDivisions map[int]int

// Resolve returns the rotation count for every period, default applied.
func (pd PeriodDivisions) Resolve(cfg *GameConfig) []int {
	counts := make([]int, cfg.Periods)
	for i := range counts {
		counts[i] = cfg.RotationsPerPeriod
		if c, ok := pd[i]; ok {
			counts[i] = c
		}
		if counts[i] < 1 {
			counts[i] = 1
		}
	}
	return counts
}

// Clone returns a copy that can be mutated independently.
func (pd PeriodDivisions) Clone() PeriodDivisions {
	out := make(PeriodDivisions, len(pd))
	for k, v := range pd {
		out[k] = v
	}
	return out
}

// Assignment is a player's state during one rotation. Field and Goalie
// are the on-field roles; Bench is everything else, including absences.
type Assignment int

const (
	AssignBench Assignment = iota
	AssignField
	AssignGoalie
)

// OnField reports whether the assignment puts the player on the field.
// Goalie counts as on-field everywhere, including play-time statistics.
func (a Assignment) OnField() bool {
	return a == AssignField || a == AssignGoalie
}

func (a Assignment) String() string {
	switch a {
	case AssignBench:
		return "bench"
	case AssignField:
		return "field"
	case AssignGoalie:
		return "goalie"
	}
	return fmt.Sprintf("assignment(%d)", int(a))
}

// MarshalText implements encoding.TextMarshaler so assignments serialize
// as stable tokens rather than integers.
func (a Assignment) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Assignment) UnmarshalText(b []byte) error {
	switch string(b) {
	case "bench":
		*a = AssignBench
	case "field":
		*a = AssignField
	case "goalie":
		*a = AssignGoalie
	default:
		return fmt.Errorf("unknown assignment %q", string(b))
	}
	return nil
}

// Rotation is one discrete substitution interval within a period; the
// atomic unit of assignment. Index is the rotation's position in the
// whole game, Period the zero-based period it belongs to.
type Rotation struct {
	Index       int                     `json:"index"`
	Period      int                     `json:"period"`
	Assignments map[PlayerID]Assignment `json:"assignments"`
	// FieldPositions maps on-field players to concrete slot ids. Present
	// only when GameConfig.UsePositions is true.
	FieldPositions map[PlayerID]string `json:"fieldPositions,omitempty"`
}

// OnFieldCount returns the number of on-field assignments, goalie included.
func (r *Rotation) OnFieldCount() int {
	n := 0
	for _, a := range r.Assignments {
		if a.OnField() {
			n++
		}
	}
	return n
}

// PlayerStats aggregates one player's schedule over a whole game.
// Invariant: Played + Benched equals the game's total rotation count;
// goalie rotations count toward Played.
type PlayerStats struct {
	Played   int `json:"rotationsPlayed"`
	Benched  int `json:"rotationsBenched"`
	Goalie   int `json:"rotationsGoalie"`
	PlayPct  int `json:"playPercentage"`
}

// RotationSchedule is the full solved schedule for a game. A schedule is
// created fresh by each successful solve and replaces its predecessor
// atomically; failed or cancelled solves never produce one.
type RotationSchedule struct {
	Rotations []Rotation               `json:"rotations"`
	Stats     map[PlayerID]PlayerStats `json:"playerStats"`
	// Approximate is set when the solver hit its search budget and
	// returned the best feasible schedule found rather than a proven
	// optimum.
	Approximate bool `json:"approximate,omitempty"`
}

// TotalRotations returns the number of rotations in the schedule.
func (s *RotationSchedule) TotalRotations() int {
	return len(s.Rotations)
}

// ExtraCount returns max minus min rotations played across the given
// players. Zero means perfectly level playing time.
func (s *RotationSchedule) ExtraCount(ids []PlayerID) int {
	minP, maxP := -1, -1
	for _, id := range ids {
		st, ok := s.Stats[id]
		if !ok {
			continue
		}
		if minP == -1 || st.Played < minP {
			minP = st.Played
		}
		if st.Played > maxP {
			maxP = st.Played
		}
	}
	if minP == -1 {
		return 0
	}
	return maxP - minP
}

// MaxPlayPercent returns the highest play percentage among the given
// players.
func (s *RotationSchedule) MaxPlayPercent(ids []PlayerID) int {
	maxPct := 0
	for _, id := range ids {
		if st, ok := s.Stats[id]; ok && st.PlayPct > maxPct {
			maxPct = st.PlayPct
		}
	}
	return maxPct
}

// ManualOverride pins one player to a required assignment in a specific
// rotation. The solver must honor every override exactly; contradictory
// overrides are a hard failure, never a best effort.
type ManualOverride struct {
	Player     PlayerID   `yaml:"player" json:"player"`
	Rotation   int        `yaml:"rotation" json:"rotation"`
	Assignment Assignment `yaml:"assignment" json:"assignment"`
	// Position optionally pins the concrete slot id. Only meaningful for
	// on-field assignments when positions are in use.
	Position string `yaml:"position,omitempty" json:"position,omitempty"`
}

// GoalieAssignments maps period index to an explicitly pinned goalie.
// Periods without an entry are solved automatically.
type GoalieAssignments map[int]PlayerID

// SolveRequest is everything the optimizer needs for one game. The
// optimizer never mutates a request.
type SolveRequest struct {
	GameID    string            `yaml:"game_id" json:"gameId"`
	Roster    []Player          `yaml:"roster" json:"roster"`
	Config    GameConfig        `yaml:"config" json:"config"`
	Divisions PeriodDivisions   `yaml:"divisions,omitempty" json:"divisions,omitempty"`
	Overrides []ManualOverride  `yaml:"overrides,omitempty" json:"overrides,omitempty"`
	Goalies   GoalieAssignments `yaml:"goalies,omitempty" json:"goalies,omitempty"`
}

// TotalRotations returns the game's rotation count with divisions
// resolved.
func (req *SolveRequest) TotalRotations() int {
	total := 0
	for _, c := range req.Divisions.Resolve(&req.Config) {
		total += c
	}
	return total
}

// PresentPlayerIDs returns the ids of players who attend at least one
// period, sorted ascending for deterministic traversal.
func (req *SolveRequest) PresentPlayerIDs() []PlayerID {
	var ids []PlayerID
	for i := range req.Roster {
		if !req.Roster[i].AbsentAllGame(req.Config.Periods) {
			ids = append(ids, req.Roster[i].ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PlayerByID returns the roster entry for id, or nil.
func (req *SolveRequest) PlayerByID(id PlayerID) *Player {
	for i := range req.Roster {
		if req.Roster[i].ID == id {
			return &req.Roster[i]
		}
	}
	return nil
}

// DivisionCandidate is one division-optimizer proposal: change a single
// period's rotation count and expect the given fairness numbers.
type DivisionCandidate struct {
	Period             int             `json:"period"`
	Count              int             `json:"count"`
	Divisions          PeriodDivisions `json:"divisions"`
	ExpectedExtraCount int             `json:"expectedExtraCount"`
	ExpectedMaxPercent int             `json:"expectedMaxPercent"`
}

// OptimizationSuggestion ranks division candidates against the current
// schedule's fairness baseline, best first.
type OptimizationSuggestion struct {
	Candidates        []DivisionCandidate `json:"candidates"`
	CurrentExtraCount int                 `json:"currentExtraCount"`
	CurrentMaxPercent int                 `json:"currentMaxPercent"`
}
