// Package schedule translates a solve request into a 0/1 integer linear
// program and materializes the solved variables back into a domain
// RotationSchedule. The builder owns all modeling decisions: variable
// layout, hard constraints, and the weighted objective; the milp package
// stays generic.
package schedule

import (
	"fmt"
	"math"
	"sort"

	"github.com/rotaplanhq/rotaplan/lineup"
	"github.com/rotaplanhq/rotaplan/milp"
)

// Objective weight tiers. Each tier must dominate everything below it:
// fairness (max deviation, then squared deviation) always beats skill
// balance, which always beats the disruption penalty. The separations
// hold for rosters up to 30 players and games up to 36 rotations.
const (
	weightMaxDeviation = int64(10_000_000_000_000)
	weightSquaredDev   = int64(100_000_000)
	weightSkill        = int64(10_000)
	weightDisruption   = int64(1)
)

// Collapsed slot ids used when positions are disabled.
const (
	slotIDField = "field"
	slotIDBench = "bench"
)

type slotDef struct {
	id   string
	kind lineup.Assignment
	// capacity is occupants per rotation; -1 means unbounded (bench).
	capacity int
}

type rotationMeta struct {
	period  int
	ordinal int // position within its period
}

// Model is a built optimization model plus the bookkeeping needed to map
// solved variables back onto the domain.
type Model struct {
	ILP *milp.Model

	req        *lineup.SolveRequest
	players    []lineup.Player // sorted by id; defines variable order
	rotations  []rotationMeta
	slots      []slotDef
	benchSlot  int
	goalieSlot int // -1 when the game has no goalie

	presentIDs []lineup.PlayerID
	targets    map[lineup.PlayerID]int
}

func (m *Model) numRotations() int { return len(m.rotations) }
func (m *Model) numSlots() int     { return len(m.slots) }

// varX returns the decision variable for (player index, rotation, slot).
// Variables were registered in exactly this nested order, which is what
// pins down the engine's deterministic traversal.
func (m *Model) varX(pi, ri, si int) milp.VarID {
	return milp.VarID((pi*m.numRotations()+ri)*m.numSlots() + si)
}

// Build validates the request and constructs the ILP model.
// Contradictions that are cheap to detect up front (conflicting
// overrides, absent pinned goalies, too few present players) surface as
// lineup.ErrModelInfeasible immediately; anything subtler is left for
// the engine to prove.
func Build(req *lineup.SolveRequest) (*Model, error) {
	if err := validateConfig(req); err != nil {
		return nil, err
	}

	m := &Model{
		ILP:        milp.NewModel(),
		req:        req,
		goalieSlot: -1,
		targets:    make(map[lineup.PlayerID]int),
	}
	m.players = append([]lineup.Player(nil), req.Roster...)
	sort.Slice(m.players, func(i, j int) bool { return m.players[i].ID < m.players[j].ID })

	for period, count := range req.Divisions.Resolve(&req.Config) {
		if count > lineup.MaxDivisions {
			return nil, fmt.Errorf("period %d has %d rotations; the maximum is %d", period, count, lineup.MaxDivisions)
		}
		for i := 0; i < count; i++ {
			m.rotations = append(m.rotations, rotationMeta{period: period, ordinal: i})
		}
	}
	m.buildSlots()
	m.presentIDs = req.PresentPlayerIDs()

	if err := m.checkFieldCoverage(); err != nil {
		return nil, err
	}

	m.addVariables()
	m.addAssignmentConstraints()
	if err := m.addGoalieConstraints(); err != nil {
		return nil, err
	}
	if err := m.addOverrides(); err != nil {
		return nil, err
	}
	m.computeTargets()
	if err := m.addFairnessObjective(); err != nil {
		return nil, err
	}
	if err := m.addSkillObjective(); err != nil {
		return nil, err
	}
	if err := m.addDisruptionObjective(); err != nil {
		return nil, err
	}
	return m, nil
}

func validateConfig(req *lineup.SolveRequest) error {
	cfg := &req.Config
	if cfg.Periods < 1 {
		return fmt.Errorf("game must have at least one period")
	}
	if cfg.Formation.FieldSlotCount() < 1 {
		return fmt.Errorf("formation %q has no slots", cfg.Formation.Name)
	}
	goalies := 0
	for _, s := range cfg.Formation.Slots {
		if s.Goalie {
			goalies++
		}
	}
	if cfg.UseGoalie && goalies != 1 {
		return fmt.Errorf("formation %q must have exactly one goalie slot, has %d", cfg.Formation.Name, goalies)
	}
	seen := make(map[lineup.PlayerID]bool, len(req.Roster))
	for i := range req.Roster {
		if seen[req.Roster[i].ID] {
			return fmt.Errorf("duplicate player id %q in roster", req.Roster[i].ID)
		}
		seen[req.Roster[i].ID] = true
	}
	return nil
}

// buildSlots lays out the model's slot axis. With positions enabled every
// formation slot is its own exactly-one slot; otherwise the field
// collapses into a single slot whose capacity is the field size. The
// goalie slot stays separate in both modes so continuity can bind to it,
// and bench is always last with unbounded capacity.
func (m *Model) buildSlots() {
	cfg := &m.req.Config
	if cfg.UsePositions {
		for _, s := range cfg.Formation.Slots {
			if s.Goalie && cfg.UseGoalie {
				continue // added below, after the field slots
			}
			m.slots = append(m.slots, slotDef{id: s.ID, kind: lineup.AssignField, capacity: 1})
		}
	} else {
		capacity := cfg.Formation.FieldSlotCount()
		if cfg.UseGoalie {
			capacity--
		}
		m.slots = append(m.slots, slotDef{id: slotIDField, kind: lineup.AssignField, capacity: capacity})
	}
	if cfg.UseGoalie {
		gs, _ := cfg.Formation.GoalieSlot()
		id := gs.ID
		if id == "" {
			id = "gk"
		}
		m.goalieSlot = len(m.slots)
		m.slots = append(m.slots, slotDef{id: id, kind: lineup.AssignGoalie, capacity: 1})
	}
	m.benchSlot = len(m.slots)
	m.slots = append(m.slots, slotDef{id: slotIDBench, kind: lineup.AssignBench, capacity: -1})
}

// checkFieldCoverage verifies every rotation can fill the field from the
// players attending its period.
func (m *Model) checkFieldCoverage() error {
	need := m.req.Config.Formation.FieldSlotCount()
	for period := 0; period < m.req.Config.Periods; period++ {
		attending := 0
		for i := range m.players {
			if !m.players[i].AbsentIn(period) {
				attending++
			}
		}
		if attending < need {
			return lineup.Infeasible("period %d has %d available players for %d field slots", period, attending, need)
		}
	}
	return nil
}

func (m *Model) addVariables() {
	for pi := range m.players {
		for ri := range m.rotations {
			for si := range m.slots {
				m.ILP.AddVariable(fmt.Sprintf("x[%s][%d][%s]", m.players[pi].ID, ri, m.slots[si].id))
			}
		}
	}
}

func (m *Model) addAssignmentConstraints() {
	// Every player occupies exactly one slot per rotation; absences force
	// the bench.
	for pi := range m.players {
		for ri := range m.rotations {
			terms := make([]milp.Term, m.numSlots())
			for si := range m.slots {
				terms[si] = milp.Term{Var: m.varX(pi, ri, si), Coef: 1}
			}
			m.ILP.AddConstraint(terms, milp.EQ, 1)
			if m.players[pi].AbsentIn(m.rotations[ri].period) {
				m.ILP.Fix(m.varX(pi, ri, m.benchSlot), 1)
			}
		}
	}
	// Every non-bench slot is filled to capacity in every rotation.
	for ri := range m.rotations {
		for si, slot := range m.slots {
			if slot.capacity < 0 {
				continue
			}
			terms := make([]milp.Term, len(m.players))
			for pi := range m.players {
				terms[pi] = milp.Term{Var: m.varX(pi, ri, si), Coef: 1}
			}
			m.ILP.AddConstraint(terms, milp.EQ, int64(slot.capacity))
		}
	}
}

// addGoalieConstraints ties a per-(player, period) goalie indicator to
// the goalie slot of every rotation in that period, which is what makes
// the goalie stick for a whole period. Explicit assignments pin the
// indicator.
func (m *Model) addGoalieConstraints() error {
	if m.goalieSlot < 0 {
		for period := range m.req.Goalies {
			return lineup.Infeasible("goalie pinned for period %d but the game has no goalie", period)
		}
		return nil
	}
	eligible := m.eligibleGoalies()

	gvars := make([][]milp.VarID, len(m.players))
	for pi := range m.players {
		gvars[pi] = make([]milp.VarID, m.req.Config.Periods)
		for period := 0; period < m.req.Config.Periods; period++ {
			gvars[pi][period] = m.ILP.AddVariable(fmt.Sprintf("g[%s][%d]", m.players[pi].ID, period))
		}
	}
	for pi := range m.players {
		for ri := range m.rotations {
			g := gvars[pi][m.rotations[ri].period]
			m.ILP.AddConstraint([]milp.Term{
				{Var: m.varX(pi, ri, m.goalieSlot), Coef: 1},
				{Var: g, Coef: -1},
			}, milp.EQ, 0)
		}
		if !eligible[m.players[pi].ID] {
			for period := 0; period < m.req.Config.Periods; period++ {
				m.ILP.Fix(gvars[pi][period], 0)
			}
		}
	}
	for period := 0; period < m.req.Config.Periods; period++ {
		terms := make([]milp.Term, len(m.players))
		for pi := range m.players {
			terms[pi] = milp.Term{Var: gvars[pi][period], Coef: 1}
		}
		m.ILP.AddConstraint(terms, milp.EQ, 1)
	}
	for period, id := range m.req.Goalies {
		if period < 0 || period >= m.req.Config.Periods {
			return fmt.Errorf("goalie assignment references period %d of %d", period, m.req.Config.Periods)
		}
		pi := m.playerIndex(id)
		if pi < 0 {
			return fmt.Errorf("goalie assignment references unknown player %q", id)
		}
		if m.players[pi].AbsentIn(period) {
			return lineup.Infeasible("pinned goalie %s is absent in period %d", id, period)
		}
		if !eligible[id] {
			return lineup.Infeasible("pinned goalie %s is not goalie-eligible", id)
		}
		m.ILP.Fix(gvars[pi][period], 1)
	}
	return nil
}

// eligibleGoalies returns the goalie eligibility set. When no roster
// entry carries the flag, everyone is considered eligible; otherwise
// only flagged players are.
func (m *Model) eligibleGoalies() map[lineup.PlayerID]bool {
	anyFlagged := false
	for i := range m.players {
		if m.players[i].GoalieEligible {
			anyFlagged = true
			break
		}
	}
	out := make(map[lineup.PlayerID]bool, len(m.players))
	for i := range m.players {
		out[m.players[i].ID] = !anyFlagged || m.players[i].GoalieEligible
	}
	return out
}

func (m *Model) playerIndex(id lineup.PlayerID) int {
	for pi := range m.players {
		if m.players[pi].ID == id {
			return pi
		}
	}
	return -1
}

func (m *Model) slotIndex(id string) int {
	for si := range m.slots {
		if m.slots[si].id == id {
			return si
		}
	}
	return -1
}

type overrideKey struct {
	player   lineup.PlayerID
	rotation int
}

type slotKey struct {
	rotation int
	slot     string
}

// addOverrides pins every manual override and rejects contradictory sets
// up front rather than letting the engine churn on a model that cannot
// be satisfied.
func (m *Model) addOverrides() error {
	byPlayerRot := make(map[overrideKey]lineup.ManualOverride)
	bySlot := make(map[slotKey]lineup.PlayerID)
	fieldPins := make(map[int]int)

	for _, ov := range m.req.Overrides {
		if ov.Rotation < 0 || ov.Rotation >= m.numRotations() {
			return fmt.Errorf("override references rotation %d of %d", ov.Rotation, m.numRotations())
		}
		pi := m.playerIndex(ov.Player)
		if pi < 0 {
			return fmt.Errorf("override references unknown player %q", ov.Player)
		}
		key := overrideKey{player: ov.Player, rotation: ov.Rotation}
		if prev, ok := byPlayerRot[key]; ok {
			if prev.Assignment != ov.Assignment || prev.Position != ov.Position {
				return lineup.Infeasible("player %s is pinned to both %s and %s in rotation %d",
					ov.Player, prev.Assignment, ov.Assignment, ov.Rotation)
			}
			continue
		}
		byPlayerRot[key] = ov

		period := m.rotations[ov.Rotation].period
		if ov.Assignment.OnField() && m.players[pi].AbsentIn(period) {
			return lineup.Infeasible("player %s is absent in period %d but pinned on-field in rotation %d",
				ov.Player, period, ov.Rotation)
		}

		switch ov.Assignment {
		case lineup.AssignBench:
			m.ILP.Fix(m.varX(pi, ov.Rotation, m.benchSlot), 1)
		case lineup.AssignGoalie:
			if m.goalieSlot < 0 {
				return fmt.Errorf("override pins %s as goalie but the game has no goalie", ov.Player)
			}
			if err := m.claimSlot(bySlot, ov.Rotation, m.slots[m.goalieSlot].id, ov.Player); err != nil {
				return err
			}
			m.ILP.Fix(m.varX(pi, ov.Rotation, m.goalieSlot), 1)
		case lineup.AssignField:
			if ov.Position != "" && m.req.Config.UsePositions {
				si := m.slotIndex(ov.Position)
				if si < 0 || m.slots[si].kind != lineup.AssignField {
					return fmt.Errorf("override references unknown position %q", ov.Position)
				}
				if err := m.claimSlot(bySlot, ov.Rotation, ov.Position, ov.Player); err != nil {
					return err
				}
				m.ILP.Fix(m.varX(pi, ov.Rotation, si), 1)
			} else {
				// Pin on-field without a concrete slot: rule out bench and
				// goalie, the exactly-one constraint does the rest.
				m.ILP.Fix(m.varX(pi, ov.Rotation, m.benchSlot), 0)
				if m.goalieSlot >= 0 {
					m.ILP.Fix(m.varX(pi, ov.Rotation, m.goalieSlot), 0)
				}
				fieldPins[ov.Rotation]++
			}
		}
	}

	fieldCapacity := m.req.Config.Formation.FieldSlotCount()
	if m.goalieSlot >= 0 {
		fieldCapacity--
	}
	for ri, n := range fieldPins {
		if n > fieldCapacity {
			return lineup.Infeasible("rotation %d has %d players pinned on-field for %d field slots", ri, n, fieldCapacity)
		}
	}
	return nil
}

func (m *Model) claimSlot(bySlot map[slotKey]lineup.PlayerID, rotation int, slot string, player lineup.PlayerID) error {
	key := slotKey{rotation: rotation, slot: slot}
	if prev, ok := bySlot[key]; ok && prev != player {
		return lineup.Infeasible("slot %s in rotation %d is pinned to both %s and %s", slot, rotation, prev, player)
	}
	bySlot[key] = player
	return nil
}

// computeTargets derives each present player's fair-share rotation
// target: total field-slot-rotations divided by present players, the
// fractional remainder handed out in ascending player-id order so the
// result is reproducible.
func (m *Model) computeTargets() {
	totalFieldRotations := m.numRotations() * m.req.Config.Formation.FieldSlotCount()
	n := len(m.presentIDs)
	if n == 0 {
		return
	}
	base := totalFieldRotations / n
	rem := totalFieldRotations % n
	for i, id := range m.presentIDs {
		target := base
		if i < rem {
			target++
		}
		m.targets[id] = target
	}
}

// onFieldTerms returns +coef terms over all of a player's on-field
// variables (field slots and goalie).
func (m *Model) onFieldTerms(pi int, coef int64) []milp.Term {
	var terms []milp.Term
	for ri := range m.rotations {
		for si := range m.slots {
			if m.slots[si].kind == lineup.AssignBench {
				continue
			}
			terms = append(terms, milp.Term{Var: m.varX(pi, ri, si), Coef: coef})
		}
	}
	return terms
}

// addFairnessObjective encodes the two fairness tiers. A shared ladder
// of unit-step binaries bounds the worst per-player deviation from the
// fair-share target (each step costs weightMaxDeviation), and per-player
// ladders with incremental costs 1,3,5,... linearize the squared
// deviation used as the tie-break.
func (m *Model) addFairnessObjective() error {
	maxDev := m.numRotations()
	if maxDev == 0 || len(m.presentIDs) == 0 {
		return nil
	}

	maxSteps := make([]milp.Term, maxDev)
	for k := 0; k < maxDev; k++ {
		v := m.ILP.AddVariable(fmt.Sprintf("maxdev[%d]", k))
		maxSteps[k] = milp.Term{Var: v, Coef: 1}
		if err := m.ILP.AddObjectiveTerm(v, weightMaxDeviation); err != nil {
			return err
		}
	}

	for _, id := range m.presentIDs {
		pi := m.playerIndex(id)
		target := int64(m.targets[id])

		steps := make([]milp.Term, maxDev)
		for k := 0; k < maxDev; k++ {
			v := m.ILP.AddVariable(fmt.Sprintf("dev[%s][%d]", id, k))
			steps[k] = milp.Term{Var: v, Coef: 1}
			if err := m.ILP.AddObjectiveTerm(v, weightSquaredDev*int64(2*k+1)); err != nil {
				return err
			}
		}

		// played - target <= dev  and  target - played <= dev, for both
		// the per-player ladder and the shared max ladder.
		played := m.onFieldTerms(pi, 1)
		negPlayed := m.onFieldTerms(pi, -1)
		m.ILP.AddConstraint(append(append([]milp.Term(nil), steps...), negPlayed...), milp.GE, -target)
		m.ILP.AddConstraint(append(append([]milp.Term(nil), steps...), played...), milp.GE, target)
		m.ILP.AddConstraint(append(append([]milp.Term(nil), maxSteps...), negPlayed...), milp.GE, -target)
		m.ILP.AddConstraint(append(append([]milp.Term(nil), maxSteps...), played...), milp.GE, target)
	}
	return nil
}

// addSkillObjective penalizes rotations whose on-field skill total
// drifts from the roster's ideal, keeping simultaneous lineups balanced.
func (m *Model) addSkillObjective() error {
	fieldCount := m.req.Config.Formation.FieldSlotCount()
	for ri := range m.rotations {
		period := m.rotations[ri].period
		sum, n := 0, 0
		for pi := range m.players {
			if !m.players[pi].AbsentIn(period) {
				sum += m.players[pi].Skill
				n++
			}
		}
		if n == 0 {
			continue
		}
		target := int64(math.Round(float64(sum) / float64(n) * float64(fieldCount)))

		maxSkillDev := fieldCount * 5
		steps := make([]milp.Term, maxSkillDev)
		for k := 0; k < maxSkillDev; k++ {
			v := m.ILP.AddVariable(fmt.Sprintf("skill[%d][%d]", ri, k))
			steps[k] = milp.Term{Var: v, Coef: 1}
			if err := m.ILP.AddObjectiveTerm(v, weightSkill); err != nil {
				return err
			}
		}

		var skill, negSkill []milp.Term
		for pi := range m.players {
			coef := int64(m.players[pi].Skill)
			for si := range m.slots {
				if m.slots[si].kind == lineup.AssignBench {
					continue
				}
				skill = append(skill, milp.Term{Var: m.varX(pi, ri, si), Coef: coef})
				negSkill = append(negSkill, milp.Term{Var: m.varX(pi, ri, si), Coef: -coef})
			}
		}
		m.ILP.AddConstraint(append(append([]milp.Term(nil), steps...), negSkill...), milp.GE, -target)
		m.ILP.AddConstraint(append(append([]milp.Term(nil), steps...), skill...), milp.GE, target)
	}
	return nil
}

// addDisruptionObjective adds a changed-slot indicator per player and
// consecutive rotation pair. The indicator is forced up whenever the
// player occupies a slot they did not hold in the previous rotation, so
// unnecessary shuffling costs a little even when fairness is unaffected.
func (m *Model) addDisruptionObjective() error {
	for pi := range m.players {
		for ri := 1; ri < m.numRotations(); ri++ {
			c := m.ILP.AddVariable(fmt.Sprintf("chg[%s][%d]", m.players[pi].ID, ri))
			if err := m.ILP.AddObjectiveTerm(c, weightDisruption); err != nil {
				return err
			}
			for si := range m.slots {
				m.ILP.AddConstraint([]milp.Term{
					{Var: c, Coef: 1},
					{Var: m.varX(pi, ri, si), Coef: -1},
					{Var: m.varX(pi, ri-1, si), Coef: 1},
				}, milp.GE, 0)
			}
		}
	}
	return nil
}
