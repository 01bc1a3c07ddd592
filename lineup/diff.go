package lineup

import "sort"

// TransitionKind classifies how a player's state changes between two
// adjacent rotations.
type TransitionKind string

const (
	// TransitionIn is bench to on-field.
	TransitionIn TransitionKind = "in"
	// TransitionOut is on-field to bench.
	TransitionOut TransitionKind = "out"
	// TransitionRole is an on-field role change (field player to goalie
	// or back) that is neither a pure in nor out.
	TransitionRole TransitionKind = "role"
	// TransitionPosition is the same assignment at a different field
	// position. Only produced when positions are in use.
	TransitionPosition TransitionKind = "position"
)

// Transition is one player's change between two adjacent rotations.
type Transition struct {
	Player       PlayerID       `json:"player"`
	Kind         TransitionKind `json:"kind"`
	From         Assignment     `json:"from"`
	To           Assignment     `json:"to"`
	FromPosition string         `json:"fromPosition,omitempty"`
	ToPosition   string         `json:"toPosition,omitempty"`
}

// Diff compares two adjacent rotations and returns the list of player
// transitions, ordered by player id. A nil next rotation (the last
// rotation of the game) yields an empty list. Players appearing in only
// one rotation are treated as benched in the other. Pure function; used
// for presentation only.
func Diff(current, next *Rotation) []Transition {
	if current == nil || next == nil {
		return nil
	}
	idset := make(map[PlayerID]struct{}, len(current.Assignments)+len(next.Assignments))
	for id := range current.Assignments {
		idset[id] = struct{}{}
	}
	for id := range next.Assignments {
		idset[id] = struct{}{}
	}
	ids := make([]PlayerID, 0, len(idset))
	for id := range idset {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []Transition
	for _, id := range ids {
		from := current.Assignments[id] // zero value is AssignBench
		to := next.Assignments[id]
		fromPos := current.FieldPositions[id]
		toPos := next.FieldPositions[id]
		if from == to && fromPos == toPos {
			continue
		}
		tr := Transition{
			Player: id, From: from, To: to,
			FromPosition: fromPos, ToPosition: toPos,
		}
		switch {
		case !from.OnField() && to.OnField():
			tr.Kind = TransitionIn
		case from.OnField() && !to.OnField():
			tr.Kind = TransitionOut
		case from != to:
			tr.Kind = TransitionRole
		default:
			tr.Kind = TransitionPosition
		}
		out = append(out, tr)
	}
	return out
}
