package lineup

import (
	"testing"

	"github.com/matryer/is"
)

func rot(assignments map[PlayerID]Assignment) *Rotation {
	return &Rotation{Assignments: assignments}
}

func TestDiffInOut(t *testing.T) {
	is := is.New(t)
	a := rot(map[PlayerID]Assignment{"p1": AssignField, "p2": AssignBench})
	b := rot(map[PlayerID]Assignment{"p1": AssignBench, "p2": AssignField})

	trs := Diff(a, b)
	is.Equal(len(trs), 2)
	is.Equal(trs[0].Player, PlayerID("p1"))
	is.Equal(trs[0].Kind, TransitionOut)
	is.Equal(trs[1].Player, PlayerID("p2"))
	is.Equal(trs[1].Kind, TransitionIn)
}

func TestDiffIdentical(t *testing.T) {
	is := is.New(t)
	a := rot(map[PlayerID]Assignment{"p1": AssignField, "p2": AssignBench})
	is.Equal(len(Diff(a, a)), 0)
}

func TestDiffAbsentNext(t *testing.T) {
	is := is.New(t)
	a := rot(map[PlayerID]Assignment{"p1": AssignField})
	is.Equal(len(Diff(a, nil)), 0)
}

func TestDiffRoleChange(t *testing.T) {
	is := is.New(t)
	a := rot(map[PlayerID]Assignment{"p1": AssignField, "p2": AssignGoalie})
	b := rot(map[PlayerID]Assignment{"p1": AssignGoalie, "p2": AssignField})

	trs := Diff(a, b)
	is.Equal(len(trs), 2)
	is.Equal(trs[0].Kind, TransitionRole)
	is.Equal(trs[1].Kind, TransitionRole)
}

func TestDiffPositionChange(t *testing.T) {
	is := is.New(t)
	a := &Rotation{
		Assignments:    map[PlayerID]Assignment{"p1": AssignField},
		FieldPositions: map[PlayerID]string{"p1": "lw"},
	}
	b := &Rotation{
		Assignments:    map[PlayerID]Assignment{"p1": AssignField},
		FieldPositions: map[PlayerID]string{"p1": "rw"},
	}
	trs := Diff(a, b)
	is.Equal(len(trs), 1)
	is.Equal(trs[0].Kind, TransitionPosition)
	is.Equal(trs[0].FromPosition, "lw")
	is.Equal(trs[0].ToPosition, "rw")
}

func TestDiffUnionTreatsMissingAsBench(t *testing.T) {
	is := is.New(t)
	a := rot(map[PlayerID]Assignment{"p1": AssignField})
	b := rot(map[PlayerID]Assignment{"p2": AssignField})

	trs := Diff(a, b)
	is.Equal(len(trs), 2)
	is.Equal(trs[0].Kind, TransitionOut)
	is.Equal(trs[1].Kind, TransitionIn)
}
