package shell

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/samber/lo"

	"github.com/rotaplanhq/rotaplan/lineup"
)

func playerName(req *lineup.SolveRequest, id lineup.PlayerID) string {
	if p := req.PlayerByID(id); p != nil && p.Name != "" {
		return p.Name
	}
	return string(id)
}

func joinIDs(ids []lineup.PlayerID) string {
	return strings.Join(lo.Map(ids, func(id lineup.PlayerID, _ int) string {
		return string(id)
	}), ", ")
}

func sortedIDs(rot *lineup.Rotation) []lineup.PlayerID {
	ids := lo.Keys(rot.Assignments)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func renderRoster(req *lineup.SolveRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-6s %-20s %-5s %s\n", "id", "name", "skill", "notes")
	for i := range req.Roster {
		p := &req.Roster[i]
		var notes []string
		if p.GoalieEligible {
			notes = append(notes, "goalie")
		}
		if len(p.AbsentPeriods) > 0 {
			notes = append(notes, fmt.Sprintf("absent %v", p.AbsentPeriods))
		}
		fmt.Fprintf(&sb, "%-6s %-20s %-5d %s\n", p.ID, p.Name, p.Skill, strings.Join(notes, ", "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderSchedule(req *lineup.SolveRequest, sched *lineup.RotationSchedule) string {
	var sb strings.Builder
	if sched.Approximate {
		sb.WriteString("(approximate: search budget was exhausted)\n")
	}
	lastPeriod := -1
	for ri := range sched.Rotations {
		rot := &sched.Rotations[ri]
		if rot.Period != lastPeriod {
			fmt.Fprintf(&sb, "period %d\n", rot.Period+1)
			lastPeriod = rot.Period
		}
		fmt.Fprintf(&sb, "  rotation %d:", ri+1)
		var bench []string
		for _, id := range sortedIDs(rot) {
			switch rot.Assignments[id] {
			case lineup.AssignGoalie:
				fmt.Fprintf(&sb, " %s(GK)", playerName(req, id))
			case lineup.AssignField:
				if pos, ok := rot.FieldPositions[id]; ok {
					fmt.Fprintf(&sb, " %s(%s)", playerName(req, id), pos)
				} else {
					fmt.Fprintf(&sb, " %s", playerName(req, id))
				}
			default:
				bench = append(bench, playerName(req, id))
			}
		}
		if len(bench) > 0 {
			fmt.Fprintf(&sb, " | bench: %s", strings.Join(bench, ", "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderStats(req *lineup.SolveRequest, sched *lineup.RotationSchedule) string {
	ids := lo.Keys(sched.Stats)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-20s %7s %7s %7s %6s\n", "player", "played", "benched", "goalie", "play%")
	for _, id := range ids {
		st := sched.Stats[id]
		fmt.Fprintf(&sb, "%-20s %7d %7d %7d %5d%%\n",
			playerName(req, id), st.Played, st.Benched, st.Goalie, st.PlayPct)
	}
	present := req.PresentPlayerIDs()
	fmt.Fprintf(&sb, "spread: %d extra rotation(s), max play %d%%",
		sched.ExtraCount(present), sched.MaxPlayPercent(present))
	return sb.String()
}

// renderPlayHistogram plots the distribution of play percentages, the
// quickest way to spot a lopsided schedule at a glance.
func renderPlayHistogram(sched *lineup.RotationSchedule) string {
	pcts := lo.Map(lo.Values(sched.Stats), func(st lineup.PlayerStats, _ int) float64 {
		return float64(st.PlayPct)
	})
	if len(pcts) == 0 {
		return ""
	}
	bins := 5
	if len(pcts) < bins {
		bins = len(pcts)
	}
	var sb strings.Builder
	sb.WriteString("play% distribution:\n")
	if err := histogram.Fprint(&sb, histogram.Hist(bins, pcts), histogram.Linear(30)); err != nil {
		return ""
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderTransitions(req *lineup.SolveRequest, n int, transitions []lineup.Transition) string {
	if len(transitions) == 0 {
		return fmt.Sprintf("no changes entering rotation %d", n)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "changes entering rotation %d:\n", n)
	for _, tr := range transitions {
		name := playerName(req, tr.Player)
		switch tr.Kind {
		case lineup.TransitionIn:
			fmt.Fprintf(&sb, "  %s comes on\n", name)
		case lineup.TransitionOut:
			fmt.Fprintf(&sb, "  %s comes off\n", name)
		case lineup.TransitionRole:
			fmt.Fprintf(&sb, "  %s switches from %s to %s\n", name, tr.From, tr.To)
		case lineup.TransitionPosition:
			fmt.Fprintf(&sb, "  %s moves from %s to %s\n", name, tr.FromPosition, tr.ToPosition)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderSuggestion(sug *lineup.OptimizationSuggestion) string {
	if len(sug.Candidates) == 0 {
		return "no division change improves on the current schedule"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "current: %d extra rotation(s), max play %d%%\n",
		sug.CurrentExtraCount, sug.CurrentMaxPercent)
	for i, c := range sug.Candidates {
		fmt.Fprintf(&sb, "%2d. period %d -> %d rotations: %d extra, max play %d%%\n",
			i+1, c.Period+1, c.Count, c.ExpectedExtraCount, c.ExpectedMaxPercent)
	}
	return strings.TrimRight(sb.String(), "\n")
}
