package lineup

// ProgressStep is a stable token consumed by a presentation or
// localization layer; never raw prose.
type ProgressStep string

const (
	StepInitializing          ProgressStep = "initializing"
	StepCalculatingGoalie     ProgressStep = "calculating_goalie"
	StepGeneratingPatterns    ProgressStep = "generating_patterns"
	StepSearching             ProgressStep = "searching"
	StepBuildingSchedule      ProgressStep = "building_schedule"
	StepCheckingOptimizations ProgressStep = "checking_optimizations"
	StepComplete              ProgressStep = "complete"
)

// Progress is one solver progress event. Percent is monotonically
// non-decreasing within a single solve. Combinations is only meaningful
// for StepSearching, where it carries the number of combinations the
// engine has explored so far.
type Progress struct {
	Step         ProgressStep `json:"step"`
	Percent      int          `json:"percent"`
	Combinations uint64       `json:"combinations,omitempty"`
}
