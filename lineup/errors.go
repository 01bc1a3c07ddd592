package lineup

import (
	"errors"
	"fmt"
)

// ErrModelInfeasible is the sentinel for a solve whose hard constraints
// (overrides, absences, goalie pins) admit no assignment at all. Use
// errors.Is against this; the concrete error carries the reason.
var ErrModelInfeasible = errors.New("schedule model is infeasible")

// InfeasibleError reports why a model could not be satisfied. It is
// surfaced to the caller so a user-facing message can be rendered; the
// previously accepted schedule, if any, stays untouched.
type InfeasibleError struct {
	Reason string
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("schedule model is infeasible: %s", e.Reason)
}

func (e *InfeasibleError) Unwrap() error {
	return ErrModelInfeasible
}

// Infeasible constructs an InfeasibleError with a formatted reason.
func Infeasible(format string, args ...any) error {
	return &InfeasibleError{Reason: fmt.Sprintf(format, args...)}
}
