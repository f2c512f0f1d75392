package pipeline

import (
	"fmt"

	"github.com/aicats/pmdiag/internal/domain"
)

// stepOrder fixes the artifact production order. Steps always run 1,2,3,4;
// there is no partial step credit and no resumption from an in-flight step.
var stepOrder = []domain.Step{
	domain.StepPM1Raw,
	domain.StepPM5Raw,
	domain.StepPM1Final,
	domain.StepPM5Final,
}

// stepMarkers are the status values written after each completed step.
// The step-4 marker doubles as the completion marker.
var stepMarkers = map[domain.Step]string{
	domain.StepPM1Raw:   "PM1Raw完了",
	domain.StepPM5Raw:   "PM5Raw完了",
	domain.StepPM1Final: "PM1Final完了",
	domain.StepPM5Final: "診断完了",
}

// RejectedMarker is the status written for validation rejections.
const RejectedMarker = "検証NG"

// advance returns the state after completing step from state s. Transitions
// are single-direction; any out-of-order completion is a programming error
// surfaced as an invariant violation.
func advance(s domain.RunState, step domain.Step) (domain.RunState, error) {
	type transition struct {
		from domain.RunState
		step domain.Step
	}
	next, ok := map[transition]domain.RunState{
		{domain.StateValidated, domain.StepPM1Raw}:   domain.StateStep1Done,
		{domain.StateStep1Done, domain.StepPM5Raw}:   domain.StateStep2Done,
		{domain.StateStep2Done, domain.StepPM1Final}: domain.StateStep3Done,
		{domain.StateStep3Done, domain.StepPM5Final}: domain.StateStep4Done,
	}[transition{s, step}]
	if !ok {
		return s, &domain.InvariantError{
			Field:   "state",
			Message: fmt.Sprintf("illegal transition: %s cannot complete from %s", step, s),
		}
	}
	return next, nil
}
