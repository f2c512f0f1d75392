package domain

import "time"

// RunState enumerates the orchestrator's states for one respondent.
// Transitions are single-direction:
//
//	Validated -> Step1Done -> Step2Done -> Step3Done -> Step4Done
//
// with failure exits Rejected (from Validated) and Failed from any in-flight
// step. Step4Done is the only terminal success state.
type RunState string

const (
	StateValidated RunState = "validated"
	StateStep1Done RunState = "step1_done"
	StateStep2Done RunState = "step2_done"
	StateStep3Done RunState = "step3_done"
	StateStep4Done RunState = "step4_done"
	StateRejected  RunState = "rejected"
	StateFailed    RunState = "failed"
)

// Terminal reports whether the state ends a respondent's run.
func (s RunState) Terminal() bool {
	return s == StateStep4Done || s == StateRejected || s == StateFailed
}

// OutcomeKind classifies the terminal result of one respondent's run.
type OutcomeKind string

const (
	// OutcomeSucceeded means all four steps completed.
	OutcomeSucceeded OutcomeKind = "succeeded"

	// OutcomeValidationRejected means the respondent never reached step 1.
	OutcomeValidationRejected OutcomeKind = "validation-rejected"

	// OutcomeStepFailed means a step failed after exhausting its options.
	OutcomeStepFailed OutcomeKind = "step-failed"
)

// Outcome is the terminal result carried by a DiagnosticRunRecord.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// FailedStep is set only for OutcomeStepFailed.
	FailedStep Step `json:"failed_step,omitempty"`

	// Reason carries rejection reasons or the failure's error text.
	Reason string `json:"reason,omitempty"`
}

// DiagnosticRunRecord collects everything one orchestration run produced for
// a respondent. A later failure does not undo earlier steps: the record
// always carries whatever prefix of step artifacts completed. Owned by
// exactly one run and discarded after being written out.
type DiagnosticRunRecord struct {
	RunID        string   `json:"run_id"`
	RespondentID string   `json:"respondent_id"`
	State        RunState `json:"state"`
	Outcome      Outcome  `json:"outcome"`

	// Step1 and Step2 hold the raw score sets (six entries each).
	Step1 ScoreSet `json:"step1,omitempty"`
	Step2 ScoreSet `json:"step2,omitempty"`

	// PM01Final and PM05Final are set as steps 3 and 4 complete.
	PM01Final *AggregatedResult  `json:"pm01_final,omitempty"`
	PM05Final *ConsistencyResult `json:"pm05_final,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Succeeded reports whether the run reached terminal success.
func (r *DiagnosticRunRecord) Succeeded() bool {
	return r.Outcome.Kind == OutcomeSucceeded
}
