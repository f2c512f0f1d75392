package domain

import "fmt"

// Step identifies one stage of the four-step diagnostic pipeline.
type Step int

// Pipeline steps in execution order. No step is skipped or reordered.
const (
	// StepPM1Raw scores each question against the rubric (six model calls).
	StepPM1Raw Step = 1

	// StepPM5Raw re-scores each question with reverse logic, seeded with the
	// PM1Raw result for the same question (six model calls).
	StepPM5Raw Step = 2

	// StepPM1Final aggregates PM1Raw scores deterministically and requests
	// narrative fields from the model (one call).
	StepPM1Final Step = 3

	// StepPM5Final requests a consistency judgment over the PM1Final payload
	// (one call); the verdict status is recomputed from the numeric score.
	StepPM5Final Step = 4
)

// String returns the step's track name as used in logs and result rows.
func (s Step) String() string {
	switch s {
	case StepPM1Raw:
		return "PM1Raw"
	case StepPM5Raw:
		return "PM5Raw"
	case StepPM1Final:
		return "PM1Final"
	case StepPM5Final:
		return "PM5Final"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// RawQuestionScore is one question's judgment from a raw scoring step.
// Created by the response parser from model output and immutable afterward.
// The AES components and evidence fields are populated by step 1; the
// difference note by step 2.
type RawQuestionScore struct {
	// PrimaryScore rates the question's primary skill, 0..5.
	PrimaryScore float64 `json:"primary_score" validate:"min=0,max=5"`

	// SubScore rates the secondary skill, 0..5.
	SubScore float64 `json:"sub_score" validate:"min=0,max=5"`

	// ProcessScore rates the process skill, 0..5.
	ProcessScore float64 `json:"process_score" validate:"min=0,max=5"`

	// AESClarity, AESLogic and AESRelevance are the auxiliary evaluation
	// components, 0..5 each. Step 1 only.
	AESClarity   float64 `json:"aes_clarity" validate:"min=0,max=5"`
	AESLogic     float64 `json:"aes_logic" validate:"min=0,max=5"`
	AESRelevance float64 `json:"aes_relevance" validate:"min=0,max=5"`

	// Evidence quotes the answer passages the judgment rests on. Step 1 only.
	Evidence string `json:"evidence,omitempty"`

	// JudgmentReason explains the scores. Step 1 only.
	JudgmentReason string `json:"judgment_reason,omitempty"`

	// DifferenceNote describes how the reverse-logic score differs from the
	// step-1 score for the same question. Step 2 only.
	DifferenceNote string `json:"difference_note,omitempty"`
}

// Validate checks the score ranges.
func (s *RawQuestionScore) Validate() error { return validate.Struct(s) }

// ScoreSet holds one step's six raw scores keyed by question ID.
// Iteration follows QuestionIDs order; the map itself carries no order.
type ScoreSet map[string]RawQuestionScore

// Complete reports whether all six questions are present.
func (s ScoreSet) Complete() bool {
	for _, qid := range QuestionIDs() {
		if _, ok := s[qid]; !ok {
			return false
		}
	}
	return true
}
