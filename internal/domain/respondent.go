// Package domain defines the core types of the PM01/PM05 diagnosis pipeline:
// respondents and their answers, per-question raw scores, aggregated results,
// consistency verdicts, and the per-respondent run record. It owns the
// deterministic classification rules (score levels, consistency status
// thresholds) and the structural validation of every artifact the pipeline
// produces.
//
// Diagnosis Model:
//   - Six questions Q1..Q6, each mapped one-to-one to a primary, sub, and
//     process skill through QuestionMeta.
//   - PM01 track: per-question raw scores aggregated into a weighted total.
//   - PM05 track: reverse-logic scores and a consistency verdict over PM01.
package domain

import "strings"

// QuestionCount is the number of diagnosis questions per respondent.
const QuestionCount = 6

// MaxAnswerLength caps free-text answers before they reach a prompt.
// Longer answers are truncated on read, matching the intake form limit.
const MaxAnswerLength = 400

// QuestionIDs returns the question identifiers in diagnosis order.
// Returns a fresh slice to prevent mutation.
func QuestionIDs() []string {
	return []string{"Q1", "Q2", "Q3", "Q4", "Q5", "Q6"}
}

// AnswerPair holds one free-text answer and the respondent's stated reason.
type AnswerPair struct {
	Answer string `json:"answer"`
	Reason string `json:"reason"`
}

// Respondent is one survey participant read from the store.
// Status is the only mutable field; the pipeline updates it through the
// store writer after a step completes or a terminal outcome is reached.
type Respondent struct {
	// ID identifies the respondent across result and log rows.
	ID string `json:"id" validate:"required"`

	// Name is display-only and may be empty.
	Name string `json:"name"`

	// Answers holds the six answer/reason pairs keyed by question ID.
	Answers map[string]AnswerPair `json:"answers" validate:"required"`

	// Status carries the progress marker from the store
	// (empty, per-step markers, or a completion marker).
	Status string `json:"status"`

	// RowIndex is the source row in the respondents table, kept for logs.
	RowIndex int `json:"row_index"`
}

// Answer returns the sanitized answer text for a question ID.
// Missing questions yield an empty string.
func (r *Respondent) Answer(qid string) AnswerPair {
	pair, ok := r.Answers[qid]
	if !ok {
		return AnswerPair{}
	}
	return AnswerPair{
		Answer: SanitizeAnswer(pair.Answer),
		Reason: SanitizeAnswer(pair.Reason),
	}
}

// SanitizeAnswer trims whitespace and truncates to MaxAnswerLength runes.
func SanitizeAnswer(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > MaxAnswerLength {
		return string(runes[:MaxAnswerLength])
	}
	return s
}

// QuestionMeta maps one question to its rubric skills.
// The six-row table is loaded once per run and treated as immutable.
type QuestionMeta struct {
	// Number is the 1-based question number (1..6).
	Number int `json:"number" validate:"required,min=1"`

	// ID is the question identifier ("Q1".."Q6").
	ID string `json:"id" validate:"required"`

	// Text is the question shown to the respondent.
	Text string `json:"text" validate:"required"`

	// PrimarySkill is the primary rubric category this question measures.
	PrimarySkill string `json:"primary_skill" validate:"required"`

	// SubSkill is the secondary rubric category.
	SubSkill string `json:"sub_skill" validate:"required"`

	// ProcessSkill is the process rubric item.
	ProcessSkill string `json:"process_skill" validate:"required"`
}

// QuestionSet is the immutable question table keyed by question ID.
type QuestionSet map[string]QuestionMeta

// Validate checks that the set covers exactly Q1..Q6 with valid metadata.
func (qs QuestionSet) Validate() error {
	for _, qid := range QuestionIDs() {
		meta, ok := qs[qid]
		if !ok {
			return &InvariantError{Field: qid, Message: "question metadata missing"}
		}
		if err := validate.Struct(meta); err != nil {
			return err
		}
	}
	return nil
}
