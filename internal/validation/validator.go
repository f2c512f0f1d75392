// Package validation implements respondent eligibility checks.
// Validation is a pure predicate: it never calls the store or the model, and
// it never panics on malformed input. Callers are responsible for logging
// rejections and updating status markers.
package validation

import (
	"fmt"
	"strings"

	"github.com/aicats/pmdiag/internal/domain"
)

// Rejection explains why a respondent was not eligible for processing.
// It wraps domain.ErrValidationRejected for taxonomy classification.
type Rejection struct {
	RespondentID string
	Reasons      []string

	// AlreadyComplete is set when the status carried a completion marker.
	// Finished respondents are skipped, never re-rejected, whatever other
	// defects their row carries; the terminal marker must survive.
	AlreadyComplete bool
}

// Error joins the rejection reasons.
func (r *Rejection) Error() string {
	return fmt.Sprintf("respondent %s rejected: %s", r.RespondentID, strings.Join(r.Reasons, "; "))
}

// Unwrap ties Rejection into the shared failure taxonomy.
func (r *Rejection) Unwrap() error { return domain.ErrValidationRejected }

// Validator checks respondents against the run's eligibility rules.
// Completion markers are configuration: a respondent whose status matches one
// is already done and must not be re-processed.
type Validator struct {
	completionMarkers map[string]struct{}
}

// New creates a validator with the configured completion markers.
// Marker comparison is case-insensitive after trimming, matching how the
// markers are written back by the pipeline.
func New(completionMarkers []string) *Validator {
	markers := make(map[string]struct{}, len(completionMarkers))
	for _, m := range completionMarkers {
		markers[normalizeMarker(m)] = struct{}{}
	}
	return &Validator{completionMarkers: markers}
}

// Validate returns nil for an eligible respondent, or a *Rejection carrying
// every reason found. It accumulates reasons instead of stopping at the
// first so the validation log tells the whole story.
func (v *Validator) Validate(r *domain.Respondent) error {
	var reasons []string
	var complete bool

	if strings.TrimSpace(r.ID) == "" {
		reasons = append(reasons, "missing respondent ID")
	}

	if _, done := v.completionMarkers[normalizeMarker(r.Status)]; done {
		complete = true
		reasons = append(reasons, fmt.Sprintf("status %q marks diagnosis complete", r.Status))
	}

	for _, qid := range domain.QuestionIDs() {
		pair, ok := r.Answers[qid]
		if !ok || strings.TrimSpace(pair.Answer) == "" {
			reasons = append(reasons, fmt.Sprintf("%s answer is empty", qid))
			continue
		}
		if length := len([]rune(pair.Answer)); length > domain.MaxAnswerLength {
			reasons = append(reasons, fmt.Sprintf("%s answer exceeds %d characters (%d)", qid, domain.MaxAnswerLength, length))
		}
	}

	if len(reasons) == 0 {
		return nil
	}
	return &Rejection{RespondentID: r.ID, Reasons: reasons, AlreadyComplete: complete}
}

func normalizeMarker(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
