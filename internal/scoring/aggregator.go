// Package scoring implements the deterministic arithmetic of the diagnosis:
// category averaging, the weighted total, the AES composite, score-level
// classification, and the consistency verdict. Every function here is pure;
// identical inputs always yield identical results, and any computed value
// that leaves its valid range is an invariant violation, never clamped.
package scoring

import (
	"math"

	"github.com/aicats/pmdiag/internal/domain"
)

// CategoryField selects which rubric category an average is taken over.
type CategoryField int

const (
	// CategoryPrimary averages primary_score per primary skill.
	CategoryPrimary CategoryField = iota

	// CategorySub averages sub_score per sub skill.
	CategorySub

	// CategoryProcess averages process_score per process item.
	CategoryProcess
)

// CategoryAverage averages the selected category's score across every
// question mapped to each skill. The Q→skill mapping is one-to-one per
// category today, making each "average" a single value, but the arithmetic
// holds when several questions share a skill.
func CategoryAverage(scores domain.ScoreSet, questions domain.QuestionSet, field CategoryField) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)

	for _, qid := range domain.QuestionIDs() {
		meta, ok := questions[qid]
		if !ok {
			continue
		}
		score, ok := scores[qid]
		if !ok {
			continue
		}

		var skill string
		var value float64
		switch field {
		case CategoryPrimary:
			skill, value = meta.PrimarySkill, score.PrimaryScore
		case CategorySub:
			skill, value = meta.SubSkill, score.SubScore
		case CategoryProcess:
			skill, value = meta.ProcessSkill, score.ProcessScore
		}
		if skill == "" {
			continue
		}
		sums[skill] += value
		counts[skill]++
	}

	averages := make(map[string]float64, len(sums))
	for skill, sum := range sums {
		averages[skill] = sum / float64(counts[skill])
	}
	return averages
}

// TotalScore computes the weighted total from the three category-average
// maps: 0.6*mean(primary) + 0.2*mean(sub) + 0.2*mean(process).
// Full precision is retained; rounding is a display concern (Round1).
func TotalScore(primaryAvg, subAvg, processAvg map[string]float64) float64 {
	return domain.PrimaryWeight*mean(primaryAvg) +
		domain.SubWeight*mean(subAvg) +
		domain.ProcessWeight*mean(processAvg)
}

// AESScore is the auxiliary evaluation composite for one question:
// mean(clarity, logic, relevance). Excluded from the weighted total.
func AESScore(clarity, logic, relevance float64) float64 {
	return (clarity + logic + relevance) / 3
}

// Round1 rounds to one decimal for display. Internal values stay at full
// precision.
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// ScoreLevel classifies a score for narrative reporting. Never used for
// control flow.
func ScoreLevel(x float64) string {
	switch {
	case x >= 4.0:
		return domain.ScoreLevelStrong
	case x >= 2.6:
		return domain.ScoreLevelStandard
	default:
		return domain.ScoreLevelWeak
	}
}

// Aggregate computes the numeric half of the PM01 Final result from the six
// step-1 raw scores. Narrative fields are left empty for the step-3 model
// call to fill. Returns an invariant violation if any computed value leaves
// [0,5], which would indicate an upstream parser bug.
func Aggregate(step1 domain.ScoreSet, questions domain.QuestionSet) (*domain.AggregatedResult, error) {
	if !step1.Complete() {
		return nil, &domain.InvariantError{Field: "step1", Message: "raw score set incomplete"}
	}

	primaryAvg := CategoryAverage(step1, questions, CategoryPrimary)
	subAvg := CategoryAverage(step1, questions, CategorySub)
	processAvg := CategoryAverage(step1, questions, CategoryProcess)

	aes := make(map[string]float64, domain.QuestionCount)
	perQuestion := make(map[string]domain.QuestionBreakdown, domain.QuestionCount)
	for _, qid := range domain.QuestionIDs() {
		score := step1[qid]
		aesScore := AESScore(score.AESClarity, score.AESLogic, score.AESRelevance)
		aes[qid] = aesScore
		perQuestion[qid] = domain.QuestionBreakdown{
			PrimaryScore:   score.PrimaryScore,
			SubScore:       score.SubScore,
			ProcessScore:   score.ProcessScore,
			AESScore:       aesScore,
			Evidence:       score.Evidence,
			JudgmentReason: score.JudgmentReason,
		}
	}

	result := &domain.AggregatedResult{
		ScoresPrimary: primaryAvg,
		ScoresSub:     subAvg,
		Process:       processAvg,
		AES:           aes,
		TotalScore:    TotalScore(primaryAvg, subAvg, processAvg),
		PerQuestion:   perQuestion,
	}

	if result.TotalScore < 0 || result.TotalScore > 5 {
		return nil, &domain.InvariantError{Field: "total_score", Value: result.TotalScore}
	}
	for _, m := range []map[string]float64{primaryAvg, subAvg, processAvg, aes} {
		for field, v := range m {
			if v < 0 || v > 5 {
				return nil, &domain.InvariantError{Field: field, Value: v}
			}
		}
	}
	return result, nil
}

func mean(m map[string]float64) float64 {
	if len(m) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m {
		sum += v
	}
	return sum / float64(len(m))
}
