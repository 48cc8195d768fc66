package assessment

import "github.com/shopspring/decimal"

// Summary averages the scores of several sentence assessments
type Summary struct {
	Sentences          int             `json:"sentences"`
	AccuracyScore      decimal.Decimal `json:"accuracy_score"`
	FluencyScore       decimal.Decimal `json:"fluency_score"`
	CompletenessScore  decimal.Decimal `json:"completeness_score"`
	PronunciationScore decimal.Decimal `json:"pronunciation_score"`
}

// Summarize averages results, rounded to two decimal places. Nil results are
// skipped; with no results every score is zero.
func Summarize(results []*Result) Summary {
	var s Summary
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Sentences++
		s.AccuracyScore = s.AccuracyScore.Add(r.AccuracyScore)
		s.FluencyScore = s.FluencyScore.Add(r.FluencyScore)
		s.CompletenessScore = s.CompletenessScore.Add(r.CompletenessScore)
		s.PronunciationScore = s.PronunciationScore.Add(r.PronunciationScore)
	}

	if s.Sentences == 0 {
		return s
	}

	n := decimal.NewFromInt(int64(s.Sentences))
	s.AccuracyScore = s.AccuracyScore.DivRound(n, 2)
	s.FluencyScore = s.FluencyScore.DivRound(n, 2)
	s.CompletenessScore = s.CompletenessScore.DivRound(n, 2)
	s.PronunciationScore = s.PronunciationScore.DivRound(n, 2)

	return s
}
