package models

import (
	"sort"
	"time"
)

// StudentAnswer is one stored answer. Serialized as a flat record inside the
// session's answers column.
type StudentAnswer struct {
	QuestionID        string     `json:"question_id"`
	SelectedOptionIDs []string   `json:"selected_option_ids"`
	TextAnswer        string     `json:"text_answer"`
	PointsAwarded     int        `json:"points_awarded"`
	PendingManual     bool       `json:"pending_manual"`
	AnsweredAt        time.Time  `json:"answered_at"`
	GradedAt          *time.Time `json:"graded_at,omitempty"`
}

// GradeResult is what a grading function awards for one answer.
type GradeResult struct {
	Points        int
	PendingManual bool
}

// GradingFunc scores one answer against its question. It must be pure.
type GradingFunc func(question *Question, answer StudentAnswer) GradeResult

// normalizeSelection deduplicates and sorts option ids so selections compare as sets.
func normalizeSelection(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func copyAnswer(a StudentAnswer) StudentAnswer {
	a.SelectedOptionIDs = append([]string(nil), a.SelectedOptionIDs...)
	if a.GradedAt != nil {
		t := *a.GradedAt
		a.GradedAt = &t
	}
	return a
}
