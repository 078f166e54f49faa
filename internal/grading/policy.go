// Package grading scores a single answer against its question. Everything
// here is pure: no I/O, no clock, no shared state.
package grading

import (
	"math"

	"github.com/SAP-F-2025/test-session-service/internal/models"
)

// Strategy grades one question type.
type Strategy func(q *models.Question, a models.StudentAnswer) models.GradeResult

var strategies = map[models.QuestionType]Strategy{
	models.SingleChoice:   gradeSingleChoice,
	models.MultipleChoice: gradeMultipleChoice,
	models.ShortAnswer:    gradeShortAnswer,
	models.OpenEssay:      gradeOpenEssay,
}

// Grade routes by question type. Unknown types score zero.
func Grade(q *models.Question, a models.StudentAnswer) models.GradeResult {
	strategy, ok := strategies[q.Type]
	if !ok {
		return models.GradeResult{}
	}
	return strategy(q, a)
}

// Compile-time check that Grade fits the aggregate's grading hook.
var _ models.GradingFunc = Grade

func gradeSingleChoice(q *models.Question, a models.StudentAnswer) models.GradeResult {
	correct := q.CorrectOptionIDs()
	if len(correct) != 1 || len(a.SelectedOptionIDs) != 1 {
		return models.GradeResult{}
	}
	if a.SelectedOptionIDs[0] == correct[0] {
		return models.GradeResult{Points: q.Points}
	}
	return models.GradeResult{}
}

// gradeMultipleChoice awards full points on an exact match, otherwise
// (hits - misses) / |correct| of the points, rounded half away from zero and
// floored at zero.
func gradeMultipleChoice(q *models.Question, a models.StudentAnswer) models.GradeResult {
	correct := toSet(q.CorrectOptionIDs())
	if len(correct) == 0 {
		return models.GradeResult{}
	}
	selected := toSet(a.SelectedOptionIDs)
	if setEqual(correct, selected) {
		return models.GradeResult{Points: q.Points}
	}
	return models.GradeResult{Points: PartialCredit(correct, selected, q.Points)}
}

// PartialCredit computes the multiple-choice partial award.
func PartialCredit(correct, selected map[string]struct{}, points int) int {
	if len(correct) == 0 {
		return 0
	}
	hits, misses := 0, 0
	for id := range selected {
		if _, ok := correct[id]; ok {
			hits++
		} else {
			misses++
		}
	}
	raw := float64((hits-misses)*points) / float64(len(correct))
	award := int(math.Round(raw))
	if award < 0 {
		return 0
	}
	return award
}

func gradeShortAnswer(q *models.Question, a models.StudentAnswer) models.GradeResult {
	given := Normalize(a.TextAnswer)
	if given == "" {
		return models.GradeResult{}
	}
	for _, opt := range q.Options {
		if opt.IsCorrect && Normalize(opt.Text) == given {
			return models.GradeResult{Points: q.Points}
		}
	}
	return models.GradeResult{}
}

func gradeOpenEssay(_ *models.Question, _ models.StudentAnswer) models.GradeResult {
	return models.GradeResult{PendingManual: true}
}
