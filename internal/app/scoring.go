package app

import (
	"math"

	"proctor-quiz-service/internal/domain"
)

// Score returns the points-weighted percentage of matched questions, rounded to the nearest integer.
// A quiz without points scores 0.
func Score(quiz domain.Quiz, answers map[int64]domain.Answer) int {
	total, matched := 0, 0
	for _, question := range quiz.Questions() {
		total += question.Points
		if Matches(question, answers[question.ID]) {
			matched += question.Points
		}
	}
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(matched) / float64(total)))
}

// Matches compares an answer with the question's correct answer. There is no partial credit.
// Short answers are compared exactly: case and surrounding whitespace matter.
func Matches(q domain.Question, a domain.Answer) bool {
	if a.IsEmpty() {
		return false
	}
	switch q.Type {
	case domain.SingleChoice:
		got, ok := a.Index()
		want, wantOK := q.CorrectAnswer.Index()
		return ok && wantOK && got == want
	case domain.MultiChoice:
		got, ok := a.Indices()
		want, wantOK := q.CorrectAnswer.Indices()
		return ok && wantOK && sameSet(got, want)
	case domain.ShortAnswer:
		got, ok := a.Text()
		want, wantOK := q.CorrectAnswer.Text()
		return ok && wantOK && got == want
	}
	return false
}

func sameSet(a, b []int) bool {
	as := make(map[int]struct{}, len(a))
	for _, v := range a {
		as[v] = struct{}{}
	}
	bs := make(map[int]struct{}, len(b))
	for _, v := range b {
		bs[v] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for v := range as {
		if _, ok := bs[v]; !ok {
			return false
		}
	}
	return true
}
