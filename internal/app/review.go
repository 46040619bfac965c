package app

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"proctor-quiz-service/internal/domain"
)

// ResultFilter narrows the result list. Zero values match everything.
type ResultFilter struct {
	QuizID         int64
	WithViolations bool
}

func (f ResultFilter) match(r domain.Result) bool {
	if f.QuizID != 0 && r.QuizID != f.QuizID {
		return false
	}
	if f.WithViolations && r.Violations == 0 {
		return false
	}
	return true
}

// QuizSummary aggregates the results of one quiz.
type QuizSummary struct {
	QuizID         int64  `json:"quizId"`
	QuizTitle      string `json:"quizTitle"`
	Count          int    `json:"count"`
	AverageScore   int    `json:"averageScore"`
	Released       int    `json:"released"`
	Pending        int    `json:"pending"`
	WithViolations int    `json:"withViolations"`
}

// Overview is the instructor dashboard header.
type Overview struct {
	Total          int `json:"total"`
	AverageScore   int `json:"averageScore"`
	Released       int `json:"released"`
	WithViolations int `json:"withViolations"`
}

// StudentResults splits a student's results by whether the instructor released the score.
type StudentResults struct {
	Released []domain.Result `json:"released"`
	Pending  []domain.Result `json:"pending"`
}

// Review is the read side over submitted results, plus the per-quiz release toggle.
type Review struct {
	store Store
	log   *zap.Logger
}

func NewReview(store Store, log *zap.Logger) *Review {
	return &Review{store: store, log: log}
}

func (r *Review) all(ctx context.Context) ([]domain.Result, error) {
	var results []domain.Result
	if _, err := loadJSON(ctx, r.store, ResultsKey, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Results returns the results matching filter in submission order.
func (r *Review) Results(ctx context.Context, filter ResultFilter) ([]domain.Result, error) {
	results, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Result, 0, len(results))
	for _, res := range results {
		if filter.match(res) {
			out = append(out, res)
		}
	}
	return out, nil
}

// Summaries groups results by quiz, ordered by quiz id.
func (r *Review) Summaries(ctx context.Context) ([]QuizSummary, error) {
	results, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	byQuiz := make(map[int64]*QuizSummary)
	totals := make(map[int64]int)
	for _, res := range results {
		sum, ok := byQuiz[res.QuizID]
		if !ok {
			sum = &QuizSummary{QuizID: res.QuizID, QuizTitle: res.QuizTitle}
			byQuiz[res.QuizID] = sum
		}
		sum.Count++
		totals[res.QuizID] += res.Score
		if res.ScoreReleased {
			sum.Released++
		} else {
			sum.Pending++
		}
		if res.Violations > 0 {
			sum.WithViolations++
		}
	}

	out := make([]QuizSummary, 0, len(byQuiz))
	for id, sum := range byQuiz {
		sum.AverageScore = average(totals[id], sum.Count)
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuizID < out[j].QuizID })
	return out, nil
}

// Overview aggregates over every result.
func (r *Review) Overview(ctx context.Context) (Overview, error) {
	results, err := r.all(ctx)
	if err != nil {
		return Overview{}, err
	}
	var ov Overview
	total := 0
	for _, res := range results {
		ov.Total++
		total += res.Score
		if res.ScoreReleased {
			ov.Released++
		}
		if res.Violations > 0 {
			ov.WithViolations++
		}
	}
	ov.AverageScore = average(total, ov.Total)
	return ov, nil
}

func average(total, count int) int {
	if count == 0 {
		return 0
	}
	return int(math.Round(float64(total) / float64(count)))
}

// ReleaseScores exposes the scores of a quiz to its students. It returns how many results matched.
func (r *Review) ReleaseScores(ctx context.Context, quizID int64) (int, error) {
	return r.setReleased(ctx, quizID, true)
}

// HideScores reverts ReleaseScores.
func (r *Review) HideScores(ctx context.Context, quizID int64) (int, error) {
	return r.setReleased(ctx, quizID, false)
}

func (r *Review) setReleased(ctx context.Context, quizID int64, released bool) (int, error) {
	matched := 0
	err := update(ctx, r.store, ResultsKey, func(results *[]domain.Result) error {
		for i := range *results {
			if (*results)[i].QuizID == quizID {
				(*results)[i].ScoreReleased = released
				matched++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.log.Info("score visibility changed",
		zap.Int64("quiz", quizID),
		zap.Bool("released", released),
		zap.Int("results", matched))
	return matched, nil
}

// StudentResults returns one student's results. Pending ones have their score zeroed
// so the value is not exposed before release.
func (r *Review) StudentResults(ctx context.Context, studentID string) (StudentResults, error) {
	results, err := r.all(ctx)
	if err != nil {
		return StudentResults{}, err
	}
	out := StudentResults{Released: []domain.Result{}, Pending: []domain.Result{}}
	for _, res := range results {
		if res.StudentID != studentID {
			continue
		}
		if res.ScoreReleased {
			out.Released = append(out.Released, res)
			continue
		}
		res.Score = 0
		out.Pending = append(out.Pending, res)
	}
	return out, nil
}

var exportHeader = []interface{}{
	"Quiz ID", "Quiz", "Student ID", "Student", "Score", "Violations", "Status", "Reason", "Submitted At", "Released",
}

// ExportXLSX writes the matching results as a spreadsheet.
func (r *Review) ExportXLSX(ctx context.Context, w io.Writer, filter ResultFilter) error {
	results, err := r.Results(ctx, filter)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Results"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(exportHeader))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, res := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			res.QuizID,
			res.QuizTitle,
			res.StudentID,
			res.StudentName,
			res.Score,
			res.Violations,
			string(res.Status),
			res.Reason,
			res.SubmittedAt.Format("2006-01-02 15:04:05"),
			res.ScoreReleased,
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
