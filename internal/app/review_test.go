package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/domain"
	"proctor-quiz-service/internal/infra/memory"
)

func TestSummariesAndOverview(t *testing.T) {
	ctx := context.Background()
	review := app.NewReview(seedResults(t), zap.NewNop())

	summaries, err := review.Summaries(ctx)
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries) != 2 || summaries[0].QuizID != 1 || summaries[1].QuizID != 2 {
		t.Fatalf("expected summaries for quizzes 1 and 2, got %+v", summaries)
	}
	first := summaries[0]
	if first.Count != 2 || first.AverageScore != 68 || first.WithViolations != 1 || first.Pending != 2 {
		t.Fatalf("unexpected summary for quiz 1: %+v", first)
	}

	overview, err := review.Overview(ctx)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview.Total != 3 || overview.AverageScore != 78 || overview.WithViolations != 1 || overview.Released != 1 {
		t.Fatalf("unexpected overview: %+v", overview)
	}
}

func TestResultsFilter(t *testing.T) {
	ctx := context.Background()
	review := app.NewReview(seedResults(t), zap.NewNop())

	byQuiz, err := review.Results(ctx, app.ResultFilter{QuizID: 1})
	if err != nil || len(byQuiz) != 2 {
		t.Fatalf("expected 2 results for quiz 1, got %d err=%v", len(byQuiz), err)
	}
	flagged, err := review.Results(ctx, app.ResultFilter{WithViolations: true})
	if err != nil || len(flagged) != 1 || flagged[0].StudentID != "s2" {
		t.Fatalf("expected only s2 flagged, got %+v err=%v", flagged, err)
	}
}

func TestReleaseAndHideScores(t *testing.T) {
	ctx := context.Background()
	review := app.NewReview(seedResults(t), zap.NewNop())

	pending, err := review.StudentResults(ctx, "s1")
	if err != nil {
		t.Fatalf("student results: %v", err)
	}
	if len(pending.Pending) != 1 || len(pending.Released) != 1 {
		t.Fatalf("expected one pending and one released result, got %+v", pending)
	}
	if pending.Pending[0].Score != 0 {
		t.Fatalf("pending score must be hidden, got %d", pending.Pending[0].Score)
	}

	n, err := review.ReleaseScores(ctx, 1)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 released, got %d err=%v", n, err)
	}
	released, err := review.StudentResults(ctx, "s1")
	if err != nil {
		t.Fatalf("student results: %v", err)
	}
	if len(released.Released) != 2 || len(released.Pending) != 0 {
		t.Fatalf("expected both results released, got %+v", released)
	}
	if released.Released[0].Score != 80 {
		t.Fatalf("expected released score 80, got %d", released.Released[0].Score)
	}

	if n, err := review.HideScores(ctx, 1); err != nil || n != 2 {
		t.Fatalf("expected 2 hidden, got %d err=%v", n, err)
	}
	results, err := review.Results(ctx, app.ResultFilter{QuizID: 1})
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	for _, res := range results {
		if res.ScoreReleased {
			t.Fatalf("expected scores hidden again, got %+v", res)
		}
	}
	if n, err := review.ReleaseScores(ctx, 99); err != nil || n != 0 {
		t.Fatalf("expected no match for unknown quiz, got %d err=%v", n, err)
	}
}

func TestExportXLSX(t *testing.T) {
	review := app.NewReview(seedResults(t), zap.NewNop())

	var buf bytes.Buffer
	if err := review.ExportXLSX(context.Background(), &buf, app.ResultFilter{QuizID: 1}); err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Results")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Quiz ID" || rows[1][2] != "s1" || rows[2][5] != "2" {
		t.Fatalf("unexpected sheet content: %v", rows)
	}
}

func seedResults(t *testing.T) app.Store {
	t.Helper()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	results := []domain.Result{
		{AttemptID: "a1", QuizID: 1, QuizTitle: "Algebra", StudentID: "s1", StudentName: "Ana", Score: 80, SubmittedAt: at, Submitted: true, Status: domain.ResultSubmitted},
		{AttemptID: "a2", QuizID: 1, QuizTitle: "Algebra", StudentID: "s2", StudentName: "Ben", Score: 55, Violations: 2, SubmittedAt: at, Submitted: true, Status: domain.ResultSubmitted},
		{AttemptID: "a3", QuizID: 2, QuizTitle: "Geometry", StudentID: "s1", StudentName: "Ana", Score: 100, SubmittedAt: at, Submitted: true, Status: domain.ResultSubmitted, ScoreReleased: true},
	}
	data, err := json.Marshal(results)
	if err != nil {
		t.Fatalf("encode results: %v", err)
	}
	store := memory.NewStore()
	if err := store.Set(context.Background(), app.ResultsKey, string(data)); err != nil {
		t.Fatalf("seed results: %v", err)
	}
	return store
}
