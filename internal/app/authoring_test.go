package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/domain"
	"proctor-quiz-service/internal/infra/memory"
)

func TestNewDraftNeedsContent(t *testing.T) {
	authoring := app.NewAuthoring(memory.NewStore(), nil, zap.NewNop())

	err := authoring.Validate(app.NewDraft())
	var fields domain.ValidationErrors
	if !errors.As(err, &fields) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	for _, want := range []string{"title", "pages[0].questions[0].text", "pages[0].questions[0].options"} {
		if !hasField(fields, want) {
			t.Fatalf("expected error on %s, got %v", want, fields)
		}
	}
}

func TestValidateDetails(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	authoring := app.NewAuthoring(memory.NewStore(), nil, zap.NewNop()).WithClock(func() time.Time { return now })

	draft := app.NewDraft()
	draft.DurationMinutes = 0
	past := now.Add(-time.Minute)
	draft.DueDate = &past

	err := authoring.ValidateDetails(draft)
	var fields domain.ValidationErrors
	if !errors.As(err, &fields) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	for _, want := range []string{"title", "durationMinutes", "dueDate"} {
		if !hasField(fields, want) {
			t.Fatalf("expected error on %s, got %v", want, fields)
		}
	}
	if hasField(fields, "pages[0].questions[0].text") {
		t.Fatalf("details step must not check questions, got %v", fields)
	}

	draft.Title = "Algebra"
	draft.DurationMinutes = 10
	draft.DueDate = nil
	if err := authoring.ValidateDetails(draft); err != nil {
		t.Fatalf("expected valid details, got %v", err)
	}
}

func TestDraftEditing(t *testing.T) {
	draft := app.NewDraft()

	id, err := draft.AddQuestion(0)
	if err != nil || id != 2 {
		t.Fatalf("expected question id 2, got %d err=%v", id, err)
	}
	if err := draft.SetQuestionType(0, 1, domain.MultiChoice); err != nil {
		t.Fatalf("set type: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := draft.AddOption(0, 1); err != nil {
			t.Fatalf("add option: %v", err)
		}
	}
	if err := draft.SetCorrect(0, 1, 0); err != nil {
		t.Fatalf("set correct: %v", err)
	}
	if err := draft.SetCorrect(0, 1, 2); err != nil {
		t.Fatalf("set correct: %v", err)
	}
	if err := draft.RemoveOption(0, 1, 1); err != nil {
		t.Fatalf("remove option: %v", err)
	}
	got := draft.Pages[0].Questions[1].CorrectAnswer
	if !got.Equal(domain.IndicesAnswer(0, 1)) {
		t.Fatalf("expected correct indices shifted to [0 1], got %v", got)
	}
	if err := draft.SetCorrect(0, 1, 0); err != nil {
		t.Fatalf("toggle correct: %v", err)
	}
	if got := draft.Pages[0].Questions[1].CorrectAnswer; !got.Equal(domain.IndicesAnswer(1)) {
		t.Fatalf("expected toggle to leave [1], got %v", got)
	}

	if err := draft.SetQuestionType(0, 1, domain.ShortAnswer); err != nil {
		t.Fatalf("set type: %v", err)
	}
	if q := draft.Pages[0].Questions[1]; len(q.Options) != 0 {
		t.Fatalf("short answer should drop options, got %v", q.Options)
	}
	if err := draft.SetCorrect(0, 1, 0); err == nil {
		t.Fatalf("expected error selecting an option on a short-answer question")
	}

	page := draft.AddPage()
	if page != 1 || draft.Pages[1].Title != "Page 2" || draft.Pages[1].Questions[0].ID != 3 {
		t.Fatalf("unexpected new page: %+v", draft.Pages[1])
	}
	if err := draft.SetPoints(1, 0, 4); err != nil {
		t.Fatalf("set points: %v", err)
	}
	if got := draft.TotalPoints(); got != 6 {
		t.Fatalf("expected 6 total points, got %d", got)
	}

	if err := draft.RemovePage(1); err != nil {
		t.Fatalf("remove page: %v", err)
	}
	if err := draft.RemovePage(0); err != nil {
		t.Fatalf("remove last page: %v", err)
	}
	if len(draft.Pages) != 1 {
		t.Fatalf("the last page must be kept, got %d pages", len(draft.Pages))
	}
	if err := draft.RemovePage(3); !errors.Is(err, domain.ErrPageNotFound) {
		t.Fatalf("expected page not found, got %v", err)
	}
	if err := draft.SetOption(0, 0, 9, "x"); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected option not found, got %v", err)
	}

	if !draft.Pages[0].Questions[0].Required {
		t.Fatalf("new questions start required")
	}
	if err := draft.ToggleRequired(0, 0); err != nil {
		t.Fatalf("toggle required: %v", err)
	}
	if draft.Pages[0].Questions[0].Required {
		t.Fatalf("expected question to be optional after toggle")
	}
	if err := draft.ToggleRequired(0, 7); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

func TestValidateQuestionIDs(t *testing.T) {
	authoring := app.NewAuthoring(memory.NewStore(), nil, zap.NewNop())
	if err := authoring.Validate(validDraft(t)); err != nil {
		t.Fatalf("expected a valid draft, got %v", err)
	}

	dup := validDraft(t)
	dup.Pages[1].Questions[0].ID = dup.Pages[0].Questions[0].ID
	err := authoring.Validate(dup)
	var fields domain.ValidationErrors
	if !errors.As(err, &fields) || !hasField(fields, "pages[1].questions[0].id") {
		t.Fatalf("expected duplicate id error on the second page, got %v", err)
	}
	if hasField(fields, "pages[0].questions[0].id") {
		t.Fatalf("the first use of an id is valid, got %v", fields)
	}

	zero := validDraft(t)
	zero.Pages[0].Questions[0].ID = 0
	fields = nil
	if err := authoring.Validate(zero); !errors.As(err, &fields) || !hasField(fields, "pages[0].questions[0].id") {
		t.Fatalf("expected non-positive id error, got %v", err)
	}
}

func TestPublishClearsDraft(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	catalog := app.NewCatalog(store)
	authoring := app.NewAuthoring(store, catalog, zap.NewNop())

	_, err := authoring.Update(ctx, func(d *app.Draft) error {
		d.Title = "Capitals"
		if err := d.SetQuestionText(0, 0, "Capital of France?"); err != nil {
			return err
		}
		if err := d.SetQuestionType(0, 0, domain.ShortAnswer); err != nil {
			return err
		}
		return d.SetCorrectText(0, 0, "Paris")
	})
	if err != nil {
		t.Fatalf("update draft: %v", err)
	}

	saved, err := authoring.LoadDraft(ctx)
	if err != nil || saved.Title != "Capitals" {
		t.Fatalf("expected saved draft, got %+v err=%v", saved, err)
	}

	quiz, err := authoring.PublishDraft(ctx)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if quiz.ID == 0 || quiz.CreatedAt.IsZero() {
		t.Fatalf("expected id and creation time, got %+v", quiz)
	}

	loaded, err := catalog.GetQuiz(ctx, quiz.ID)
	if err != nil || loaded.Title != "Capitals" {
		t.Fatalf("expected published quiz, got %+v err=%v", loaded, err)
	}

	fresh, err := authoring.LoadDraft(ctx)
	if err != nil {
		t.Fatalf("load draft: %v", err)
	}
	if fresh.Title != "" || len(fresh.Pages) != 1 {
		t.Fatalf("expected a fresh draft after publish, got %+v", fresh)
	}
}

func TestPublishInvalidDraftKeepsIt(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	authoring := app.NewAuthoring(store, app.NewCatalog(store), zap.NewNop())

	draft := app.NewDraft()
	draft.Title = "Incomplete"
	if err := authoring.SaveDraft(ctx, draft); err != nil {
		t.Fatalf("save draft: %v", err)
	}
	if _, err := authoring.PublishDraft(ctx); !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	saved, err := authoring.LoadDraft(ctx)
	if err != nil || saved.Title != "Incomplete" {
		t.Fatalf("draft should survive a failed publish, got %+v err=%v", saved, err)
	}
	quizzes, err := app.NewCatalog(store).List(ctx)
	if err != nil || len(quizzes) != 0 {
		t.Fatalf("expected nothing published, got %d err=%v", len(quizzes), err)
	}
}

func TestUpdateFailureSavesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	authoring := app.NewAuthoring(store, app.NewCatalog(store), zap.NewNop())

	_, err := authoring.Update(ctx, func(d *app.Draft) error {
		d.Title = "Changed"
		return d.SetPoints(5, 0, 1)
	})
	if !errors.Is(err, domain.ErrPageNotFound) {
		t.Fatalf("expected page not found, got %v", err)
	}
	if _, ok, _ := store.Get(ctx, app.DraftKey); ok {
		t.Fatalf("nothing should be saved when the edit fails")
	}
}

// validDraft holds two short-answer questions on two pages.
func validDraft(t *testing.T) app.Draft {
	t.Helper()
	draft := app.NewDraft()
	draft.Title = "Capitals"
	draft.AddPage()
	for pi, c := range []struct{ text, answer string }{
		{"Capital of France?", "Paris"},
		{"Capital of Italy?", "Rome"},
	} {
		if err := draft.SetQuestionText(pi, 0, c.text); err != nil {
			t.Fatalf("set text: %v", err)
		}
		if err := draft.SetQuestionType(pi, 0, domain.ShortAnswer); err != nil {
			t.Fatalf("set type: %v", err)
		}
		if err := draft.SetCorrectText(pi, 0, c.answer); err != nil {
			t.Fatalf("set answer: %v", err)
		}
	}
	return draft
}

func hasField(fields domain.ValidationErrors, name string) bool {
	for _, fe := range fields {
		if fe.Field == name {
			return true
		}
	}
	return false
}
