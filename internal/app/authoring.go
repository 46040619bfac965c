package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"proctor-quiz-service/internal/domain"
)

// Draft is an unpublished quiz under construction. It is written to the store on every edit.
type Draft struct {
	Title           string        `json:"title" validate:"notblank"`
	Description     string        `json:"description"`
	DurationMinutes int           `json:"durationMinutes" validate:"min=1,max=300"`
	DueDate         *time.Time    `json:"dueDate,omitempty"`
	Pages           []domain.Page `json:"pages" validate:"min=1,dive"`
}

// NewDraft returns the starting point of the builder: one page holding one empty question.
func NewDraft() Draft {
	return Draft{
		DurationMinutes: 5,
		Pages:           []domain.Page{newPage(1, 1)},
	}
}

func newPage(number int, questionID int64) domain.Page {
	return domain.Page{
		Title:     fmt.Sprintf("Page %d", number),
		Questions: []domain.Question{newQuestion(questionID)},
	}
}

func newQuestion(id int64) domain.Question {
	return domain.Question{
		ID:            id,
		Type:          domain.SingleChoice,
		Required:      true,
		Options:       []string{""},
		CorrectAnswer: domain.IndexAnswer(0),
		Points:        1,
	}
}

func (d *Draft) nextQuestionID() int64 {
	var highest int64
	for _, page := range d.Pages {
		for _, q := range page.Questions {
			if q.ID > highest {
				highest = q.ID
			}
		}
	}
	return highest + 1
}

func (d *Draft) page(pi int) (*domain.Page, error) {
	if pi < 0 || pi >= len(d.Pages) {
		return nil, domain.ErrPageNotFound
	}
	return &d.Pages[pi], nil
}

func (d *Draft) question(pi, qi int) (*domain.Question, error) {
	page, err := d.page(pi)
	if err != nil {
		return nil, err
	}
	if qi < 0 || qi >= len(page.Questions) {
		return nil, domain.ErrQuestionNotFound
	}
	return &page.Questions[qi], nil
}

// AddPage appends a page with one fresh question and returns its index.
func (d *Draft) AddPage() int {
	d.Pages = append(d.Pages, newPage(len(d.Pages)+1, d.nextQuestionID()))
	return len(d.Pages) - 1
}

// RemovePage deletes a page. The last remaining page is kept.
func (d *Draft) RemovePage(pi int) error {
	if _, err := d.page(pi); err != nil {
		return err
	}
	if len(d.Pages) == 1 {
		return nil
	}
	d.Pages = append(d.Pages[:pi], d.Pages[pi+1:]...)
	return nil
}

func (d *Draft) SetPageTitle(pi int, title string) error {
	page, err := d.page(pi)
	if err != nil {
		return err
	}
	page.Title = title
	return nil
}

// AddQuestion appends a fresh single-choice question to a page and returns its id.
func (d *Draft) AddQuestion(pi int) (int64, error) {
	page, err := d.page(pi)
	if err != nil {
		return 0, err
	}
	id := d.nextQuestionID()
	page.Questions = append(page.Questions, newQuestion(id))
	return id, nil
}

func (d *Draft) RemoveQuestion(pi, qi int) error {
	page, err := d.page(pi)
	if err != nil {
		return err
	}
	if qi < 0 || qi >= len(page.Questions) {
		return domain.ErrQuestionNotFound
	}
	page.Questions = append(page.Questions[:qi], page.Questions[qi+1:]...)
	return nil
}

func (d *Draft) SetQuestionText(pi, qi int, text string) error {
	q, err := d.question(pi, qi)
	if err != nil {
		return err
	}
	q.Text = text
	return nil
}

// SetQuestionType changes the type and resets the correct answer to the type's zero value.
// Short-answer questions carry no options.
func (d *Draft) SetQuestionType(pi, qi int, t domain.QuestionType) error {
	if !t.Valid() {
		return domain.ValidationErrors{{Field: "type", Message: "must be one of: single-choice multi-choice short-answer"}}
	}
	q, err := d.question(pi, qi)
	if err != nil {
		return err
	}
	q.Type = t
	switch t {
	case domain.SingleChoice:
		q.CorrectAnswer = domain.IndexAnswer(0)
	case domain.MultiChoice:
		q.CorrectAnswer = domain.IndicesAnswer()
	case domain.ShortAnswer:
		q.CorrectAnswer = domain.TextAnswer("")
		q.Options = nil
	}
	if t != domain.ShortAnswer && len(q.Options) == 0 {
		q.Options = []string{""}
	}
	return nil
}

func (d *Draft) SetPoints(pi, qi, points int) error {
	q, err := d.question(pi, qi)
	if err != nil {
		return err
	}
	q.Points = points
	return nil
}

func (d *Draft) ToggleRequired(pi, qi int) error {
	q, err := d.question(pi, qi)
	if err != nil {
		return err
	}
	q.Required = !q.Required
	return nil
}

// AddOption appends an empty option and returns its index.
func (d *Draft) AddOption(pi, qi int) (int, error) {
	q, err := d.question(pi, qi)
	if err != nil {
		return 0, err
	}
	q.Options = append(q.Options, "")
	return len(q.Options) - 1, nil
}

// RemoveOption deletes an option and shifts correct-answer indices that pointed past it.
func (d *Draft) RemoveOption(pi, qi, oi int) error {
	q, err := d.question(pi, qi)
	if err != nil {
		return err
	}
	if oi < 0 || oi >= len(q.Options) {
		return domain.ErrOptionNotFound
	}
	q.Options = append(q.Options[:oi], q.Options[oi+1:]...)

	switch q.Type {
	case domain.SingleChoice:
		if idx, ok := q.CorrectAnswer.Index(); ok && idx > oi {
			q.CorrectAnswer = domain.IndexAnswer(idx - 1)
		} else if ok && idx == oi {
			q.CorrectAnswer = domain.IndexAnswer(0)
		}
	case domain.MultiChoice:
		indices, _ := q.CorrectAnswer.Indices()
		kept := make([]int, 0, len(indices))
		for _, idx := range indices {
			switch {
			case idx < oi:
				kept = append(kept, idx)
			case idx > oi:
				kept = append(kept, idx-1)
			}
		}
		q.CorrectAnswer = domain.IndicesAnswer(kept...)
	}
	return nil
}

func (d *Draft) SetOption(pi, qi, oi int, text string) error {
	q, err := d.question(pi, qi)
	if err != nil {
		return err
	}
	if oi < 0 || oi >= len(q.Options) {
		return domain.ErrOptionNotFound
	}
	q.Options[oi] = text
	return nil
}

// SetCorrect marks option oi as correct. Single choice replaces the selection; multi choice toggles it.
func (d *Draft) SetCorrect(pi, qi, oi int) error {
	q, err := d.question(pi, qi)
	if err != nil {
		return err
	}
	if oi < 0 || oi >= len(q.Options) {
		return domain.ErrOptionNotFound
	}
	switch q.Type {
	case domain.SingleChoice:
		q.CorrectAnswer = domain.IndexAnswer(oi)
	case domain.MultiChoice:
		indices, _ := q.CorrectAnswer.Indices()
		toggled := make([]int, 0, len(indices)+1)
		found := false
		for _, idx := range indices {
			if idx == oi {
				found = true
				continue
			}
			toggled = append(toggled, idx)
		}
		if !found {
			toggled = append(toggled, oi)
		}
		q.CorrectAnswer = domain.IndicesAnswer(toggled...)
	default:
		return domain.ValidationErrors{{Field: "correctAnswer", Message: "short-answer questions take text"}}
	}
	return nil
}

func (d *Draft) SetCorrectText(pi, qi int, text string) error {
	q, err := d.question(pi, qi)
	if err != nil {
		return err
	}
	if q.Type != domain.ShortAnswer {
		return domain.ValidationErrors{{Field: "correctAnswer", Message: "choice questions take an option index"}}
	}
	q.CorrectAnswer = domain.TextAnswer(text)
	return nil
}

func (d Draft) TotalPoints() int {
	return d.quiz().TotalPoints()
}

func (d Draft) quiz() domain.Quiz {
	return domain.Quiz{
		Title:           d.Title,
		Description:     d.Description,
		DurationMinutes: d.DurationMinutes,
		DueDate:         d.DueDate,
		Pages:           d.Pages,
	}
}

// Authoring drives the quiz builder: draft persistence, validation and publishing.
type Authoring struct {
	store    Store
	catalog  *Catalog
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

func NewAuthoring(store Store, catalog *Catalog, log *zap.Logger) *Authoring {
	return &Authoring{
		store:    store,
		catalog:  catalog,
		validate: newValidator(),
		log:      log,
		now:      time.Now,
	}
}

// WithClock is for deterministic tests.
func (a *Authoring) WithClock(now func() time.Time) *Authoring {
	a.now = now
	return a
}

// LoadDraft returns the saved draft, or a fresh one when none exists.
func (a *Authoring) LoadDraft(ctx context.Context) (Draft, error) {
	var draft Draft
	ok, err := loadJSON(ctx, a.store, DraftKey, &draft)
	if err != nil {
		return Draft{}, err
	}
	if !ok || len(draft.Pages) == 0 {
		fresh := NewDraft()
		if ok {
			fresh.Title, fresh.Description, fresh.DueDate = draft.Title, draft.Description, draft.DueDate
			if draft.DurationMinutes != 0 {
				fresh.DurationMinutes = draft.DurationMinutes
			}
		}
		return fresh, nil
	}
	return draft, nil
}

func (a *Authoring) SaveDraft(ctx context.Context, draft Draft) error {
	return saveJSON(ctx, a.store, DraftKey, draft)
}

// Update applies an edit to the saved draft and writes it through. Nothing is saved when fn fails.
func (a *Authoring) Update(ctx context.Context, fn func(*Draft) error) (Draft, error) {
	unlock := lockKey(DraftKey)
	defer unlock()

	draft, err := a.LoadDraft(ctx)
	if err != nil {
		return Draft{}, err
	}
	if err := fn(&draft); err != nil {
		return Draft{}, err
	}
	if err := a.SaveDraft(ctx, draft); err != nil {
		return Draft{}, err
	}
	return draft, nil
}

// Discard drops the saved draft.
func (a *Authoring) Discard(ctx context.Context) error {
	return a.store.Remove(ctx, DraftKey)
}

// draftDetails is the first builder step on its own.
type draftDetails struct {
	Title           string `json:"title" validate:"notblank"`
	DurationMinutes int    `json:"durationMinutes" validate:"min=1,max=300"`
}

// ValidateDetails checks the first builder step: title, duration and due date.
func (a *Authoring) ValidateDetails(d Draft) error {
	var errs domain.ValidationErrors
	if err := a.validate.Struct(draftDetails{Title: d.Title, DurationMinutes: d.DurationMinutes}); err != nil {
		errs = append(errs, toValidationErrors(err)...)
	}
	a.validateDueDate(&errs, d)
	return errs.Err()
}

// Validate checks the whole draft as it would be published.
func (a *Authoring) Validate(d Draft) error {
	var errs domain.ValidationErrors
	if err := a.validate.Struct(d); err != nil {
		errs = append(errs, toValidationErrors(err)...)
	}
	a.validateDueDate(&errs, d)
	// Answers and scores are keyed by question id, so ids must be unique across pages.
	seen := make(map[int64]string)
	for pi, page := range d.Pages {
		for qi, q := range page.Questions {
			path := fmt.Sprintf("pages[%d].questions[%d]", pi, qi)
			validateQuestion(&errs, path, q)
			prev, dup := seen[q.ID]
			switch {
			case q.ID <= 0:
				errs.Add(path+".id", "must be positive")
			case dup:
				errs.Add(path+".id", "duplicates the id of "+prev)
			default:
				seen[q.ID] = path
			}
		}
	}
	return errs.Err()
}

func (a *Authoring) validateDueDate(errs *domain.ValidationErrors, d Draft) {
	if d.DueDate != nil && d.DueDate.Before(a.now()) {
		errs.Add("dueDate", "must be in the future")
	}
}

// Publish validates the draft and appends it to the quiz collection. The saved draft is cleared.
func (a *Authoring) Publish(ctx context.Context, d Draft) (domain.Quiz, error) {
	if err := a.Validate(d); err != nil {
		return domain.Quiz{}, err
	}
	quiz, err := a.catalog.Append(ctx, d.quiz())
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := a.Discard(ctx); err != nil {
		a.log.Warn("clear draft after publish", zap.Error(err))
	}
	a.log.Info("quiz published",
		zap.Int64("quiz", quiz.ID),
		zap.String("title", quiz.Title),
		zap.Int("questions", quiz.TotalQuestions()))
	return quiz, nil
}

// PublishDraft publishes whatever draft is currently saved.
func (a *Authoring) PublishDraft(ctx context.Context) (domain.Quiz, error) {
	draft, err := a.LoadDraft(ctx)
	if err != nil {
		return domain.Quiz{}, err
	}
	return a.Publish(ctx, draft)
}
