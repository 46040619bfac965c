package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"proctor-quiz-service/internal/domain"
)

// QuizRepository loads quiz definitions (possibly through a cache).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// QuizFilter narrows a student's quiz list by attempt status.
type QuizFilter string

const (
	FilterTotal     QuizFilter = "total"
	FilterCompleted QuizFilter = "completed"
	FilterMissing   QuizFilter = "missing"
)

// StudentQuiz is a quiz as listed on a student's dashboard.
type StudentQuiz struct {
	domain.Quiz
	Attempted bool `json:"attempted"`
	Expired   bool `json:"expired"`
}

// Catalog owns the published quiz collection and the per-student attempt flags.
type Catalog struct {
	store Store
	now   func() time.Time
}

func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store, now: time.Now}
}

// WithClock is for deterministic tests.
func (c *Catalog) WithClock(now func() time.Time) *Catalog {
	c.now = now
	return c
}

// List returns every published quiz in publish order.
func (c *Catalog) List(ctx context.Context) ([]domain.Quiz, error) {
	var quizzes []domain.Quiz
	if _, err := loadJSON(ctx, c.store, QuizzesKey, &quizzes); err != nil {
		return nil, err
	}
	return quizzes, nil
}

// LoadQuiz reads one quiz straight from the store. It satisfies the cache loader contract.
func (c *Catalog) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	quizzes, err := c.List(ctx)
	if err != nil {
		return domain.Quiz{}, err
	}
	for _, quiz := range quizzes {
		if quiz.ID == quizID {
			return quiz, nil
		}
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// GetQuiz lets the catalog be used directly where no cache is wanted.
func (c *Catalog) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return c.LoadQuiz(ctx, quizID)
}

// Append publishes quiz. Its id is derived from the publish time and bumped until unique.
func (c *Catalog) Append(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	now := c.now()
	err := update(ctx, c.store, QuizzesKey, func(quizzes *[]domain.Quiz) error {
		taken := make(map[int64]struct{}, len(*quizzes))
		for _, q := range *quizzes {
			taken[q.ID] = struct{}{}
		}
		if quiz.ID == 0 {
			quiz.ID = now.UnixMilli()
		}
		for {
			if _, ok := taken[quiz.ID]; !ok {
				break
			}
			quiz.ID++
		}
		if quiz.CreatedAt.IsZero() {
			quiz.CreatedAt = now
		}
		*quizzes = append(*quizzes, quiz)
		return nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// HasAttempted reads a single attempt flag without decoding the student's whole map.
func (c *Catalog) HasAttempted(ctx context.Context, studentID string, quizID int64) (bool, error) {
	raw, ok, err := c.store.Get(ctx, AttemptsKey(studentID))
	if err != nil {
		return false, fmt.Errorf("get attempts: %w", err)
	}
	if !ok {
		return false, nil
	}
	return gjson.Get(raw, strconv.FormatInt(quizID, 10)+".submitted").Bool(), nil
}

// Attempts returns all attempt flags of a student.
func (c *Catalog) Attempts(ctx context.Context, studentID string) (map[int64]domain.Attempt, error) {
	attempts := make(map[int64]domain.Attempt)
	if _, err := loadJSON(ctx, c.store, AttemptsKey(studentID), &attempts); err != nil {
		return nil, err
	}
	return attempts, nil
}

// MarkAttempted sets the attempt flag so the quiz cannot be restarted.
func (c *Catalog) MarkAttempted(ctx context.Context, studentID string, quizID int64, at time.Time) error {
	return update(ctx, c.store, AttemptsKey(studentID), func(attempts *map[int64]domain.Attempt) error {
		if *attempts == nil {
			*attempts = make(map[int64]domain.Attempt)
		}
		(*attempts)[quizID] = domain.Attempt{Submitted: true, SubmittedAt: at}
		return nil
	})
}

// StudentQuizzes lists quizzes for a student's dashboard.
func (c *Catalog) StudentQuizzes(ctx context.Context, studentID string, filter QuizFilter) ([]StudentQuiz, error) {
	quizzes, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	attempts, err := c.Attempts(ctx, studentID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	out := make([]StudentQuiz, 0, len(quizzes))
	for _, quiz := range quizzes {
		attempted := attempts[quiz.ID].Submitted
		switch filter {
		case FilterCompleted:
			if !attempted {
				continue
			}
		case FilterMissing:
			if attempted {
				continue
			}
		}
		out = append(out, StudentQuiz{Quiz: quiz, Attempted: attempted, Expired: quiz.Expired(now)})
	}
	return out, nil
}
