package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Store abstracts the key-value medium (in-memory, Redis, Postgres).
// Values are JSON documents stored as strings.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Well-known keys.
const (
	QuizzesKey = "global_quizzes"
	ResultsKey = "all_quiz_results"
	UsersKey   = "registered_users"
	DraftKey   = "quiz_draft"
)

// AttemptsKey holds the attempt flags of one student, keyed by quiz id.
func AttemptsKey(studentID string) string {
	return "student_attempts_" + studentID
}

// AnswersKey holds the in-progress answers of one student for one quiz.
func AnswersKey(studentID string, quizID int64) string {
	return fmt.Sprintf("quiz_answers_%s_%d", studentID, quizID)
}

// loadJSON decodes the value under key into dest. It reports false when the key is absent.
func loadJSON(ctx context.Context, store Store, key string, dest any) (bool, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func saveJSON(ctx context.Context, store Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := store.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// keyLocks serializes read-modify-write cycles per key within the process.
var keyLocks sync.Map

func lockKey(key string) func() {
	v, _ := keyLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// update loads the document under key (zero value when absent), applies fn and writes it back.
// Nothing is written when fn fails.
func update[T any](ctx context.Context, store Store, key string, fn func(*T) error) error {
	unlock := lockKey(key)
	defer unlock()

	var doc T
	if _, err := loadJSON(ctx, store, key, &doc); err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	return saveJSON(ctx, store, key, doc)
}
