package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"proctor-quiz-service/internal/domain"
)

// QuizLoader reads published quizzes from the store (app.Catalog).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// QuizRepository sits in front of the catalog so starting a session does not decode the
// whole quiz collection. Published quizzes never change, so entries only age out.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	group  singleflight.Group

	mu      sync.RWMutex
	entries map[int64]cacheEntry
}

type cacheEntry struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[int64]cacheEntry),
	}
}

// WithClock is for tests.
func (r *QuizRepository) WithClock(clock func() time.Time) *QuizRepository {
	r.clock = clock
	return r
}

func (r *QuizRepository) lookup(quizID int64) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[quizID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

// GetQuiz serves from cache; concurrent misses for one id share a single load.
// Unknown ids are not cached, so a quiz published later is found right away.
func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	if quiz, ok := r.lookup(quizID); ok {
		return quiz, nil
	}

	v, err, _ := r.group.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		if quiz, ok := r.lookup(quizID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.Put(quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return v.(domain.Quiz), nil
}

// Put caches a quiz until its jittered TTL runs out.
func (r *QuizRepository) Put(quiz domain.Quiz) {
	r.mu.Lock()
	r.entries[quiz.ID] = cacheEntry{quiz: quiz, expiresAt: r.clock().Add(r.ttlWithJitter())}
	r.mu.Unlock()
}

// ttlWithJitter adds up to 10% so entries loaded together do not expire together.
func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	return r.ttl + time.Duration(rand.Int63n(int64(r.ttl)/10+1))
}
