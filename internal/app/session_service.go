package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"proctor-quiz-service/internal/domain"
	"proctor-quiz-service/internal/metrics"
)

// TerminationPolicy decides the score of a violation-terminated session.
type TerminationPolicy string

const (
	// PolicyZero records a score of 0.
	PolicyZero TerminationPolicy = "zero"
	// PolicyScore records the score computed from the answers given so far.
	PolicyScore TerminationPolicy = "score"
)

// ParseTerminationPolicy reads a configured policy. Empty means PolicyZero.
func ParseTerminationPolicy(raw string) (TerminationPolicy, error) {
	switch TerminationPolicy(raw) {
	case "", PolicyZero:
		return PolicyZero, nil
	case PolicyScore:
		return PolicyScore, nil
	}
	return "", fmt.Errorf("unknown termination policy %q (want %q or %q)", raw, PolicyZero, PolicyScore)
}

// Options tune session behavior.
type Options struct {
	ViolationThreshold int
	TerminationPolicy  TerminationPolicy
	TickInterval       time.Duration
}

func DefaultOptions() Options {
	return Options{
		ViolationThreshold: 3,
		TerminationPolicy:  PolicyZero,
		TickInterval:       time.Second,
	}
}

// SessionKey identifies a session: one per student and quiz.
type SessionKey struct {
	StudentID string
	QuizID    int64
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s:%d", k.StudentID, k.QuizID)
}

// SessionRegistry abstracts where live sessions are kept (in-memory, Redis-marked, etc).
type SessionRegistry interface {
	// GetOrCreate returns the registered session for key, registering create() when there is none.
	GetOrCreate(key SessionKey, create func() *Session) *Session
	Get(key SessionKey) (*Session, bool)
	// DeleteIfDone drops the session once it is terminal.
	DeleteIfDone(key SessionKey)
}

// SessionService contains the quiz-taking use cases.
type SessionService struct {
	store    Store
	quizzes  QuizRepository
	catalog  *Catalog
	sessions SessionRegistry
	opts     Options
	log      *zap.Logger
	now      func() time.Time
}

func NewSessionService(store Store, quizzes QuizRepository, sessions SessionRegistry, log *zap.Logger, opts Options) *SessionService {
	if opts.ViolationThreshold <= 0 {
		opts.ViolationThreshold = DefaultOptions().ViolationThreshold
	}
	if opts.TerminationPolicy == "" {
		opts.TerminationPolicy = PolicyZero
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	return &SessionService{
		store:    store,
		quizzes:  quizzes,
		catalog:  NewCatalog(store),
		sessions: sessions,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// WithClock swaps the clock, for deterministic tests.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	s.catalog.now = now
	return s
}

// Start initializes a session for a student. A quiz past its due date yields a rejected
// session together with domain.ErrQuizExpired. Restarting while an active session exists
// for the same student and quiz returns that session.
func (s *SessionService) Start(ctx context.Context, quizID int64, studentID, studentName string) (*Session, error) {
	key := SessionKey{StudentID: studentID, QuizID: quizID}
	if existing, ok := s.sessions.Get(key); ok && existing.Status() == domain.SessionActive {
		return existing, nil
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if quiz.Expired(s.now()) {
		metrics.SessionsRejected.WithLabelValues("expired").Inc()
		rejected := newSession(uuid.NewString(), quiz, studentID, studentName, nil, s.opts, s, s.log, s.now)
		rejected.mu.Lock()
		rejected.status = domain.SessionRejected
		rejected.emitLocked(domain.EventRejected, domain.ErrQuizExpired.Error())
		rejected.mu.Unlock()
		return rejected, domain.ErrQuizExpired
	}

	attempted, err := s.catalog.HasAttempted(ctx, studentID, quizID)
	if err != nil {
		return nil, err
	}
	if attempted {
		metrics.SessionsRejected.WithLabelValues("attempted").Inc()
		return nil, domain.ErrAlreadyAttempted
	}

	answers, err := s.restoreAnswers(ctx, quiz, studentID)
	if err != nil {
		return nil, err
	}

	created := false
	session := s.sessions.GetOrCreate(key, func() *Session {
		created = true
		return newSession(uuid.NewString(), quiz, studentID, studentName, answers, s.opts, s, s.log, s.now)
	})
	if created {
		session.mu.Lock()
		session.emitLocked(domain.EventStarted, "")
		session.mu.Unlock()
		s.startTimer(session)
		metrics.SessionsStarted.Inc()
		session.log.Info("session started", zap.Int("restoredAnswers", len(answers)))
	}
	return session, nil
}

// Get returns the live session of a student for a quiz.
func (s *SessionService) Get(studentID string, quizID int64) (*Session, error) {
	session, ok := s.sessions.Get(SessionKey{StudentID: studentID, QuizID: quizID})
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// restoreAnswers loads the persisted draft, dropping entries for questions no longer in the quiz.
// Timer and violations are not restored.
func (s *SessionService) restoreAnswers(ctx context.Context, quiz domain.Quiz, studentID string) (map[int64]domain.Answer, error) {
	saved := make(map[int64]domain.Answer)
	if _, err := loadJSON(ctx, s.store, AnswersKey(studentID, quiz.ID), &saved); err != nil {
		return nil, err
	}
	answers := make(map[int64]domain.Answer, len(saved))
	for id, answer := range saved {
		if q, ok := quiz.Question(id); ok && q.Compatible(answer) {
			answers[id] = answer
		}
	}
	return answers, nil
}

// toucher is implemented by registries that keep an expiring liveness marker per session.
type toucher interface {
	Touch(ctx context.Context, key SessionKey) error
}

func (s *SessionService) saveAnswers(ctx context.Context, session *Session, answers map[int64]domain.Answer) error {
	if err := saveJSON(ctx, s.store, AnswersKey(session.studentID, session.quiz.ID), answers); err != nil {
		return err
	}
	if t, ok := s.sessions.(toucher); ok {
		if err := t.Touch(ctx, session.Key()); err != nil {
			session.log.Warn("extend session marker", zap.Error(err))
		}
	}
	return nil
}

func (s *SessionService) finish(ctx context.Context, session *Session, result domain.Result) error {
	// A retry after a failed attempt flag finds its result already stored.
	err := update(ctx, s.store, ResultsKey, func(results *[]domain.Result) error {
		for _, stored := range *results {
			if stored.AttemptID == result.AttemptID {
				return nil
			}
		}
		*results = append(*results, result)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	if err := s.catalog.MarkAttempted(ctx, session.studentID, session.quiz.ID, result.SubmittedAt); err != nil {
		return fmt.Errorf("mark attempt: %w", err)
	}
	return nil
}

// startTimer runs the countdown of a newly registered session. Connections attaching to the
// session later share this single timer.
func (s *SessionService) startTimer(session *Session) {
	ctx, cancel := context.WithCancel(context.Background())
	session.mu.Lock()
	session.stopTimer = cancel
	session.mu.Unlock()
	go RunTimer(ctx, session, s.opts.TickInterval)
}

func (s *SessionService) release(session *Session) {
	session.mu.Lock()
	stop := session.stopTimer
	session.mu.Unlock()
	if stop != nil {
		stop()
	}
	s.sessions.DeleteIfDone(session.Key())
}

// IsTerminal reports whether err means the session can no longer change.
func IsTerminal(err error) bool {
	return errors.Is(err, domain.ErrInvalidState)
}
