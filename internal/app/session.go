package app

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"proctor-quiz-service/internal/domain"
	"proctor-quiz-service/internal/metrics"
)

// Reasons recorded on results produced by the session itself.
const (
	ReasonTimeExpired        = "time expired"
	ReasonViolationThreshold = "violation threshold"
	ReasonManual             = "submitted by student"
)

// sessionHooks persists what a session produces. Implemented by SessionService.
type sessionHooks interface {
	saveAnswers(ctx context.Context, s *Session, answers map[int64]domain.Answer) error
	finish(ctx context.Context, s *Session, result domain.Result) error
	release(s *Session)
}

// Session is one student's attempt at one quiz.
// Every mutator is a no-op returning domain.ErrInvalidState once the session is terminal.
type Session struct {
	id          string
	quiz        domain.Quiz
	studentID   string
	studentName string
	opts        Options
	hooks       sessionHooks
	log         *zap.Logger
	now         func() time.Time

	mu          sync.Mutex
	status      domain.SessionStatus
	current     int
	answers     map[int64]domain.Answer
	remaining   int
	violations  int
	result      *domain.Result
	last        *domain.Event
	subscribers map[chan domain.Event]struct{}
	stopTimer   context.CancelFunc
}

func newSession(id string, quiz domain.Quiz, studentID, studentName string, answers map[int64]domain.Answer,
	opts Options, hooks sessionHooks, log *zap.Logger, now func() time.Time) *Session {
	if answers == nil {
		answers = make(map[int64]domain.Answer)
	}
	return &Session{
		id:          id,
		quiz:        quiz,
		studentID:   studentID,
		studentName: studentName,
		opts:        opts,
		hooks:       hooks,
		log:         log.With(zap.String("session", id), zap.Int64("quiz", quiz.ID), zap.String("student", studentID)),
		now:         now,
		status:      domain.SessionActive,
		answers:     answers,
		remaining:   int(quiz.Duration() / time.Second),
		subscribers: make(map[chan domain.Event]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Quiz() domain.Quiz { return s.quiz }

func (s *Session) Key() SessionKey {
	return SessionKey{StudentID: s.studentID, QuizID: s.quiz.ID}
}

func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Result returns the terminal result, if any.
func (s *Session) Result() (domain.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.Result{}, false
	}
	return cloneResult(*s.result), true
}

func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionSnapshot{
		ID:              s.id,
		QuizID:          s.quiz.ID,
		QuizTitle:       s.quiz.Title,
		StudentID:       s.studentID,
		Status:          s.status,
		CurrentQuestion: s.current,
		TotalQuestions:  s.quiz.TotalQuestions(),
		TimeRemaining:   s.remaining,
		Violations:      s.violations,
		Answers:         domain.CloneAnswers(s.answers),
	}
}

// RecordAnswer overwrites the answer for a question and writes the full answer map through.
// An empty value clears the selection but keeps the entry.
func (s *Session) RecordAnswer(ctx context.Context, questionID int64, value domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.SessionActive {
		return domain.ErrInvalidState
	}
	question, ok := s.quiz.Question(questionID)
	if !ok {
		return domain.ErrQuestionNotFound
	}
	if !question.Compatible(value) {
		return domain.ValidationErrors{{
			Field:   "answers." + strconv.FormatInt(questionID, 10),
			Message: "does not fit a " + string(question.Type) + " question",
		}}
	}

	s.answers[questionID] = value.Clone()
	metrics.AnswersRecorded.Inc()
	return s.hooks.saveAnswers(ctx, s, domain.CloneAnswers(s.answers))
}

// GoTo moves the question cursor, clamped to the quiz's questions.
func (s *Session) GoTo(index int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(index)
}

func (s *Session) Next() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(s.current + 1)
}

func (s *Session) Previous() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(s.current - 1)
}

func (s *Session) moveLocked(index int) (int, error) {
	if s.status != domain.SessionActive {
		return s.current, domain.ErrInvalidState
	}
	if last := s.quiz.TotalQuestions() - 1; index > last {
		index = last
	}
	if index < 0 {
		index = 0
	}
	s.current = index
	return s.current, nil
}

// Tick advances the countdown by one step. Reaching zero submits automatically.
func (s *Session) Tick(ctx context.Context) error {
	s.mu.Lock()
	if s.status != domain.SessionActive {
		s.mu.Unlock()
		return domain.ErrInvalidState
	}
	if s.remaining > 0 {
		s.remaining--
	}
	var err error
	if s.remaining == 0 {
		_, err = s.finishLocked(ctx, domain.SessionSubmitted, ReasonTimeExpired, true)
	}
	done := s.status.Terminal()
	s.mu.Unlock()

	if done {
		s.hooks.release(s)
	}
	return err
}

// RegisterViolation counts a loss of focus. The threshold-th violation terminates the session;
// earlier ones only emit a warning.
func (s *Session) RegisterViolation(ctx context.Context) error {
	s.mu.Lock()
	if s.status != domain.SessionActive {
		s.mu.Unlock()
		return domain.ErrInvalidState
	}
	// Capped: a failed termination leaves the count at the threshold for the retry.
	if s.violations < s.opts.ViolationThreshold {
		s.violations++
		metrics.Violations.Inc()
	}

	var err error
	if s.violations >= s.opts.ViolationThreshold {
		_, err = s.finishLocked(ctx, domain.SessionTerminated, ReasonViolationThreshold, true)
	} else {
		s.log.Info("violation registered", zap.Int("violations", s.violations))
		s.emitLocked(domain.EventWarning, "focus lost")
	}
	done := s.status.Terminal()
	s.mu.Unlock()

	if done {
		s.hooks.release(s)
	}
	return err
}

// Submit scores the answers and records the result. Only the first call while active has effect.
func (s *Session) Submit(ctx context.Context, reason string, auto bool) (domain.Result, error) {
	return s.finish(ctx, domain.SessionSubmitted, reason, auto)
}

// Terminate ends the session under the termination policy.
func (s *Session) Terminate(ctx context.Context, reason string) (domain.Result, error) {
	return s.finish(ctx, domain.SessionTerminated, reason, true)
}

func (s *Session) finish(ctx context.Context, status domain.SessionStatus, reason string, auto bool) (domain.Result, error) {
	s.mu.Lock()
	if s.status != domain.SessionActive {
		s.mu.Unlock()
		return domain.Result{}, domain.ErrInvalidState
	}
	result, err := s.finishLocked(ctx, status, reason, auto)
	s.mu.Unlock()

	if err != nil {
		return domain.Result{}, err
	}
	s.hooks.release(s)
	return result, nil
}

// finishLocked persists the result and moves to status. On a persistence error the session
// stays active so the caller (or the next tick) can retry.
func (s *Session) finishLocked(ctx context.Context, status domain.SessionStatus, reason string, auto bool) (domain.Result, error) {
	score := Score(s.quiz, s.answers)
	if status == domain.SessionTerminated && s.opts.TerminationPolicy == PolicyZero {
		score = 0
	}
	resultStatus := domain.ResultSubmitted
	if status == domain.SessionTerminated {
		resultStatus = domain.ResultTerminated
	}

	result := domain.Result{
		AttemptID:     s.id,
		QuizID:        s.quiz.ID,
		QuizTitle:     s.quiz.Title,
		StudentID:     s.studentID,
		StudentName:   s.studentName,
		Score:         score,
		Violations:    s.violations,
		Answers:       domain.CloneAnswers(s.answers),
		SubmittedAt:   s.now().UTC(),
		Submitted:     true,
		ScoreReleased: false,
		Status:        resultStatus,
		Reason:        reason,
		Auto:          auto,
	}
	if err := s.hooks.finish(ctx, s, result); err != nil {
		s.log.Error("persist result", zap.Error(err))
		return domain.Result{}, err
	}

	s.status = status
	s.result = &result
	metrics.SessionsFinished.WithLabelValues(string(status), strconv.FormatBool(auto)).Inc()
	s.log.Info("session finished",
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.Int("score", score),
		zap.Int("violations", s.violations))

	eventType := domain.EventSubmitted
	if status == domain.SessionTerminated {
		eventType = domain.EventTerminated
	}
	s.emitLocked(eventType, reason)
	return cloneResult(result), nil
}

// Subscribe returns a channel of session events, starting with the most recent one.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	if s.last != nil {
		ch <- *s.last
	}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) emitLocked(eventType domain.EventType, reason string) {
	ev := domain.Event{
		Type:          eventType,
		SessionID:     s.id,
		QuizID:        s.quiz.ID,
		StudentID:     s.studentID,
		Status:        s.status,
		Reason:        reason,
		Violations:    s.violations,
		TimeRemaining: s.remaining,
		At:            s.now(),
	}
	if s.result != nil {
		res := cloneResult(*s.result)
		ev.Result = &res
	}
	s.last = &ev

	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop its oldest event so the newest (possibly terminal) one lands.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func cloneResult(r domain.Result) domain.Result {
	r.Answers = domain.CloneAnswers(r.Answers)
	return r
}
