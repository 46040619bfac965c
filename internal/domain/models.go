package domain

import "time"

// QuestionType selects how a question's answer is captured and compared.
type QuestionType string

const (
	SingleChoice QuestionType = "single-choice"
	MultiChoice  QuestionType = "multi-choice"
	ShortAnswer  QuestionType = "short-answer"
)

// Valid reports whether t is one of the supported question types.
func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultiChoice, ShortAnswer:
		return true
	}
	return false
}

// Question is a single scored item on a quiz page.
type Question struct {
	ID            int64        `json:"id"`
	Text          string       `json:"text" validate:"notblank"`
	Type          QuestionType `json:"type" validate:"required,oneof=single-choice multi-choice short-answer"`
	Required      bool         `json:"required"`
	Options       []string     `json:"options"`
	CorrectAnswer Answer       `json:"correctAnswer"`
	Points        int          `json:"points" validate:"min=1"`
}

// Compatible reports whether a can be stored as an answer to q.
// An empty answer is always compatible; it simply never matches.
func (q Question) Compatible(a Answer) bool {
	switch a.Kind() {
	case AnswerNone:
		return true
	case AnswerIndex:
		idx, _ := a.Index()
		return q.Type == SingleChoice && idx >= 0 && idx < len(q.Options)
	case AnswerIndices:
		if q.Type != MultiChoice {
			return false
		}
		for _, idx := range a.indices {
			if idx < 0 || idx >= len(q.Options) {
				return false
			}
		}
		return true
	case AnswerText:
		return q.Type == ShortAnswer
	}
	return false
}

// Page groups questions; quizzes are presented page by page.
type Page struct {
	Title       string     `json:"title" validate:"notblank"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions" validate:"dive"`
}

// Quiz is a published quiz definition. It is immutable once published.
type Quiz struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	DueDate         *time.Time `json:"dueDate,omitempty"`
	Pages           []Page     `json:"pages"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Questions flattens all pages into document order.
func (q Quiz) Questions() []Question {
	all := make([]Question, 0, q.TotalQuestions())
	for _, page := range q.Pages {
		all = append(all, page.Questions...)
	}
	return all
}

func (q Quiz) TotalQuestions() int {
	n := 0
	for _, page := range q.Pages {
		n += len(page.Questions)
	}
	return n
}

func (q Quiz) TotalPoints() int {
	total := 0
	for _, page := range q.Pages {
		for _, question := range page.Questions {
			total += question.Points
		}
	}
	return total
}

// Question looks a question up by id across all pages.
func (q Quiz) Question(id int64) (Question, bool) {
	for _, page := range q.Pages {
		for _, question := range page.Questions {
			if question.ID == id {
				return question, true
			}
		}
	}
	return Question{}, false
}

// Expired reports whether the due date is set and already past at now.
func (q Quiz) Expired(now time.Time) bool {
	return q.DueDate != nil && now.After(*q.DueDate)
}

// Duration is the time limit of one attempt.
func (q Quiz) Duration() time.Duration {
	return time.Duration(q.DurationMinutes) * time.Minute
}

// ResultStatus records how an attempt ended.
type ResultStatus string

const (
	ResultSubmitted  ResultStatus = "submitted"
	ResultTerminated ResultStatus = "terminated"
)

// Result is the record of one finished attempt. Only ScoreReleased changes after creation.
type Result struct {
	AttemptID     string           `json:"attemptId"`
	QuizID        int64            `json:"quizId"`
	QuizTitle     string           `json:"quizTitle"`
	StudentID     string           `json:"studentId"`
	StudentName   string           `json:"studentName"`
	Score         int              `json:"score"`
	Violations    int              `json:"violations"`
	Answers       map[int64]Answer `json:"answers"`
	SubmittedAt   time.Time        `json:"submittedAt"`
	Submitted     bool             `json:"submitted"`
	ScoreReleased bool             `json:"scoreReleased"`
	Status        ResultStatus     `json:"status"`
	Reason        string           `json:"reason,omitempty"`
	Auto          bool             `json:"auto"`
}

// Attempt is the per-student, per-quiz flag that blocks a second start.
type Attempt struct {
	Submitted   bool      `json:"submitted"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Role distinguishes instructors from students.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// User is an account able to log in. Passwords are kept as entered.
type User struct {
	Username  string    `json:"username" yaml:"username"`
	Password  string    `json:"password" yaml:"password"`
	Name      string    `json:"name" yaml:"name"`
	Email     string    `json:"email,omitempty" yaml:"email"`
	Role      Role      `json:"role" yaml:"role"`
	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"-"`
}

// SessionStatus is the state of a quiz-taking session.
type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionSubmitted  SessionStatus = "submitted"
	SessionTerminated SessionStatus = "terminated"
	// SessionRejected is used when the quiz was past due at start; it never becomes active.
	SessionRejected SessionStatus = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	return s != SessionActive
}

// SessionSnapshot is a read-only view of a session for hosts.
type SessionSnapshot struct {
	ID              string           `json:"id"`
	QuizID          int64            `json:"quizId"`
	QuizTitle       string           `json:"quizTitle"`
	StudentID       string           `json:"studentId"`
	Status          SessionStatus    `json:"status"`
	CurrentQuestion int              `json:"currentQuestion"`
	TotalQuestions  int              `json:"totalQuestions"`
	TimeRemaining   int              `json:"timeRemaining"`
	Violations      int              `json:"violations"`
	Answers         map[int64]Answer `json:"answers"`
}
