package domain

import "time"

// EventType names a session lifecycle notification for the host UI.
type EventType string

const (
	EventStarted    EventType = "started"
	EventWarning    EventType = "warning"
	EventSubmitted  EventType = "submitted"
	EventTerminated EventType = "terminated"
	EventRejected   EventType = "rejected"
)

// Event is emitted by a session; the host decides how to navigate on it.
type Event struct {
	Type          EventType     `json:"type"`
	SessionID     string        `json:"sessionId"`
	QuizID        int64         `json:"quizId"`
	StudentID     string        `json:"studentId"`
	Status        SessionStatus `json:"status"`
	Reason        string        `json:"reason,omitempty"`
	Violations    int           `json:"violations"`
	TimeRemaining int           `json:"timeRemaining"`
	Result        *Result       `json:"result,omitempty"`
	At            time.Time     `json:"at"`
}
