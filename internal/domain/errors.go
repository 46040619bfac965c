package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQuizNotFound indicates no published quiz has the requested id.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizExpired is returned when a quiz is started after its due date.
	ErrQuizExpired = errors.New("quiz is past its due date")
	// ErrAlreadyAttempted is returned when the student already finished this quiz.
	ErrAlreadyAttempted = errors.New("quiz already attempted")
	// ErrInvalidState is returned when a session operation is attempted outside the active state.
	ErrInvalidState = errors.New("session is not active")
	// ErrSessionNotFound is returned when no session exists for a student and quiz.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrPageNotFound indicates a draft page index is out of range.
	ErrPageNotFound = errors.New("page not found")
	// ErrOptionNotFound indicates an option index is out of range.
	ErrOptionNotFound = errors.New("option not found")
	// ErrValidationFailed is matched by every ValidationErrors value.
	ErrValidationFailed = errors.New("validation failed")
	// ErrInvalidCredentials is returned by login for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects field errors; errors.Is(err, ErrValidationFailed) holds for it.
type ValidationErrors []FieldError

func (ve ValidationErrors) Error() string {
	switch len(ve) {
	case 0:
		return ErrValidationFailed.Error()
	case 1:
		return fmt.Sprintf("%s: %s %s", ErrValidationFailed, ve[0].Field, ve[0].Message)
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(parts, "; "))
}

func (ve ValidationErrors) Is(target error) bool {
	return target == ErrValidationFailed
}

// Add appends a field error.
func (ve *ValidationErrors) Add(field, message string) {
	*ve = append(*ve, FieldError{Field: field, Message: message})
}

// Err returns nil when empty so callers can `return errs.Err()`.
func (ve ValidationErrors) Err() error {
	if len(ve) == 0 {
		return nil
	}
	return ve
}
