package cli

import (
	"testing"
	"time"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/config"
)

func TestSessionOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Session.ViolationThreshold = 5
	cfg.Session.TerminationPolicy = "score"
	cfg.Session.TickInterval = "500ms"

	opts, err := sessionOptions(cfg)
	if err != nil {
		t.Fatalf("session options: %v", err)
	}
	if opts.ViolationThreshold != 5 || opts.TerminationPolicy != app.PolicyScore || opts.TickInterval != 500*time.Millisecond {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestSessionOptionsRejectsUnknownPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Session.TerminationPolicy = "zer0"

	if _, err := sessionOptions(cfg); err == nil {
		t.Fatalf("expected an unknown termination policy to be rejected")
	}
}
