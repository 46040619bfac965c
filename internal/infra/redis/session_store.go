package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"proctor-quiz-service/internal/app"
)

// SessionStore is a Redis-aware app.SessionRegistry.
// Sessions themselves live in process (they own timers and subscribers); Redis holds a
// liveness marker per student and quiz carrying the session id, so operators and other
// instances can see who is mid-attempt.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[app.SessionKey]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[app.SessionKey]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(key app.SessionKey, create func() *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok && !session.Status().Terminal() {
		return session
	}
	session := create()
	s.sessions[key] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(key), session.ID(), s.ttl).Err()
	return session
}

func (s *SessionStore) Get(key app.SessionKey) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

func (s *SessionStore) DeleteIfDone(key app.SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[key]
	if !ok {
		return
	}
	if session.Status().Terminal() {
		delete(s.sessions, key)
		_ = s.client.Del(context.Background(), s.key(key)).Err()
	}
}

// Touch extends the liveness marker of an active session.
func (s *SessionStore) Touch(ctx context.Context, key app.SessionKey) error {
	return s.client.Expire(ctx, s.key(key), s.ttl).Err()
}

// LiveSessionID returns the session id marked live for key, if any.
func (s *SessionStore) LiveSessionID(ctx context.Context, key app.SessionKey) (string, bool, error) {
	id, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *SessionStore) key(key app.SessionKey) string {
	return "quiz:session:" + key.String()
}
