package flansa

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dineshvijayakumar2/flansa-builder/services"
	"github.com/dineshvijayakumar2/flansa-builder/types"
)

type session struct {
	id       string
	form     *services.FormBuilder
	lastUsed time.Time
}

// sessionStore keeps the form builders opened over HTTP.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

func (s *sessionStore) add(form *services.FormBuilder) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &session{id: id, form: form, lastUsed: s.now()}
	return id
}

func (s *sessionStore) get(id string) (*services.FormBuilder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, &types.NotFoundError{Kind: "session", Name: id}
	}
	sess.lastUsed = s.now()
	return sess.form, nil
}

func (s *sessionStore) close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return &types.NotFoundError{Kind: "session", Name: id}
	}
	sess.form.Close()
	return nil
}

// closeTable ends every session editing table.
func (s *sessionStore) closeTable(table string) int {
	s.mu.Lock()
	var closing []*session
	for id, sess := range s.sessions {
		if sess.form.Table() == table {
			closing = append(closing, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range closing {
		sess.form.Close()
	}
	return len(closing)
}

// prune ends sessions idle for longer than maxIdle.
func (s *sessionStore) prune(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	var closing []*session
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			closing = append(closing, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range closing {
		sess.form.Close()
	}
	return len(closing)
}

func (s *sessionStore) closeAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range all {
		sess.form.Close()
	}
}

func (s *sessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
