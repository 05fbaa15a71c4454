// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
)

// MemoryStore is an in-memory SessionStore for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]*Message
}

var _ SessionStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]*Message),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, session *Session) error {
	if session.ID == "" {
		return ibrerr.New(ibrerr.CodeStoreInvalidInput, "session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return ibrerr.Errorf(ibrerr.CodeStoreInvalidInput, "session %s already exists", session.ID)
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ibrerr.Errorf(ibrerr.CodeStoreSessionNotFound, "session %s not found", id)
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return ibrerr.Errorf(ibrerr.CodeStoreSessionNotFound, "session %s not found", session.ID)
	}
	cp := *session
	cp.UpdatedAt = time.Now()
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) ListSessions(_ context.Context, userID string, opts ListOpts) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	for _, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ibrerr.Errorf(ibrerr.CodeStoreSessionNotFound, "session %s not found", id)
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, sessionID string, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ibrerr.Errorf(ibrerr.CodeStoreSessionNotFound, "session %s not found", sessionID)
	}

	cp := *msg
	cp.SessionID = sessionID
	cp.ToolCalls = append([]string(nil), msg.ToolCalls...)
	s.messages[sessionID] = append(s.messages[sessionID], &cp)
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ibrerr.Errorf(ibrerr.CodeStoreSessionNotFound, "session %s not found", sessionID)
	}

	msgs := s.messages[sessionID]
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	msgs, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *MemoryStore) CountMessages(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return 0, ibrerr.Errorf(ibrerr.CodeStoreSessionNotFound, "session %s not found", sessionID)
	}
	return len(s.messages[sessionID]), nil
}

func (s *MemoryStore) Close() error { return nil }
