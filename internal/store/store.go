// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

// Package store persists conversation sessions and their messages. The
// graph mirror is read elsewhere; this package owns only the chat state.
package store

import (
	"context"
	"time"
)

// Session is a conversation container, created lazily on the first user
// message when the caller supplies no session id.
type Session struct {
	ID     string
	UserID string
	// Title is derived heuristically from the first user message; empty
	// until the first assistant reply lands.
	Title     string
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRole identifies the sender of a persisted message. Only user and
// assistant turns are stored; system and tool messages live in the
// in-flight transcript.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// TokenUsage records the token counts accumulated while producing a message.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message is one turn of a session. Messages are append-only.
type Message struct {
	ID        string
	SessionID string
	Role      MessageRole
	// Content is markdown-formatted for assistant messages.
	Content string
	Usage   TokenUsage
	// ToolCalls is the ordered list of tool names invoked while producing
	// this message; empty for user messages.
	ToolCalls []string
	CreatedAt time.Time
}

// ListOpts provides pagination parameters for list operations.
type ListOpts struct {
	Limit  int
	Offset int
}

// SessionStore manages sessions and their append-only message log.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	ListSessions(ctx context.Context, userID string, opts ListOpts) ([]*Session, error)
	DeleteSession(ctx context.Context, id string) error

	// AppendMessage inserts the message and bumps the session's UpdatedAt.
	AppendMessage(ctx context.Context, sessionID string, msg *Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)
	// RecentMessages returns the last N messages in chronological order.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error)
	CountMessages(ctx context.Context, sessionID string) (int, error)

	Close() error
}
