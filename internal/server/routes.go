// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/intelbridge/intelbridge/internal/store"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "create-session",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions",
		Summary:     "Create an empty chat session",
		Tags:        []string{"sessions"},
	}, s.handleCreateSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List the user's chat sessions",
		Tags:        []string{"sessions"},
	}, s.handleListSessions)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session-messages",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/messages",
		Summary:     "Get a session's transcript",
		Tags:        []string{"sessions"},
	}, s.handleGetMessages)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-session",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Delete a session and its messages",
		Tags:        []string{"sessions"},
	}, s.handleDeleteSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "chat-in-session",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/chat",
		Summary:     "Send a message in an existing session",
		Tags:        []string{"chat"},
	}, s.handleSessionChat)

	huma.Register(s.api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/api/v1/chat",
		Summary:     "Send a message, creating a session lazily",
		Tags:        []string{"chat"},
	}, s.handleChat)
}

// --- Request/Response types for huma ---

// SessionView is the wire form of a session.
type SessionView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageView is the wire form of a message.
type MessageView struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Usage     store.TokenUsage `json:"usage"`
	ToolCalls []string         `json:"tool_calls,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// UserHeader carries the caller identity. It must stay exported: huma
// resolves inputs by reflection and cannot set fields promoted through an
// unexported embedded field.
type UserHeader struct {
	UserID string `header:"X-User-ID" required:"true" doc:"Authenticated user id, set by the hosting application"`
}

type createSessionInput struct {
	UserHeader
}
type createSessionOutput struct {
	Body SessionView
}

type listSessionsInput struct {
	UserHeader
	Limit  int `query:"limit" minimum:"0" maximum:"200" doc:"Page size, 0 for all"`
	Offset int `query:"offset" minimum:"0"`
}
type listSessionsOutput struct {
	Body struct {
		Sessions []SessionView `json:"sessions"`
	}
}

type sessionIDInput struct {
	UserHeader
	ID string `path:"id"`
}
type getMessagesOutput struct {
	Body struct {
		Messages []MessageView `json:"messages"`
	}
}
type deleteSessionOutput struct {
	Body struct {
		Status string `json:"status" example:"deleted"`
	}
}

type chatBody struct {
	Message string `json:"message" minLength:"1" doc:"The user's free-text question"`
}

type sessionChatInput struct {
	UserHeader
	ID   string `path:"id"`
	Body chatBody
}
type chatInput struct {
	UserHeader
	Body chatBody
}
type chatOutput struct {
	Body struct {
		Message   MessageView      `json:"message"`
		Usage     store.TokenUsage `json:"usage"`
		ToolCalls []string         `json:"tool_calls"`
	}
}

// --- Handlers ---

func (s *Server) handleCreateSession(ctx context.Context, input *createSessionInput) (*createSessionOutput, error) {
	sess, err := s.chat.CreateSession(ctx, input.UserID)
	if err != nil {
		return nil, humaError(err)
	}
	return &createSessionOutput{Body: sessionView(sess)}, nil
}

func (s *Server) handleListSessions(ctx context.Context, input *listSessionsInput) (*listSessionsOutput, error) {
	sessions, err := s.chat.ListSessions(ctx, input.UserID, store.ListOpts{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return nil, humaError(err)
	}
	out := &listSessionsOutput{}
	out.Body.Sessions = make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		out.Body.Sessions = append(out.Body.Sessions, sessionView(sess))
	}
	return out, nil
}

func (s *Server) handleGetMessages(ctx context.Context, input *sessionIDInput) (*getMessagesOutput, error) {
	msgs, err := s.chat.GetMessages(ctx, input.ID, input.UserID)
	if err != nil {
		return nil, humaError(err)
	}
	out := &getMessagesOutput{}
	out.Body.Messages = make([]MessageView, 0, len(msgs))
	for _, msg := range msgs {
		out.Body.Messages = append(out.Body.Messages, messageView(msg))
	}
	return out, nil
}

func (s *Server) handleDeleteSession(ctx context.Context, input *sessionIDInput) (*deleteSessionOutput, error) {
	if err := s.chat.DeleteSession(ctx, input.ID, input.UserID); err != nil {
		return nil, humaError(err)
	}
	out := &deleteSessionOutput{}
	out.Body.Status = "deleted"
	return out, nil
}

func (s *Server) handleSessionChat(ctx context.Context, input *sessionChatInput) (*chatOutput, error) {
	return s.runChat(ctx, input.ID, input.UserID, input.Body.Message)
}

func (s *Server) handleChat(ctx context.Context, input *chatInput) (*chatOutput, error) {
	return s.runChat(ctx, "", input.UserID, input.Body.Message)
}

func (s *Server) runChat(ctx context.Context, sessionID, userID, message string) (*chatOutput, error) {
	res, err := s.chat.Chat(ctx, sessionID, userID, message)
	if err != nil {
		s.log.Error("chat turn failed",
			"session_id", sessionID,
			"error", err)
		return nil, humaError(err)
	}
	out := &chatOutput{}
	out.Body.Message = messageView(res.Message)
	out.Body.Usage = store.TokenUsage{
		PromptTokens:     res.Usage.PromptTokens,
		CompletionTokens: res.Usage.CompletionTokens,
		TotalTokens:      res.Usage.TotalTokens,
	}
	out.Body.ToolCalls = res.ToolCalls
	return out, nil
}

func sessionView(sess *store.Session) SessionView {
	return SessionView{
		ID:        sess.ID,
		Title:     sess.Title,
		Archived:  sess.Archived,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
}

func messageView(msg *store.Message) MessageView {
	return MessageView{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		Usage:     msg.Usage,
		ToolCalls: msg.ToolCalls,
		CreatedAt: msg.CreatedAt,
	}
}
