// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/intelbridge/intelbridge/internal/store"
	"github.com/intelbridge/intelbridge/internal/store/sqlite"
	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.SessionStore {
	t.Helper()
	s, err := sqlite.NewSessionStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newSession(userID string) *store.Session {
	now := time.Now()
	return &store.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := newSession("user-1")
	sess.Title = "APT29 inquiry"
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "APT29 inquiry", got.Title)
	assert.False(t, got.Archived)
	assert.WithinDuration(t, sess.CreatedAt, got.CreatedAt, time.Second)
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, ibrerr.HasCode(err, ibrerr.CodeStoreSessionNotFound))
}

func TestUpdateSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := newSession("user-1")
	require.NoError(t, s.CreateSession(ctx, sess))

	sess.Title = "CVE-2024-1234 lookup"
	sess.Archived = true
	require.NoError(t, s.UpdateSession(ctx, sess))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "CVE-2024-1234 lookup", got.Title)
	assert.True(t, got.Archived)

	err = s.UpdateSession(ctx, newSession("user-1"))
	assert.True(t, ibrerr.HasCode(err, ibrerr.CodeStoreSessionNotFound))
}

func TestListSessionsScopedToUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mine := newSession("user-1")
	theirs := newSession("user-2")
	require.NoError(t, s.CreateSession(ctx, mine))
	require.NoError(t, s.CreateSession(ctx, theirs))

	sessions, err := s.ListSessions(ctx, "user-1", store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, mine.ID, sessions[0].ID)
}

func TestDeleteSessionCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := newSession("user-1")
	require.NoError(t, s.CreateSession(ctx, sess))
	require.NoError(t, s.AppendMessage(ctx, sess.ID, &store.Message{
		ID: uuid.New().String(), Role: store.RoleUser, Content: "hi", CreatedAt: time.Now(),
	}))

	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	_, err := s.GetSession(ctx, sess.ID)
	assert.True(t, ibrerr.HasCode(err, ibrerr.CodeStoreSessionNotFound))

	err = s.DeleteSession(ctx, sess.ID)
	assert.True(t, ibrerr.HasCode(err, ibrerr.CodeStoreSessionNotFound))
}

func TestAppendMessageBumpsSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := newSession("user-1")
	sess.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.CreateSession(ctx, sess))

	msg := &store.Message{
		ID:        uuid.New().String(),
		Role:      store.RoleAssistant,
		Content:   "APT29 is also tracked as Cozy Bear.",
		Usage:     store.TokenUsage{PromptTokens: 120, CompletionTokens: 40, TotalTokens: 160},
		ToolCalls: []string{"search_threat_actors", "get_threat_actor_profile"},
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.AppendMessage(ctx, sess.ID, msg))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(sess.UpdatedAt), "append must bump session updated_at")

	msgs, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.RoleAssistant, msgs[0].Role)
	assert.Equal(t, 160, msgs[0].Usage.TotalTokens)
	assert.Equal(t, []string{"search_threat_actors", "get_threat_actor_profile"}, msgs[0].ToolCalls)
}

func TestAppendMessageUnknownSession(t *testing.T) {
	s := newTestStore(t)

	err := s.AppendMessage(context.Background(), "missing", &store.Message{
		ID: uuid.New().String(), Role: store.RoleUser, Content: "hi", CreatedAt: time.Now(),
	})
	require.Error(t, err)
}

func TestRecentMessagesWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := newSession("user-1")
	require.NoError(t, s.CreateSession(ctx, sess))

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMessage(ctx, sess.ID, &store.Message{
			ID:        uuid.New().String(),
			Role:      store.RoleUser,
			Content:   string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := s.RecentMessages(ctx, sess.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// Chronological order, last three.
	assert.Equal(t, "c", recent[0].Content)
	assert.Equal(t, "e", recent[2].Content)

	count, err := s.CountMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}
