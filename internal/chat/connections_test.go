package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/genie/internal/types"
)

type countingTokens struct{ calls int }

func (c *countingTokens) CountMessages(messages []types.Message) int {
	c.calls++
	return len(messages)
}

func TestConnectionManagerLifecycle(t *testing.T) {
	backend := &fakeBackend{}
	tokens := &countingTokens{}
	m := NewConnectionManager(backend, tokens, nil)
	ctx := context.Background()

	s := types.ChatSession{
		ID:      "s1",
		ModelID: "gemma-3-1b-it",
		Messages: []types.Message{
			types.NewMessage(types.RoleUser, "hi"),
			types.NewMessage(types.RoleModel, "hello"),
		},
	}

	c1, err := m.GetOrCreate(ctx, s)
	require.NoError(t, err)
	c2, err := m.GetOrCreate(ctx, s)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Equal(t, 1, backend.createdCount())
	assert.Equal(t, 1, tokens.calls)
	assert.Len(t, backend.created[0].history, 2)

	m.Invalidate("s1")
	assert.False(t, m.Has("s1"))
	_, err = m.GetOrCreate(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.createdCount())

	// A session now bound to another model never reuses the old connection.
	s.ModelID = "gemini-2.0-flash"
	_, err = m.GetOrCreate(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 3, backend.createdCount())
	assert.Equal(t, "gemini-2.0-flash", backend.created[2].modelID)

	m.Forget("s1")
	assert.False(t, m.Has("s1"))

	_, err = m.GetOrCreate(ctx, s)
	require.NoError(t, err)
	m.Reset()
	assert.False(t, m.Has("s1"))
}

func TestConnectionManagerCreateError(t *testing.T) {
	m := NewConnectionManager(&fakeBackend{createErr: assert.AnError}, nil, nil)
	_, err := m.GetOrCreate(context.Background(), types.ChatSession{ID: "x", ModelID: "m"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, m.Has("x"))
}
