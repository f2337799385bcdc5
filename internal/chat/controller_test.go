package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/genie/internal/state"
	"github.com/user/genie/internal/types"
)

func TestStartNewChat(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	ctx := context.Background()

	h.ctl.ToggleSidebar()
	require.True(t, h.ctl.SidebarOpen())

	s := h.ctl.StartNewChat(ctx)
	assert.Equal(t, types.DefaultTitle, s.Title)
	assert.Equal(t, "gemma-3-1b-it", s.ModelID)
	assert.False(t, s.IsPinned)
	assert.Empty(t, s.Messages)
	assert.Equal(t, s.ID, h.ctl.ActiveID())
	assert.False(t, h.ctl.SidebarOpen())

	second := h.ctl.StartNewChat(ctx)
	h.ctl.mu.Lock()
	front := h.ctl.sessions[0].ID
	h.ctl.mu.Unlock()
	assert.Equal(t, second.ID, front, "new chats are prepended")
}

func TestSendMessageStreamsDeltas(t *testing.T) {
	backend := &fakeBackend{chunks: []string{"Hel", "lo, ", "world!"}, titleText: "Greeting Exchange"}
	h := newHarness(t, backend)
	ctx := context.Background()

	var mu sync.Mutex
	var updates []string
	h.ctl.Watch(func(ch Change) {
		if ch.Kind != ChangeMessageUpdated {
			return
		}
		s, _ := h.ctl.Session(ch.SessionID)
		m, _ := s.Message(ch.MessageID)
		mu.Lock()
		updates = append(updates, m.Content)
		mu.Unlock()
	})

	id, err := h.ctl.SendMessage(ctx, "", "hello there", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "Hello, ", "Hello, world!"}, updates)

	s, ok := h.ctl.Session(id)
	require.True(t, ok)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, types.RoleUser, s.Messages[0].Role)
	assert.Equal(t, "hello there", s.Messages[0].Content)
	assert.Equal(t, types.RoleModel, s.Messages[1].Role)
	assert.Equal(t, "Hello, world!", s.Messages[1].Content)
	assert.Equal(t, "Greeting Exchange", s.Title)
	assert.False(t, h.ctl.IsLoading())
	assert.Equal(t, id, h.ctl.ActiveID())

	// First turn of a fresh session: nothing to replay.
	require.Len(t, backend.created, 1)
	assert.Empty(t, backend.created[0].history)
	assert.Equal(t, "hello there", backend.sent[0][0].Text)
}

func TestStopGeneratingKeepsPartialContent(t *testing.T) {
	backend := &fakeBackend{chunks: []string{"Hel", "lo, ", "world!"}, titleText: "unused"}
	h := newHarness(t, backend)

	updates := 0
	h.ctl.Watch(func(ch Change) {
		if ch.Kind == ChangeMessageUpdated {
			updates++
			h.ctl.StopGenerating()
		}
	})

	id, err := h.ctl.SendMessage(context.Background(), "", "hi", nil)
	require.NoError(t, err)

	s, _ := h.ctl.Session(id)
	assert.Equal(t, "Hel", lastMessage(t, s).Content)
	assert.Equal(t, types.RoleModel, lastMessage(t, s).Role)
	assert.Equal(t, 1, updates)
	assert.False(t, h.ctl.IsLoading())
	assert.Equal(t, 0, backend.promptCount(), "no title after a stopped response")
	assert.Equal(t, types.DefaultTitle, s.Title)
}

func TestStopBeforeStreamErrorKeepsPartialContent(t *testing.T) {
	backend := &fakeBackend{chunks: []string{"partial"}, streamErr: errors.New("connection reset")}
	h := newHarness(t, backend)

	h.ctl.Watch(func(ch Change) {
		if ch.Kind == ChangeMessageUpdated {
			h.ctl.StopGenerating()
		}
	})

	id, err := h.ctl.SendMessage(context.Background(), "", "hi", nil)
	require.NoError(t, err)

	s, _ := h.ctl.Session(id)
	assert.Equal(t, types.RoleModel, lastMessage(t, s).Role)
	assert.Equal(t, "partial", lastMessage(t, s).Content)
	assert.False(t, h.ctl.IsLoading())
}

func TestImageRejectedForTextOnlyModel(t *testing.T) {
	backend := &fakeBackend{chunks: []string{"x"}}
	h := newHarness(t, backend)
	ctx := context.Background()

	s := h.ctl.StartNewChat(ctx)
	img := types.NewImageAttachment([]byte("png"), "image/png", "cat.png")

	_, err := h.ctl.SendMessage(ctx, s.ID, "what is this", img)
	require.NoError(t, err)

	s, _ = h.ctl.Session(s.ID)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, types.RoleError, s.Messages[0].Role)
	assert.Contains(t, s.Messages[0].Content, "Gemma 3 1B")
	assert.Equal(t, 0, backend.createdCount())
	assert.Empty(t, backend.sent)
	assert.False(t, h.ctl.IsLoading())
}

func TestImageSentToCapableModel(t *testing.T) {
	backend := &fakeBackend{chunks: []string{"A cat."}, titleText: "Cat Photo"}
	h := newHarness(t, backend)
	ctx := context.Background()

	s := h.ctl.StartNewChat(ctx)
	require.NoError(t, h.ctl.ChangeSessionModel(ctx, s.ID, "gemma-3-27b-it"))

	img := types.NewImageAttachment([]byte("png"), "image/png", "cat.png")
	_, err := h.ctl.SendMessage(ctx, s.ID, "", img)
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	frags := backend.sent[0]
	require.Len(t, frags, 2)
	assert.Equal(t, "image", string(frags[0].Kind))
	assert.Equal(t, "cG5n", frags[0].Data)
	assert.Equal(t, "", frags[1].Text)

	s, _ = h.ctl.Session(s.ID)
	assert.NotNil(t, s.Messages[0].Image)
	assert.Equal(t, "Cat Photo", s.Title)
	assert.Contains(t, backend.prompts[0], "cat.png")
}

func TestTitleFallbackWhenGenerationFails(t *testing.T) {
	backend := &fakeBackend{chunks: []string{"ok"}, titleErr: assert.AnError}
	h := newHarness(t, backend)

	text := strings.Repeat("abcde", 10)
	id, err := h.ctl.SendMessage(context.Background(), "", text, nil)
	require.NoError(t, err)

	s, _ := h.ctl.Session(id)
	assert.Equal(t, text[:30]+"...", s.Title)
	assert.Equal(t, types.RoleModel, lastMessage(t, s).Role, "title failure must not become an error message")
}

func TestTitleCleanupAndLimits(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		text  string
		want  string
	}{
		{"strips quotes", `"Paris Trip Plans"`, "plan a trip", "Paris Trip Plans"},
		{"too long", strings.Repeat("x", 61), "short question", "short question"},
		{"empty", `""`, "another question that is rather long", "another question that is rathe..."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, &fakeBackend{chunks: []string{"reply"}, titleText: tc.reply})
			id, err := h.ctl.SendMessage(context.Background(), "", tc.text, nil)
			require.NoError(t, err)
			s, _ := h.ctl.Session(id)
			assert.Equal(t, tc.want, s.Title)
		})
	}
}

func TestTitleOnlyAfterFirstReply(t *testing.T) {
	backend := &fakeBackend{chunks: []string{"one"}, titleText: "First Title"}
	h := newHarness(t, backend)
	ctx := context.Background()

	id, err := h.ctl.SendMessage(ctx, "", "first", nil)
	require.NoError(t, err)
	require.NoError(t, h.ctl.RenameSession(ctx, id, types.DefaultTitle))

	backend.titleText = "Second Title"
	_, err = h.ctl.SendMessage(ctx, id, "second", nil)
	require.NoError(t, err)

	s, _ := h.ctl.Session(id)
	assert.Equal(t, types.DefaultTitle, s.Title)
	assert.Equal(t, 1, backend.promptCount())
}

func TestStreamFailureBecomesErrorMessage(t *testing.T) {
	backend := &fakeBackend{chunks: []string{"partial"}, streamErr: assert.AnError}
	h := newHarness(t, backend)

	id, err := h.ctl.SendMessage(context.Background(), "", "hi", nil)
	require.NoError(t, err)

	s, _ := h.ctl.Session(id)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, types.RoleUser, s.Messages[0].Role)
	assert.Equal(t, types.RoleError, s.Messages[1].Role)
	assert.Equal(t, "Failed to get response: "+assert.AnError.Error(), s.Messages[1].Content)
	assert.Equal(t, types.DefaultTitle, s.Title)
	assert.Equal(t, 0, backend.promptCount())
	assert.False(t, h.ctl.IsLoading())
}

func TestSendErrorBeforeStreaming(t *testing.T) {
	backend := &fakeBackend{createErr: assert.AnError}
	h := newHarness(t, backend)

	id, err := h.ctl.SendMessage(context.Background(), "", "hi", nil)
	require.NoError(t, err)

	s, _ := h.ctl.Session(id)
	assert.Equal(t, types.RoleError, lastMessage(t, s).Role)
	assert.Contains(t, lastMessage(t, s).Content, "Failed to get response:")
}

func TestEmptySubmissionIsNoop(t *testing.T) {
	backend := &fakeBackend{}
	h := newHarness(t, backend)

	_, err := h.ctl.SendMessage(context.Background(), "", "   ", nil)
	require.NoError(t, err)
	assert.Empty(t, h.ctl.Sessions())
	assert.Equal(t, 0, backend.createdCount())
}

func TestSendToMissingSession(t *testing.T) {
	h := newHarness(t, &fakeBackend{chunks: []string{"x"}})
	ctx := context.Background()

	active := h.ctl.StartNewChat(ctx)
	target, err := h.ctl.SendMessage(ctx, "gone", "hello", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, active.ID, target)

	s, _ := h.ctl.Session(active.ID)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, types.RoleError, s.Messages[0].Role)
}

func TestSendWhileBusy(t *testing.T) {
	backend := &fakeBackend{chunks: []string{"slow"}, block: make(chan struct{}), titleText: "T"}
	h := newHarness(t, backend)
	ctx := context.Background()
	s := h.ctl.StartNewChat(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ctl.SendMessage(ctx, s.ID, "first", nil)
	}()

	require.Eventually(t, h.ctl.IsLoading, time.Second, time.Millisecond)
	_, err := h.ctl.SendMessage(ctx, s.ID, "second", nil)
	assert.ErrorIs(t, err, ErrBusy)

	close(backend.block)
	<-done
	assert.False(t, h.ctl.IsLoading())

	s, _ = h.ctl.Session(s.ID)
	assert.Len(t, s.Messages, 2)
}

func TestConnectionReusedUntilModelChanges(t *testing.T) {
	backend := &fakeBackend{chunks: []string{"answer"}, titleText: "T"}
	h := newHarness(t, backend)
	ctx := context.Background()

	id, err := h.ctl.SendMessage(ctx, "", "one", nil)
	require.NoError(t, err)
	_, err = h.ctl.SendMessage(ctx, id, "two", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.createdCount())

	require.NoError(t, h.ctl.ChangeSessionModel(ctx, id, "gemini-2.0-flash"))
	require.NoError(t, h.ctl.ChangeSessionModel(ctx, id, "gemini-2.0-flash"))
	_, err = h.ctl.SendMessage(ctx, id, "three", nil)
	require.NoError(t, err)

	require.Equal(t, 2, backend.createdCount())
	rebuilt := backend.created[1]
	assert.Equal(t, "gemini-2.0-flash", rebuilt.modelID)
	require.Len(t, rebuilt.history, 4)
	assert.Equal(t, "one", rebuilt.history[0].Text())
	assert.Equal(t, "answer", rebuilt.history[3].Text())

	err = h.ctl.ChangeSessionModel(ctx, id, "no-such-model")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestDeleteReselectsByOrder(t *testing.T) {
	fakeClock(t)
	h := newHarness(t, &fakeBackend{})
	ctx := context.Background()

	oldest := h.ctl.StartNewChat(ctx)
	middle := h.ctl.StartNewChat(ctx)
	newest := h.ctl.StartNewChat(ctx)
	require.NoError(t, h.ctl.TogglePin(ctx, oldest.ID))

	require.NoError(t, h.ctl.SelectSession(newest.ID))
	require.NoError(t, h.ctl.DeleteSession(ctx, newest.ID))
	assert.Equal(t, oldest.ID, h.ctl.ActiveID(), "pinned session wins")

	// Deleting an inactive session keeps the selection.
	require.NoError(t, h.ctl.DeleteSession(ctx, middle.ID))
	assert.Equal(t, oldest.ID, h.ctl.ActiveID())

	require.NoError(t, h.ctl.DeleteSession(ctx, oldest.ID))
	assert.Equal(t, types.SessionID(""), h.ctl.ActiveID())
	assert.Empty(t, h.ctl.Sessions())

	_, present, err := h.kv.Get(ctx, state.KeySessions)
	require.NoError(t, err)
	assert.False(t, present, "deleting the last session removes the record")

	reloaded := New(Options{Backend: h.backend, Store: h.store, Models: h.ctl.models})
	require.NoError(t, reloaded.Load(ctx))
	assert.Empty(t, reloaded.Sessions())
	assert.Equal(t, types.SessionID(""), reloaded.ActiveID())

	assert.ErrorIs(t, h.ctl.DeleteSession(ctx, "missing"), ErrSessionNotFound)
}

func TestTogglePinTwiceRestoresSession(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	ctx := context.Background()

	before := h.ctl.StartNewChat(ctx)
	require.NoError(t, h.ctl.TogglePin(ctx, before.ID))
	mid, _ := h.ctl.Session(before.ID)
	assert.True(t, mid.IsPinned)
	require.NoError(t, h.ctl.TogglePin(ctx, before.ID))

	after, _ := h.ctl.Session(before.ID)
	assert.Equal(t, before, after)
}

func TestRenameSession(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	ctx := context.Background()
	s := h.ctl.StartNewChat(ctx)

	require.NoError(t, h.ctl.RenameSession(ctx, s.ID, "  Trip plans  "))
	got, _ := h.ctl.Session(s.ID)
	assert.Equal(t, "Trip plans", got.Title)

	require.NoError(t, h.ctl.RenameSession(ctx, s.ID, "   "))
	got, _ = h.ctl.Session(s.ID)
	assert.Equal(t, "Trip plans", got.Title)

	assert.ErrorIs(t, h.ctl.RenameSession(ctx, "missing", "x"), ErrSessionNotFound)
}

func TestChangeDefaultModel(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	ctx := context.Background()

	existing := h.ctl.StartNewChat(ctx)

	ok, err := h.ctl.ChangeDefaultModel(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "gemma-3-1b-it", h.ctl.DefaultModel())

	ok, err = h.ctl.ChangeDefaultModel(ctx, "gemini-2.0-flash")
	require.NoError(t, err)
	assert.True(t, ok)

	fresh := h.ctl.StartNewChat(ctx)
	assert.Equal(t, "gemini-2.0-flash", fresh.ModelID)
	old, _ := h.ctl.Session(existing.ID)
	assert.Equal(t, "gemma-3-1b-it", old.ModelID)
}

func TestLoadRestoresStateAndDropsConnections(t *testing.T) {
	fakeClock(t)
	backend := &fakeBackend{chunks: []string{"hi"}, titleText: "T"}
	h := newHarness(t, backend)
	ctx := context.Background()

	first, err := h.ctl.SendMessage(ctx, "", "one", nil)
	require.NoError(t, err)
	h.ctl.StartNewChat(ctx)
	require.NoError(t, h.ctl.TogglePin(ctx, first))

	reloaded := New(Options{Backend: backend, Store: h.store, Models: h.ctl.models})
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, first, reloaded.ActiveID(), "pinned session restored as active")
	assert.Len(t, reloaded.Sessions(), 2)

	_, err = reloaded.SendMessage(ctx, first, "two", nil)
	require.NoError(t, err)
	require.Equal(t, 2, backend.createdCount(), "connection rebuilt after reload")
	assert.Len(t, backend.created[1].history, 2)
}

func TestSnapshotIsolation(t *testing.T) {
	h := newHarness(t, &fakeBackend{chunks: []string{"x"}, titleText: "T"})
	id, err := h.ctl.SendMessage(context.Background(), "", "hello", nil)
	require.NoError(t, err)

	snap := h.ctl.Snapshot()
	require.Len(t, snap.Sessions, 1)
	snap.Sessions[0].Messages[0].Content = "tampered"

	s, _ := h.ctl.Session(id)
	assert.Equal(t, "hello", s.Messages[0].Content)
	assert.Equal(t, id, snap.ActiveID)
	assert.Equal(t, "gemma-3-1b-it", snap.DefaultModel)
}
