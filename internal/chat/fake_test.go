package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/genie/internal/models"
	"github.com/user/genie/internal/state"
	"github.com/user/genie/internal/types"
	"github.com/user/genie/pkg/llm"
)

type createCall struct {
	modelID string
	history []llm.Turn
}

// fakeBackend scripts streams and title answers and records every call.
type fakeBackend struct {
	mu sync.Mutex

	chunks    []string
	sendErr   error
	streamErr error
	createErr error
	titleText string
	titleErr  error
	block     chan struct{}

	created []createCall
	sent    [][]llm.Fragment
	prompts []string
}

func (f *fakeBackend) CreateConversation(ctx context.Context, modelID string, history []llm.Turn) (llm.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, createCall{modelID: modelID, history: history})
	return &fakeConversation{backend: f}, nil
}

func (f *fakeBackend) GenerateOnce(ctx context.Context, modelID, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.titleText, f.titleErr
}

func (f *fakeBackend) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeBackend) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeConversation struct {
	backend *fakeBackend
}

func (c *fakeConversation) SendStream(ctx context.Context, fragments []llm.Fragment) (<-chan llm.Delta, error) {
	f := c.backend
	f.mu.Lock()
	f.sent = append(f.sent, fragments)
	chunks, sendErr, streamErr, block := f.chunks, f.sendErr, f.streamErr, f.block
	f.mu.Unlock()

	if sendErr != nil {
		return nil, sendErr
	}

	ch := make(chan llm.Delta)
	go func() {
		defer close(ch)
		if block != nil {
			select {
			case <-block:
			case <-ctx.Done():
				return
			}
		}
		for _, chunk := range chunks {
			select {
			case ch <- llm.Delta{Content: chunk}:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			select {
			case ch <- llm.Delta{Err: streamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

type harness struct {
	ctl     *Controller
	backend *fakeBackend
	kv      *state.FileKV
	store   *state.ConversationStore
}

func newHarness(t *testing.T, backend *fakeBackend) *harness {
	t.Helper()
	registry, err := models.NewRegistry()
	require.NoError(t, err)

	kv := state.NewFileKV(t.TempDir())
	store := state.NewConversationStore(kv, registry)
	ctl := New(Options{Backend: backend, Store: store, Models: registry})
	require.NoError(t, ctl.Load(context.Background()))
	return &harness{ctl: ctl, backend: backend, kv: kv, store: store}
}

// fakeClock makes session creation times strictly increasing.
func fakeClock(t *testing.T) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	nowFunc = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	t.Cleanup(func() { nowFunc = time.Now })
}

func lastMessage(t *testing.T, s types.ChatSession) types.Message {
	t.Helper()
	require.NotEmpty(t, s.Messages)
	return s.Messages[len(s.Messages)-1]
}
