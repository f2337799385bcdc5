// internal/state/conversations_test.go
package state

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/user/genie/internal/types"
)

type stubModels struct{}

func (stubModels) Valid(id string) bool {
	return id == "gemma-3-1b-it" || id == "gemma-3-27b-it"
}

func (stubModels) Default() string { return "gemma-3-1b-it" }

func sampleSessions() []types.ChatSession {
	created := time.Date(2025, 3, 1, 10, 30, 0, 123456789, time.UTC)
	return []types.ChatSession{
		{
			ID:        types.NewSessionID(),
			Title:     "Pinned",
			CreatedAt: created,
			ModelID:   "gemma-3-27b-it",
			IsPinned:  true,
			Messages: []types.Message{
				{ID: types.NewMessageID(), Role: types.RoleUser, Content: "look", Timestamp: created,
					Image: types.NewImageAttachment([]byte{1, 2, 3}, "image/png", "a.png")},
				{ID: types.NewMessageID(), Role: types.RoleModel, Content: "a picture", Timestamp: created},
				{ID: types.NewMessageID(), Role: types.RoleError, Content: "Failed to get response: x", Timestamp: created},
			},
		},
		{
			ID:        types.NewSessionID(),
			Title:     types.DefaultTitle,
			CreatedAt: created.Add(time.Hour),
			ModelID:   "gemma-3-1b-it",
			Messages:  []types.Message{},
		},
	}
}

func TestConversationStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, kv := range kvDrivers(t) {
		t.Run(name, func(t *testing.T) {
			store := NewConversationStore(kv, stubModels{})
			want := sampleSessions()
			if err := store.Save(ctx, want); err != nil {
				t.Fatal(err)
			}

			got, err := store.Load(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(want) {
				t.Fatalf("expected %d sessions, got %d", len(want), len(got))
			}
			for i := range want {
				w, g := want[i], got[i]
				if g.ID != w.ID || g.Title != w.Title || g.ModelID != w.ModelID || g.IsPinned != w.IsPinned {
					t.Errorf("session %d mismatch: %+v vs %+v", i, g, w)
				}
				if !g.CreatedAt.Equal(w.CreatedAt) {
					t.Errorf("created_at mismatch: %v vs %v", g.CreatedAt, w.CreatedAt)
				}
				if len(g.Messages) != len(w.Messages) {
					t.Fatalf("message count mismatch: %d vs %d", len(g.Messages), len(w.Messages))
				}
				for j := range w.Messages {
					if g.Messages[j].Content != w.Messages[j].Content || g.Messages[j].Role != w.Messages[j].Role {
						t.Errorf("message %d mismatch", j)
					}
					if !g.Messages[j].Timestamp.Equal(w.Messages[j].Timestamp) {
						t.Errorf("timestamp mismatch for message %d", j)
					}
				}
			}
			img := got[0].Messages[0].Image
			if img == nil || img.FileName != "a.png" || !strings.HasPrefix(img.Base64Data, "data:image/png;base64,") {
				t.Errorf("image not rehydrated: %+v", img)
			}
		})
	}
}

func TestConversationStoreEmptyListRemovesRecord(t *testing.T) {
	ctx := context.Background()
	kv := NewFileKV(t.TempDir())
	store := NewConversationStore(kv, stubModels{})

	if err := store.Save(ctx, sampleSessions()); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, nil); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := kv.Get(ctx, KeySessions); ok {
		t.Error("expected sessions record to be removed, not saved empty")
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no sessions, got %d", len(got))
	}
}

func TestConversationStoreLoadDefaults(t *testing.T) {
	ctx := context.Background()
	kv := NewFileKV(t.TempDir())
	store := NewConversationStore(kv, stubModels{})

	// Legacy record: no model id, no pin flag, a stray live connection field.
	raw := `[{"id":"s1","title":"Old","messages":[{"id":"m1","role":"user","content":"hi","timestamp":"2024-01-02T03:04:05Z"}],` +
		`"created_at":"2024-01-02T03:04:05Z","chat_instance":{"history":[]}}]`
	if err := kv.Set(ctx, KeySessions, raw); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetDefaultModel(ctx, "gemma-3-27b-it"); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 session, got %d", len(got))
	}
	if got[0].ModelID != "gemma-3-27b-it" {
		t.Errorf("expected model defaulted to preference, got %q", got[0].ModelID)
	}
	if got[0].IsPinned {
		t.Error("expected missing pin flag to default to false")
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if !got[0].Messages[0].Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, got[0].Messages[0].Timestamp)
	}
}

func TestConversationStoreDefaultModel(t *testing.T) {
	ctx := context.Background()
	kv := NewFileKV(t.TempDir())
	store := NewConversationStore(kv, stubModels{})

	id, err := store.DefaultModel(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != "gemma-3-1b-it" {
		t.Errorf("expected registry default, got %s", id)
	}

	ok, err := store.SetDefaultModel(ctx, "nope")
	if err != nil || ok {
		t.Errorf("expected unknown id to be ignored, got ok=%v err=%v", ok, err)
	}
	if _, present, _ := kv.Get(ctx, KeyDefaultModel); present {
		t.Error("unknown id must not be persisted")
	}

	ok, err = store.SetDefaultModel(ctx, "gemma-3-27b-it")
	if err != nil || !ok {
		t.Fatalf("expected accepted, got ok=%v err=%v", ok, err)
	}
	id, _ = store.DefaultModel(ctx)
	if id != "gemma-3-27b-it" {
		t.Errorf("expected stored preference, got %s", id)
	}

	// A stored id that is no longer registered falls back to the default.
	kv.Set(ctx, KeyDefaultModel, "retired-model")
	id, _ = store.DefaultModel(ctx)
	if id != "gemma-3-1b-it" {
		t.Errorf("expected fallback to registry default, got %s", id)
	}
}

func TestConversationStoreCorruptRecord(t *testing.T) {
	ctx := context.Background()
	kv := NewFileKV(t.TempDir())
	kv.Set(ctx, KeySessions, "{not json")
	store := NewConversationStore(kv, stubModels{})
	if _, err := store.Load(ctx); err == nil {
		t.Error("expected error for corrupt record")
	}
}
