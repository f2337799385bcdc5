// internal/state/conversations.go
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/genie/internal/types"
)

const (
	KeySessions     = "chat_sessions"
	KeyDefaultModel = "default_model"
)

// ModelValidator is the part of the model registry the store needs.
type ModelValidator interface {
	Valid(id string) bool
	Default() string
}

// ConversationStore persists the session list and the default model
// preference on top of a KeyValueStore.
type ConversationStore struct {
	kv     types.KeyValueStore
	models ModelValidator
}

// NewConversationStore creates a store over kv validating model ids with models.
func NewConversationStore(kv types.KeyValueStore, models ModelValidator) *ConversationStore {
	return &ConversationStore{kv: kv, models: models}
}

// DefaultModel returns the stored preference, or the registry default when
// none is stored or the stored id is no longer registered.
func (s *ConversationStore) DefaultModel(ctx context.Context) (string, error) {
	id, ok, err := s.kv.Get(ctx, KeyDefaultModel)
	if err != nil {
		return "", fmt.Errorf("load default model: %w", err)
	}
	if !ok || !s.models.Valid(id) {
		return s.models.Default(), nil
	}
	return id, nil
}

// SetDefaultModel stores id as the preference. Unknown ids are ignored and
// reported with accepted == false.
func (s *ConversationStore) SetDefaultModel(ctx context.Context, id string) (accepted bool, err error) {
	if !s.models.Valid(id) {
		return false, nil
	}
	if err := s.kv.Set(ctx, KeyDefaultModel, id); err != nil {
		return false, fmt.Errorf("save default model: %w", err)
	}
	return true, nil
}

// Load reads the persisted sessions. A missing record yields an empty list.
// Sessions without a model id get the current default model.
func (s *ConversationStore) Load(ctx context.Context) ([]types.ChatSession, error) {
	raw, ok, err := s.kv.Get(ctx, KeySessions)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	if !ok || raw == "" {
		return []types.ChatSession{}, nil
	}

	var sessions []types.ChatSession
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil, fmt.Errorf("unmarshal sessions: %w", err)
	}

	defaultModel, err := s.DefaultModel(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ModelID == "" {
			sessions[i].ModelID = defaultModel
		}
		if sessions[i].Messages == nil {
			sessions[i].Messages = []types.Message{}
		}
	}
	return sessions, nil
}

// Save persists the full session list. An empty list removes the record
// entirely so a fresh install and an all-deleted state load the same way.
func (s *ConversationStore) Save(ctx context.Context, sessions []types.ChatSession) error {
	if len(sessions) == 0 {
		if err := s.kv.Delete(ctx, KeySessions); err != nil {
			return fmt.Errorf("remove sessions: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}
	if err := s.kv.Set(ctx, KeySessions, string(data)); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}
