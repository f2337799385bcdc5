package llm

import (
	"context"
	"fmt"
	"sync"
)

// Router is a Backend that dispatches each call to the backend registered
// for the requested model id.
type Router struct {
	mu       sync.RWMutex
	backends map[string]Backend
	fallback Backend
}

// NewRouter creates an empty router. fallback, when non-nil, serves model ids
// that have no explicit route.
func NewRouter(fallback Backend) *Router {
	return &Router{
		backends: make(map[string]Backend),
		fallback: fallback,
	}
}

// Route registers backend for the given model ids.
func (r *Router) Route(backend Backend, modelIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range modelIDs {
		r.backends[id] = backend
	}
}

func (r *Router) backendFor(modelID string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.backends[modelID]; ok {
		return b, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no backend configured for model %q", modelID)
}

func (r *Router) CreateConversation(ctx context.Context, modelID string, history []Turn) (Conversation, error) {
	b, err := r.backendFor(modelID)
	if err != nil {
		return nil, err
	}
	return b.CreateConversation(ctx, modelID, history)
}

func (r *Router) GenerateOnce(ctx context.Context, modelID, prompt string) (string, error) {
	b, err := r.backendFor(modelID)
	if err != nil {
		return "", err
	}
	return b.GenerateOnce(ctx, modelID, prompt)
}
