package chat

import (
	"sync"

	"github.com/user/genie/internal/types"
)

type ChangeKind string

const (
	ChangeLoaded         ChangeKind = "loaded"
	ChangeSessionCreated ChangeKind = "session_created"
	ChangeSessionDeleted ChangeKind = "session_deleted"
	ChangeSessionUpdated ChangeKind = "session_updated"
	ChangeMessageAdded   ChangeKind = "message_added"
	ChangeMessageUpdated ChangeKind = "message_updated"
	ChangeActive         ChangeKind = "active"
	ChangeSidebar        ChangeKind = "sidebar"
	ChangeLoading        ChangeKind = "loading"
	ChangeDefaultModel   ChangeKind = "default_model"
)

// Change describes one applied state update. Watchers re-read whatever they
// render from the controller.
type Change struct {
	Kind      ChangeKind
	SessionID types.SessionID
	MessageID types.MessageID
}

type watchers struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(Change)
}

func (w *watchers) add(fn func(Change)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fns == nil {
		w.fns = make(map[int]func(Change))
	}
	id := w.next
	w.next++
	w.fns[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.fns, id)
	}
}

func (w *watchers) emit(ch Change) {
	w.mu.RLock()
	fns := make([]func(Change), 0, len(w.fns))
	for _, fn := range w.fns {
		fns = append(fns, fn)
	}
	w.mu.RUnlock()

	for _, fn := range fns {
		fn(ch)
	}
}
