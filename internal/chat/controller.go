// Package chat implements the conversation controller: session lifecycle,
// streaming sends with cooperative cancellation, and auto-titling.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/user/genie/internal/models"
	"github.com/user/genie/internal/types"
	"github.com/user/genie/pkg/llm"
)

var (
	ErrBusy            = errors.New("a response is already in progress")
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownModel    = errors.New("unknown model")
)

// Store persists sessions and the default model preference.
type Store interface {
	Load(ctx context.Context) ([]types.ChatSession, error)
	Save(ctx context.Context, sessions []types.ChatSession) error
	DefaultModel(ctx context.Context) (string, error)
	SetDefaultModel(ctx context.Context, id string) (bool, error)
}

// Catalog is the read side of the model registry.
type Catalog interface {
	Lookup(id string) (models.Descriptor, bool)
	Valid(id string) bool
	SupportsImage(id string) bool
	Default() string
}

type Options struct {
	Backend llm.Backend
	Store   Store
	Models  Catalog
	Tokens  TokenCounter
	Logger  *slog.Logger
}

// State is a read-only snapshot of the process-wide state.
type State struct {
	Sessions     []types.ChatSession
	ActiveID     types.SessionID
	SidebarOpen  bool
	Loading      bool
	DefaultModel string
}

// Controller is the single owner of the session list. Every mutation is an
// update function applied under mu, persisted, then announced to watchers.
type Controller struct {
	backend llm.Backend
	store   Store
	models  Catalog
	conns   *ConnectionManager
	logger  *slog.Logger
	cancel  CancelToken
	watch   watchers

	mu           sync.Mutex
	sessions     []types.ChatSession
	activeID     types.SessionID
	sidebarOpen  bool
	loading      bool
	busy         bool
	defaultModel string
	version      uint64

	saveMu       sync.Mutex
	savedVersion uint64
}

func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		backend:      opts.Backend,
		store:        opts.Store,
		models:       opts.Models,
		conns:        NewConnectionManager(opts.Backend, opts.Tokens, logger),
		logger:       logger,
		sessions:     []types.ChatSession{},
		defaultModel: opts.Models.Default(),
	}
}

// Load replaces in-memory state with the persisted sessions. The active
// session becomes the first one in display order, or none. No session is
// created. Live connections are discarded.
func (c *Controller) Load(ctx context.Context) error {
	sessions, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	def, err := c.store.DefaultModel(ctx)
	if err != nil {
		return err
	}

	c.conns.Reset()
	c.mu.Lock()
	c.sessions = sessions
	c.defaultModel = def
	c.activeID = firstByOrder(sessions)
	c.version++
	c.mu.Unlock()

	c.logger.Debug("sessions loaded", "count", len(sessions), "default_model", def)
	c.watch.emit(Change{Kind: ChangeLoaded})
	return nil
}

// Watch registers fn for change notifications and returns a function that
// unregisters it. fn runs on the goroutine that applied the change.
func (c *Controller) Watch(fn func(Change)) func() {
	return c.watch.add(fn)
}

// apply runs fn over the session list, persists the result and notifies
// watchers. Persistence failures are logged and returned.
func (c *Controller) apply(ctx context.Context, ch Change, fn update) error {
	c.mu.Lock()
	c.sessions = fn(c.sessions)
	c.version++
	v, snapshot := c.version, c.sessions
	c.mu.Unlock()

	err := c.persist(context.WithoutCancel(ctx), v, snapshot)
	c.watch.emit(ch)
	return err
}

func (c *Controller) persist(ctx context.Context, v uint64, sessions []types.ChatSession) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if v < c.savedVersion {
		return nil
	}
	c.savedVersion = v
	if err := c.store.Save(ctx, sessions); err != nil {
		c.logger.Warn("failed to persist sessions", "error", err)
		return err
	}
	return nil
}

func (c *Controller) setActive(id types.SessionID) {
	c.mu.Lock()
	c.activeID = id
	c.mu.Unlock()
	c.watch.emit(Change{Kind: ChangeActive, SessionID: id})
}

func (c *Controller) closeSidebar() {
	c.mu.Lock()
	wasOpen := c.sidebarOpen
	c.sidebarOpen = false
	c.mu.Unlock()
	if wasOpen {
		c.watch.emit(Change{Kind: ChangeSidebar})
	}
}

// StartNewChat creates an empty session on the default model, puts it at the
// front of the list and makes it active.
func (c *Controller) StartNewChat(ctx context.Context) types.ChatSession {
	c.mu.Lock()
	model := c.defaultModel
	c.mu.Unlock()

	s := types.ChatSession{
		ID:        types.NewSessionID(),
		Title:     types.DefaultTitle,
		Messages:  []types.Message{},
		CreatedAt: nowFunc(),
		ModelID:   model,
	}
	c.apply(ctx, Change{Kind: ChangeSessionCreated, SessionID: s.ID}, prependSession(s))
	c.setActive(s.ID)
	c.closeSidebar()
	c.logger.Debug("started new chat", "session_id", s.ID, "model", model)
	return s
}

// SelectSession makes id active. The live connection is built lazily on the
// next send.
func (c *Controller) SelectSession(id types.SessionID) error {
	if _, ok := c.Session(id); !ok {
		return ErrSessionNotFound
	}
	c.setActive(id)
	c.closeSidebar()
	return nil
}

// RenameSession sets a new title. Blank titles are ignored.
func (c *Controller) RenameSession(ctx context.Context, id types.SessionID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	if _, ok := c.Session(id); !ok {
		return ErrSessionNotFound
	}
	return c.apply(ctx, Change{Kind: ChangeSessionUpdated, SessionID: id}, setTitle(id, title))
}

// DeleteSession removes id. Callers are responsible for confirming with the
// user first. If the session was active, the next session in display order
// becomes active, or none when the list is empty.
func (c *Controller) DeleteSession(ctx context.Context, id types.SessionID) error {
	if _, ok := c.Session(id); !ok {
		return ErrSessionNotFound
	}
	err := c.apply(ctx, Change{Kind: ChangeSessionDeleted, SessionID: id}, removeSession(id))
	c.conns.Forget(id)

	c.mu.Lock()
	wasActive := c.activeID == id
	next := firstByOrder(c.sessions)
	c.mu.Unlock()
	if wasActive {
		c.setActive(next)
	}
	return err
}

func (c *Controller) TogglePin(ctx context.Context, id types.SessionID) error {
	if _, ok := c.Session(id); !ok {
		return ErrSessionNotFound
	}
	return c.apply(ctx, Change{Kind: ChangeSessionUpdated, SessionID: id}, togglePin(id))
}

// ChangeSessionModel switches the model of id and drops its live connection.
func (c *Controller) ChangeSessionModel(ctx context.Context, id types.SessionID, modelID string) error {
	s, ok := c.Session(id)
	if !ok {
		return ErrSessionNotFound
	}
	if s.ModelID == modelID {
		return nil
	}
	if !c.models.Valid(modelID) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	c.conns.Invalidate(id)
	return c.apply(ctx, Change{Kind: ChangeSessionUpdated, SessionID: id}, setModel(id, modelID))
}

// ChangeDefaultModel sets the model for sessions created from now on.
// Unknown ids are ignored and reported with false.
func (c *Controller) ChangeDefaultModel(ctx context.Context, modelID string) (bool, error) {
	ok, err := c.store.SetDefaultModel(ctx, modelID)
	if err != nil || !ok {
		return ok, err
	}
	c.mu.Lock()
	c.defaultModel = modelID
	c.mu.Unlock()
	c.watch.emit(Change{Kind: ChangeDefaultModel})
	return true, nil
}

// StopGenerating asks the in-flight stream to stop after the next chunk.
func (c *Controller) StopGenerating() {
	c.cancel.Cancel()
}

func (c *Controller) ToggleSidebar() {
	c.mu.Lock()
	c.sidebarOpen = !c.sidebarOpen
	c.mu.Unlock()
	c.watch.emit(Change{Kind: ChangeSidebar})
}

func (c *Controller) SidebarOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sidebarOpen
}

func (c *Controller) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Controller) DefaultModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultModel
}

func (c *Controller) ActiveID() types.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// ActiveSession returns a copy of the active session.
func (c *Controller) ActiveSession() (types.ChatSession, bool) {
	return c.Session(c.ActiveID())
}

// Session returns a copy of the session with the given id.
func (c *Controller) Session(id types.SessionID) (types.ChatSession, bool) {
	if id == "" {
		return types.ChatSession{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		if s.ID == id {
			return s.Clone(), true
		}
	}
	return types.ChatSession{}, false
}

// Sessions returns copies of all sessions in display order.
func (c *Controller) Sessions() []types.ChatSession {
	c.mu.Lock()
	sorted := SortSessions(c.sessions)
	c.mu.Unlock()
	for i := range sorted {
		sorted[i] = sorted[i].Clone()
	}
	return sorted
}

func (c *Controller) Snapshot() State {
	sessions := c.Sessions()
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Sessions:     sessions,
		ActiveID:     c.activeID,
		SidebarOpen:  c.sidebarOpen,
		Loading:      c.loading,
		DefaultModel: c.defaultModel,
	}
}
