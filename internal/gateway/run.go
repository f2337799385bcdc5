package gateway

import (
	"context"
	"time"

	"github.com/user/genie/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Result is what a finished run reports back to the frontend that queued it.
type Result struct {
	RunID     types.RunID
	SessionID types.SessionID
	// Reply is the last message of the session after the send: the model
	// reply, or an error message.
	Reply types.Message
	Err   error
}

// Run tracks a single submission of an inbound event to the controller.
// SessionID is resolved when the run starts; an empty value means the
// active session, or a new chat when none is active.
type Run struct {
	ID         types.RunID
	Lane       types.SessionKey
	SessionID  types.SessionID
	Event      *types.InboundEvent
	Status     RunStatus
	CreatedAt  time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
	Error      error
	Ctx        context.Context
	OnComplete func(Result)

	release func()
}

// NewRun creates a Run in the Queued state for the given event.
func NewRun(event *types.InboundEvent) *Run {
	return &Run{
		ID:        types.NewRunID(),
		Lane:      event.SessionKey,
		SessionID: event.SessionID,
		Event:     event,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
	}
}

func (r *Run) start() {
	now := time.Now()
	r.StartedAt = &now
	r.Status = RunStatusRunning
}

// bind derives the run context from the caller's ctx, cancelled as well
// when parent ends.
func (r *Run) bind(ctx, parent context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(parent, cancel)
	r.Ctx = runCtx
	r.release = func() {
		stop()
		cancel()
	}
}

func (r *Run) finish(err error) {
	if r.release != nil {
		r.release()
	}
	now := time.Now()
	r.EndedAt = &now
	r.Error = err
	if err != nil {
		r.Status = RunStatusFailed
		return
	}
	r.Status = RunStatusComplete
}
