package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/genie/internal/types"
)

// Sender is the part of the chat controller the gateway drives.
type Sender interface {
	SendMessage(ctx context.Context, sessionID types.SessionID, text string, image *types.ImageAttachment) (types.SessionID, error)
	Session(id types.SessionID) (types.ChatSession, bool)
	ActiveID() types.SessionID
}

// Gateway turns inbound frontend events into serialized controller sends.
type Gateway struct {
	sender Sender
	Queue  *Queue
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway that submits runs to sender one at a time.
func New(sender Sender, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		sender: sender,
		Queue:  NewQueue(1),
		logger: logger,
	}
	g.Queue.SetProcessor(g.process)
	return g
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context and stops the queue.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked when the run has finished.
func WithOnComplete(fn func(Result)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// HandleInbound wraps the event in a Run and enqueues it. The run executes
// under ctx: if ctx ends while the run is queued, the run is skipped and
// completes with ctx.Err().
func (g *Gateway) HandleInbound(ctx context.Context, event *types.InboundEvent, opts ...RunOption) (types.RunID, error) {
	run := NewRun(event)
	for _, opt := range opts {
		opt(run)
	}
	if g.ctx != nil {
		run.bind(ctx, g.ctx)
	}
	if err := g.Queue.Enqueue(run); err != nil {
		run.finish(err)
		return "", fmt.Errorf("enqueue run: %w", err)
	}
	g.logger.Debug("run queued", "run_id", run.ID, "source", event.Source, "lane", run.Lane)
	return run.ID, nil
}

// Submit enqueues the event and waits for its result.
func (g *Gateway) Submit(ctx context.Context, event *types.InboundEvent) (Result, error) {
	done := make(chan Result, 1)
	if _, err := g.HandleInbound(ctx, event, WithOnComplete(func(r Result) { done <- r })); err != nil {
		return Result{}, err
	}
	select {
	case r := <-done:
		return r, r.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (g *Gateway) process(run *Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	target := run.SessionID
	if target == "" {
		target = g.sender.ActiveID()
	}

	id, err := g.sender.SendMessage(ctx, target, run.Event.Text, run.Event.Image)
	run.SessionID = id

	res := Result{RunID: run.ID, SessionID: id, Err: err}
	if s, ok := g.sender.Session(id); ok && len(s.Messages) > 0 {
		res.Reply = s.Messages[len(s.Messages)-1]
	}
	if run.OnComplete != nil {
		run.OnComplete(res)
	}
	return err
}
