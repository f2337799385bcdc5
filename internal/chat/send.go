package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/user/genie/internal/types"
)

var nowFunc = time.Now

const missingSessionText = "This chat no longer exists. Please start a new chat or select another one."

// SendMessage submits a user turn to sessionID, or to a new chat when
// sessionID is empty, and streams the reply into a placeholder message.
// It returns the id of the session the turn went to.
//
// Only one send runs at a time; a concurrent call returns ErrBusy. Backend
// failures never surface as errors here: they turn the placeholder into an
// error message. ErrSessionNotFound is returned after the failure was
// reported as an error message in another session.
func (c *Controller) SendMessage(ctx context.Context, sessionID types.SessionID, text string, image *types.ImageAttachment) (types.SessionID, error) {
	if strings.TrimSpace(text) == "" && image == nil {
		return sessionID, nil
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return sessionID, ErrBusy
	}
	c.busy = true
	c.mu.Unlock()
	defer c.finishSend()

	if sessionID == "" {
		sessionID = c.StartNewChat(ctx).ID
	}
	session, ok := c.Session(sessionID)
	if !ok {
		target := c.reportMissing(ctx, sessionID)
		return target, ErrSessionNotFound
	}

	if image != nil && !c.models.SupportsImage(session.ModelID) {
		name := session.ModelID
		if d, ok := c.models.Lookup(session.ModelID); ok {
			name = d.Name
		}
		msg := types.NewMessage(types.RoleError,
			fmt.Sprintf("The selected model (%s) does not support image input. Choose an image-capable model or remove the image.", name))
		c.apply(ctx, Change{Kind: ChangeMessageAdded, SessionID: sessionID, MessageID: msg.ID}, appendMessages(sessionID, msg))
		return sessionID, nil
	}

	c.cancel.Reset()
	c.setLoading(true)

	user := types.NewMessage(types.RoleUser, text)
	user.Image = image
	placeholder := types.NewMessage(types.RoleModel, "")
	c.apply(ctx, Change{Kind: ChangeMessageAdded, SessionID: sessionID, MessageID: placeholder.ID},
		appendMessages(sessionID, user, placeholder))

	c.logger.Debug("sending message", "session_id", sessionID, "model", session.ModelID, "image", image != nil)

	cancelled, err := c.stream(ctx, session, placeholder.ID, text, image)
	if err != nil {
		c.logger.Warn("response failed", "session_id", sessionID, "error", err)
		c.apply(ctx, Change{Kind: ChangeMessageUpdated, SessionID: sessionID, MessageID: placeholder.ID},
			convertToError(sessionID, placeholder.ID, "Failed to get response: "+err.Error()))
		return sessionID, nil
	}
	if cancelled {
		c.logger.Debug("response stopped", "session_id", sessionID)
		return sessionID, nil
	}

	c.maybeGenerateTitle(ctx, sessionID, text, image)
	return sessionID, nil
}

// stream sends the turn on the session's live connection and copies the
// running total into the placeholder after every delta. session holds the
// messages preceding the new turn, which is what a rebuilt connection replays.
func (c *Controller) stream(ctx context.Context, session types.ChatSession, placeholderID types.MessageID, text string, image *types.ImageAttachment) (cancelled bool, err error) {
	conv, err := c.conns.GetOrCreate(ctx, session)
	if err != nil {
		return false, err
	}

	streamCtx, stop := context.WithCancel(ctx)
	defer stop()

	deltas, err := conv.SendStream(streamCtx, outgoingFragments(text, image))
	if err != nil {
		return false, err
	}

	var acc strings.Builder
	for d := range deltas {
		if c.cancel.Cancelled() {
			return true, nil
		}
		if d.Err != nil {
			return false, d.Err
		}
		if d.Content == "" {
			continue
		}
		acc.WriteString(d.Content)
		c.apply(ctx, Change{Kind: ChangeMessageUpdated, SessionID: session.ID, MessageID: placeholderID},
			setMessageContent(session.ID, placeholderID, acc.String()))
	}

	if c.cancel.Cancelled() {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return false, nil
}

// maybeGenerateTitle replaces the sentinel title after the first non-empty
// model reply. Failures fall back to a prefix of the user's input.
func (c *Controller) maybeGenerateTitle(ctx context.Context, id types.SessionID, text string, image *types.ImageAttachment) {
	session, ok := c.Session(id)
	if !ok || session.Title != types.DefaultTitle {
		return
	}
	replies := 0
	for _, m := range session.Messages {
		if m.Role == types.RoleModel && strings.TrimSpace(m.Content) != "" {
			replies++
		}
	}
	if replies != 1 {
		return
	}

	title := fallbackTitle(titleSource(text, image))
	raw, err := c.backend.GenerateOnce(ctx, session.ModelID, titlePrompt(text, image))
	if err != nil {
		c.logger.Warn("title generation failed", "session_id", id, "error", err)
	} else if t, ok := cleanTitle(raw); ok {
		title = t
	}
	if title == "" {
		return
	}
	c.apply(ctx, Change{Kind: ChangeSessionUpdated, SessionID: id}, setGeneratedTitle(id, title))
}

// reportMissing writes an error message about a vanished session into the
// active session, else the first session in display order, else a new chat.
func (c *Controller) reportMissing(ctx context.Context, missing types.SessionID) types.SessionID {
	c.logger.Warn("send to unknown session", "session_id", missing)

	c.mu.Lock()
	target := c.activeID
	found := false
	for _, s := range c.sessions {
		if s.ID == target {
			found = true
			break
		}
	}
	if !found {
		target = firstByOrder(c.sessions)
	}
	c.mu.Unlock()

	if target == "" {
		target = c.StartNewChat(ctx).ID
	}
	msg := types.NewMessage(types.RoleError, missingSessionText)
	c.apply(ctx, Change{Kind: ChangeMessageAdded, SessionID: target, MessageID: msg.ID}, appendMessages(target, msg))
	return target
}

func (c *Controller) setLoading(v bool) {
	c.mu.Lock()
	changed := c.loading != v
	c.loading = v
	c.mu.Unlock()
	if changed {
		c.watch.emit(Change{Kind: ChangeLoading})
	}
}

func (c *Controller) finishSend() {
	c.cancel.Reset()
	c.mu.Lock()
	changed := c.loading
	c.loading = false
	c.busy = false
	c.mu.Unlock()
	if changed {
		c.watch.emit(Change{Kind: ChangeLoading})
	}
}
