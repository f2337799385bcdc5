// internal/api/messages.go
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/user/genie/internal/chat"
	"github.com/user/genie/internal/gateway"
	"github.com/user/genie/internal/types"
)

// imagePayload accepts either a data URL or a raw base64 payload in Data.
type imagePayload struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
	FileName string `json:"file_name"`
}

type sendMessageRequest struct {
	Text  string        `json:"text"`
	Image *imagePayload `json:"image,omitempty"`
}

type sendMessageResponse struct {
	SessionID types.SessionID `json:"session_id"`
	Reply     types.Message   `json:"reply"`
}

func (p *imagePayload) attachment() (*types.ImageAttachment, error) {
	data := p.Data
	mime := p.MimeType
	if strings.HasPrefix(data, "data:") {
		header, payload, ok := strings.Cut(data, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data URL")
		}
		if mime == "" {
			mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		data = payload
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	if mime == "" {
		mime = http.DetectContentType(raw)
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("unsupported image type %q", mime)
	}
	return types.NewImageAttachment(raw, mime, p.FileName), nil
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var image *types.ImageAttachment
	if req.Image != nil {
		img, err := req.Image.attachment()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		image = img
	}
	if strings.TrimSpace(req.Text) == "" && image == nil {
		writeError(w, http.StatusBadRequest, "text or image is required")
		return
	}

	ctx := r.Context()
	id := types.SessionID(r.PathValue("id"))
	if id == "new" {
		id = s.ctl.StartNewChat(ctx).ID
	} else if _, ok := s.ctl.Session(id); !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	event := &types.InboundEvent{
		Source:     "http",
		SessionKey: types.NewSessionKey("http", string(id)),
		SessionID:  id,
		Text:       req.Text,
		Image:      image,
	}

	if wantsEventStream(r) {
		s.streamSend(w, r, event)
		return
	}

	res, err := s.gw.Submit(ctx, event)
	if err != nil {
		s.writeSendError(w, res, err)
		return
	}
	writeJSON(w, http.StatusOK, sendMessageResponse{SessionID: res.SessionID, Reply: res.Reply})
}

func (s *Server) writeSendError(w http.ResponseWriter, res gateway.Result, err error) {
	if errors.Is(err, chat.ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "session not found", "session_id": res.SessionID})
		return
	}
	s.writeControllerError(w, err)
}

type contentEvent struct {
	MessageID types.MessageID `json:"message_id"`
	Content   string          `json:"content"`
}

// streamSend submits the event and relays every content update of the
// target session as a server-sent event, finishing with a "done" event.
func (s *Server) streamSend(w http.ResponseWriter, r *http.Request, event *types.InboundEvent) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates := make(chan contentEvent, 256)
	unwatch := s.ctl.Watch(func(ch chat.Change) {
		if ch.SessionID != event.SessionID || ch.Kind != chat.ChangeMessageUpdated {
			return
		}
		sess, ok := s.ctl.Session(ch.SessionID)
		if !ok {
			return
		}
		msg, ok := sess.Message(ch.MessageID)
		if !ok {
			return
		}
		select {
		case updates <- contentEvent{MessageID: msg.ID, Content: msg.Content}:
		default:
		}
	})
	defer unwatch()

	type outcome struct {
		res gateway.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.gw.Submit(r.Context(), event)
		done <- outcome{res, err}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case u := <-updates:
			writeEvent(w, "content", u)
			flusher.Flush()
		case o := <-done:
			// Drain updates that raced with completion.
			for {
				select {
				case u := <-updates:
					writeEvent(w, "content", u)
					continue
				default:
				}
				break
			}
			if o.err != nil {
				writeEvent(w, "error", map[string]string{"error": o.err.Error()})
			} else {
				writeEvent(w, "done", sendMessageResponse{SessionID: o.res.SessionID, Reply: o.res.Reply})
			}
			flusher.Flush()
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
