// internal/types/models.go
package types

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// DefaultTitle marks a session that has not been titled yet.
const DefaultTitle = "New Chat"

type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleError  Role = "error"
	RoleSystem Role = "system"
)

// InHistory reports whether messages of this role are replayed to the backend.
// Error and system messages are UI-only annotations.
func (r Role) InHistory() bool {
	return r == RoleUser || r == RoleModel
}

// ImageAttachment is an image carried by a user message. Base64Data holds a
// data URL ("data:<mime>;base64,<payload>").
type ImageAttachment struct {
	Base64Data string `json:"base64_data"`
	MimeType   string `json:"mime_type"`
	FileName   string `json:"file_name"`
}

// NewImageAttachment encodes raw image bytes as a data URL attachment.
func NewImageAttachment(data []byte, mimeType, fileName string) *ImageAttachment {
	return &ImageAttachment{
		Base64Data: fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)),
		MimeType:   mimeType,
		FileName:   fileName,
	}
}

// Payload returns the base64 payload with any data URL prefix stripped.
func (a *ImageAttachment) Payload() string {
	if i := strings.Index(a.Base64Data, ","); i >= 0 && strings.HasPrefix(a.Base64Data, "data:") {
		return a.Base64Data[i+1:]
	}
	return a.Base64Data
}

type Message struct {
	ID        MessageID        `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Image     *ImageAttachment `json:"image,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// ChatSession is the persisted form of a conversation thread. Live backend
// connections are never part of it.
type ChatSession struct {
	ID        SessionID `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	ModelID   string    `json:"model_id"`
	IsPinned  bool      `json:"is_pinned"`
}

// Clone returns a copy that shares no message slice with s.
func (s ChatSession) Clone() ChatSession {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}

// Message returns the message with the given id.
func (s ChatSession) Message(id MessageID) (Message, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// InboundEvent is a submission arriving from a frontend (telegram, http).
type InboundEvent struct {
	Source     string           `json:"source"`
	SessionKey SessionKey       `json:"session_key"`
	SessionID  SessionID        `json:"session_id,omitempty"`
	UserID     string           `json:"user_id"`
	Text       string           `json:"text"`
	Image      *ImageAttachment `json:"image,omitempty"`
}
