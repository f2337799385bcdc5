package chat

import (
	"github.com/user/genie/internal/types"
)

// An update is a pure function from the previous session list to the next.
// Updates never modify their input; every session they touch is cloned.
type update func([]types.ChatSession) []types.ChatSession

func prependSession(s types.ChatSession) update {
	return func(in []types.ChatSession) []types.ChatSession {
		out := make([]types.ChatSession, 0, len(in)+1)
		out = append(out, s)
		return append(out, in...)
	}
}

func removeSession(id types.SessionID) update {
	return func(in []types.ChatSession) []types.ChatSession {
		out := make([]types.ChatSession, 0, len(in))
		for _, s := range in {
			if s.ID != id {
				out = append(out, s)
			}
		}
		return out
	}
}

// mapSession applies fn to a clone of the session with the given id.
func mapSession(id types.SessionID, fn func(*types.ChatSession)) update {
	return func(in []types.ChatSession) []types.ChatSession {
		out := make([]types.ChatSession, len(in))
		copy(out, in)
		for i := range out {
			if out[i].ID == id {
				c := out[i].Clone()
				fn(&c)
				out[i] = c
			}
		}
		return out
	}
}

func appendMessages(id types.SessionID, msgs ...types.Message) update {
	return mapSession(id, func(s *types.ChatSession) {
		s.Messages = append(s.Messages, msgs...)
	})
}

// mapMessage applies fn to the message mid of session id and refreshes its timestamp.
func mapMessage(id types.SessionID, mid types.MessageID, fn func(*types.Message)) update {
	return mapSession(id, func(s *types.ChatSession) {
		for i := range s.Messages {
			if s.Messages[i].ID == mid {
				fn(&s.Messages[i])
				s.Messages[i].Timestamp = nowFunc()
			}
		}
	})
}

func setMessageContent(id types.SessionID, mid types.MessageID, content string) update {
	return mapMessage(id, mid, func(m *types.Message) {
		m.Content = content
	})
}

func convertToError(id types.SessionID, mid types.MessageID, content string) update {
	return mapMessage(id, mid, func(m *types.Message) {
		m.Role = types.RoleError
		m.Content = content
	})
}

func setTitle(id types.SessionID, title string) update {
	return mapSession(id, func(s *types.ChatSession) {
		s.Title = title
	})
}

// setGeneratedTitle only replaces the sentinel title, so a rename applied
// while the title request was in flight wins.
func setGeneratedTitle(id types.SessionID, title string) update {
	return mapSession(id, func(s *types.ChatSession) {
		if s.Title == types.DefaultTitle {
			s.Title = title
		}
	})
}

func togglePin(id types.SessionID) update {
	return mapSession(id, func(s *types.ChatSession) {
		s.IsPinned = !s.IsPinned
	})
}

func setModel(id types.SessionID, modelID string) update {
	return mapSession(id, func(s *types.ChatSession) {
		s.ModelID = modelID
	})
}
