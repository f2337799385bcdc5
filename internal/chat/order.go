package chat

import (
	"sort"

	"github.com/user/genie/internal/types"
)

// SortSessions returns a copy of sessions ordered pinned first, then by
// creation time, newest first.
func SortSessions(sessions []types.ChatSession) []types.ChatSession {
	out := make([]types.ChatSession, len(sessions))
	copy(out, sessions)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPinned != out[j].IsPinned {
			return out[i].IsPinned
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// firstByOrder returns the id of the highest-priority session, or "" when
// there are none.
func firstByOrder(sessions []types.ChatSession) types.SessionID {
	if len(sessions) == 0 {
		return ""
	}
	return SortSessions(sessions)[0].ID
}
