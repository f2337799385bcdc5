package chat

import (
	"strings"

	"github.com/user/genie/internal/types"
	"github.com/user/genie/pkg/llm"
)

// historyTurns rebuilds backend history from persisted messages. Only user
// and model messages take part. A user image comes first and always brings a
// text fragment along, even when empty; model turns always carry text.
// Messages producing no fragments are dropped.
func historyTurns(messages []types.Message) []llm.Turn {
	var turns []llm.Turn
	for _, m := range messages {
		if !m.Role.InHistory() {
			continue
		}

		var frags []llm.Fragment
		withImage := m.Role == types.RoleUser && m.Image != nil
		if withImage {
			frags = append(frags, llm.ImageFragment(m.Image.MimeType, m.Image.Payload()))
		}
		if m.Content != "" || withImage || m.Role == types.RoleModel {
			frags = append(frags, llm.TextFragment(m.Content))
		}
		if len(frags) == 0 {
			continue
		}

		role := llm.RoleUser
		if m.Role == types.RoleModel {
			role = llm.RoleModel
		}
		turns = append(turns, llm.Turn{Role: role, Fragments: frags})
	}
	return turns
}

// outgoingFragments builds the fragments of a new user turn.
func outgoingFragments(text string, image *types.ImageAttachment) []llm.Fragment {
	if image != nil {
		return []llm.Fragment{
			llm.ImageFragment(image.MimeType, image.Payload()),
			llm.TextFragment(text),
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []llm.Fragment{llm.TextFragment(text)}
}
