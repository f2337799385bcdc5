package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/user/genie/internal/types"
)

// MarkdownExporter writes a transcript suitable for pasting into notes.
type MarkdownExporter struct{}

var roleLabels = map[types.Role]string{
	types.RoleUser:   "You",
	types.RoleModel:  "Genie",
	types.RoleSystem: "System",
	types.RoleError:  "Error",
}

func (e *MarkdownExporter) Export(session types.ChatSession, w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", session.Title)
	fmt.Fprintf(&b, "**Model:** %s  \n", session.ModelID)
	fmt.Fprintf(&b, "**Created:** %s  \n", session.CreatedAt.Format(time.RFC3339))
	if session.IsPinned {
		b.WriteString("**Pinned:** yes  \n")
	}
	fmt.Fprintf(&b, "**Messages:** %d\n\n", len(session.Messages))
	b.WriteString("---\n\n")

	for i, msg := range session.Messages {
		label, ok := roleLabels[msg.Role]
		if !ok {
			label = string(msg.Role)
		}
		fmt.Fprintf(&b, "**%s** (%s)\n\n", label, msg.Timestamp.Format(time.RFC3339))
		if msg.Image != nil {
			name := msg.Image.FileName
			if name == "" {
				name = "image"
			}
			fmt.Fprintf(&b, "_[attached %s: %s]_\n\n", msg.Image.MimeType, name)
		}
		if msg.Content != "" {
			b.WriteString(escapeMarkdown(msg.Content))
			b.WriteString("\n\n")
		}
		if i < len(session.Messages)-1 {
			b.WriteString("---\n\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// escapeMarkdown escapes emphasis markers outside fenced code blocks.
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	inCodeBlock := false
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			continue
		}
		if inCodeBlock {
			continue
		}
		line = strings.ReplaceAll(line, "**", "\\*\\*")
		lines[i] = strings.ReplaceAll(line, "__", "\\_\\_")
	}
	return strings.Join(lines, "\n")
}

func (e *MarkdownExporter) Extension() string {
	return "md"
}
