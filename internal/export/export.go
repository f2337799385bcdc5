// Package export renders chat sessions for sharing outside the app.
package export

import (
	"fmt"
	"io"

	"github.com/user/genie/internal/types"
)

// Exporter writes one session in a particular format.
type Exporter interface {
	Export(session types.ChatSession, w io.Writer) error
	Extension() string
}

// NewExporter creates an exporter for format.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, md)", format)
	}
}
