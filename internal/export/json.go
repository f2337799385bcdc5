package export

import (
	"encoding/json"
	"io"

	"github.com/user/genie/internal/types"
)

// JSONExporter writes the session in its stored JSON form, pretty-printed.
type JSONExporter struct{}

func (e *JSONExporter) Export(session types.ChatSession, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(session)
}

func (e *JSONExporter) Extension() string {
	return "json"
}
