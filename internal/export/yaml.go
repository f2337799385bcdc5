package export

import (
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/genie/internal/types"
)

// YAMLExporter writes a readable YAML document. Image payloads are reduced
// to their metadata.
type YAMLExporter struct{}

type yamlImage struct {
	MimeType string `yaml:"mime_type"`
	FileName string `yaml:"file_name,omitempty"`
}

type yamlMessage struct {
	Role      types.Role `yaml:"role"`
	Content   string     `yaml:"content"`
	Timestamp time.Time  `yaml:"timestamp"`
	Image     *yamlImage `yaml:"image,omitempty"`
}

type yamlSession struct {
	ID        types.SessionID `yaml:"id"`
	Title     string          `yaml:"title"`
	ModelID   string          `yaml:"model_id"`
	Pinned    bool            `yaml:"pinned"`
	CreatedAt time.Time       `yaml:"created_at"`
	Messages  []yamlMessage   `yaml:"messages"`
}

func (e *YAMLExporter) Export(session types.ChatSession, w io.Writer) error {
	doc := yamlSession{
		ID:        session.ID,
		Title:     session.Title,
		ModelID:   session.ModelID,
		Pinned:    session.IsPinned,
		CreatedAt: session.CreatedAt,
		Messages:  make([]yamlMessage, 0, len(session.Messages)),
	}
	for _, m := range session.Messages {
		ym := yamlMessage{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp}
		if m.Image != nil {
			ym.Image = &yamlImage{MimeType: m.Image.MimeType, FileName: m.Image.FileName}
		}
		doc.Messages = append(doc.Messages, ym)
	}

	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()
	return enc.Encode(doc)
}

func (e *YAMLExporter) Extension() string {
	return "yaml"
}
