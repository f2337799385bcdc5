package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/user/genie/internal/types"
)

const (
	titlePromptChars = 120
	maxTitleChars    = 60
	fallbackChars    = 30
)

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// titleSource is the user input a title is derived from: the text, or a
// description of the image when the turn had no text.
func titleSource(text string, image *types.ImageAttachment) string {
	text = strings.TrimSpace(text)
	if text != "" || image == nil {
		return text
	}
	if image.FileName != "" {
		return "Image: " + image.FileName
	}
	return "Image"
}

func titlePrompt(text string, image *types.ImageAttachment) string {
	query := strings.TrimSpace(text)
	if query == "" && image != nil {
		name := image.FileName
		if name == "" {
			name = "an image"
		}
		return fmt.Sprintf("Generate a very short, concise title (3-5 words max) for a chat that starts with the user sharing an image named \"%s\". Respond with only the title itself, no extra text or quotes.", name)
	}
	return fmt.Sprintf("Generate a very short, concise title (3-5 words max) for a chat that starts with this user query: \"%s\". Respond with only the title itself, no extra text or quotes.", truncateRunes(query, titlePromptChars))
}

// cleanTitle trims the model's answer and strips one leading and one
// trailing quote character.
func cleanTitle(raw string) (string, bool) {
	t := strings.TrimSpace(raw)
	if strings.HasPrefix(t, `"`) || strings.HasPrefix(t, "'") {
		t = t[1:]
	}
	if strings.HasSuffix(t, `"`) || strings.HasSuffix(t, "'") {
		t = t[:len(t)-1]
	}
	n := utf8.RuneCountInString(t)
	if n == 0 || n > maxTitleChars {
		return "", false
	}
	return t, true
}

func fallbackTitle(source string) string {
	if utf8.RuneCountInString(source) > fallbackChars {
		return truncateRunes(source, fallbackChars) + "..."
	}
	return source
}
