package llm

// FragmentKind distinguishes the two kinds of turn content a backend accepts.
type FragmentKind string

const (
	FragmentText  FragmentKind = "text"
	FragmentImage FragmentKind = "image"
)

// Role is the author of a conversation turn as seen by a backend.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Fragment is one atomic piece of a turn: either text or an inline image.
// For image fragments Data holds the raw base64 payload without a data URL prefix.
type Fragment struct {
	Kind     FragmentKind `json:"kind"`
	Text     string       `json:"text,omitempty"`
	MimeType string       `json:"mime_type,omitempty"`
	Data     string       `json:"data,omitempty"`
}

// TextFragment returns a text fragment. Empty text is allowed.
func TextFragment(text string) Fragment {
	return Fragment{Kind: FragmentText, Text: text}
}

// ImageFragment returns an inline image fragment from a raw base64 payload.
func ImageFragment(mimeType, data string) Fragment {
	return Fragment{Kind: FragmentImage, MimeType: mimeType, Data: data}
}

// Turn is an ordered list of fragments authored by a single role.
type Turn struct {
	Role      Role       `json:"role"`
	Fragments []Fragment `json:"fragments"`
}

// Text concatenates the text fragments of the turn.
func (t Turn) Text() string {
	var out string
	for _, f := range t.Fragments {
		if f.Kind == FragmentText {
			out += f.Text
		}
	}
	return out
}

// Delta represents an incremental update during streaming. A delta with a
// non-nil Err is the last value sent on the channel.
type Delta struct {
	Content string `json:"content,omitempty"`
	Err     error  `json:"-"`
}
