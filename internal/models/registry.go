// internal/models/registry.go
package models

import "fmt"

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// DefaultModelID is the model new sessions use until a preference is stored.
const DefaultModelID = "gemma-3-1b-it"

// Descriptor is an immutable registry entry.
type Descriptor struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsImage bool   `json:"supports_image"`
}

var builtin = []Descriptor{
	{ID: "gemma-3-1b-it", Name: "Gemma 3 1B", Provider: ProviderGemini},
	{ID: "gemma-3-4b-it", Name: "Gemma 3 4B", Provider: ProviderGemini},
	{ID: "gemma-3-12b-it", Name: "Gemma 3 12B", Provider: ProviderGemini},
	{ID: "gemma-3n-e4b-it", Name: "Gemma 3n E4B", Provider: ProviderGemini},
	{ID: "gemma-3-27b-it", Name: "Gemma 3 27B", Provider: ProviderGemini, SupportsImage: true},
	{ID: "gemini-1.5-flash-8b", Name: "Gemini 1.5 Flash 8B", Provider: ProviderGemini, SupportsImage: true},
	{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Provider: ProviderGemini, SupportsImage: true},
	{ID: "gemini-2.0-flash-lite", Name: "Gemini 2.0 Flash Lite", Provider: ProviderGemini, SupportsImage: true},
	{ID: "learnlm-2.0-flash-experimental", Name: "LearnLM 2.0 Flash", Provider: ProviderGemini, SupportsImage: true},
	{ID: "gpt-4o-mini", Name: "GPT-4o mini", Provider: ProviderOpenAI, SupportsImage: true},
	{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Provider: ProviderOpenAI},
}

// Registry is the ordered catalogue of selectable models.
type Registry struct {
	models    []Descriptor
	defaultID string
}

// NewRegistry builds a registry from the built-in catalogue plus extra.
// An extra entry replaces a built-in with the same id in place; other
// entries are appended in order.
func NewRegistry(extra ...Descriptor) (*Registry, error) {
	models := make([]Descriptor, len(builtin))
	copy(models, builtin)

	for _, d := range extra {
		if d.ID == "" {
			return nil, fmt.Errorf("model entry without id")
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		if d.Provider == "" {
			d.Provider = ProviderGemini
		}
		replaced := false
		for i := range models {
			if models[i].ID == d.ID {
				models[i] = d
				replaced = true
				break
			}
		}
		if !replaced {
			models = append(models, d)
		}
	}
	return &Registry{models: models, defaultID: DefaultModelID}, nil
}

// Default returns the registry's designated default id.
func (r *Registry) Default() string {
	return r.defaultID
}

// List returns the descriptors in catalogue order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.models))
	copy(out, r.models)
	return out
}

func (r *Registry) Lookup(id string) (Descriptor, bool) {
	for _, d := range r.models {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

func (r *Registry) Valid(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// SupportsImage reports whether id accepts image input. Unknown ids do not.
func (r *Registry) SupportsImage(id string) bool {
	d, ok := r.Lookup(id)
	return ok && d.SupportsImage
}

// ByProvider returns the ids served by the given provider.
func (r *Registry) ByProvider(provider string) []string {
	var ids []string
	for _, d := range r.models {
		if d.Provider == provider {
			ids = append(ids, d.ID)
		}
	}
	return ids
}
