package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/user/genie/internal/models"
)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindModels
)

// keySpec describes one settable key of the config file.
type keySpec struct {
	kind   valueKind
	secret bool
	check  func(string) error
}

var knownKeys = map[string]keySpec{
	"data_dir":                 {check: required},
	"log_level":                {check: oneOf("debug", "info", "warn", "error")},
	"store.driver":             {check: oneOf("file", "sqlite")},
	"gemini.api_key":           {secret: true},
	"gemini.base_url":          {check: optionalURL},
	"openai.api_key":           {secret: true},
	"openai.base_url":          {check: requiredURL},
	"telegram.token":           {secret: true},
	"telegram.allowed_chat_id": {kind: kindInt},
	"http.listen":              {check: listenAddr},
	"models":                   {kind: kindModels},
}

// IsSecretKey reports whether the value under key is masked when listed.
func IsSecretKey(key string) bool {
	return knownKeys[key].secret
}

// parseValue converts the command-line form of value for key. Known string
// keys keep the raw text, so a numeric API key stays a string. Unknown keys
// are parsed as JSON and fall back to a string.
func parseValue(key, value string) (any, error) {
	spec, ok := knownKeys[key]
	if !ok {
		for k := range knownKeys {
			if strings.HasPrefix(k, key+".") {
				return nil, fmt.Errorf("%s is a section; set one of its keys, e.g. %s", key, k)
			}
			if strings.HasPrefix(key, k+".") {
				return nil, fmt.Errorf("%s has no sub-keys", k)
			}
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			return value, nil
		}
		return parsed, nil
	}

	switch spec.kind {
	case kindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer, got %q", key, value)
		}
		return n, nil
	case kindModels:
		return parseModels(value)
	}
	if spec.check != nil {
		if err := spec.check(value); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	return value, nil
}

// parseModels accepts a JSON array of model entries that extend or
// override the built-in catalogue.
func parseModels(value string) ([]models.Descriptor, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(value)))
	dec.DisallowUnknownFields()
	var list []models.Descriptor
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("models must be a JSON array of {id, name, provider, supports_image}: %w", err)
	}
	seen := make(map[string]bool, len(list))
	for _, d := range list {
		switch d.Provider {
		case "", models.ProviderGemini, models.ProviderOpenAI:
		default:
			return nil, fmt.Errorf("model %q: unknown provider %q (want %s or %s)", d.ID, d.Provider, models.ProviderGemini, models.ProviderOpenAI)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("model %q listed twice", d.ID)
		}
		seen[d.ID] = true
	}
	if _, err := models.NewRegistry(list...); err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Descriptor{}
	}
	return list, nil
}

func required(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("must not be empty")
	}
	return nil
}

func oneOf(allowed ...string) func(string) error {
	return func(v string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("unknown value %q (want %s)", v, strings.Join(allowed, ", "))
	}
}

func requiredURL(v string) error {
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an http(s) URL", v)
	}
	return nil
}

func optionalURL(v string) error {
	if v == "" {
		return nil
	}
	return requiredURL(v)
}

func listenAddr(v string) error {
	if _, port, err := net.SplitHostPort(v); err != nil || port == "" {
		return fmt.Errorf("%q is not a host:port address", v)
	}
	return nil
}

// Flatten converts a nested map into a flat map with dot-separated keys.
// For example, {"openai": {"base_url": "x"}} becomes {"openai.base_url": "x"}.
// Arrays such as the models list stay whole under their key.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(key, child, out)
			continue
		}
		out[key] = v
	}
}

// Unflatten converts a flat map with dot-separated keys back into a nested map.
// For example, {"store.driver": "file"} becomes {"store": {"driver": "file"}}.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		parts := strings.Split(k, ".")
		current := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := current[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				current[part] = next
			}
			current = next
		}
		current[parts[len(parts)-1]] = v
	}
	return out
}

// MaskSecrets returns a copy of the flat map with API keys and the bot
// token masked. Empty values are left empty.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if s, ok := v.(string); ok && s != "" && IsSecretKey(k) {
			v = MaskValue(s)
		}
		out[k] = v
	}
	return out
}

// MaskValue renders a secret as "***" plus its last 4 characters.
func MaskValue(s string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return "***" + s
	}
	return "***" + string(r[len(r)-4:])
}
