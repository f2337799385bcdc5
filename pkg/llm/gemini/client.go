package gemini

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/genai"

	"github.com/user/genie/pkg/llm"
)

// Client implements llm.Backend on top of the Gemini Developer API.
type Client struct {
	api *genai.Client
}

// New creates a Gemini client. BaseURL is optional and mainly used to point
// the client at a test server.
func New(ctx context.Context, config *llm.Config) (*Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	api, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{api: api}, nil
}

func (c *Client) CreateConversation(ctx context.Context, modelID string, history []llm.Turn) (llm.Conversation, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		parts, err := toParts(turn.Fragments)
		if err != nil {
			return nil, err
		}
		role := genai.Role(genai.RoleUser)
		if turn.Role == llm.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}

	chat, err := c.api.Chats.Create(ctx, modelID, nil, contents)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return &conversation{chat: chat}, nil
}

func (c *Client) GenerateOnce(ctx context.Context, modelID, prompt string) (string, error) {
	resp, err := c.api.Models.GenerateContent(ctx, modelID, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}

type conversation struct {
	chat *genai.Chat
}

// SendStream adapts the chat's response iterator to a delta channel. The chat
// records the exchange in its own history once the iterator finishes.
func (c *conversation) SendStream(ctx context.Context, fragments []llm.Fragment) (<-chan llm.Delta, error) {
	parts, err := toParts(fragments)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Delta)
	go func() {
		defer close(ch)
		for resp, err := range c.chat.SendStream(ctx, parts...) {
			if err != nil {
				select {
				case ch <- llm.Delta{Err: fmt.Errorf("stream response: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case ch <- llm.Delta{Content: text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func toParts(fragments []llm.Fragment) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, len(fragments))
	for _, f := range fragments {
		switch f.Kind {
		case llm.FragmentImage:
			data, err := base64.StdEncoding.DecodeString(f.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline image: %w", err)
			}
			parts = append(parts, genai.NewPartFromBytes(data, f.MimeType))
		default:
			parts = append(parts, genai.NewPartFromText(f.Text))
		}
	}
	return parts, nil
}
