package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/user/genie/pkg/llm"
)

// Client implements llm.Backend for OpenAI-compatible chat completion APIs.
type Client struct {
	api *openai.Client
}

// New creates a new OpenAI-compatible client with the given configuration.
// An empty BaseURL keeps the library default.
func New(config *llm.Config) *Client {
	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	return &Client{api: openai.NewClientWithConfig(cfg)}
}

// CreateConversation converts history into chat messages and returns a
// conversation that keeps appending to it. No request is made until the
// first SendStream.
func (c *Client) CreateConversation(ctx context.Context, modelID string, history []llm.Turn) (llm.Conversation, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, turn := range history {
		msgs = append(msgs, toMessage(turn.Role, turn.Fragments))
	}
	return &conversation{api: c.api, model: modelID, history: msgs}, nil
}

// GenerateOnce sends a single user prompt without any history.
func (c *Client) GenerateOnce(ctx context.Context, modelID, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

type conversation struct {
	api   *openai.Client
	model string

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
}

// SendStream streams the assistant reply to fragments. The user turn and the
// reply are committed to the conversation history only when the stream
// completes without error.
func (c *conversation) SendStream(ctx context.Context, fragments []llm.Fragment) (<-chan llm.Delta, error) {
	user := toMessage(llm.RoleUser, fragments)

	c.mu.Lock()
	msgs := make([]openai.ChatCompletionMessage, len(c.history), len(c.history)+1)
	copy(msgs, c.history)
	c.mu.Unlock()
	msgs = append(msgs, user)

	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("create completion stream: %w", err)
	}

	ch := make(chan llm.Delta)
	go func() {
		defer close(ch)
		defer stream.Close()

		var reply string
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				send(ctx, ch, llm.Delta{Err: fmt.Errorf("receive stream: %w", err)})
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			text := resp.Choices[0].Delta.Content
			reply += text
			if !send(ctx, ch, llm.Delta{Content: text}) {
				return
			}
		}

		c.mu.Lock()
		c.history = append(c.history, user, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: reply,
		})
		c.mu.Unlock()
	}()
	return ch, nil
}

func send(ctx context.Context, ch chan<- llm.Delta, d llm.Delta) bool {
	select {
	case ch <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

// toMessage maps a turn to a chat message. Turns carrying an image use the
// multi-part content form; plain text turns use Content.
func toMessage(role llm.Role, fragments []llm.Fragment) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if role == llm.RoleModel {
		msg.Role = openai.ChatMessageRoleAssistant
	}

	hasImage := false
	for _, f := range fragments {
		if f.Kind == llm.FragmentImage {
			hasImage = true
			break
		}
	}
	if !hasImage {
		for _, f := range fragments {
			msg.Content += f.Text
		}
		return msg
	}

	for _, f := range fragments {
		switch f.Kind {
		case llm.FragmentImage:
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: "data:" + f.MimeType + ";base64," + f.Data},
			})
		case llm.FragmentText:
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: f.Text,
			})
		}
	}
	return msg
}
