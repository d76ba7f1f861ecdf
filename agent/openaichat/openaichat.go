// Package openaichat implements core.Agent over an OpenAI-compatible chat
// completion API. One Agent holds one conversation: the full message history
// lives here, and each Generate call appends one user turn and one assistant
// turn.
package openaichat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/codelane/docrelay/core"
)

func init() {
	core.RegisterAgent("openaichat", func(opts map[string]any) (core.AgentBuilder, error) {
		apiKey, _ := opts["api_key"].(string)
		if apiKey == "" {
			return nil, fmt.Errorf("openaichat: api_key is required")
		}
		baseURL, _ := opts["base_url"].(string)
		instruction, _ := opts["instruction"].(string)
		if instruction == "" {
			instruction = DefaultInstruction
		}
		o := Options{APIKey: apiKey, BaseURL: baseURL, Instruction: instruction}
		return func(ctx context.Context, modelID string) (core.Agent, error) {
			return New(ctx, o, modelID)
		}, nil
	})
}

type Options struct {
	APIKey      string
	BaseURL     string
	Instruction string
}

type Agent struct {
	client *openai.Client
	model  string

	mu          sync.Mutex
	instruction string
	history     []openai.ChatCompletionMessage
}

func New(ctx context.Context, opts Options, modelID string) (*Agent, error) {
	if modelID == "" {
		return nil, fmt.Errorf("openaichat: model ID is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &Agent{
		client:      openai.NewClientWithConfig(cfg),
		model:       modelID,
		instruction: opts.Instruction,
	}, nil
}

// Generate runs one turn. The user message is appended to the history only
// after a successful completion so a failed call can be retried on the same
// handle without duplicating input.
func (a *Agent) Generate(ctx context.Context, parts []core.Part) (string, error) {
	userMsg, err := toChatMessage(parts)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	messages := make([]openai.ChatCompletionMessage, 0, len(a.history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: a.instruction,
	})
	messages = append(messages, a.history...)
	messages = append(messages, userMsg)
	a.mu.Unlock()

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openaichat: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openaichat: empty response from model %s", a.model)
	}
	text := resp.Choices[0].Message.Content

	a.mu.Lock()
	a.history = append(a.history, userMsg, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: text,
	})
	a.mu.Unlock()

	slog.Debug("openaichat: turn complete", "model", a.model, "tokens", resp.Usage.TotalTokens)
	return text, nil
}

func toChatMessage(parts []core.Part) (openai.ChatCompletionMessage, error) {
	if len(parts) == 0 {
		return openai.ChatCompletionMessage{}, fmt.Errorf("openaichat: request has no content parts")
	}

	// A text-only single part stays a plain string message; anything else
	// becomes a multi-part content array.
	if len(parts) == 1 {
		if t, ok := parts[0].(core.TextPart); ok {
			return openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: t.Text,
			}, nil
		}
	}

	content := make([]openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case core.TextPart:
			content = append(content, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: v.Text,
			})
		case core.ImagePart:
			content = append(content, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    fmt.Sprintf("data:%s;base64,%s", v.MimeType, v.Data),
					Detail: openai.ImageURLDetailLow,
				},
			})
		default:
			return openai.ChatCompletionMessage{}, fmt.Errorf("openaichat: unsupported part type %T", p)
		}
	}
	return openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: content,
	}, nil
}

func (a *Agent) HistoryLength() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history)
}

// imageTokenCost is the flat estimate charged per inline image; low-detail
// image input has a fixed cost on OpenAI-compatible APIs.
const imageTokenCost = 85

// EstimateTokens gives a rough history size: ~4 bytes of text per token plus
// a flat cost per image. Good enough for the /status display.
func (a *Agent) EstimateTokens() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := 0
	for _, m := range a.history {
		total += len(m.Content) / 4
		for _, p := range m.MultiContent {
			switch p.Type {
			case openai.ChatMessagePartTypeText:
				total += len(p.Text) / 4
			case openai.ChatMessagePartTypeImageURL:
				total += imageTokenCost
			}
		}
	}
	return total
}

func (a *Agent) TrimHistory(keep int) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	if keep < len(a.history) {
		a.history = a.history[len(a.history)-keep:]
	}
	return len(a.history)
}

func (a *Agent) Close() error { return nil }
