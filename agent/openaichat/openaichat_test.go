package openaichat

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelane/docrelay/core"
)

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	a, err := New(context.Background(), Options{APIKey: "sk-test"}, "vendor.model-1")
	require.NoError(t, err)
	return a
}

func TestNewRequiresModel(t *testing.T) {
	_, err := New(context.Background(), Options{APIKey: "sk-test"}, "")
	assert.Error(t, err)
}

func TestFactoryRequiresAPIKey(t *testing.T) {
	_, err := core.CreateAgentBuilder("openaichat", map[string]any{})
	assert.Error(t, err)

	builder, err := core.CreateAgentBuilder("openaichat", map[string]any{"api_key": "sk-test"})
	require.NoError(t, err)
	agent, err := builder(context.Background(), "vendor.model-1")
	require.NoError(t, err)
	assert.NotNil(t, agent)
}

func TestToChatMessageTextOnly(t *testing.T) {
	msg, err := toChatMessage([]core.Part{core.TextPart{Text: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, openai.ChatMessageRoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.Empty(t, msg.MultiContent)
}

func TestToChatMessageMultimodal(t *testing.T) {
	msg, err := toChatMessage([]core.Part{
		core.TextPart{Text: "what is this?"},
		core.ImagePart{MimeType: "image/jpeg", Data: "QUJD"},
	})
	require.NoError(t, err)
	assert.Empty(t, msg.Content)
	require.Len(t, msg.MultiContent, 2)

	assert.Equal(t, openai.ChatMessagePartTypeText, msg.MultiContent[0].Type)
	assert.Equal(t, "what is this?", msg.MultiContent[0].Text)

	assert.Equal(t, openai.ChatMessagePartTypeImageURL, msg.MultiContent[1].Type)
	require.NotNil(t, msg.MultiContent[1].ImageURL)
	assert.Equal(t, "data:image/jpeg;base64,QUJD", msg.MultiContent[1].ImageURL.URL)
	assert.Equal(t, openai.ImageURLDetailLow, msg.MultiContent[1].ImageURL.Detail)
}

func TestToChatMessageEmpty(t *testing.T) {
	_, err := toChatMessage(nil)
	assert.Error(t, err)
}

func TestTrimHistory(t *testing.T) {
	a := newTestAgent(t)
	for i := 0; i < 5; i++ {
		a.history = append(a.history,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "q"},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "a"},
		)
	}
	require.Equal(t, 10, a.HistoryLength())

	assert.Equal(t, 4, a.TrimHistory(4))
	assert.Equal(t, 4, a.HistoryLength())
	// The kept entries are the most recent ones.
	assert.Equal(t, openai.ChatMessageRoleUser, a.history[0].Role)

	assert.Equal(t, 4, a.TrimHistory(10))
	assert.Equal(t, 0, a.TrimHistory(-1))
}

func TestEstimateTokens(t *testing.T) {
	a := newTestAgent(t)
	assert.Equal(t, 0, a.EstimateTokens())

	a.history = append(a.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: "0123456789abcdef", // 16 bytes -> 4 tokens
	})
	assert.Equal(t, 4, a.EstimateTokens())

	a.history = append(a.history, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: "12345678"}, // 2 tokens
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: "data:..."}},
		},
	})
	assert.Equal(t, 4+2+imageTokenCost, a.EstimateTokens())
}
