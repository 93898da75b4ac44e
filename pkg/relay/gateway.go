package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// Completion is the gateway's answer for one round. Degraded marks the fail-soft
// placeholder produced when the upstream call did not succeed; a degraded reply
// is shown to the client but never appended to the transcript.
type Completion struct {
	Text     string
	Degraded bool
}

// CompletionGateway turns a transcript into one assistant reply. Implementations
// make at most one upstream call per invocation and never return an error: upstream
// failure degrades into a placeholder reply instead of propagating.
type CompletionGateway interface {
	Reply(ctx context.Context, turns []Turn) Completion
}

// degradedReplyText is shown when the upstream completion call fails.
const degradedReplyText = "Sorry, I'm having trouble thinking right now. Could you say that again?"

// GatewayConfig holds the upstream generation parameters.
type GatewayConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// NewGateway picks the upstream-backed gateway when an API key is configured and
// the offline echo responder otherwise, so the relay runs without the external
// dependency.
func NewGateway(cfg GatewayConfig) CompletionGateway {
	if cfg.APIKey == "" {
		log.Info().Msg("no API key configured, using offline echo gateway")
		return &EchoGateway{}
	}
	return NewOpenAIGateway(cfg)
}

// OpenAIGateway relays transcripts to an OpenAI-compatible chat completion
// endpoint: bearer auth, JSON body with model, messages, max_tokens and
// temperature.
type OpenAIGateway struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

func NewOpenAIGateway(cfg GatewayConfig) *OpenAIGateway {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIGateway{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
	}
}

// Reply makes exactly one completion call. Transport errors, non-2xx statuses and
// timeouts all degrade into the placeholder reply; the caller keeps the user's
// turn and skips the assistant turn for this round.
func (g *OpenAIGateway) Reply(ctx context.Context, turns []Turn) Completion {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}

	resp, err := g.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		log.Warn().Err(err).Str("component", "gateway").Str("model", g.model).Msg("completion call failed, degrading")
		return Completion{Text: degradedReplyText, Degraded: true}
	}
	if len(resp.Choices) == 0 {
		log.Warn().Str("component", "gateway").Str("model", g.model).Msg("completion response had no choices, degrading")
		return Completion{Text: degradedReplyText, Degraded: true}
	}
	return Completion{Text: resp.Choices[0].Message.Content}
}

// EchoGateway is the offline responder used when no upstream credential is
// configured: a deterministic acknowledgment derived from the last user turn.
type EchoGateway struct{}

func (g *EchoGateway) Reply(_ context.Context, turns []Turn) Completion {
	var last string
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			last = turns[i].Content
			break
		}
	}
	return Completion{Text: fmt.Sprintf("You said: %q. This is a mock response from the AI tutor.", last)}
}
