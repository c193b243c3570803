// Package commentary produces a short roast of a student's result using
// any OpenAI-compatible chat completion endpoint.
package commentary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/entrhq/resultbot/pkg/logging"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	DefaultModel          = "gemma2-9b-it"
	DefaultTemperature    = 0.95
	DefaultMaxInputTokens = 3000

	// FallbackText is returned when the model answers with nothing
	FallbackText = "Kya hi kar diya tune!"
)

// ErrUnavailable means no commentary could be produced.
var ErrUnavailable = errors.New("commentary unavailable")

const systemPrompt = "Tu ek savage professor hai jo students ke kharab results dekh kar unhe Hinglish mein " +
	"brutally roast karta hai aur savage emojis ke saath unki khilli udata hai. Itni bezzati kar ki " +
	"student ki bolti band ho jaye, thodi gaali bhi chalegi, lekin reply mein asterisk (*) bilkul use mat karna."

func userPrompt(resultText string) string {
	return "Yeh student ka result hai:\n" + resultText + "\n\nAb iski thodi roasting kar de."
}

// Generator writes commentary for extracted result text.
type Generator struct {
	client      openai.Client
	model       string
	temperature float64
	maxInput    int
	timeout     time.Duration
	tokenizer   Tokenizer
	reqOpts     []option.RequestOption
	logger      *logging.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(g *Generator) {
		g.model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		g.temperature = t
	}
}

// WithMaxInputTokens caps how much result text is sent. Zero disables the cap.
func WithMaxInputTokens(n int) Option {
	return func(g *Generator) {
		g.maxInput = n
	}
}

// WithTimeout bounds each generation.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.timeout = d
	}
}

// WithTokenizer overrides the tokenizer used for the input budget.
func WithTokenizer(t Tokenizer) Option {
	return func(g *Generator) {
		g.tokenizer = t
	}
}

// WithRequestOptions passes options through to the OpenAI client.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(g *Generator) {
		g.reqOpts = append(g.reqOpts, opts...)
	}
}

// NewGenerator creates a generator. An empty baseURL uses Groq.
func NewGenerator(apiKey, baseURL string, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for commentary")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	g := &Generator{
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxInput:    DefaultMaxInputTokens,
		logger:      logging.NewLogger("commentary"),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.tokenizer == nil {
		tok, err := NewTiktokenTokenizer(g.model)
		if err != nil {
			g.logger.Warnf("tokenizer unavailable, budgeting by characters: %v", err)
			tok = runeTokenizer{}
		}
		g.tokenizer = tok
	}

	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	}, g.reqOpts...)
	g.client = openai.NewClient(clientOpts...)
	return g, nil
}

// Generate returns a roast of resultText.
func (g *Generator) Generate(ctx context.Context, resultText string) (string, error) {
	resultText = strings.TrimSpace(resultText)
	if resultText == "" {
		return "", fmt.Errorf("%w: no result text", ErrUnavailable)
	}

	if text, cut := Truncate(g.tokenizer, resultText, g.maxInput); cut {
		g.logger.Debugf("result text truncated to %d tokens", g.maxInput)
		resultText = text
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt(resultText)),
		},
		Temperature: openai.Float(g.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return FallbackText, nil
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return FallbackText, nil
	}
	return content, nil
}
