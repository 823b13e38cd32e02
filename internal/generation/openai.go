package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/starford/minto/internal/apperr"
	"github.com/starford/minto/internal/metrics"
	"github.com/starford/minto/internal/models"
	"github.com/starford/minto/internal/parser"
)

// BreakerConfig tunes the circuit breaker around model calls.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used when none are
// configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      2,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// OpenAIConfig configures the OpenAI-compatible generator.
type OpenAIConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
	MaxDocumentChars  int
	Breaker           BreakerConfig
}

// OpenAI generates diagrams with a chat-completions model using a strict
// JSON schema response format.
type OpenAI struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	maxChars int
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI creates the generator.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxDocumentChars <= 0 {
		cfg.MaxDocumentChars = 100_000
	}
	bc := cfg.Breaker
	if bc.MinRequests == 0 {
		bc = DefaultBreakerConfig()
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generation",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
		// Caller cancellations say nothing about the model's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &OpenAI{
		client:   openai.NewClientWithConfig(oc),
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		maxChars: cfg.MaxDocumentChars,
		limiter:  rate.NewLimiter(limit, 1),
		breaker:  cb,
		logger:   logger,
	}
}

// Synthesize asks the model for a synthesis of the prompt.
func (o *OpenAI) Synthesize(ctx context.Context, p Prompt) ([]byte, error) {
	if p.Empty() {
		return nil, apperr.New(apperr.ErrMissingInput, "title", "a title or a document is required")
	}
	var doc string
	if p.Document != nil && len(p.Document.Data) > 0 {
		text, err := DocumentText(*p.Document, o.maxChars)
		if err != nil {
			return nil, err
		}
		doc = text
	}
	return o.complete(ctx, "synthesize", synthesisSystemPrompt, synthesisUserPrompt(p.Title, doc))
}

// Expand asks the model for the children of nodeLabel.
func (o *OpenAI) Expand(ctx context.Context, nodeLabel string, current models.Graph) ([]byte, error) {
	if nodeLabel == "" {
		return nil, apperr.New(apperr.ErrMissingInput, "nodeLabel", "node label is required")
	}
	prompt, err := expandUserPrompt(nodeLabel, current)
	if err != nil {
		return nil, err
	}
	return o.complete(ctx, "expand", expandSystemPrompt, prompt)
}

func (o *OpenAI) complete(ctx context.Context, op, system, user string) (payload []byte, err error) {
	started := time.Now()
	defer func() { metrics.ObserveGeneration(op, started, err) }()

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if err := o.limiter.Wait(callCtx); err != nil {
		return nil, apperr.Wrap(apperr.ErrGenerationTimeout, err, "%s: waiting for rate limiter", op)
	}

	out, err := o.breaker.Execute(func() (interface{}, error) {
		resp, err := o.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: o.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   "synthesis",
					Schema: &synthesisSchema,
					Strict: true,
				},
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return nil, errors.New("model returned no content")
		}
		return resp.Choices[0].Message.Content, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, apperr.Wrap(apperr.ErrGenerationUnavailable, err, "%s", op)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return nil, apperr.Wrap(apperr.ErrGenerationTimeout, err, "%s: no response within %s", op, o.timeout)
	default:
		return nil, apperr.Wrap(apperr.ErrGeneration, err, "%s", op)
	}

	content, _ := out.(string)
	payload, err = parser.ExtractPayload(content)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrGeneration, err, "%s: unusable model output", op)
	}
	o.logger.Debug("generation completed",
		slog.String("operation", op),
		slog.String("model", o.model),
		slog.Duration("elapsed", time.Since(started)))
	return payload, nil
}

var (
	labelSchema = jsonschema.Definition{
		Type:                 jsonschema.Object,
		Properties:           map[string]jsonschema.Definition{"label": {Type: jsonschema.String, Description: "Label of the node."}},
		Required:             []string{"label"},
		AdditionalProperties: false,
	}

	synthesisSchema = jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"reasoningSteps": {
				Type:        jsonschema.Array,
				Description: "The reasoning steps taken to generate the synthesis.",
				Items:       &jsonschema.Definition{Type: jsonschema.String},
			},
			"nodes": {
				Type:        jsonschema.Array,
				Description: "Nodes of the tree diagram.",
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"id":   {Type: jsonschema.String, Description: "Unique identifier for the node."},
						"data": labelSchema,
					},
					Required:             []string{"id", "data"},
					AdditionalProperties: false,
				},
			},
			"edges": {
				Type:        jsonschema.Array,
				Description: "Edges connecting parent nodes to child nodes.",
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"id":     {Type: jsonschema.String, Description: "Unique identifier for the edge."},
						"source": {Type: jsonschema.String, Description: "The ID of the source node."},
						"target": {Type: jsonschema.String, Description: "The ID of the target node."},
					},
					Required:             []string{"id", "source", "target"},
					AdditionalProperties: false,
				},
			},
		},
		Required:             []string{"reasoningSteps", "nodes", "edges"},
		AdditionalProperties: false,
	}
)

