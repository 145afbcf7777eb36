package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/infosage/backend/internal/metrics"
	"github.com/infosage/backend/pkg/circuitbreaker"
	"github.com/infosage/backend/pkg/config"
	"github.com/infosage/backend/pkg/logger"
	"github.com/infosage/backend/pkg/retry"
)

var (
	// ErrUnavailable is returned by every call when no API key is configured.
	ErrUnavailable = errors.New("llm provider not configured")
	// ErrInvalidResponse marks a reply that could not be parsed or failed
	// validation.
	ErrInvalidResponse = errors.New("invalid llm response")
)

const embeddingTimeout = 15 * time.Second

type Client struct {
	client      *openai.Client
	cfg         config.LLMConfig
	gate        *Gate
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type CompletionRequest struct {
	// Kind labels the call in metrics and logs.
	Kind         string
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
	Timeout      time.Duration
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(cfg config.LLMConfig, gate *Gate) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	if gate == nil {
		gate = NewGate(cfg.MaxConcurrent, cfg.RequestsPerSecond)
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsFailure:        countsAgainstBreaker,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		ShouldRetry:    isTransient,
		RateLimited:    IsRateLimited,
		RateLimitDelay: 3 * time.Second,
		Logger:         logger.GetLogger(),
	}

	if cfg.APIKey == "" {
		logger.Warn("No LLM API key configured, AI stages will use local fallbacks")
	} else {
		logger.Info("LLM client initialized",
			zap.String("model", cfg.Model),
			zap.String("fast_model", cfg.FastModel),
			zap.String("research_model", cfg.ResearchModel),
			zap.String("embedding_model", cfg.EmbeddingModel),
			zap.Int("max_concurrent", int(gate.Capacity())),
		)
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		cfg:         cfg,
		gate:        gate,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Available() bool {
	return c.cfg.APIKey != ""
}

func (c *Client) EmbeddingDim() int {
	return c.cfg.EmbeddingDim
}

func (c *Client) Gate() *Gate {
	return c.gate
}

// Complete sends one chat completion through the breaker, the retry policy
// and the concurrency gate. The timeout covers every attempt.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = time.Duration(c.cfg.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.cfg.Temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			return c.gate.Do(ctx, func() error {
				resp, err := c.client.CreateChatCompletion(
					ctx,
					openai.ChatCompletionRequest{
						Model:       model,
						Messages:    messages,
						Temperature: temperature,
						MaxTokens:   maxTokens,
					},
				)
				if err != nil {
					return fmt.Errorf("failed to create completion: %w", err)
				}
				if len(resp.Choices) == 0 {
					return fmt.Errorf("completion has no choices: %w", ErrInvalidResponse)
				}

				metrics.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(resp.Usage.PromptTokens))
				metrics.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(resp.Usage.CompletionTokens))

				logger.Debug("LLM completion generated",
					zap.String("kind", req.Kind),
					zap.Int("prompt_tokens", resp.Usage.PromptTokens),
					zap.Int("completion_tokens", resp.Usage.CompletionTokens),
				)

				result = &CompletionResponse{
					Content: resp.Choices[0].Message.Content,
					Usage: Usage{
						PromptTokens:     resp.Usage.PromptTokens,
						CompletionTokens: resp.Usage.CompletionTokens,
						TotalTokens:      resp.Usage.TotalTokens,
					},
				}
				return nil
			})
		})
	})

	recordCall(req.Kind, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateEmbedding makes a single gated embedding call. Callers own the retry
// policy so they can substitute a placeholder when it is exhausted.
func (c *Client) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, embeddingTimeout)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		return c.gate.Do(ctx, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
				},
			)
			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}
			if len(resp.Data) == 0 {
				return fmt.Errorf("embedding response is empty: %w", ErrInvalidResponse)
			}
			if got := len(resp.Data[0].Embedding); got != c.cfg.EmbeddingDim {
				return fmt.Errorf("embedding has dimension %d, want %d: %w", got, c.cfg.EmbeddingDim, ErrInvalidResponse)
			}

			embedding = resp.Data[0].Embedding
			return nil
		})
	})

	recordCall("embedding", err)
	if err != nil {
		return nil, err
	}
	return embedding, nil
}

func IsRateLimited(err error) bool {
	return statusCode(err) == http.StatusTooManyRequests
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// isTransient decides whether a failed completion is worth another attempt.
// Client errors other than throttling are final.
func isTransient(err error) bool {
	if errors.Is(err, ErrInvalidResponse) || errors.Is(err, context.Canceled) {
		return false
	}
	code := statusCode(err)
	if code == 0 {
		return true
	}
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func countsAgainstBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrInvalidResponse) {
		return false
	}
	code := statusCode(err)
	return code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func recordCall(kind string, err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidResponse):
		status = "invalid"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		status = "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	default:
		status = "error"
	}
	if kind == "" {
		kind = "completion"
	}
	metrics.LLMCallsTotal.WithLabelValues(kind, status).Inc()
}
