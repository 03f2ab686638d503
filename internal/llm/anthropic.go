package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/metrics"
	"github.com/reqanswer/backend/internal/qa"
	"github.com/reqanswer/backend/pkg/circuitbreaker"
	"github.com/reqanswer/backend/pkg/logger"
	"github.com/reqanswer/backend/pkg/retry"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

type messagesRequest struct {
	Model       string            `json:"model"`
	Messages    []messagesMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens"`
	System      string            `json:"system,omitempty"`
	Temperature float32           `json:"temperature"`
}

type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// AnthropicClient is a completion-only client for the Anthropic Messages API.
type AnthropicClient struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float32
	maxTokens   int
	cb          *circuitbreaker.Breaker
	policy      retry.Policy
}

func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = anthropicBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	logger.Info("Anthropic client initialized", zap.String("model", cfg.Model))

	return &AnthropicClient{
		http:        &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		cb:          newBreaker("anthropic"),
		policy:      newPolicy(),
	}, nil
}

func (c *AnthropicClient) Model() string { return c.model }

func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body := messagesRequest{
		Model:       c.model,
		Messages:    []messagesMessage{{Role: "user", Content: req.UserPrompt}},
		MaxTokens:   req.MaxTokens,
		System:      req.SystemPrompt,
		Temperature: c.temperature,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = c.maxTokens
	}
	if req.Temperature != nil {
		body.Temperature = *req.Temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &qa.CompletionError{Provider: "anthropic", Err: fmt.Errorf("marshal request: %w", err)}
	}

	var result *CompletionResponse
	err = c.cb.Execute(func() error {
		return retry.Do(ctx, c.policy, func(ctx context.Context) error {
			var err error
			result, err = c.send(ctx, payload)
			return err
		})
	})
	if err != nil {
		return nil, &qa.CompletionError{Provider: "anthropic", Err: err}
	}

	metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(result.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(result.Usage.CompletionTokens))
	return result, nil
}

func (c *AnthropicClient) send(ctx context.Context, payload []byte) (*CompletionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var msg messagesResponse
	decodeErr := json.Unmarshal(raw, &msg)

	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(raw))
		if decodeErr == nil && msg.Error != nil {
			detail = msg.Error.Message
		}
		return nil, &StatusError{Provider: "anthropic", StatusCode: resp.StatusCode, Message: detail}
	}
	if decodeErr != nil {
		return nil, retry.Permanent(fmt.Errorf("decode response: %w", decodeErr))
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, retry.Permanent(errors.New("no text content returned"))
	}

	return &CompletionResponse{
		Content: text.String(),
		Model:   msg.Model,
		Usage: Usage{
			PromptTokens:     msg.Usage.InputTokens,
			CompletionTokens: msg.Usage.OutputTokens,
			TotalTokens:      msg.Usage.InputTokens + msg.Usage.OutputTokens,
		},
	}, nil
}
