package llm

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// CompletionRequest is one prompt. A nil Temperature falls back to the
// client's configured value; zero is sent as zero.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float32
	MaxTokens    int
}

// Temperature returns a pointer for CompletionRequest.Temperature.
func Temperature(v float32) *float32 { return &v }

type CompletionResponse struct {
	Content string
	Model   string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StatusError is a non-2xx reply from a provider without a typed SDK error.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether err looks transient: rate limiting, a server
// side failure or a network error. Request errors such as a bad API key are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
