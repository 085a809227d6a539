// Package agent turns natural-language instructions into page actions ("act") and
// structured reads ("extract") using an LLM provider over the browser session.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// Request is one model call
type Request struct {
	System    string
	Prompt    string
	Image     []byte // optional PNG attached after the prompt
	MaxTokens int
}

// Response is the model output and its token usage
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider defines the interface for LLM completion
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// NewProvider creates a new AI provider based on the provider name
func NewProvider(name, model string) (Provider, error) {
	switch strings.ToLower(name) {
	case "claude", "anthropic":
		return NewClaudeProvider(model)
	case "openai", "gpt":
		return NewOpenAIProvider(model)
	case "gemini", "google":
		return NewGeminiProvider(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai, gemini)", name)
	}
}

// IsRateLimited reports whether err is a provider 429
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) {
		return claudeErr.StatusCode == http.StatusTooManyRequests
	}
	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return openaiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var openaiReqErr *openai.RequestError
	if errors.As(err, &openaiReqErr) {
		return openaiReqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code == http.StatusTooManyRequests
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted")
}
