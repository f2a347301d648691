// Package chat answers task-assistant questions through an n8n workflow or an OpenAI-compatible model.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// ErrAssistantUnavailable is returned when no provider produced a reply
var ErrAssistantUnavailable = errors.New("assistant unavailable")

// DefaultModel is used when no model is configured
const DefaultModel = "gpt-4o-mini"

// Request is one user message with optional task context
type Request struct {
	UserID  string
	Message string
	Context json.RawMessage // nil when the client sent none
}

// Provider produces an assistant reply
type Provider interface {
	Reply(ctx context.Context, req Request) (string, error)
	Name() string
}

// Config selects the providers. Empty settings disable the matching provider.
type Config struct {
	N8NWebhookURL string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string
	HTTPClient    *http.Client
}

// Service tries each provider in order and returns the first non-empty reply
type Service struct {
	providers []Provider
}

// New builds the provider chain: the n8n workflow first, then the model fallback
func New(cfg Config) *Service {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	var providers []Provider
	if url := strings.TrimSpace(cfg.N8NWebhookURL); url != "" {
		providers = append(providers, NewN8N(url, httpClient))
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" || strings.TrimSpace(cfg.OpenAIBaseURL) != "" {
		providers = append(providers, NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, httpClient))
	}
	return NewService(providers...)
}

// NewService creates a service over explicit providers
func NewService(providers ...Provider) *Service {
	return &Service{providers: providers}
}

// Providers lists the configured provider names in order
func (s *Service) Providers() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// Reply asks each provider in turn. Both failing yields ErrAssistantUnavailable.
func (s *Service) Reply(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for _, p := range s.providers {
		reply, err := p.Reply(ctx, req)
		if err == nil && strings.TrimSpace(reply) != "" {
			return reply, nil
		}
		if err == nil {
			err = errors.New("empty reply")
		}
		log.Printf("[Chat] Provider %s failed for user %s: %v", p.Name(), req.UserID, err)
		lastErr = err
	}
	if lastErr == nil {
		return "", fmt.Errorf("%w: no provider configured", ErrAssistantUnavailable)
	}
	return "", fmt.Errorf("%w: %v", ErrAssistantUnavailable, lastErr)
}
