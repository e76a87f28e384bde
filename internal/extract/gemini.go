// Package extract – Gemini-backed implementation of the Model boundary.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Model is the narrow interface to the AI collaborator: one prompt in, one
// text response out. It exists so tests can substitute a deterministic fake
// for the non-deterministic external dependency.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiModel calls the Gemini API with client-side pacing and a per-call
// timeout. API failures are classified into the extraction taxonomy before
// they leave this type.
type GeminiModel struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
}

// NewGeminiModel builds a paced Gemini client. rps bounds outbound request
// rate (tokens are cheap to waste, quota is not); rps <= 0 disables pacing.
func NewGeminiModel(ctx context.Context, apiKey, model string, rps float64, timeout time.Duration) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &GeminiModel{
		client:  client,
		model:   model,
		limiter: limiter,
		timeout: timeout,
	}, nil
}

// Generate sends one prompt and returns the raw text response.
func (m *GeminiModel) Generate(ctx context.Context, prompt string) (string, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", newError(KindTransient, "", err)
		}
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", classifyAPIError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", newError(KindMalformed, "", errors.New("empty response from model"))
	}
	return text, nil
}

// classifyAPIError maps Gemini API failures onto the extraction taxonomy:
// rate limits, server errors and timeouts are Transient; credential and
// permission failures are Fatal.
func classifyAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return newError(KindFatal, "", err)
		case apiErr.Code == http.StatusTooManyRequests:
			return newError(KindTransient, "", err)
		case apiErr.Code >= 500:
			return newError(KindTransient, "", err)
		default:
			return newError(KindMalformed, "", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTransient, "", err)
	}
	// Unrecognized failures (DNS, connection resets) are worth retrying.
	return newError(KindTransient, "", err)
}
