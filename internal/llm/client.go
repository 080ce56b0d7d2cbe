// Package llm wraps the Gemini provider behind a small Client interface
// and owns the transient-overload retry policy. Retries cover individual
// provider calls only, never a whole browser session.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"polistep/internal/config"
	"polistep/internal/logging"
)

// ErrProviderOverloaded is returned once the retry budget for transient
// overload is exhausted.
var ErrProviderOverloaded = errors.New("provider overloaded, retries exhausted")

// Client is the minimal completion interface the pipeline depends on.
type Client interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// GeminiClient implements Client on the Google GenAI SDK.
type GeminiClient struct {
	client  *genai.Client
	cfg     config.LLMConfig
	sleep   func(time.Duration)
	timeNow func() time.Time
}

// NewGeminiClient creates a client for the configured API key.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		cfg:     cfg,
		sleep:   time.Sleep,
		timeNow: time.Now,
	}, nil
}

// Complete issues one generation call with the retry policy applied.
func (c *GeminiClient) Complete(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = c.cfg.Model
	}

	call := func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
		defer cancel()

		resp, err := c.client.Models.GenerateContent(callCtx, model, genai.Text(prompt), nil)
		if err != nil {
			return "", err
		}
		text := resp.Text()
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("no completion returned")
		}
		return text, nil
	}

	return RetryTransient(ctx, c.cfg.MaxRetries, c.cfg.BackoffBase(), c.sleep, call)
}

// RetryTransient runs call up to maxRetries times, sleeping
// base·2^(attempt-1) between attempts, but only when the failure is
// classified as transient provider overload. Other errors surface
// immediately.
func RetryTransient(
	ctx context.Context,
	maxRetries int,
	base time.Duration,
	sleep func(time.Duration),
	call func(ctx context.Context) (string, error),
) (string, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			delay := base * time.Duration(1<<uint(attempt-2))
			logging.APIWarn("transient overload, retrying in %s (attempt %d/%d): %v", delay, attempt, maxRetries, lastErr)
			sleep(delay)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		out, err := call(ctx)
		if err == nil {
			return out, nil
		}
		if !IsTransientOverload(err) {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: %v", ErrProviderOverloaded, lastErr)
}

// overloadSignatures are the provider responses treated as retryable.
var overloadSignatures = []string{
	"429",
	"rate limit",
	"resource_exhausted",
	"resource exhausted",
	"503",
	"unavailable",
	"overloaded",
	"quota",
}

// IsTransientOverload classifies an error as transient provider overload.
func IsTransientOverload(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range overloadSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
