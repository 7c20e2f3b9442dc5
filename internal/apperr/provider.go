package apperr

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// FromAnthropic classifies an error returned by the Anthropic/Bedrock SDK
// into the typed provider error kinds of spec.md §7.
func FromAnthropic(err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindProviderTimeout, "anthropic request timed out", err).WithProvider("bedrock")
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return Wrap(KindProviderAuth, "anthropic authentication failed", err).WithProvider("bedrock")
		case 429:
			return Wrap(KindProviderRate, "anthropic rate limit exceeded", err).WithProvider("bedrock")
		case 408:
			return Wrap(KindProviderTimeout, "anthropic request timed out", err).WithProvider("bedrock")
		}
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && strings.Contains(strings.ToLower(apiErr.Message), "policy") {
			return Wrap(KindProviderPolicy, "anthropic rejected the request on policy grounds", err).WithProvider("bedrock")
		}
	}
	return Wrap(KindProviderGeneric, "anthropic request failed", err).WithProvider("bedrock")
}

// FromOpenAI classifies an error returned by the OpenAI SDK into the typed
// provider error kinds of spec.md §7, including the dedicated
// OPENAI_AUTH_ERROR / OPENAI_RATE_LIMIT_ERROR wire categories.
func FromOpenAI(err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindProviderTimeout, "openai request timed out", err).WithProvider("openai")
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401:
			return Wrap(KindOpenAIAuth, "openai authentication failed", err).WithProvider("openai")
		case 429:
			return Wrap(KindOpenAIRateLimit, "openai rate limit exceeded", err).WithProvider("openai")
		case 408:
			return Wrap(KindProviderTimeout, "openai request timed out", err).WithProvider("openai")
		}
		if strings.Contains(strings.ToLower(apiErr.Message), "policy") || strings.Contains(strings.ToLower(apiErr.Message), "content_filter") {
			return Wrap(KindProviderPolicy, "openai rejected the request on policy grounds", err).WithProvider("openai")
		}
	}
	return Wrap(KindProviderGeneric, "openai request failed", err).WithProvider("openai")
}

// Remap converts one of the internal provider-facing kinds produced by
// FromAnthropic/FromOpenAI into a wire-safe kind from spec.md §6's table,
// preserving provider and job id. Non-provider kinds pass through
// unchanged.
func Remap(err *Error) *Error {
	if err == nil {
		return nil
	}
	switch err.Kind {
	case KindProviderAuth:
		c := *err
		c.Kind = KindCredentials
		return &c
	case KindProviderRate:
		c := *err
		c.Kind = KindOpenAIRateLimit
		return &c
	case KindProviderTimeout, KindProviderPolicy, KindProviderGeneric:
		c := *err
		c.Kind = KindModelProvider
		return &c
	default:
		return err
	}
}
