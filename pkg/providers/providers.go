package providers

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingAPIKey   = errors.New("missing API key")
	ErrEmptyResponse   = errors.New("empty completion")
)

// Client completes a single prompt with a language model
type Client interface {
	Complete(ctx context.Context, model string, prompt string) (string, error)
}

type ProviderParams struct {
	BaseURL string
	APIKey  string
}

type ProviderOption func(*ProviderParams)

func WithBaseURL(baseURL string) ProviderOption {
	return func(p *ProviderParams) {
		p.BaseURL = baseURL
	}
}

func WithAPIKey(apiKey string) ProviderOption {
	return func(p *ProviderParams) {
		p.APIKey = apiKey
	}
}

// New returns the client registered under name ("openai" or "gemini")
func New(ctx context.Context, name string, opts ...ProviderOption) (Client, error) {
	switch name {
	case "openai":
		return OpenAi(ctx, opts...), nil
	case "gemini":
		params := ProviderParams{}
		for _, opt := range opts {
			opt(&params)
		}
		client, err := Gemini(ctx, params)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}
