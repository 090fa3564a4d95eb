package providers

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1/"
	defaultOpenAIModel   = "gpt-4o-mini"
	plannerTemperature   = 0.2
	plannerSystemPrompt  = "You plan routes for agents on a grid. Reply with JSON only."
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint
type OpenAIClient struct {
	client  *openai.Client
	baseURL string
}

// OpenAi reads OPENAI_API_BASE_URL and OPENAI_API_KEY first; options override them
func OpenAi(ctx context.Context, opts ...ProviderOption) *OpenAIClient {
	params := ProviderParams{
		BaseURL: os.Getenv("OPENAI_API_BASE_URL"),
		APIKey:  os.Getenv("OPENAI_API_KEY"),
	}
	for _, opt := range opts {
		opt(&params)
	}
	if params.BaseURL == "" {
		params.BaseURL = defaultOpenAIBaseURL
	}

	reqOpts := []option.RequestOption{option.WithBaseURL(params.BaseURL)}
	if params.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(params.APIKey))
	}
	log.Println("Using Base URL", params.BaseURL)
	return &OpenAIClient{
		client:  openai.NewClient(reqOpts...),
		baseURL: params.BaseURL,
	}
}

func (c *OpenAIClient) BaseURL() string {
	return c.baseURL
}

// Complete sends prompt as a single user turn under the planner system prompt
func (c *OpenAIClient) Complete(ctx context.Context, model string, prompt string) (string, error) {
	if model == "" {
		model = defaultOpenAIModel
	}
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(plannerSystemPrompt),
			openai.UserMessage(prompt),
		}),
		Model:       openai.F(model),
		Temperature: openai.F(plannerTemperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
