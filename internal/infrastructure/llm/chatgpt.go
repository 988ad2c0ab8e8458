package llm

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"EcoPulse/internal/config"
	"EcoPulse/internal/ports"
)

const defaultCallTimeout = 60 * time.Second

// ChatGPTClient implements ports.Oracle backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

var _ ports.Oracle = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration. httpClient may be nil.
func NewChatGPTClient(cfg config.OracleConfig, httpClient *http.Client) *ChatGPTClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	return &ChatGPTClient{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: timeout,
	}
}

// Complete sends prompt as the single user message with deterministic decoding.
func (c *ChatGPTClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("chatgpt client is nil")
	}
	if c.model == "" {
		return "", fmt.Errorf("chatgpt client misconfigured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		// go-openai drops a literal zero temperature from the payload.
		Temperature: math.SmallestNonzeroFloat32,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
