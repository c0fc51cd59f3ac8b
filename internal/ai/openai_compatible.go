package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
}

// OpenAICompatibleClient targets any endpoint speaking the OpenAI chat completions API.
type OpenAICompatibleClient struct {
	client *openai.Client
	cfg    ChatConfig
}

func NewOpenAICompatibleClient(cfg ChatConfig) (*OpenAICompatibleClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm api key is empty")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is empty")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	return &OpenAICompatibleClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}, nil
}

func (c *OpenAICompatibleClient) request(systemPrompt, prompt string) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	return openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
	}
}

func (c *OpenAICompatibleClient) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(systemPrompt, prompt))
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty llm choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAICompatibleClient) Stream(ctx context.Context, systemPrompt, prompt string, onChunk func(string) error) (string, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(systemPrompt, prompt))
	if err != nil {
		return "", fmt.Errorf("llm stream request failed: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read llm stream failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		full.WriteString(text)
		if err := onChunk(text); err != nil {
			return "", err
		}
	}
	return full.String(), nil
}

func (c *OpenAICompatibleClient) Close() error {
	return nil
}
