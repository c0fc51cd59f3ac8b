package ai

import (
	"context"
	"fmt"
	"strings"

	"gopherai-docchat/internal/model"
)

// Generator is one external text-generation backend.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
	Stream(ctx context.Context, systemPrompt, prompt string, onChunk func(chunk string) error) (string, error)
	Close() error
}

// Gateway turns a document, its history and a new question into one request
// to the configured Generator. Failures are returned, never retried.
type Gateway struct {
	generator    Generator
	systemPrompt string
}

func NewGateway(generator Generator, systemPrompt string) *Gateway {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Gateway{generator: generator, systemPrompt: systemPrompt}
}

func (g *Gateway) Ask(ctx context.Context, documentText string, history []model.Turn, question string) (string, error) {
	prompt := BuildPrompt(documentText, history, question)
	answer, err := g.generator.Generate(ctx, g.systemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrGateway, err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: empty response", model.ErrGateway)
	}
	return answer, nil
}

// AskStream is Ask with chunks delivered to onChunk as they arrive. An error
// returned by onChunk aborts the stream.
func (g *Gateway) AskStream(
	ctx context.Context,
	documentText string,
	history []model.Turn,
	question string,
	onChunk func(chunk string) error,
) (string, error) {
	prompt := BuildPrompt(documentText, history, question)
	full, err := g.generator.Stream(ctx, g.systemPrompt, prompt, onChunk)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrGateway, err)
	}
	full = strings.TrimSpace(full)
	if full == "" {
		return "", fmt.Errorf("%w: empty response", model.ErrGateway)
	}
	return full, nil
}

func (g *Gateway) Close() error {
	return g.generator.Close()
}
