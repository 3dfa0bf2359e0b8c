package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	embedTimeout = 30 * time.Second
	chatTimeout  = 60 * time.Second
)

// OpenAIEmbedder implements interfaces.Embedder on top of an OpenAI-compatible
// embeddings endpoint (Azure OpenAI deployments included via BaseURL).
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no response from embeddings API")
	}

	return resp.Data[0].Embedding, nil
}

// OpenAIChat implements interfaces.Completer.
type OpenAIChat struct {
	client *openai.Client
	model  string
}

func NewOpenAIChat(client *openai.Client, model string) *OpenAIChat {
	return &OpenAIChat{client: client, model: model}
}

func (c *OpenAIChat) Model() string {
	return c.model
}

func (c *OpenAIChat) Complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("error creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from chat API")
	}

	return resp.Choices[0].Message.Content, nil
}
