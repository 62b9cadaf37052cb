package ai

import (
	"Go2NetGuard/internal/config"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

const digestPrompt = "You are a senior network security analyst. " +
	"Please analyze the following intrusion detection alert summary from the Go2NetGuard engine. " +
	"For each attack pattern, explain the likely threat, its MITRE ATT&CK context, and recommended next steps for investigation. " +
	"The output should be clear and actionable.\n\n" +
	"--- Alert Data ---\n%s\n--- End of Alert Data ---"

// Analyzer asks an OpenAI-compatible model about alert summaries.
type Analyzer struct {
	model  string
	client *openai.Client
}

// NewAnalyzer creates an analyzer for cfg.
func NewAnalyzer(cfg config.AIConfig) (*Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is not configured")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Analyzer{model: model, client: openai.NewClientWithConfig(clientConfig)}, nil
}

// Prompt wraps an alert summary in the analyst instructions.
func Prompt(summary string) string {
	return fmt.Sprintf(digestPrompt, summary)
}

// AnalyzeTraffic returns the model's analysis of an alert summary.
func (a *Analyzer) AnalyzeTraffic(ctx context.Context, input string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, a.request(input, false))
	if err != nil {
		return "", wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI API returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// AnalyzeStream streams the analysis of an alert summary chunk by chunk.
func (a *Analyzer) AnalyzeStream(ctx context.Context, input string, sendChunk func(string) error) error {
	stream, err := a.client.CreateChatCompletionStream(ctx, a.request(input, true))
	if err != nil {
		return fmt.Errorf("failed to create chat completion stream: %w", wrapError(err))
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream error: %w", err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		if err := sendChunk(response.Choices[0].Delta.Content); err != nil {
			return fmt.Errorf("failed to send chunk to client: %w", err)
		}
	}
}

func (a *Analyzer) request(input string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:     a.model,
		MaxTokens: 2048,
		Stream:    stream,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: Prompt(input)},
		},
	}
}

func wrapError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("AI request timeout: %w", err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("AI request canceled by client: %w", err)
	}
	return fmt.Errorf("OpenAI API error: %w", err)
}
