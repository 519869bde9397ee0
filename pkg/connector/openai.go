package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/openai/openai-go"
)

// OpenAIProvider answers call_ai effects through the OpenAI Chat
// Completions API.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

func NewOpenAIProvider(defaultModel string) *OpenAIProvider {
	client := openai.NewClient()

	return NewOpenAIProviderFromClient(&client, defaultModel)
}

func NewOpenAIProviderFromClient(client *openai.Client, defaultModel string) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = openai.ChatModelGPT4oMini
	}

	return &OpenAIProvider{client: client, defaultModel: defaultModel}
}

// Complete runs one non-streaming completion and returns the reply text.
// Rate limits and server errors surface as transient so the dispatcher's
// backoff applies.
func (p *OpenAIProvider) Complete(ctx context.Context, call *models.AICallPayload) (string, error) {
	model := call.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if call.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(call.SystemPrompt))
	}

	messages = append(messages, openai.UserMessage(call.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}

	if call.Temperature > 0 {
		params.Temperature = openai.Float(call.Temperature)
	}

	if call.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(call.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests {
				return "", &models.TransientProviderError{StatusCode: apiErr.StatusCode, Err: err}
			}

			return "", fmt.Errorf("ai provider rejected request: %w", err)
		}

		return "", &models.TransientProviderError{Err: err}
	}

	if len(completion.Choices) == 0 {
		return "", errors.New("ai provider returned no choices")
	}

	return completion.Choices[0].Message.Content, nil
}

var _ AIProvider = (*OpenAIProvider)(nil)
