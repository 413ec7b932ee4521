package processors

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI 兼容接口，只支持文本与图像理解
type OpenAIClient struct {
	cli *openai.Client
}

// NewOpenAIClient 创建OpenAI客户端
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAIClient{cli: openai.NewClientWithConfig(clientConfig)}
}

func (c *OpenAIClient) Invoke(ctx context.Context, model string, input Input) (Output, error) {
	if input.Task() == taskImageToImage {
		return Output{}, fmt.Errorf("%w: %s is an image-to-image model", ErrUnsupportedModel, model)
	}

	req := buildChatRequest(model, input)
	resp, err := c.cli.CreateChatCompletion(ctx, req)
	if err != nil {
		return Output{}, fmt.Errorf("chat completion %s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return Output{}, ErrEmptyOutput
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return Output{}, ErrEmptyOutput
	}
	return DecodeOutput(content)
}

func buildChatRequest(model string, input Input) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if sys := input.str(FieldSystemPrompt); sys != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: sys,
		})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if img := input.str(FieldImage); img != "" {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: input.str(FieldPrompt)},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    img,
					Detail: openai.ImageURLDetailLow,
				},
			},
		}
	} else {
		user.Content = input.str(FieldPrompt)
	}
	messages = append(messages, user)

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   input.intField(FieldMaxTokens),
		Temperature: float32(input.floatField(FieldTemperature)),
	}
}
