package freeroam

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ ReplyGenerator = (*OpenAIClient)(nil)

// OpenAIClient generates in-character replies through an OpenAI-compatible
// chat completion API (OpenAI itself or an OpenRouter-style proxy).
type OpenAIClient struct {
	client     *openai.Client
	modelName  string
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger
}

// OpenAIConfig configures the reply generator.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ModelName  string
	Timeout    time.Duration
	MaxRetries int
}

// NewOpenAIClient creates the chat completion backed generator.
func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("reply generator: API key is required")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(clientConfig),
		modelName:  cfg.ModelName,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		logger:     logger.Named("OpenAIReplyGenerator"),
	}, nil
}

// GenerateReply sends the persona context plus the history window and returns
// the character's reply text. Transient failures retry with linear backoff.
func (c *OpenAIClient) GenerateReply(ctx context.Context, personaContext string, history []Message, userText string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if personaContext != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: personaContext,
		})
	}
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == "character" || msg.Role == openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	})

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
			Model:    c.modelName,
			Messages: messages,
		})
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("reply generator returned no choices")
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		c.logger.Warn("chat completion attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("maxRetries", c.maxRetries),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return "", fmt.Errorf("chat completion failed after %d attempts: %w", c.maxRetries, lastErr)
}
