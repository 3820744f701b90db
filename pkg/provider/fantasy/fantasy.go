package fantasy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	core "charm.land/fantasy"
	fantasyopenai "charm.land/fantasy/providers/openai"

	"botkit/pkg/config"
	providertypes "botkit/pkg/provider/types"
)

const providerID = "fantasy"

type languageModelProvider interface {
	LanguageModel(ctx context.Context, modelID string) (core.LanguageModel, error)
}

type generateFunc func(context.Context, core.LanguageModel, core.AgentCall) (*core.AgentResult, error)

// Client answers through a fantasy agent backed by the OpenAI provider. It
// keeps no state between calls; the history of each request is replayed.
type Client struct {
	provider        languageModelProvider
	modelID         string
	requestTimeout  time.Duration
	maxOutputTokens *int64
	temperature     *float64
	generate        generateFunc
}

func New(cfg *config.Config) (*Client, error) {
	openaiCfg := cfg.Providers.OpenAI
	apiKey := resolveAPIKey(openaiCfg)
	if apiKey == "" {
		return nil, errors.New("providers.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	modelID, err := normalizeModel(cfg.Bot.Model)
	if err != nil {
		return nil, err
	}

	opts := []fantasyopenai.Option{fantasyopenai.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(openaiCfg.BaseURL); baseURL != "" {
		opts = append(opts, fantasyopenai.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(openaiCfg.Organization); organization != "" {
		opts = append(opts, fantasyopenai.WithOrganization(organization))
	}
	if project := strings.TrimSpace(openaiCfg.Project); project != "" {
		opts = append(opts, fantasyopenai.WithProject(project))
	}

	modelProvider, err := fantasyopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize fantasy openai provider: %w", err)
	}

	client := &Client{
		provider:       modelProvider,
		modelID:        modelID,
		requestTimeout: time.Duration(openaiCfg.RequestTimeoutSeconds) * time.Second,
		generate:       generateWithAgent,
	}

	tuning := cfg.Providers.Fantasy
	if tuning.MaxOutputTokens > 0 {
		maxTokens := int64(tuning.MaxOutputTokens)
		client.maxOutputTokens = &maxTokens
	}
	if tuning.Temperature > 0 {
		temperature := tuning.Temperature
		client.temperature = &temperature
	}

	return client, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.provider.LanguageModel(ctx, c.modelID); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}

// Respond replays the instructions and history as messages and sends the
// prompt as the agent call.
func (c *Client) Respond(ctx context.Context, request providertypes.Request) (providertypes.Reply, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "respond")
	startedAt := time.Now()

	prompt := strings.TrimSpace(request.Prompt)
	if prompt == "" {
		return providertypes.Reply{}, errors.New("prompt is required")
	}

	languageModel, err := c.provider.LanguageModel(ctx, c.modelID)
	if err != nil {
		return providertypes.Reply{}, fmt.Errorf("resolve language model: %w", err)
	}

	call := core.AgentCall{
		Prompt:          prompt,
		Messages:        messages(request.Instructions, request.History),
		MaxOutputTokens: c.maxOutputTokens,
		Temperature:     c.temperature,
	}
	log.Debug("provider request started", "model", c.modelID, "messages", len(call.Messages))

	generate := c.generate
	if generate == nil {
		generate = generateWithAgent
	}

	result, err := generate(ctx, languageModel, call)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Reply{}, fmt.Errorf("respond failed: %w", err)
	}

	text := extractText(result.Response.Content)
	if text == "" {
		return providertypes.Reply{}, errors.New("respond succeeded but returned no text")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	reply := providertypes.Reply{
		Text:     text,
		Metadata: providertypes.ReplyMetadata{Provider: providerID, Model: c.modelID},
	}
	usage := providertypes.TokenUsage{
		InputTokens:  result.TotalUsage.InputTokens,
		OutputTokens: result.TotalUsage.OutputTokens,
		TotalTokens:  result.TotalUsage.TotalTokens,
	}
	if !usage.IsZero() {
		reply.Metadata.Usage = &usage
	}

	return reply, nil
}

func messages(instructions string, history []providertypes.Message) []core.Message {
	result := make([]core.Message, 0, len(history)+1)
	if instructions = strings.TrimSpace(instructions); instructions != "" {
		system := textMessage(instructions)
		system.Role = core.MessageRoleSystem
		result = append(result, system)
	}

	for _, entry := range history {
		message := textMessage(entry.Text)
		message.Role = core.MessageRoleUser
		if entry.Role == providertypes.RoleAssistant {
			message.Role = core.MessageRoleAssistant
		}
		result = append(result, message)
	}

	return result
}

func textMessage(text string) core.Message {
	return core.Message{Content: []core.MessagePart{core.TextPart{Text: text}}}
}

func extractText(content core.ResponseContent) string {
	lines := make([]string, 0, len(content))
	for _, part := range content {
		if part.GetType() != core.ContentTypeText {
			continue
		}

		textPart, ok := core.AsContentType[core.TextContent](part)
		if !ok {
			continue
		}
		if line := strings.TrimSpace(textPart.Text); line != "" {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n")
}

func generateWithAgent(ctx context.Context, model core.LanguageModel, call core.AgentCall) (*core.AgentResult, error) {
	return core.NewAgent(model).Generate(ctx, call)
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.fantasy")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIProviderConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}

// normalizeModel accepts a bare model id or one prefixed with "openai/".
func normalizeModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("bot.model is required")
	}

	prefix, modelID, ok := strings.Cut(model, "/")
	if !ok {
		return model, nil
	}

	prefix = strings.TrimSpace(prefix)
	modelID = strings.TrimSpace(modelID)
	if prefix == "" || modelID == "" {
		return "", errors.New("model is invalid")
	}
	if prefix != "openai" {
		return "", fmt.Errorf("model provider %q is not supported by fantasy responder", prefix)
	}

	return modelID, nil
}
