package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"botkit/pkg/config"
	providertypes "botkit/pkg/provider/types"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const providerID = "openai"

type Client struct {
	client         osdk.Client
	model          string
	requestTimeout time.Duration
}

func New(cfg *config.Config) (*Client, error) {
	providerCfg := cfg.Providers.OpenAI
	apiKey := resolveAPIKey(providerCfg)
	if apiKey == "" {
		return nil, errors.New("providers.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	model, err := normalizeModel(cfg.Bot.Model)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(providerCfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(providerCfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(providerCfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(providerCfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Client{
		client:         osdk.NewClient(opts...),
		model:          model,
		requestTimeout: requestTimeout,
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("provider request started")

	if _, err := c.client.Models.List(ctx); err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return nil
}

// Respond sends the remembered history followed by the prompt as one input
// list.
func (c *Client) Respond(ctx context.Context, request providertypes.Request) (providertypes.Reply, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "respond")
	startedAt := time.Now()

	prompt := strings.TrimSpace(request.Prompt)
	if prompt == "" {
		return providertypes.Reply{}, errors.New("prompt is required")
	}

	log.Debug("provider request started",
		"model", c.model,
		"history_length", len(request.History),
		"prompt_length", len(prompt),
	)

	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: inputItems(request.History, prompt)},
	}
	if instructions := strings.TrimSpace(request.Instructions); instructions != "" {
		params.Instructions = osdk.String(instructions)
	}

	response, err := c.client.Responses.New(ctx, params)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Reply{}, fmt.Errorf("respond failed: %w", err)
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no output text")
		return providertypes.Reply{}, errors.New("respond succeeded but returned no text")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	reply := providertypes.Reply{
		Text:     text,
		Metadata: providertypes.ReplyMetadata{Provider: providerID, Model: c.model},
	}
	usage := providertypes.TokenUsage{
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
		TotalTokens:  response.Usage.TotalTokens,
	}
	if !usage.IsZero() {
		reply.Metadata.Usage = &usage
	}

	return reply, nil
}

func inputItems(history []providertypes.Message, prompt string) responses.ResponseInputParam {
	items := make(responses.ResponseInputParam, 0, len(history)+1)
	for _, message := range history {
		role := responses.EasyInputMessageRoleUser
		if message.Role == providertypes.RoleAssistant {
			role = responses.EasyInputMessageRoleAssistant
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(message.Text, role))
	}

	return append(items, responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser))
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.openai")
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

func normalizeModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("bot.model is required")
	}

	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 {
		return model, nil
	}

	prefix := strings.TrimSpace(parts[0])
	modelID := strings.TrimSpace(parts[1])
	if prefix == "" || modelID == "" {
		return "", errors.New("model is invalid")
	}
	if prefix != providerID {
		return "", fmt.Errorf("model provider %q is not supported by openai responder", prefix)
	}

	return modelID, nil
}
