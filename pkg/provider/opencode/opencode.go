package opencode

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"botkit/pkg/config"
	providertypes "botkit/pkg/provider/types"

	sdk "github.com/sst/opencode-sdk-go"
	"github.com/sst/opencode-sdk-go/option"
)

// Client answers through an opencode server. The server keeps the history,
// so each conversation maps to one opencode session. A request with no
// history starts a fresh session for its conversation.
type Client struct {
	client         *sdk.Client
	model          string
	agent          string
	requestTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]string
}

type healthResponse struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version"`
}

func New(cfg *config.Config) (*Client, error) {
	providerCfg := cfg.Providers.OpenCode
	baseURL := strings.TrimSpace(providerCfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("providers.opencode.base_url is required")
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if authHeader, ok := buildBasicAuthHeader(providerCfg); ok {
		opts = append(opts, option.WithHeader("Authorization", authHeader))
	}

	return &Client{
		client:         sdk.NewClient(opts...),
		model:          strings.TrimSpace(cfg.Bot.Model),
		agent:          strings.TrimSpace(providerCfg.Agent),
		requestTimeout: time.Duration(providerCfg.RequestTimeoutSeconds) * time.Second,
		sessions:       make(map[string]string),
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("provider request started")

	var response healthResponse
	if err := c.client.Get(ctx, "/global/health", nil, &response); err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	if !response.Healthy {
		return errors.New("opencode server reported unhealthy status")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "version", response.Version)

	return nil
}

func (c *Client) Respond(ctx context.Context, request providertypes.Request) (providertypes.Reply, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "respond")
	startedAt := time.Now()

	prompt := strings.TrimSpace(request.Prompt)
	if prompt == "" {
		return providertypes.Reply{}, errors.New("prompt is required")
	}

	sessionID, fresh, err := c.session(ctx, request)
	if err != nil {
		return providertypes.Reply{}, err
	}
	log.Debug("provider request started", "session_id", sessionID, "fresh_session", fresh, "prompt_length", len(prompt))

	parts := make([]sdk.SessionPromptParamsPartUnion, 0, 2)
	if instructions := strings.TrimSpace(request.Instructions); fresh && instructions != "" {
		parts = append(parts, textPart(instructions))
	}
	parts = append(parts, textPart(prompt))

	params := sdk.SessionPromptParams{Parts: sdk.F(parts)}
	if c.agent != "" {
		params.Agent = sdk.F(c.agent)
	}
	if providerID, modelID, ok := parseModelRef(c.model); ok {
		params.Model = sdk.F(sdk.SessionPromptParamsModel{
			ProviderID: sdk.F(providerID),
			ModelID:    sdk.F(modelID),
		})
	}

	response, err := c.client.Session.Prompt(ctx, sessionID, params)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Reply{}, fmt.Errorf("respond failed: %w", err)
	}

	text := extractText(response.Parts)
	if text == "" {
		return providertypes.Reply{}, errors.New("respond succeeded but returned no text parts")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	reply := providertypes.Reply{
		Text: text,
		Metadata: providertypes.ReplyMetadata{
			Provider: strings.TrimSpace(response.Info.ProviderID),
			Model:    strings.TrimSpace(response.Info.ModelID),
		},
	}
	usage := providertypes.TokenUsage{
		InputTokens:  tokenCount(response.Info.Tokens.Input),
		OutputTokens: tokenCount(response.Info.Tokens.Output),
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	if !usage.IsZero() {
		reply.Metadata.Usage = &usage
	}

	return reply, nil
}

// session returns the opencode session of the request's conversation and
// whether it was just created.
func (c *Client) session(ctx context.Context, request providertypes.Request) (string, bool, error) {
	key := strings.TrimSpace(request.Conversation)

	c.mu.Lock()
	sessionID, ok := c.sessions[key]
	c.mu.Unlock()
	if ok && key != "" && len(request.History) > 0 {
		return sessionID, false, nil
	}

	params := sdk.SessionNewParams{}
	if key != "" {
		params.Title = sdk.F(key)
	}
	session, err := c.client.Session.New(ctx, params)
	if err != nil {
		return "", false, fmt.Errorf("create session failed: %w", err)
	}
	if session.ID == "" {
		return "", false, errors.New("create session returned empty session id")
	}

	if key != "" {
		c.mu.Lock()
		c.sessions[key] = session.ID
		c.mu.Unlock()
	}

	return session.ID, true, nil
}

func textPart(text string) sdk.TextPartInputParam {
	return sdk.TextPartInputParam{
		Type: sdk.F(sdk.TextPartInputTypeText),
		Text: sdk.F(text),
	}
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.opencode")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func buildBasicAuthHeader(cfg config.OpenCodeProviderConfig) (string, bool) {
	passwordEnv := strings.TrimSpace(cfg.PasswordEnv)
	if passwordEnv == "" {
		return "", false
	}

	password := strings.TrimSpace(os.Getenv(passwordEnv))
	if password == "" {
		return "", false
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "opencode"
	}

	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + token, true
}

// parseModelRef splits "provider/model". A bare model leaves the server
// default in place.
func parseModelRef(input string) (providerID string, modelID string, ok bool) {
	providerID, modelID, ok = strings.Cut(strings.TrimSpace(input), "/")
	providerID = strings.TrimSpace(providerID)
	modelID = strings.TrimSpace(modelID)
	if !ok || providerID == "" || modelID == "" {
		return "", "", false
	}

	return providerID, modelID, true
}

func extractText(parts []sdk.Part) string {
	var lines []string
	for _, part := range parts {
		if part.Type != sdk.PartTypeText {
			continue
		}
		if text := strings.TrimSpace(part.Text); text != "" {
			lines = append(lines, text)
		}
	}

	return strings.Join(lines, "\n")
}

func tokenCount(value float64) int64 {
	if value <= 0 {
		return 0
	}

	return int64(math.Round(value))
}
