package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"botkit/pkg/config"
	providerfantasy "botkit/pkg/provider/fantasy"
	provideropenai "botkit/pkg/provider/openai"
	provideropencode "botkit/pkg/provider/opencode"
	providertypes "botkit/pkg/provider/types"
)

// Responder produces the bot's reply to a prompt given the conversation
// history that preceded it.
type Responder interface {
	Health(ctx context.Context) error
	Respond(ctx context.Context, request providertypes.Request) (providertypes.Reply, error)
}

// New builds the responder named by bot.responder. Echo is the default.
func New(cfg *config.Config) (Responder, error) {
	responderID := strings.TrimSpace(cfg.Bot.Responder)
	if responderID == "" {
		responderID = "echo"
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving responder", "responder", responderID)

	switch responderID {
	case "echo":
		return Echo{}, nil
	case "openai":
		return provideropenai.New(cfg)
	case "fantasy":
		return providerfantasy.New(cfg)
	case "opencode":
		return provideropencode.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported responder: %s", responderID)
	}
}

// Echo replies with the prompt. It needs no credentials.
type Echo struct{}

func (Echo) Health(context.Context) error {
	return nil
}

func (Echo) Respond(_ context.Context, request providertypes.Request) (providertypes.Reply, error) {
	return providertypes.Reply{
		Text:     strings.TrimSpace(request.Prompt),
		Metadata: providertypes.ReplyMetadata{Provider: "echo"},
	}, nil
}
