package channel

import (
	"context"
	"net/http"

	"botkit/pkg/bot"
	"botkit/pkg/schema"
)

// Processor runs one inbound activity through the channel's bot adapter.
type Processor func(ctx context.Context, activity *schema.Activity) error

// Channel bridges one external transport (for example Telegram) into botkit.
// It receives activities in Run and delivers outbound ones as a bot.Transport.
type Channel interface {
	bot.Transport
	Name() string
	Run(ctx context.Context, process Processor) error
}

// Mountable is implemented by channels served from the gateway HTTP router.
type Mountable interface {
	http.Handler
	Path() string
}
