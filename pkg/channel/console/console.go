package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"botkit/pkg/bot"
	"botkit/pkg/bus"
	"botkit/pkg/channel"
	"botkit/pkg/config"
	providertypes "botkit/pkg/provider/types"
	"botkit/pkg/schema"

	"github.com/google/uuid"
)

const (
	channelName           = "console"
	defaultConversationID = "console"
	defaultUser           = "local"
)

// Channel is a terminal conversation: lines typed on in become message
// activities and outbound activities are rendered to out.
type Channel struct {
	in    io.Reader
	out   io.Writer
	log   *slog.Logger
	theme theme

	user schema.ChannelAccount
	self schema.ChannelAccount

	mu           sync.Mutex
	conversation schema.ConversationAccount
}

var (
	_ channel.Channel         = (*Channel)(nil)
	_ bot.ConversationCreator = (*Channel)(nil)
)

// New constructs a console channel reading from in and rendering to out.
func New(cfg config.ConsoleConfig, in io.Reader, out io.Writer, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}

	user := strings.TrimSpace(cfg.User)
	if user == "" {
		user = defaultUser
	}

	return &Channel{
		in:           in,
		out:          out,
		log:          log.With("component", "channel.console"),
		theme:        newTheme(out),
		user:         schema.ChannelAccount{ID: user, Name: user},
		self:         schema.ChannelAccount{ID: "bot", Name: "botkit"},
		conversation: schema.ConversationAccount{ID: defaultConversationID},
	}
}

func (c *Channel) Name() string {
	return channelName
}

// Run processes typed lines until an exit command, end of input or ctx
// cancellation. Exit and end of input are delivered as an endOfConversation
// activity before Run returns.
func (c *Channel) Run(ctx context.Context, process channel.Processor) error {
	if process == nil {
		return errors.New("processor is required")
	}

	mb := bus.NewMessageBus()
	defer mb.Close()

	c.render(c.theme.header.Render("botkit console") + " " + c.theme.hint.Render("type /help for commands, exit to quit"))

	c.handle(ctx, process, c.newActivity(schema.ActivityConversationUpdate, ""))

	go c.readInput(ctx, mb)

	for {
		activity, ok := mb.ConsumeInbound(ctx)
		if !ok {
			return nil
		}

		c.handle(ctx, process, activity)
		if activity.Type == schema.ActivityEndOfConversation {
			return nil
		}
	}
}

func (c *Channel) readInput(ctx context.Context, mb *bus.MessageBus) {
	scanner := bufio.NewScanner(c.in)
	c.prompt()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}

		if isExitCommand(line) {
			mb.PublishInbound(ctx, c.newActivity(schema.ActivityEndOfConversation, ""))
			return
		}

		if !mb.PublishInbound(ctx, c.newActivity(schema.ActivityMessage, line)) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		c.log.Error("Console input failed", "error", err)
	}
	mb.PublishInbound(ctx, c.newActivity(schema.ActivityEndOfConversation, ""))
}

func (c *Channel) handle(ctx context.Context, process channel.Processor, activity *schema.Activity) {
	if err := process(ctx, activity); err != nil && ctx.Err() == nil {
		c.log.Debug("Failed to process inbound activity", "error", err)
		c.renderError(err.Error())
	}

	if activity.Type == schema.ActivityMessage {
		c.prompt()
	}
}

func (c *Channel) newActivity(activityType schema.ActivityType, text string) *schema.Activity {
	c.mu.Lock()
	conversation := c.conversation
	c.mu.Unlock()

	return &schema.Activity{
		Type:         activityType,
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		ChannelID:    channelName,
		From:         c.user,
		Recipient:    c.self,
		Conversation: conversation,
		Text:         text,
	}
}

// SendActivities renders message and event activities. Typing activities are
// accepted and not rendered.
func (c *Channel) SendActivities(_ context.Context, _ *bot.TurnContext, activities []*schema.Activity) ([]schema.ResourceResponse, error) {
	responses := make([]schema.ResourceResponse, 0, len(activities))
	for _, activity := range activities {
		id := activity.ID
		if id == "" {
			id = uuid.NewString()
		}

		switch activity.Type {
		case schema.ActivityMessage:
			c.renderMessage(activity.Text)
			if usage := providertypes.UsageFromChannelData(activity.ChannelData); usage != nil {
				c.render(c.theme.hint.Render(fmt.Sprintf("tokens: %d in, %d out", usage.InputTokens, usage.OutputTokens)))
			}
		case schema.ActivityEvent:
			c.render(c.theme.hint.Render("event: " + activity.Text))
		case schema.ActivityTyping:
		default:
			return nil, fmt.Errorf("%w: console cannot send %q activities", bot.ErrNotImplemented, activity.Type)
		}

		responses = append(responses, schema.ResourceResponse{ID: id})
	}

	return responses, nil
}

// UpdateActivity renders the replacement text below the original.
func (c *Channel) UpdateActivity(_ context.Context, _ *bot.TurnContext, activity *schema.Activity) (schema.ResourceResponse, error) {
	c.render(c.theme.hint.Render("edited " + activity.ID))
	c.renderMessage(activity.Text)

	return schema.ResourceResponse{ID: activity.ID}, nil
}

// DeleteActivity notes the deletion. Rendered output cannot be removed.
func (c *Channel) DeleteActivity(_ context.Context, _ *bot.TurnContext, reference *schema.ConversationReference) error {
	c.render(c.theme.hint.Render("deleted " + reference.ActivityID))
	return nil
}

// CreateConversation starts a fresh conversation in the terminal. Later input
// belongs to the new conversation.
func (c *Channel) CreateConversation(ctx context.Context, channelID string, params schema.ConversationParameters) (*schema.ConversationReference, error) {
	if channelID != channelName {
		return nil, fmt.Errorf("%w: channel id %q is not %q", bot.ErrInvalidArgument, channelID, channelName)
	}

	conversation := schema.ConversationAccount{
		ID:      channelName + "-" + uuid.NewString(),
		Name:    params.TopicName,
		IsGroup: params.IsGroup,
	}

	c.mu.Lock()
	c.conversation = conversation
	c.mu.Unlock()

	title := "new conversation"
	if params.TopicName != "" {
		title = params.TopicName
	}
	c.render(c.theme.divider.Render("──── " + title + " ────"))

	reference := &schema.ConversationReference{
		User:         c.user,
		Bot:          c.self,
		Conversation: conversation,
		ChannelID:    channelName,
	}

	if params.Activity != nil {
		responses, err := c.SendActivities(ctx, nil, []*schema.Activity{reference.ApplyTo(params.Activity.Clone())})
		if err != nil {
			return nil, err
		}
		reference.ActivityID = responses[0].ID
	}

	return reference, nil
}

func (c *Channel) renderMessage(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	c.render(c.theme.botTitle.Render(c.self.Name) + "\n" + c.theme.botBox.Render(text))
}

func (c *Channel) renderError(text string) {
	c.render(c.theme.errorTitle.Render("error") + "\n" + c.theme.errorBox.Render(text))
}

func (c *Channel) prompt() {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprint(c.out, c.theme.inputLabel.Render(c.user.Name+" ›")+" ")
}

func (c *Channel) render(block string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out, block)
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q", "/exit", "/quit":
		return true
	default:
		return false
	}
}
