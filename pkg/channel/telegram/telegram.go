package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"botkit/pkg/bot"
	"botkit/pkg/channel"
	"botkit/pkg/config"
	"botkit/pkg/schema"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const messagePreviewLimit = 240
const typingRefreshInterval = 4 * time.Second

// botAPI is the subset of the Telegram Bot API the channel calls.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	DeleteMessage(ctx context.Context, params *telego.DeleteMessageParams) error
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
}

// Channel bridges Telegram updates into bot turns and sends replies through
// the Bot API.
type Channel struct {
	cfg config.TelegramConfig
	log *slog.Logger

	mu   sync.RWMutex
	api  botAPI
	self schema.ChannelAccount
}

var _ channel.Channel = (*Channel)(nil)

// New validates Telegram configuration and constructs a channel instance.
func New(cfg config.TelegramConfig, log *slog.Logger) (*Channel, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Channel{
		cfg: cfg,
		log: log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in activities and logs.
func (c *Channel) Name() string {
	return channelName
}

// Run starts Telegram long polling and hands every usable update to process.
func (c *Channel) Run(ctx context.Context, process channel.Processor) error {
	if process == nil {
		return errors.New("processor is required")
	}

	tg, err := telego.NewBot(strings.TrimSpace(c.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get telegram bot identity: %w", err)
	}
	c.bind(tg, schema.ChannelAccount{ID: strconv.FormatInt(me.ID, 10), Name: me.Username})

	updates, err := tg.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	c.log.Info("Telegram channel started", "bot", me.Username)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			c.handleUpdate(ctx, update, process)
		}
	}
}

func (c *Channel) bind(api botAPI, self schema.ChannelAccount) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.api = api
	c.self = self
}

func (c *Channel) client() (botAPI, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.api == nil {
		return nil, errors.New("telegram channel is not running")
	}

	return c.api, nil
}

func (c *Channel) handleUpdate(ctx context.Context, update telego.Update, process channel.Processor) {
	activity := c.toActivity(update)
	if activity == nil {
		return
	}

	c.log.Info("Received activity",
		"type", activity.Type,
		"chat_id", activity.Conversation.ID,
		"sender_id", activity.From.ID,
		"content", previewText(activity.Text),
	)

	stopTyping := func() {}
	if activity.Type == schema.ActivityMessage {
		if chatID, err := parseChatID(activity.Conversation.ID); err == nil {
			stopTyping = c.startTypingIndicator(ctx, chatID)
		}
	}

	err := process(ctx, activity)
	stopTyping()
	if err == nil || ctx.Err() != nil {
		return
	}

	c.log.Error("Failed to process inbound activity", "chat_id", activity.Conversation.ID, "error", err)

	reply := activity.CreateReply(err.Error())
	if _, sendErr := c.SendActivities(ctx, nil, []*schema.Activity{reply}); sendErr != nil {
		c.log.Error("Failed to send telegram error reply", "error", sendErr)
	}
}

// toActivity maps a Telegram update to an inbound activity. Updates the bot
// does not handle map to nil.
func (c *Channel) toActivity(update telego.Update) *schema.Activity {
	message := update.Message
	activityType := schema.ActivityMessage
	if message == nil && update.EditedMessage != nil {
		message = update.EditedMessage
		activityType = schema.ActivityMessageUpdate
	}
	if message == nil {
		return nil
	}
	if message.From == nil {
		c.log.Debug("Ignoring message without sender")
		return nil
	}

	content := strings.TrimSpace(message.Text)
	if len(message.NewChatMembers) > 0 {
		activityType = schema.ActivityConversationUpdate
	} else if content == "" {
		// Non-text messages are not supported yet.
		return nil
	}

	c.mu.RLock()
	self := c.self
	c.mu.RUnlock()

	return &schema.Activity{
		Type:      activityType,
		ID:        strconv.Itoa(message.MessageID),
		Timestamp: time.Unix(message.Date, 0).UTC(),
		ChannelID: channelName,
		From: schema.ChannelAccount{
			ID:   strconv.FormatInt(message.From.ID, 10),
			Name: displayName(message.From),
		},
		Recipient: self,
		Conversation: schema.ConversationAccount{
			ID:      strconv.FormatInt(message.Chat.ID, 10),
			Name:    message.Chat.Title,
			IsGroup: message.Chat.Type != telego.ChatTypePrivate,
		},
		Text:   content,
		Locale: message.From.LanguageCode,
		ChannelData: map[string]string{
			"update_id": strconv.Itoa(update.UpdateID),
		},
	}
}

// SendActivities delivers message and typing activities to their chat.
func (c *Channel) SendActivities(ctx context.Context, _ *bot.TurnContext, activities []*schema.Activity) ([]schema.ResourceResponse, error) {
	api, err := c.client()
	if err != nil {
		return nil, err
	}

	responses := make([]schema.ResourceResponse, 0, len(activities))
	for _, activity := range activities {
		chatID, err := parseChatID(activity.Conversation.ID)
		if err != nil {
			return nil, err
		}

		switch activity.Type {
		case schema.ActivityTyping:
			if err := api.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil {
				return nil, fmt.Errorf("send telegram chat action: %w", err)
			}
			responses = append(responses, schema.ResourceResponse{})
		case schema.ActivityMessage:
			text := strings.TrimSpace(activity.Text)
			if text == "" {
				return nil, fmt.Errorf("%w: message text is required", bot.ErrInvalidArgument)
			}

			params := tu.Message(tu.ID(chatID), text)
			if replyTo, ok := replyTarget(activity); ok {
				params = params.WithReplyParameters(&telego.ReplyParameters{
					MessageID:                replyTo,
					AllowSendingWithoutReply: true,
				})
			}

			c.log.Info("Sending message", "chat_id", chatID, "content", previewText(text))
			sent, err := api.SendMessage(ctx, params)
			if err != nil {
				return nil, fmt.Errorf("send telegram message: %w", err)
			}
			responses = append(responses, schema.ResourceResponse{ID: strconv.Itoa(sent.MessageID)})
		default:
			return nil, fmt.Errorf("%w: telegram cannot send %q activities", bot.ErrNotImplemented, activity.Type)
		}
	}

	return responses, nil
}

// UpdateActivity edits the text of a sent message.
func (c *Channel) UpdateActivity(ctx context.Context, _ *bot.TurnContext, activity *schema.Activity) (schema.ResourceResponse, error) {
	api, err := c.client()
	if err != nil {
		return schema.ResourceResponse{}, err
	}

	chatID, err := parseChatID(activity.Conversation.ID)
	if err != nil {
		return schema.ResourceResponse{}, err
	}
	messageID, err := parseMessageID(activity.ID)
	if err != nil {
		return schema.ResourceResponse{}, err
	}

	if _, err := api.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
		Text:      activity.Text,
	}); err != nil {
		return schema.ResourceResponse{}, fmt.Errorf("edit telegram message: %w", err)
	}

	return schema.ResourceResponse{ID: activity.ID}, nil
}

// DeleteActivity deletes a sent message.
func (c *Channel) DeleteActivity(ctx context.Context, _ *bot.TurnContext, reference *schema.ConversationReference) error {
	api, err := c.client()
	if err != nil {
		return err
	}

	chatID, err := parseChatID(reference.Conversation.ID)
	if err != nil {
		return err
	}
	messageID, err := parseMessageID(reference.ActivityID)
	if err != nil {
		return err
	}

	if err := api.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	}); err != nil {
		return fmt.Errorf("delete telegram message: %w", err)
	}

	return nil
}

// replyTarget returns the message to quote. Only replies in group chats quote
// the triggering message.
func replyTarget(activity *schema.Activity) (int, bool) {
	if !activity.Conversation.IsGroup || activity.ReplyToID == "" {
		return 0, false
	}

	id, err := strconv.Atoi(activity.ReplyToID)
	if err != nil {
		return 0, false
	}

	return id, true
}

func parseChatID(value string) (int64, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid telegram chat id %q", bot.ErrInvalidArgument, value)
	}

	return chatID, nil
}

func parseMessageID(value string) (int, error) {
	messageID, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid telegram message id %q", bot.ErrInvalidArgument, value)
	}

	return messageID, nil
}

func displayName(user *telego.User) string {
	if user.Username != "" {
		return user.Username
	}

	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}

// startTypingIndicator sends an initial typing action and refreshes it periodically
// until the returned cancel function is called.
func (c *Channel) startTypingIndicator(ctx context.Context, chatID int64) context.CancelFunc {
	api, err := c.client()
	if err != nil {
		return func() {}
	}

	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := api.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			c.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
