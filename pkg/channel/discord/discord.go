package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"botkit/pkg/bot"
	"botkit/pkg/channel"
	"botkit/pkg/config"
	"botkit/pkg/schema"

	"github.com/bwmarrin/discordgo"
)

const channelName = "discord"

// sessionAPI is the subset of the Discord REST API the channel calls.
type sessionAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID string, messageID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID string, messageID string, options ...discordgo.RequestOption) error
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Channel bridges Discord gateway messages into bot turns. It can open direct
// message conversations, so it is a bot.ConversationCreator.
type Channel struct {
	cfg config.DiscordConfig
	log *slog.Logger

	mu   sync.RWMutex
	api  sessionAPI
	self schema.ChannelAccount
}

var (
	_ channel.Channel         = (*Channel)(nil)
	_ bot.ConversationCreator = (*Channel)(nil)
)

// New validates Discord configuration and constructs a channel instance.
func New(cfg config.DiscordConfig, log *slog.Logger) (*Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("channels.discord.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Channel{
		cfg: cfg,
		log: log.With("component", "channel.discord"),
	}, nil
}

func (c *Channel) Name() string {
	return channelName
}

// Run opens the Discord gateway connection and processes messages until ctx
// ends.
func (c *Channel) Run(ctx context.Context, process channel.Processor) error {
	if process == nil {
		return errors.New("processor is required")
	}

	session, err := discordgo.New("Bot " + strings.TrimSpace(c.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	removeHandler := session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleMessage(ctx, m, process)
	})
	defer removeHandler()

	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer session.Close()

	self := schema.ChannelAccount{}
	if session.State != nil && session.State.User != nil {
		self = schema.ChannelAccount{ID: session.State.User.ID, Name: session.State.User.Username}
	}
	c.bind(session, self)

	c.log.Info("Discord channel started", "bot", self.Name)

	<-ctx.Done()
	return nil
}

func (c *Channel) bind(api sessionAPI, self schema.ChannelAccount) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.api = api
	c.self = self
}

func (c *Channel) client() (sessionAPI, schema.ChannelAccount, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.api == nil {
		return nil, schema.ChannelAccount{}, errors.New("discord channel is not running")
	}

	return c.api, c.self, nil
}

func (c *Channel) handleMessage(ctx context.Context, m *discordgo.MessageCreate, process channel.Processor) {
	activity := c.toActivity(m)
	if activity == nil {
		return
	}

	c.log.Info("Received activity", "channel_id", activity.Conversation.ID, "sender_id", activity.From.ID)

	if api, _, err := c.client(); err == nil {
		if err := api.ChannelTyping(activity.Conversation.ID, discordgo.WithContext(ctx)); err != nil {
			c.log.Debug("Failed to send typing indicator", "channel_id", activity.Conversation.ID, "error", err)
		}
	}

	if err := process(ctx, activity); err != nil && ctx.Err() == nil {
		c.log.Error("Failed to process inbound activity", "channel_id", activity.Conversation.ID, "error", err)

		reply := activity.CreateReply(err.Error())
		if _, sendErr := c.SendActivities(ctx, nil, []*schema.Activity{reply}); sendErr != nil {
			c.log.Error("Failed to send discord error reply", "error", sendErr)
		}
	}
}

// toActivity maps a Discord message to an inbound activity. Messages from
// bots, including this one, map to nil.
func (c *Channel) toActivity(m *discordgo.MessageCreate) *schema.Activity {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return nil
	}

	c.mu.RLock()
	self := c.self
	c.mu.RUnlock()

	if self.ID != "" && m.Author.ID == self.ID {
		return nil
	}

	content := strings.TrimSpace(m.Content)
	if content == "" {
		return nil
	}

	timestamp := m.Timestamp.UTC()
	if m.Timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	return &schema.Activity{
		Type:      schema.ActivityMessage,
		ID:        m.ID,
		Timestamp: timestamp,
		ChannelID: channelName,
		From:      schema.ChannelAccount{ID: m.Author.ID, Name: m.Author.Username},
		Recipient: self,
		Conversation: schema.ConversationAccount{
			ID:      m.ChannelID,
			IsGroup: m.GuildID != "",
		},
		Text: content,
		ChannelData: map[string]string{
			"guild_id": m.GuildID,
		},
	}
}

// SendActivities delivers message and typing activities to their channel.
func (c *Channel) SendActivities(ctx context.Context, _ *bot.TurnContext, activities []*schema.Activity) ([]schema.ResourceResponse, error) {
	api, _, err := c.client()
	if err != nil {
		return nil, err
	}

	responses := make([]schema.ResourceResponse, 0, len(activities))
	for _, activity := range activities {
		channelID := strings.TrimSpace(activity.Conversation.ID)
		if channelID == "" {
			return nil, fmt.Errorf("%w: discord channel id is required", bot.ErrInvalidArgument)
		}

		switch activity.Type {
		case schema.ActivityTyping:
			if err := api.ChannelTyping(channelID, discordgo.WithContext(ctx)); err != nil {
				return nil, fmt.Errorf("send discord typing: %w", err)
			}
			responses = append(responses, schema.ResourceResponse{})
		case schema.ActivityMessage:
			text := strings.TrimSpace(activity.Text)
			if text == "" {
				return nil, fmt.Errorf("%w: message text is required", bot.ErrInvalidArgument)
			}

			data := &discordgo.MessageSend{Content: text}
			if activity.Conversation.IsGroup && activity.ReplyToID != "" {
				data.Reference = &discordgo.MessageReference{
					MessageID: activity.ReplyToID,
					ChannelID: channelID,
				}
			}

			sent, err := api.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
			if err != nil {
				return nil, fmt.Errorf("send discord message: %w", err)
			}
			responses = append(responses, schema.ResourceResponse{ID: sent.ID})
		default:
			return nil, fmt.Errorf("%w: discord cannot send %q activities", bot.ErrNotImplemented, activity.Type)
		}
	}

	return responses, nil
}

// UpdateActivity edits the content of a sent message.
func (c *Channel) UpdateActivity(ctx context.Context, _ *bot.TurnContext, activity *schema.Activity) (schema.ResourceResponse, error) {
	api, _, err := c.client()
	if err != nil {
		return schema.ResourceResponse{}, err
	}

	edited, err := api.ChannelMessageEdit(activity.Conversation.ID, activity.ID, activity.Text, discordgo.WithContext(ctx))
	if err != nil {
		return schema.ResourceResponse{}, fmt.Errorf("edit discord message: %w", err)
	}

	return schema.ResourceResponse{ID: edited.ID}, nil
}

// DeleteActivity deletes a sent message.
func (c *Channel) DeleteActivity(ctx context.Context, _ *bot.TurnContext, reference *schema.ConversationReference) error {
	api, _, err := c.client()
	if err != nil {
		return err
	}

	if err := api.ChannelMessageDelete(reference.Conversation.ID, reference.ActivityID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete discord message: %w", err)
	}

	return nil
}

// CreateConversation opens a direct message channel with the single member of
// params and posts params.Activity into it when set.
func (c *Channel) CreateConversation(ctx context.Context, channelID string, params schema.ConversationParameters) (*schema.ConversationReference, error) {
	if channelID != channelName {
		return nil, fmt.Errorf("%w: channel id %q is not %q", bot.ErrInvalidArgument, channelID, channelName)
	}
	if len(params.Members) != 1 || strings.TrimSpace(params.Members[0].ID) == "" {
		return nil, fmt.Errorf("%w: discord conversations need exactly one member", bot.ErrInvalidArgument)
	}
	if params.IsGroup {
		return nil, fmt.Errorf("%w: discord group conversations", bot.ErrNotImplemented)
	}

	api, self, err := c.client()
	if err != nil {
		return nil, err
	}

	member := params.Members[0]
	dm, err := api.UserChannelCreate(member.ID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create discord direct message: %w", err)
	}

	reference := &schema.ConversationReference{
		User:         member,
		Bot:          self,
		Conversation: schema.ConversationAccount{ID: dm.ID, Name: params.TopicName},
		ChannelID:    channelName,
	}

	if params.Activity != nil {
		initial := reference.ApplyTo(params.Activity.Clone())
		responses, err := c.SendActivities(ctx, nil, []*schema.Activity{initial})
		if err != nil {
			return nil, err
		}
		reference.ActivityID = responses[0].ID
	}

	return reference, nil
}
