package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"botkit/pkg/agent/profile"
	"botkit/pkg/bot"
	"botkit/pkg/config"
	"botkit/pkg/provider"
	providertypes "botkit/pkg/provider/types"
	"botkit/pkg/schema"
)

const helpText = `Commands:
/help - show this message
/remind <duration> <text> - remind you later, for example /remind 10m stretch
/forget - clear what I remember about this conversation`

// Instance is the bot's turn logic. It keeps one session per conversation;
// turns of the same conversation run one at a time.
type Instance struct {
	responder provider.Responder
	cfg       config.BotConfig
	reminders *Reminders
	log       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu     sync.Mutex
	memory *Memory
}

// New builds the bot. reminders may be nil, which disables /remind.
func New(responder provider.Responder, cfg config.BotConfig, reminders *Reminders, log *slog.Logger) *Instance {
	if log == nil {
		log = slog.Default()
	}

	return &Instance{
		responder: responder,
		cfg:       cfg,
		reminders: reminders,
		log:       log.With("component", "agent"),
		sessions:  make(map[string]*session),
	}
}

// OnTurn is the bot.Handler for every channel.
func (i *Instance) OnTurn(ctx context.Context, turn *bot.TurnContext) error {
	activity := turn.Activity()
	if activity == nil {
		return nil
	}

	key := schema.ReferenceKey(activity.ChannelID, activity.Conversation.ID)

	switch activity.Type {
	case schema.ActivityConversationUpdate:
		return i.greet(ctx, turn)
	case schema.ActivityEndOfConversation:
		i.dropSession(key)
		return nil
	case schema.ActivityMessage:
	default:
		return nil
	}

	text := strings.TrimSpace(activity.Text)
	if text == "" {
		return nil
	}

	s := i.session(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.HasPrefix(text, "/") {
		return i.command(ctx, turn, s, text)
	}

	return i.respond(ctx, turn, s, text)
}

func (i *Instance) greet(ctx context.Context, turn *bot.TurnContext) error {
	greeting := strings.TrimSpace(i.cfg.Greeting)
	if greeting == "" {
		return nil
	}

	_, err := turn.SendText(ctx, greeting)
	return err
}

func (i *Instance) command(ctx context.Context, turn *bot.TurnContext, s *session, text string) error {
	name, args, _ := strings.Cut(text, " ")
	// Telegram appends the bot username in groups: /help@botkit_bot.
	name, _, _ = strings.Cut(strings.ToLower(name), "@")

	var reply string
	switch name {
	case "/start":
		reply = strings.TrimSpace(i.cfg.Greeting)
		if reply == "" {
			reply = helpText
		}
	case "/help":
		reply = helpText
	case "/forget":
		s.memory.Clear()
		reply = "Okay, I forgot this conversation."
	case "/remind":
		reply = i.remind(ctx, turn, args)
	default:
		reply = fmt.Sprintf("Unknown command %s. Try /help.", name)
	}

	_, err := turn.SendText(ctx, reply)
	return err
}

func (i *Instance) remind(ctx context.Context, turn *bot.TurnContext, args string) string {
	if i.reminders == nil {
		return "Reminders are not enabled."
	}

	rawDelay, text, _ := strings.Cut(strings.TrimSpace(args), " ")
	delay, err := time.ParseDuration(rawDelay)
	if err != nil || delay <= 0 || strings.TrimSpace(text) == "" {
		return "Usage: /remind <duration> <text>, for example /remind 10m stretch"
	}

	reminder, err := i.reminders.Add(turn.Reference(), text, delay)
	if err != nil {
		return err.Error()
	}

	i.log.InfoContext(ctx, "Reminder scheduled",
		"reminder_id", reminder.ID,
		"due", reminder.Due.UTC().Format(time.RFC3339),
	)
	return fmt.Sprintf("Okay, I'll remind you in %s.", delay)
}

func (i *Instance) respond(ctx context.Context, turn *bot.TurnContext, s *session, prompt string) error {
	if i.responder == nil {
		return errors.New("responder is not configured")
	}

	instructions, err := profile.ResolveSystemProfile(profile.Values{
		Name:  i.cfg.Name,
		Group: turn.Activity().Conversation.IsGroup,
	})
	if err != nil {
		return err
	}

	reply, err := i.responder.Respond(ctx, providertypes.Request{
		Conversation: turn.Reference().Key(),
		Instructions: instructions,
		History:      s.memory.History(),
		Prompt:       prompt,
	})
	if err != nil {
		return err
	}

	s.memory.Append(providertypes.RoleUser, prompt)
	s.memory.Append(providertypes.RoleAssistant, reply.Text)

	outbound := turn.Activity().CreateReply(reply.Text)
	outbound.ChannelData = providertypes.ReplyChannelData(reply)
	_, err = turn.SendActivities(ctx, outbound)
	return err
}

func (i *Instance) session(key string) *session {
	i.mu.Lock()
	defer i.mu.Unlock()

	s, ok := i.sessions[key]
	if !ok {
		s = &session{memory: NewMemory(i.cfg.MemoryLimit)}
		i.sessions[key] = s
	}
	return s
}

func (i *Instance) dropSession(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.sessions, key)
}

// MemorySnapshot returns the remembered entries of the conversation key.
func (i *Instance) MemorySnapshot(key string) []MemoryEntry {
	i.mu.Lock()
	s, ok := i.sessions[key]
	i.mu.Unlock()

	if !ok {
		return nil
	}
	return s.memory.List()
}
