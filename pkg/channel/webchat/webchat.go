package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"botkit/pkg/bot"
	"botkit/pkg/channel"
	"botkit/pkg/config"
	"botkit/pkg/schema"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	channelName = "webchat"
	defaultPath = "/webchat"
	writeWait   = 10 * time.Second
)

// Channel serves browser conversations over websockets. Each connection is
// one conversation; activities travel as JSON in both directions.
type Channel struct {
	cfg      config.WebchatConfig
	log      *slog.Logger
	upgrader websocket.Upgrader
	self     schema.ChannelAccount

	mu      sync.RWMutex
	ctx     context.Context
	process channel.Processor
	conns   map[string]*connection
}

type connection struct {
	mu   sync.Mutex
	ws   *websocket.Conn
	user schema.ChannelAccount
}

func (c *connection) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

var (
	_ channel.Channel   = (*Channel)(nil)
	_ channel.Mountable = (*Channel)(nil)
)

// New constructs a webchat channel. It accepts connections once Run is
// called.
func New(cfg config.WebchatConfig, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}

	c := &Channel{
		cfg:   cfg,
		log:   log.With("component", "channel.webchat"),
		self:  schema.ChannelAccount{ID: "bot", Name: "botkit"},
		conns: make(map[string]*connection),
	}
	if len(cfg.AllowedOrigins) > 0 {
		c.upgrader.CheckOrigin = c.checkOrigin
	}

	return c
}

func (c *Channel) Name() string {
	return channelName
}

// Path is the route the gateway mounts the websocket endpoint on.
func (c *Channel) Path() string {
	path := strings.TrimSpace(c.cfg.Path)
	if path == "" {
		return defaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// Run accepts connections until ctx ends, then closes every open one.
func (c *Channel) Run(ctx context.Context, process channel.Processor) error {
	if process == nil {
		return errors.New("processor is required")
	}

	c.mu.Lock()
	c.ctx = ctx
	c.process = process
	c.mu.Unlock()

	c.log.Info("Webchat channel started", "path", c.Path())

	<-ctx.Done()

	c.mu.Lock()
	c.process = nil
	conns := c.conns
	c.conns = make(map[string]*connection)
	c.mu.Unlock()

	for _, conn := range conns {
		_ = conn.ws.Close()
	}

	return nil
}

func (c *Channel) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(c.cfg.AllowedOrigins, origin)
}

func (c *Channel) running() (context.Context, channel.Processor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ctx, c.process, c.process != nil
}

// ServeHTTP upgrades the request and runs the connection's read loop. The
// conversation and user query parameters resume a known conversation.
func (c *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, process, ok := c.running()
	if !ok {
		http.Error(w, "webchat channel is not running", http.StatusServiceUnavailable)
		return
	}

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	conversationID := queryOrNew(r, "conversation")
	conn := &connection{
		ws:   ws,
		user: schema.ChannelAccount{ID: queryOrNew(r, "user"), Name: r.URL.Query().Get("name")},
	}

	c.register(conversationID, conn)
	defer c.unregister(conversationID, conn)

	c.log.Info("Webchat connection opened", "conversation_id", conversationID, "user_id", conn.user.ID)

	joined := c.inbound(conversationID, conn.user, &schema.Activity{Type: schema.ActivityConversationUpdate})
	c.handle(ctx, process, joined)

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Webchat read failed", "conversation_id", conversationID, "error", err)
			}
			return
		}

		var activity schema.Activity
		if err := json.Unmarshal(payload, &activity); err != nil {
			c.writeError(conn, conversationID, "invalid activity format")
			continue
		}

		c.handle(ctx, process, c.inbound(conversationID, conn.user, &activity))
	}
}

func (c *Channel) handle(ctx context.Context, process channel.Processor, activity *schema.Activity) {
	err := process(ctx, activity)
	if err == nil || ctx.Err() != nil {
		return
	}

	c.log.Error("Failed to process inbound activity", "conversation_id", activity.Conversation.ID, "error", err)

	reply := activity.CreateReply(err.Error())
	if _, sendErr := c.SendActivities(ctx, nil, []*schema.Activity{reply}); sendErr != nil {
		c.log.Error("Failed to send webchat error reply", "error", sendErr)
	}
}

// inbound fills in the fields the server owns. Clients only choose the type,
// text, locale and channel data.
func (c *Channel) inbound(conversationID string, user schema.ChannelAccount, activity *schema.Activity) *schema.Activity {
	if activity.Type == "" {
		activity.Type = schema.ActivityMessage
	}
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	activity.Timestamp = time.Now().UTC()
	activity.ChannelID = channelName
	activity.From = user
	activity.Recipient = c.self
	activity.Conversation = schema.ConversationAccount{ID: conversationID}
	activity.Text = strings.TrimSpace(activity.Text)

	return activity
}

func (c *Channel) register(conversationID string, conn *connection) {
	c.mu.Lock()
	previous := c.conns[conversationID]
	c.conns[conversationID] = conn
	c.mu.Unlock()

	if previous != nil {
		_ = previous.ws.Close()
	}
}

func (c *Channel) unregister(conversationID string, conn *connection) {
	c.mu.Lock()
	if c.conns[conversationID] == conn {
		delete(c.conns, conversationID)
	}
	c.mu.Unlock()

	_ = conn.ws.Close()
	c.log.Info("Webchat connection closed", "conversation_id", conversationID)
}

func (c *Channel) lookup(conversationID string) (*connection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	conn, ok := c.conns[conversationID]
	if !ok {
		return nil, fmt.Errorf("webchat conversation %q is not connected", conversationID)
	}
	return conn, nil
}

func (c *Channel) writeError(conn *connection, conversationID string, message string) {
	activity := &schema.Activity{
		Type:         schema.ActivityEvent,
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		ChannelID:    channelName,
		From:         c.self,
		Conversation: schema.ConversationAccount{ID: conversationID},
		Text:         message,
		ChannelData:  map[string]string{"name": "error"},
	}
	if err := conn.writeJSON(activity); err != nil {
		c.log.Warn("Webchat write failed", "conversation_id", conversationID, "error", err)
	}
}

// SendActivities writes activities to the conversation's connection and
// returns the ids it assigned.
func (c *Channel) SendActivities(_ context.Context, _ *bot.TurnContext, activities []*schema.Activity) ([]schema.ResourceResponse, error) {
	responses := make([]schema.ResourceResponse, 0, len(activities))
	for _, activity := range activities {
		conn, err := c.lookup(activity.Conversation.ID)
		if err != nil {
			return nil, err
		}

		outbound := c.outbound(activity)
		if err := conn.writeJSON(outbound); err != nil {
			return nil, fmt.Errorf("write webchat activity: %w", err)
		}
		responses = append(responses, schema.ResourceResponse{ID: outbound.ID})
	}

	return responses, nil
}

// UpdateActivity asks the client to replace a rendered activity.
func (c *Channel) UpdateActivity(_ context.Context, _ *bot.TurnContext, activity *schema.Activity) (schema.ResourceResponse, error) {
	conn, err := c.lookup(activity.Conversation.ID)
	if err != nil {
		return schema.ResourceResponse{}, err
	}

	outbound := c.outbound(activity)
	outbound.Type = schema.ActivityMessageUpdate
	if err := conn.writeJSON(outbound); err != nil {
		return schema.ResourceResponse{}, fmt.Errorf("write webchat update: %w", err)
	}

	return schema.ResourceResponse{ID: outbound.ID}, nil
}

// DeleteActivity asks the client to remove a rendered activity.
func (c *Channel) DeleteActivity(_ context.Context, _ *bot.TurnContext, reference *schema.ConversationReference) error {
	conn, err := c.lookup(reference.Conversation.ID)
	if err != nil {
		return err
	}

	deleted := &schema.Activity{
		Type:         schema.ActivityMessageDelete,
		ID:           reference.ActivityID,
		Timestamp:    time.Now().UTC(),
		ChannelID:    channelName,
		From:         c.self,
		Conversation: reference.Conversation,
	}
	if err := conn.writeJSON(deleted); err != nil {
		return fmt.Errorf("write webchat delete: %w", err)
	}

	return nil
}

func (c *Channel) outbound(activity *schema.Activity) *schema.Activity {
	outbound := activity.Clone()
	if outbound.ID == "" {
		outbound.ID = uuid.NewString()
	}
	if outbound.Timestamp.IsZero() {
		outbound.Timestamp = time.Now().UTC()
	}
	outbound.ChannelID = channelName
	if outbound.From.ID == "" {
		outbound.From = c.self
	}

	return outbound
}

func queryOrNew(r *http.Request, key string) string {
	if value := strings.TrimSpace(r.URL.Query().Get(key)); value != "" {
		return value
	}
	return uuid.NewString()
}
