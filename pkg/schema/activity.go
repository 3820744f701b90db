package schema

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActivityType discriminates inbound and outbound activities.
type ActivityType string

const (
	ActivityMessage            ActivityType = "message"
	ActivityConversationUpdate ActivityType = "conversationUpdate"
	ActivityTyping             ActivityType = "typing"
	ActivityEvent              ActivityType = "event"
	ActivityEndOfConversation  ActivityType = "endOfConversation"
	ActivityMessageUpdate      ActivityType = "messageUpdate"
	ActivityMessageDelete      ActivityType = "messageDelete"
)

// ChannelAccount identifies a user or bot on a channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount identifies a conversation on a channel.
type ConversationAccount struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

// Activity is one inbound or outbound conversational message unit.
type Activity struct {
	Type         ActivityType        `json:"type"`
	ID           string              `json:"id,omitempty"`
	Timestamp    time.Time           `json:"timestamp,omitzero"`
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	From         ChannelAccount      `json:"from"`
	Recipient    ChannelAccount      `json:"recipient"`
	Conversation ConversationAccount `json:"conversation"`
	Text         string              `json:"text,omitempty"`
	ReplyToID    string              `json:"replyToId,omitempty"`
	Locale       string              `json:"locale,omitempty"`
	ChannelData  map[string]string   `json:"channelData,omitempty"`
}

// NewMessage builds an outbound message activity carrying text.
func NewMessage(text string) *Activity {
	return &Activity{
		Type: ActivityMessage,
		Text: text,
	}
}

// NewActivityID returns a fresh activity identifier.
func NewActivityID() string {
	return uuid.NewString()
}

// IsMessage reports whether the activity is a message with non-blank text.
func (a *Activity) IsMessage() bool {
	if a == nil || a.Type != ActivityMessage {
		return false
	}

	return strings.TrimSpace(a.Text) != ""
}

// CreateReply builds a message addressed back to the sender of a.
func (a *Activity) CreateReply(text string) *Activity {
	return &Activity{
		Type:         ActivityMessage,
		Timestamp:    time.Now().UTC(),
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		From:         a.Recipient,
		Recipient:    a.From,
		Conversation: a.Conversation,
		Text:         text,
		ReplyToID:    a.ID,
		Locale:       a.Locale,
	}
}

// Clone returns a deep copy of a.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}

	clone := *a
	clone.ChannelData = maps.Clone(a.ChannelData)
	return &clone
}
