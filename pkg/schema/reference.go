package schema

import (
	"strings"
	"time"
)

// ConversationReference is the durable address of a conversation. It is enough
// to reach the conversation again without an inbound activity.
type ConversationReference struct {
	ActivityID   string              `json:"activityId,omitempty"`
	User         ChannelAccount      `json:"user"`
	Bot          ChannelAccount      `json:"bot"`
	Conversation ConversationAccount `json:"conversation"`
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
}

// ResourceResponse carries the channel-assigned id of a sent or updated activity.
type ResourceResponse struct {
	ID string `json:"id"`
}

// ConversationParameters describes a conversation the bot asks a channel to create.
type ConversationParameters struct {
	Members   []ChannelAccount `json:"members"`
	TopicName string           `json:"topicName,omitempty"`
	IsGroup   bool             `json:"isGroup,omitempty"`
	Activity  *Activity        `json:"activity,omitempty"`
}

// ReferenceFromActivity captures the reference of an inbound activity.
func ReferenceFromActivity(a *Activity) ConversationReference {
	if a == nil {
		return ConversationReference{}
	}

	return ConversationReference{
		ActivityID:   a.ID,
		User:         a.From,
		Bot:          a.Recipient,
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
	}
}

// Key returns the stable "channel:conversation" identifier of the reference.
func (r ConversationReference) Key() string {
	return ReferenceKey(r.ChannelID, r.Conversation.ID)
}

// ReferenceKey joins a channel id and conversation id into a reference key.
func ReferenceKey(channelID string, conversationID string) string {
	return strings.TrimSpace(channelID) + ":" + strings.TrimSpace(conversationID)
}

// ParseReferenceKey splits a key built by ReferenceKey.
func ParseReferenceKey(key string) (string, string, bool) {
	channelID, conversationID, ok := strings.Cut(strings.TrimSpace(key), ":")
	if !ok || channelID == "" || conversationID == "" {
		return "", "", false
	}

	return channelID, conversationID, true
}

// PostToBotMessage synthesizes an inbound-shaped message from the user to the
// bot. Proactive turns run the pipeline around it.
func (r ConversationReference) PostToBotMessage() *Activity {
	return &Activity{
		Type:         ActivityMessage,
		ID:           NewActivityID(),
		Timestamp:    time.Now().UTC(),
		ChannelID:    r.ChannelID,
		ServiceURL:   r.ServiceURL,
		From:         r.User,
		Recipient:    r.Bot,
		Conversation: r.Conversation,
	}
}

// ApplyTo addresses an outbound activity at the referenced conversation.
// Fields already set on the activity are kept, except for the bot/user pair.
func (r ConversationReference) ApplyTo(a *Activity) *Activity {
	if a == nil {
		return nil
	}

	if a.Type == "" {
		a.Type = ActivityMessage
	}
	a.ChannelID = r.ChannelID
	a.ServiceURL = r.ServiceURL
	a.Conversation = r.Conversation
	a.From = r.Bot
	a.Recipient = r.User
	if a.ReplyToID == "" {
		a.ReplyToID = r.ActivityID
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	return a
}
