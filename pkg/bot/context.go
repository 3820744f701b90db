package bot

import (
	"context"
	"fmt"

	"botkit/pkg/schema"
)

// TurnContext is the per-turn state handed through the middleware chain into
// the turn handler. A TurnContext belongs to exactly one turn: it must not be
// shared between turns or retained after the turn completes. Access within a
// turn is sequential, so it carries no locks.
type TurnContext struct {
	adapter   *Adapter
	activity  *schema.Activity
	values    map[string]any
	responded bool
	completed bool

	// continued is the reference a proactive turn was started from.
	continued *schema.ConversationReference
	created   bool
}

// NewTurnContext creates the context for one turn. activity is nil for
// proactive turns that have no inbound activity.
func NewTurnContext(adapter *Adapter, activity *schema.Activity) (*TurnContext, error) {
	if adapter == nil {
		return nil, fmt.Errorf("%w: adapter is required", ErrInvalidArgument)
	}

	return &TurnContext{
		adapter:  adapter,
		activity: activity,
		values:   make(map[string]any),
	}, nil
}

// Adapter returns the adapter that owns the turn.
func (t *TurnContext) Adapter() *Adapter {
	return t.adapter
}

// Activity returns the inbound activity, or nil on a proactive turn.
func (t *TurnContext) Activity() *schema.Activity {
	return t.activity
}

// Set stores a per-turn value for later middleware or the handler.
func (t *TurnContext) Set(key string, value any) {
	t.values[key] = value
}

// Get returns a per-turn value stored with Set.
func (t *TurnContext) Get(key string) (any, bool) {
	value, ok := t.values[key]
	return value, ok
}

// Value returns the per-turn value under key when it has type T.
func Value[T any](t *TurnContext, key string) (T, bool) {
	var zero T
	if t == nil {
		return zero, false
	}

	raw, ok := t.values[key]
	if !ok {
		return zero, false
	}

	value, ok := raw.(T)
	return value, ok
}

// Responded reports whether any activity was sent successfully during the turn.
func (t *TurnContext) Responded() bool {
	return t.responded
}

// Completed reports whether the middleware chain reached its end, so the
// handler ran. It stays false when a middleware short-circuited the turn.
func (t *TurnContext) Completed() bool {
	return t.completed
}

// ContinuedReference returns the reference a proactive turn was started from.
// It reports false on a reactive turn.
func (t *TurnContext) ContinuedReference() (schema.ConversationReference, bool) {
	if t.continued == nil {
		return schema.ConversationReference{}, false
	}

	return *t.continued, true
}

// Proactive reports whether the adapter started the turn itself, through
// ContinueConversation or CreateConversation.
func (t *TurnContext) Proactive() bool {
	return t.continued != nil
}

// Created reports whether the turn runs in a conversation CreateConversation
// just opened.
func (t *TurnContext) Created() bool {
	return t.created
}

// Reference returns the conversation reference of the inbound activity.
func (t *TurnContext) Reference() schema.ConversationReference {
	return schema.ReferenceFromActivity(t.activity)
}

// SendActivities sends activities through the adapter. Activities without a
// conversation are addressed at the conversation of the inbound activity.
func (t *TurnContext) SendActivities(ctx context.Context, activities ...*schema.Activity) ([]schema.ResourceResponse, error) {
	if t.activity != nil {
		ref := t.Reference()
		for _, activity := range activities {
			if activity != nil && activity.Conversation.ID == "" {
				ref.ApplyTo(activity)
			}
		}
	}

	responses, err := t.adapter.SendActivities(ctx, t, activities)
	if err != nil {
		return nil, err
	}

	t.responded = true
	return responses, nil
}

// SendText sends one message activity with the given text.
func (t *TurnContext) SendText(ctx context.Context, text string) (schema.ResourceResponse, error) {
	responses, err := t.SendActivities(ctx, schema.NewMessage(text))
	if err != nil {
		return schema.ResourceResponse{}, err
	}

	return responses[0], nil
}

// UpdateActivity replaces a previously sent activity. activity.ID must hold
// the id returned when it was sent.
func (t *TurnContext) UpdateActivity(ctx context.Context, activity *schema.Activity) (schema.ResourceResponse, error) {
	if activity != nil && t.activity != nil && activity.Conversation.ID == "" {
		replyTo := activity.ReplyToID
		t.Reference().ApplyTo(activity)
		activity.ReplyToID = replyTo
	}

	return t.adapter.UpdateActivity(ctx, t, activity)
}

// DeleteActivity deletes a previously sent activity in the current conversation.
func (t *TurnContext) DeleteActivity(ctx context.Context, activityID string) error {
	ref := t.Reference()
	ref.ActivityID = activityID

	return t.adapter.DeleteActivity(ctx, t, &ref)
}
