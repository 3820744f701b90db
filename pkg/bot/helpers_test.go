package bot

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"botkit/pkg/schema"
)

// recordingTransport keeps outbound operations in memory.
type recordingTransport struct {
	mu      sync.Mutex
	sent    []*schema.Activity
	updated []*schema.Activity
	deleted []string
	nextID  int

	sendErr     error
	dropResults bool
}

func (r *recordingTransport) SendActivities(_ context.Context, _ *TurnContext, activities []*schema.Activity) ([]schema.ResourceResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sendErr != nil {
		return nil, r.sendErr
	}

	responses := make([]schema.ResourceResponse, 0, len(activities))
	for _, activity := range activities {
		r.nextID++
		r.sent = append(r.sent, activity)
		responses = append(responses, schema.ResourceResponse{ID: "sent-" + strconv.Itoa(r.nextID)})
	}
	if r.dropResults {
		return responses[:0], nil
	}

	return responses, nil
}

func (r *recordingTransport) UpdateActivity(_ context.Context, _ *TurnContext, activity *schema.Activity) (schema.ResourceResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.updated = append(r.updated, activity)
	return schema.ResourceResponse{ID: activity.ID}, nil
}

func (r *recordingTransport) DeleteActivity(_ context.Context, _ *TurnContext, reference *schema.ConversationReference) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleted = append(r.deleted, reference.ActivityID)
	return nil
}

// creatingTransport adds conversation creation on top of recordingTransport.
type creatingTransport struct {
	recordingTransport
	params []schema.ConversationParameters
}

func (c *creatingTransport) CreateConversation(_ context.Context, channelID string, params schema.ConversationParameters) (*schema.ConversationReference, error) {
	if len(params.Members) == 0 {
		return nil, errors.New("no members")
	}

	c.params = append(c.params, params)
	return &schema.ConversationReference{
		ChannelID:    channelID,
		User:         params.Members[0],
		Bot:          schema.ChannelAccount{ID: "bot"},
		Conversation: schema.ConversationAccount{ID: "new-" + params.Members[0].ID},
	}, nil
}

// traceLog collects ordered entries written by test middleware.
type traceLog struct {
	entries []string
}

func (l *traceLog) add(entry string) {
	l.entries = append(l.entries, entry)
}

func tracing(l *traceLog, name string) Middleware {
	return MiddlewareFunc(func(ctx context.Context, _ *TurnContext, next NextFunc) error {
		l.add("before " + name)
		if err := next(ctx); err != nil {
			return err
		}
		l.add("after " + name)
		return nil
	})
}

func shortCircuit(l *traceLog, name string) Middleware {
	return MiddlewareFunc(func(context.Context, *TurnContext, NextFunc) error {
		l.add(name)
		return nil
	})
}

func handlerLogging(l *traceLog, name string) Handler {
	return func(context.Context, *TurnContext) error {
		l.add(name)
		return nil
	}
}

func inbound() *schema.Activity {
	return &schema.Activity{
		Type:         schema.ActivityMessage,
		ID:           "in-1",
		ChannelID:    "test",
		From:         schema.ChannelAccount{ID: "user"},
		Recipient:    schema.ChannelAccount{ID: "bot"},
		Conversation: schema.ConversationAccount{ID: "conv"},
		Text:         "hello",
	}
}
