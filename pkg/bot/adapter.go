package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"botkit/pkg/schema"
)

// Transport delivers outbound activities to one channel. Every concrete
// channel implements it.
type Transport interface {
	// SendActivities sends activities in order and returns one response per
	// activity, in the same order.
	SendActivities(ctx context.Context, turn *TurnContext, activities []*schema.Activity) ([]schema.ResourceResponse, error)
	// UpdateActivity replaces the activity whose channel id is activity.ID.
	UpdateActivity(ctx context.Context, turn *TurnContext, activity *schema.Activity) (schema.ResourceResponse, error)
	// DeleteActivity deletes the activity reference.ActivityID.
	DeleteActivity(ctx context.Context, turn *TurnContext, reference *schema.ConversationReference) error
}

// ConversationCreator is implemented by transports that can open a new
// conversation without an inbound activity.
type ConversationCreator interface {
	CreateConversation(ctx context.Context, channelID string, params schema.ConversationParameters) (*schema.ConversationReference, error)
}

// Adapter drives turns through its middleware set and delegates outbound
// operations to a channel transport.
type Adapter struct {
	transport  Transport
	middleware *MiddlewareSet
	log        *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter) error

// WithLogger sets the adapter logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) error {
		if log != nil {
			a.log = log
		}
		return nil
	}
}

// WithMiddleware registers middleware at construction time.
func WithMiddleware(middleware ...Middleware) Option {
	return func(a *Adapter) error {
		return a.middleware.Use(middleware...)
	}
}

// NewAdapter creates an adapter bound to transport.
func NewAdapter(transport Transport, opts ...Option) (*Adapter, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidArgument)
	}

	a := &Adapter{
		transport:  transport,
		middleware: &MiddlewareSet{},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.log = a.log.With("component", "bot.adapter")

	return a, nil
}

// Use registers middleware and returns the adapter for chaining. All
// registration must happen before the first turn.
func (a *Adapter) Use(middleware ...Middleware) (*Adapter, error) {
	if err := a.middleware.Use(middleware...); err != nil {
		return a, err
	}

	return a, nil
}

// Middleware returns the adapter's middleware set.
func (a *Adapter) Middleware() *MiddlewareSet {
	return a.middleware
}

// SendActivities sends activities through the transport.
func (a *Adapter) SendActivities(ctx context.Context, turn *TurnContext, activities []*schema.Activity) ([]schema.ResourceResponse, error) {
	if turn == nil {
		return nil, fmt.Errorf("%w: turn context is required", ErrInvalidArgument)
	}
	if len(activities) == 0 {
		return nil, fmt.Errorf("%w: at least one activity is required", ErrInvalidArgument)
	}
	for i, activity := range activities {
		if activity == nil {
			return nil, fmt.Errorf("%w: activity at position %d is nil", ErrInvalidArgument, i)
		}
	}

	responses, err := a.transport.SendActivities(ctx, turn, activities)
	if err != nil {
		return nil, err
	}
	if len(responses) != len(activities) {
		return nil, fmt.Errorf("transport returned %d responses for %d activities", len(responses), len(activities))
	}

	return responses, nil
}

// UpdateActivity replaces a previously sent activity.
func (a *Adapter) UpdateActivity(ctx context.Context, turn *TurnContext, activity *schema.Activity) (schema.ResourceResponse, error) {
	if turn == nil {
		return schema.ResourceResponse{}, fmt.Errorf("%w: turn context is required", ErrInvalidArgument)
	}
	if activity == nil {
		return schema.ResourceResponse{}, fmt.Errorf("%w: activity is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(activity.ID) == "" {
		return schema.ResourceResponse{}, fmt.Errorf("%w: activity id is required for update", ErrInvalidArgument)
	}

	return a.transport.UpdateActivity(ctx, turn, activity)
}

// DeleteActivity deletes a previously sent activity.
func (a *Adapter) DeleteActivity(ctx context.Context, turn *TurnContext, reference *schema.ConversationReference) error {
	if turn == nil {
		return fmt.Errorf("%w: turn context is required", ErrInvalidArgument)
	}
	if reference == nil {
		return fmt.Errorf("%w: conversation reference is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(reference.ActivityID) == "" {
		return fmt.Errorf("%w: activity id is required for delete", ErrInvalidArgument)
	}

	return a.transport.DeleteActivity(ctx, turn, reference)
}

// RunPipeline runs one turn. A turn with an inbound activity goes through the
// whole middleware chain and then handler. A turn without one skips the
// middleware and calls handler directly, if any.
//
// The pipeline does not check ctx between middleware; each middleware, the
// handler and the transport observe cancellation themselves.
func (a *Adapter) RunPipeline(ctx context.Context, turn *TurnContext, handler Handler) error {
	if turn == nil {
		return fmt.Errorf("%w: turn context is required", ErrInvalidArgument)
	}

	if turn.Activity() == nil {
		if handler == nil {
			return nil
		}
		return handler(ctx, turn)
	}

	completed, err := a.middleware.ReceiveActivityWithStatus(ctx, turn, handler)
	if err != nil {
		return err
	}
	if !completed {
		activity := turn.Activity()
		a.log.Debug("Turn short-circuited by middleware",
			"activity_type", activity.Type,
			"channel", activity.ChannelID,
			"conversation_id", activity.Conversation.ID,
		)
	}

	return nil
}

// ProcessActivity runs a reactive turn for an inbound activity.
func (a *Adapter) ProcessActivity(ctx context.Context, activity *schema.Activity, handler Handler) error {
	if activity == nil {
		return fmt.Errorf("%w: activity is required", ErrInvalidArgument)
	}

	turn, err := NewTurnContext(a, activity)
	if err != nil {
		return err
	}

	return a.RunPipeline(ctx, turn, handler)
}

// ContinueConversation runs a proactive turn for an existing conversation.
// The turn carries a synthesized message from the referenced user, so the
// full middleware chain runs. Turn.Proactive reports true inside it.
func (a *Adapter) ContinueConversation(ctx context.Context, reference *schema.ConversationReference, handler Handler) error {
	return a.continueConversation(ctx, reference, false, handler)
}

// CreateConversation asks the transport to open a conversation and runs a
// proactive turn in it. Transports that are not a ConversationCreator fail
// with ErrNotImplemented once the arguments are valid.
func (a *Adapter) CreateConversation(ctx context.Context, channelID string, params schema.ConversationParameters, handler Handler) error {
	if strings.TrimSpace(channelID) == "" {
		return fmt.Errorf("%w: channel id is required", ErrInvalidArgument)
	}
	creator, ok := a.transport.(ConversationCreator)
	if !ok {
		return fmt.Errorf("%w: channel does not support creating conversations", ErrNotImplemented)
	}

	reference, err := creator.CreateConversation(ctx, channelID, params)
	if err != nil {
		return err
	}

	return a.continueConversation(ctx, reference, true, handler)
}

func (a *Adapter) continueConversation(ctx context.Context, reference *schema.ConversationReference, created bool, handler Handler) error {
	if reference == nil {
		return fmt.Errorf("%w: conversation reference is required", ErrInvalidArgument)
	}

	turn, err := NewTurnContext(a, reference.PostToBotMessage())
	if err != nil {
		return err
	}
	continued := *reference
	turn.continued = &continued
	turn.created = created

	return a.RunPipeline(ctx, turn, handler)
}
