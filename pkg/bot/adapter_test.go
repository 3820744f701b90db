package bot

import (
	"context"
	"errors"
	"testing"

	"botkit/pkg/schema"

	"github.com/stretchr/testify/require"
)

func TestNewAdapterRequiresTransport(t *testing.T) {
	if _, err := NewAdapter(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("NewAdapter(nil) error = %v, want %v", err, ErrInvalidArgument)
	}
}

func TestNewAdapterWithMiddlewareRejectsNil(t *testing.T) {
	if _, err := NewAdapter(&recordingTransport{}, WithMiddleware(nil)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("NewAdapter error = %v, want %v", err, ErrInvalidArgument)
	}
}

func TestAdapterUseIsChainable(t *testing.T) {
	var log traceLog
	adapter, err := NewAdapter(&recordingTransport{})
	require.NoError(t, err)

	got, err := adapter.Use(tracing(&log, "A"))
	require.NoError(t, err)
	require.Same(t, adapter, got)

	got, err = got.Use(tracing(&log, "B"), tracing(&log, "C"))
	require.NoError(t, err)
	require.Equal(t, 3, got.Middleware().Len())

	_, err = adapter.Use(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Equal(t, 3, adapter.Middleware().Len())
}

func TestRunPipelineReactiveTurn(t *testing.T) {
	var log traceLog
	adapter, err := NewAdapter(&recordingTransport{}, WithMiddleware(tracing(&log, "A"), tracing(&log, "B")))
	require.NoError(t, err)

	turn, err := NewTurnContext(adapter, inbound())
	require.NoError(t, err)

	require.NoError(t, adapter.RunPipeline(context.Background(), turn, handlerLogging(&log, "C")))
	require.Equal(t, []string{"before A", "before B", "C", "after B", "after A"}, log.entries)
}

func TestRunPipelineShortCircuitIsNotAnError(t *testing.T) {
	var log traceLog
	adapter, err := NewAdapter(&recordingTransport{}, WithMiddleware(shortCircuit(&log, "A"), tracing(&log, "B")))
	require.NoError(t, err)

	require.NoError(t, adapter.ProcessActivity(context.Background(), inbound(), handlerLogging(&log, "C")))
	require.Equal(t, []string{"A"}, log.entries)
}

func TestRunPipelineProactiveBypassesMiddleware(t *testing.T) {
	var log traceLog
	adapter, err := NewAdapter(&recordingTransport{}, WithMiddleware(shortCircuit(&log, "A"), tracing(&log, "B")))
	require.NoError(t, err)

	turn, err := NewTurnContext(adapter, nil)
	require.NoError(t, err)

	require.NoError(t, adapter.RunPipeline(context.Background(), turn, handlerLogging(&log, "C")))
	require.Equal(t, []string{"C"}, log.entries)

	require.NoError(t, adapter.RunPipeline(context.Background(), turn, nil))
	require.Equal(t, []string{"C"}, log.entries)
}

func TestRunPipelineRequiresTurn(t *testing.T) {
	touched := false
	probe := MiddlewareFunc(func(ctx context.Context, _ *TurnContext, next NextFunc) error {
		touched = true
		return next(ctx)
	})

	adapter, err := NewAdapter(&recordingTransport{}, WithMiddleware(probe))
	require.NoError(t, err)

	err = adapter.RunPipeline(context.Background(), nil, func(context.Context, *TurnContext) error {
		touched = true
		return nil
	})
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.False(t, touched)
}

func TestRunPipelineDoesNotCheckCancellationBetweenUnits(t *testing.T) {
	var log traceLog
	adapter, err := NewAdapter(&recordingTransport{}, WithMiddleware(tracing(&log, "A")))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, adapter.ProcessActivity(ctx, inbound(), handlerLogging(&log, "C")))
	require.Equal(t, []string{"before A", "C", "after A"}, log.entries)
}

func TestProcessActivityRequiresActivity(t *testing.T) {
	adapter, err := NewAdapter(&recordingTransport{})
	require.NoError(t, err)

	require.ErrorIs(t, adapter.ProcessActivity(context.Background(), nil, nil), ErrInvalidArgument)
}

func TestContinueConversationRunsFullChain(t *testing.T) {
	var log traceLog
	transport := &recordingTransport{}
	adapter, err := NewAdapter(transport, WithMiddleware(tracing(&log, "A")))
	require.NoError(t, err)

	ref := schema.ReferenceFromActivity(inbound())

	ref.ActivityID = "42"

	var seen *schema.Activity
	err = adapter.ContinueConversation(context.Background(), &ref, func(ctx context.Context, turn *TurnContext) error {
		log.add("C")
		seen = turn.Activity()
		require.True(t, turn.Proactive())
		require.False(t, turn.Created())
		continued, ok := turn.ContinuedReference()
		require.True(t, ok)
		require.Equal(t, "42", continued.ActivityID)
		_, err := turn.SendText(ctx, "reminder")
		return err
	})
	require.NoError(t, err)
	require.Equal(t, []string{"before A", "C", "after A"}, log.entries)

	require.NotNil(t, seen)
	require.Equal(t, schema.ActivityMessage, seen.Type)
	require.Equal(t, "user", seen.From.ID)
	require.Equal(t, "bot", seen.Recipient.ID)
	require.Equal(t, "conv", seen.Conversation.ID)

	require.Len(t, transport.sent, 1)
	require.Equal(t, "reminder", transport.sent[0].Text)
	require.Equal(t, "conv", transport.sent[0].Conversation.ID)
	require.Equal(t, "bot", transport.sent[0].From.ID)
}

func TestContinueConversationRequiresReference(t *testing.T) {
	adapter, err := NewAdapter(&recordingTransport{})
	require.NoError(t, err)

	require.ErrorIs(t, adapter.ContinueConversation(context.Background(), nil, nil), ErrInvalidArgument)
}

func TestCreateConversationNotImplemented(t *testing.T) {
	adapter, err := NewAdapter(&recordingTransport{})
	require.NoError(t, err)

	err = adapter.CreateConversation(context.Background(), "test", schema.ConversationParameters{}, nil)
	require.ErrorIs(t, err, ErrNotImplemented)

	err = adapter.CreateConversation(context.Background(), "", schema.ConversationParameters{}, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.NotErrorIs(t, err, ErrNotImplemented)
}

func TestProcessActivityIsReactive(t *testing.T) {
	adapter, err := NewAdapter(&recordingTransport{})
	require.NoError(t, err)

	err = adapter.ProcessActivity(context.Background(), inbound(), func(_ context.Context, turn *TurnContext) error {
		require.False(t, turn.Proactive())
		_, ok := turn.ContinuedReference()
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestCreateConversationWithCreator(t *testing.T) {
	var log traceLog
	transport := &creatingTransport{}
	adapter, err := NewAdapter(transport, WithMiddleware(tracing(&log, "A")))
	require.NoError(t, err)

	params := schema.ConversationParameters{Members: []schema.ChannelAccount{{ID: "u1"}}}
	err = adapter.CreateConversation(context.Background(), "test", params, func(ctx context.Context, turn *TurnContext) error {
		log.add("C")
		require.True(t, turn.Created())
		continued, ok := turn.ContinuedReference()
		require.True(t, ok)
		require.Equal(t, "new-u1", continued.Conversation.ID)
		_, err := turn.SendText(ctx, "welcome")
		return err
	})
	require.NoError(t, err)
	require.Equal(t, []string{"before A", "C", "after A"}, log.entries)
	require.Len(t, transport.params, 1)
	require.Len(t, transport.sent, 1)
	require.Equal(t, "new-u1", transport.sent[0].Conversation.ID)

	require.ErrorIs(t, adapter.CreateConversation(context.Background(), " ", params, nil), ErrInvalidArgument)
	require.Error(t, adapter.CreateConversation(context.Background(), "test", schema.ConversationParameters{}, nil))
}

func TestAdapterSendActivitiesValidation(t *testing.T) {
	transport := &recordingTransport{}
	adapter, err := NewAdapter(transport)
	require.NoError(t, err)
	turn, err := NewTurnContext(adapter, inbound())
	require.NoError(t, err)

	_, err = adapter.SendActivities(context.Background(), nil, []*schema.Activity{schema.NewMessage("x")})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = adapter.SendActivities(context.Background(), turn, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = adapter.SendActivities(context.Background(), turn, []*schema.Activity{schema.NewMessage("x"), nil})
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Empty(t, transport.sent)

	responses, err := adapter.SendActivities(context.Background(), turn, []*schema.Activity{schema.NewMessage("1"), schema.NewMessage("2")})
	require.NoError(t, err)
	require.Equal(t, []schema.ResourceResponse{{ID: "sent-1"}, {ID: "sent-2"}}, responses)

	transport.dropResults = true
	_, err = adapter.SendActivities(context.Background(), turn, []*schema.Activity{schema.NewMessage("3")})
	require.Error(t, err)
}

func TestAdapterTransportErrorsPropagateUnchanged(t *testing.T) {
	boom := errors.New("channel down")
	transport := &recordingTransport{sendErr: boom}
	adapter, err := NewAdapter(transport)
	require.NoError(t, err)

	err = adapter.ProcessActivity(context.Background(), inbound(), func(ctx context.Context, turn *TurnContext) error {
		_, err := turn.SendText(ctx, "hi")
		return err
	})
	require.Equal(t, boom, err)
}

func TestAdapterUpdateAndDeleteValidation(t *testing.T) {
	transport := &recordingTransport{}
	adapter, err := NewAdapter(transport)
	require.NoError(t, err)
	turn, err := NewTurnContext(adapter, inbound())
	require.NoError(t, err)

	_, err = adapter.UpdateActivity(context.Background(), turn, schema.NewMessage("no id"))
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = adapter.UpdateActivity(context.Background(), turn, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = adapter.UpdateActivity(context.Background(), nil, &schema.Activity{ID: "x"})
	require.ErrorIs(t, err, ErrInvalidArgument)

	require.ErrorIs(t, adapter.DeleteActivity(context.Background(), turn, nil), ErrInvalidArgument)
	require.ErrorIs(t, adapter.DeleteActivity(context.Background(), turn, &schema.ConversationReference{}), ErrInvalidArgument)
	require.ErrorIs(t, adapter.DeleteActivity(context.Background(), nil, &schema.ConversationReference{ActivityID: "x"}), ErrInvalidArgument)

	require.Empty(t, transport.updated)
	require.Empty(t, transport.deleted)
}
