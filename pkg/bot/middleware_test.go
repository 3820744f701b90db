package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTurn(t *testing.T) *TurnContext {
	t.Helper()

	adapter, err := NewAdapter(&recordingTransport{})
	require.NoError(t, err)

	turn, err := NewTurnContext(adapter, inbound())
	require.NoError(t, err)
	return turn
}

func TestMiddlewareSetRunsInOrderThenHandler(t *testing.T) {
	var log traceLog
	set, err := NewMiddlewareSet(tracing(&log, "A"), tracing(&log, "B"))
	require.NoError(t, err)

	turn := newTurn(t)
	completed, err := set.ReceiveActivityWithStatus(context.Background(), turn, handlerLogging(&log, "C"))
	require.NoError(t, err)
	require.True(t, completed)
	require.True(t, turn.Completed())
	require.Equal(t, []string{"before A", "before B", "C", "after B", "after A"}, log.entries)
}

func TestMiddlewareSetVisitsEachUnitOnce(t *testing.T) {
	const n = 6

	var log traceLog
	set := &MiddlewareSet{}
	for i := 0; i < n; i++ {
		require.NoError(t, set.Use(tracing(&log, fmt.Sprint(i))))
	}

	require.NoError(t, set.ReceiveActivity(context.Background(), newTurn(t), handlerLogging(&log, "handler")))

	want := make([]string, 0, 2*n+1)
	for i := 0; i < n; i++ {
		want = append(want, fmt.Sprintf("before %d", i))
	}
	want = append(want, "handler")
	for i := n - 1; i >= 0; i-- {
		want = append(want, fmt.Sprintf("after %d", i))
	}
	require.Equal(t, want, log.entries)
}

func TestMiddlewareSetShortCircuit(t *testing.T) {
	var log traceLog
	set, err := NewMiddlewareSet(shortCircuit(&log, "A"), tracing(&log, "B"))
	require.NoError(t, err)

	turn := newTurn(t)
	completed, err := set.ReceiveActivityWithStatus(context.Background(), turn, handlerLogging(&log, "C"))
	require.NoError(t, err)
	require.False(t, completed)
	require.False(t, turn.Completed())
	require.Equal(t, []string{"A"}, log.entries)
}

func TestMiddlewareSetShortCircuitInMiddleRunsOuterAfter(t *testing.T) {
	var log traceLog
	set, err := NewMiddlewareSet(tracing(&log, "A"), shortCircuit(&log, "B"), tracing(&log, "C"))
	require.NoError(t, err)

	completed, err := set.ReceiveActivityWithStatus(context.Background(), newTurn(t), handlerLogging(&log, "handler"))
	require.NoError(t, err)
	require.False(t, completed)
	require.Equal(t, []string{"before A", "B", "after A"}, log.entries)
}

func TestMiddlewareSetEmpty(t *testing.T) {
	var log traceLog
	set := &MiddlewareSet{}

	completed, err := set.ReceiveActivityWithStatus(context.Background(), newTurn(t), handlerLogging(&log, "C"))
	require.NoError(t, err)
	require.True(t, completed)
	require.Equal(t, []string{"C"}, log.entries)

	completed, err = set.ReceiveActivityWithStatus(context.Background(), newTurn(t), nil)
	require.NoError(t, err)
	require.True(t, completed)
}

func TestMiddlewareSetNilHandlerStillRunsMiddleware(t *testing.T) {
	var log traceLog
	set, err := NewMiddlewareSet(tracing(&log, "A"))
	require.NoError(t, err)

	require.NoError(t, set.ReceiveActivity(context.Background(), newTurn(t), nil))
	require.Equal(t, []string{"before A", "after A"}, log.entries)
}

func TestMiddlewareSetRejectsNil(t *testing.T) {
	var log traceLog
	set := &MiddlewareSet{}

	err := set.Use(tracing(&log, "A"), nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Equal(t, 0, set.Len())

	var fn MiddlewareFunc
	require.ErrorIs(t, set.Use(fn), ErrInvalidArgument)

	var nested *MiddlewareSet
	require.ErrorIs(t, set.Use(nested), ErrInvalidArgument)

	_, err = NewMiddlewareSet(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMiddlewareSetAllowsDuplicates(t *testing.T) {
	var log traceLog
	a := tracing(&log, "A")
	set, err := NewMiddlewareSet(a, a)
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	require.NoError(t, set.ReceiveActivity(context.Background(), newTurn(t), nil))
	require.Equal(t, []string{"before A", "before A", "after A", "after A"}, log.entries)
}

func TestMiddlewareErrorUnwinds(t *testing.T) {
	var log traceLog
	boom := errors.New("boom")
	failing := MiddlewareFunc(func(context.Context, *TurnContext, NextFunc) error {
		log.add("failing")
		return boom
	})

	set, err := NewMiddlewareSet(tracing(&log, "A"), failing, tracing(&log, "B"))
	require.NoError(t, err)

	completed, err := set.ReceiveActivityWithStatus(context.Background(), newTurn(t), handlerLogging(&log, "C"))
	require.ErrorIs(t, err, boom)
	require.False(t, completed)
	require.Equal(t, []string{"before A", "failing"}, log.entries)
}

func TestHandlerErrorPropagatesThroughChain(t *testing.T) {
	var log traceLog
	boom := errors.New("handler failed")
	set, err := NewMiddlewareSet(tracing(&log, "A"))
	require.NoError(t, err)

	completed, err := set.ReceiveActivityWithStatus(context.Background(), newTurn(t), func(context.Context, *TurnContext) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, completed)
	require.Equal(t, []string{"before A"}, log.entries)
}

func TestMiddlewareCanRecoverFromContinuationError(t *testing.T) {
	boom := errors.New("boom")
	var caught error
	guard := MiddlewareFunc(func(ctx context.Context, _ *TurnContext, next NextFunc) error {
		caught = next(ctx)
		return nil
	})

	set, err := NewMiddlewareSet(guard)
	require.NoError(t, err)

	err = set.ReceiveActivity(context.Background(), newTurn(t), func(context.Context, *TurnContext) error {
		return boom
	})
	require.NoError(t, err)
	require.ErrorIs(t, caught, boom)
}

func TestContinuationRunsAtMostOnce(t *testing.T) {
	calls := 0
	var second error
	twice := MiddlewareFunc(func(ctx context.Context, _ *TurnContext, next NextFunc) error {
		if err := next(ctx); err != nil {
			return err
		}
		second = next(ctx)
		return nil
	})

	set, err := NewMiddlewareSet(twice)
	require.NoError(t, err)

	err = set.ReceiveActivity(context.Background(), newTurn(t), func(context.Context, *TurnContext) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.ErrorIs(t, second, ErrContinuationReused)
}

func TestNestedMiddlewareSet(t *testing.T) {
	var log traceLog
	inner, err := NewMiddlewareSet(tracing(&log, "inner1"), tracing(&log, "inner2"))
	require.NoError(t, err)

	outer, err := NewMiddlewareSet(tracing(&log, "A"), inner, tracing(&log, "B"))
	require.NoError(t, err)

	require.NoError(t, outer.ReceiveActivity(context.Background(), newTurn(t), handlerLogging(&log, "C")))
	require.Equal(t, []string{
		"before A", "before inner1", "before inner2", "before B",
		"C",
		"after B", "after inner2", "after inner1", "after A",
	}, log.entries)
}

func TestMiddlewarePassesContextToNext(t *testing.T) {
	type key struct{}

	withValue := MiddlewareFunc(func(ctx context.Context, _ *TurnContext, next NextFunc) error {
		return next(context.WithValue(ctx, key{}, "tagged"))
	})

	set, err := NewMiddlewareSet(withValue)
	require.NoError(t, err)

	var got any
	err = set.ReceiveActivity(context.Background(), newTurn(t), func(ctx context.Context, _ *TurnContext) error {
		got = ctx.Value(key{})
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "tagged", got)
}

func TestMiddlewareSharesTurnState(t *testing.T) {
	setter := MiddlewareFunc(func(ctx context.Context, turn *TurnContext, next NextFunc) error {
		turn.Set("lang", "en")
		return next(ctx)
	})

	set, err := NewMiddlewareSet(setter)
	require.NoError(t, err)

	var lang string
	err = set.ReceiveActivity(context.Background(), newTurn(t), func(_ context.Context, turn *TurnContext) error {
		lang, _ = Value[string](turn, "lang")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "en", lang)
}
