package bot

import (
	"context"
	"fmt"
	"slices"
)

// Handler runs the bot's own logic for a turn. It is the terminal link of the
// middleware chain.
type Handler func(ctx context.Context, turn *TurnContext) error

// NextFunc continues the middleware chain. A middleware that never calls it
// short-circuits the turn: later middleware and the handler do not run.
type NextFunc func(ctx context.Context) error

// Middleware intercepts a turn. Code before next runs in registration order;
// code after next runs in reverse registration order.
type Middleware interface {
	OnTurn(ctx context.Context, turn *TurnContext, next NextFunc) error
}

// MiddlewareFunc adapts an ordinary function to Middleware.
type MiddlewareFunc func(ctx context.Context, turn *TurnContext, next NextFunc) error

// OnTurn calls f(ctx, turn, next).
func (f MiddlewareFunc) OnTurn(ctx context.Context, turn *TurnContext, next NextFunc) error {
	return f(ctx, turn, next)
}

// MiddlewareSet is an ordered, append-only list of middleware. Registration
// must finish before the first turn runs; the set is not safe for Use
// concurrent with turns.
type MiddlewareSet struct {
	middleware []Middleware
}

// NewMiddlewareSet builds a set from middleware in execution order.
func NewMiddlewareSet(middleware ...Middleware) (*MiddlewareSet, error) {
	set := &MiddlewareSet{}
	if err := set.Use(middleware...); err != nil {
		return nil, err
	}

	return set, nil
}

// Use appends middleware in order. Duplicates are allowed. A nil entry
// rejects the whole call and nothing is appended.
func (s *MiddlewareSet) Use(middleware ...Middleware) error {
	for i, m := range middleware {
		if isNilMiddleware(m) {
			return fmt.Errorf("%w: middleware at position %d is nil", ErrInvalidArgument, i)
		}
	}

	s.middleware = append(s.middleware, middleware...)
	return nil
}

// Len returns the number of registered middleware.
func (s *MiddlewareSet) Len() int {
	return len(s.middleware)
}

// OnTurn runs the set as a single middleware inside an outer chain.
func (s *MiddlewareSet) OnTurn(ctx context.Context, turn *TurnContext, next NextFunc) error {
	return s.compose(turn, next)(ctx)
}

// ReceiveActivity runs every middleware and then handler, which may be nil.
func (s *MiddlewareSet) ReceiveActivity(ctx context.Context, turn *TurnContext, handler Handler) error {
	_, err := s.ReceiveActivityWithStatus(ctx, turn, handler)
	return err
}

// ReceiveActivityWithStatus runs the chain and reports whether it reached its
// end. completed is false when a middleware short-circuited the turn, which is
// not an error.
func (s *MiddlewareSet) ReceiveActivityWithStatus(ctx context.Context, turn *TurnContext, handler Handler) (bool, error) {
	completed := false
	terminal := func(ctx context.Context) error {
		completed = true
		if turn != nil {
			turn.completed = true
		}
		if handler == nil {
			return nil
		}
		return handler(ctx, turn)
	}

	if err := s.compose(turn, terminal)(ctx); err != nil {
		return completed, err
	}

	return completed, nil
}

// compose folds the middleware from the right around terminal, so the first
// registered middleware is the outermost call.
func (s *MiddlewareSet) compose(turn *TurnContext, terminal NextFunc) NextFunc {
	middleware := slices.Clone(s.middleware)

	next := once(terminal)
	for i := len(middleware) - 1; i >= 0; i-- {
		m := middleware[i]
		rest := next
		next = once(func(ctx context.Context) error {
			return m.OnTurn(ctx, turn, rest)
		})
	}

	return next
}

// once guards a continuation so the remainder of the chain runs at most once.
func once(next NextFunc) NextFunc {
	if next == nil {
		next = func(context.Context) error { return nil }
	}

	called := false
	return func(ctx context.Context) error {
		if called {
			return ErrContinuationReused
		}
		called = true
		return next(ctx)
	}
}

func isNilMiddleware(m Middleware) bool {
	if m == nil {
		return true
	}

	switch v := m.(type) {
	case MiddlewareFunc:
		return v == nil
	case *MiddlewareSet:
		return v == nil
	default:
		return false
	}
}
