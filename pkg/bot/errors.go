package bot

import "errors"

var (
	// ErrInvalidArgument reports a missing or malformed required argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotImplemented reports an optional capability the channel does not support.
	ErrNotImplemented = errors.New("not implemented")

	// ErrContinuationReused reports a middleware calling its continuation twice.
	ErrContinuationReused = errors.New("continuation already invoked")
)
