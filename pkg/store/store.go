package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"botkit/pkg/config"
	"botkit/pkg/schema"
)

// ErrNotFound reports a reference key with no stored conversation.
var ErrNotFound = errors.New("conversation reference not found")

// Record is one stored conversation reference.
type Record struct {
	Reference schema.ConversationReference `json:"reference"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

// Key returns the reference key of the record.
func (r Record) Key() string {
	return r.Reference.Key()
}

// Store keeps the latest reference of every conversation the bot has seen, so
// proactive turns can reach them later.
type Store interface {
	Save(ctx context.Context, reference schema.ConversationReference) error
	Get(ctx context.Context, key string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Open builds the store selected by cfg.Driver. An empty driver selects the
// in-memory store; the sqlite driver resolves cfg.Path with ResolvePath.
func Open(cfg config.StoreConfig) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		path, err := ResolvePath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

func validateReference(reference schema.ConversationReference) error {
	if strings.TrimSpace(reference.ChannelID) == "" {
		return errors.New("reference channel id is required")
	}
	if strings.TrimSpace(reference.Conversation.ID) == "" {
		return errors.New("reference conversation id is required")
	}

	return nil
}
