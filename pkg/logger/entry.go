package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Entry is one line of JSON log output. Turn scope is lifted out of Fields.
type Entry struct {
	Level          string         `json:"level"`
	Timestamp      string         `json:"timestamp"`
	Component      string         `json:"component,omitempty"`
	Channel        string         `json:"channel,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	ActivityID     string         `json:"activity_id,omitempty"`
	Message        string         `json:"message"`
	Fields         map[string]any `json:"fields,omitempty"`
	Caller         string         `json:"caller,omitempty"`
}

type entryHandler struct {
	level     slog.Level
	addSource bool
	writer    io.Writer
	attrs     []slog.Attr
	groups    []string
	mu        *sync.Mutex
}

func (h *entryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *entryHandler) Handle(ctx context.Context, record slog.Record) error {
	timestamp := record.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	entry := Entry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: timestamp.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
	}
	if turn, ok := TurnFromContext(ctx); ok {
		entry.Channel = turn.Channel
		entry.ConversationID = turn.ConversationID
		entry.ActivityID = turn.ActivityID
	}

	fields := make(map[string]any)
	for _, attr := range h.attrs {
		entry.apply(fields, h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		entry.apply(fields, h.groups, attr)
		return true
	})
	if len(fields) > 0 {
		entry.Fields = fields
	}

	if h.addSource {
		entry.Caller = caller(record.PC)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(append(line, '\n'))
	return err
}

func (h *entryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *entryHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

// apply stores attr in fields, or in the entry itself for component and an
// ungrouped turn scope key.
func (e *Entry) apply(fields map[string]any, groups []string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if len(groups) == 0 && attr.Value.Kind() == slog.KindString {
		value := attr.Value.String()
		switch attr.Key {
		case "component":
			e.Component = value
			return
		case "channel":
			e.Channel = value
			return
		case "conversation_id":
			e.ConversationID = value
			return
		case "activity_id":
			e.ActivityID = value
			return
		}
	}

	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + attr.Key
	}
	fields[key] = attrValue(attr.Value)
}

func attrValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		result := make(map[string]any, len(group))
		for _, item := range group {
			result[item.Key] = attrValue(item.Value.Resolve())
		}
		return result
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
		return value.Any()
	default:
		return value.Any()
	}
}

func caller(pc uintptr) string {
	if pc == 0 {
		return ""
	}

	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}

	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}
