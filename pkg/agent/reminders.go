package agent

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"botkit/pkg/schema"

	"github.com/google/uuid"
)

// Reminder is a message the bot owes a conversation at a later time.
type Reminder struct {
	ID        string
	Reference schema.ConversationReference
	Text      string
	Due       time.Time
}

// Reminders is the queue of pending reminders. Adding one signals Wake so a
// scheduler can re-check without waiting for its next tick.
type Reminders struct {
	wake chan struct{}
	now  func() time.Time

	mu    sync.Mutex
	queue []Reminder
}

func NewReminders() *Reminders {
	return &Reminders{
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

// Add schedules text for the referenced conversation after delay.
func (r *Reminders) Add(reference schema.ConversationReference, text string, delay time.Duration) (Reminder, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reminder{}, errors.New("reminder text cannot be empty")
	}
	if delay <= 0 {
		return Reminder{}, errors.New("reminder delay must be greater than zero")
	}
	if reference.Conversation.ID == "" {
		return Reminder{}, errors.New("reminder conversation is required")
	}

	reminder := Reminder{
		ID:        uuid.NewString(),
		Reference: reference,
		Text:      text,
		Due:       r.now().Add(delay),
	}

	r.mu.Lock()
	r.queue = append(r.queue, reminder)
	slices.SortStableFunc(r.queue, func(a, b Reminder) int {
		return a.Due.Compare(b.Due)
	})
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}

	return reminder, nil
}

// PopDue removes and returns every reminder due at or before now, oldest
// first.
func (r *Reminders) PopDue(now time.Time) []Reminder {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for n < len(r.queue) && !r.queue[n].Due.After(now) {
		n++
	}
	if n == 0 {
		return nil
	}

	due := make([]Reminder, n)
	copy(due, r.queue[:n])
	r.queue = r.queue[n:]
	return due
}

// Pending returns a snapshot of the queued reminders.
func (r *Reminders) Pending() []Reminder {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.queue)
}

// Wake is signalled whenever a reminder is added.
func (r *Reminders) Wake() <-chan struct{} {
	return r.wake
}
