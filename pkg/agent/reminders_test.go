package agent

import (
	"testing"
	"time"

	"botkit/pkg/schema"
)

func testReference(conversationID string) schema.ConversationReference {
	return schema.ConversationReference{
		ChannelID:    "test",
		User:         schema.ChannelAccount{ID: "user-1"},
		Bot:          schema.ChannelAccount{ID: "bot"},
		Conversation: schema.ConversationAccount{ID: conversationID},
	}
}

func TestRemindersPopDueInOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewReminders()
	r.now = func() time.Time { return base }

	if _, err := r.Add(testReference("c1"), "later", 10*time.Minute); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if _, err := r.Add(testReference("c1"), "sooner", time.Minute); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	if got := r.PopDue(base); len(got) != 0 {
		t.Fatalf("PopDue before due = %#v, want none", got)
	}

	due := r.PopDue(base.Add(5 * time.Minute))
	if len(due) != 1 || due[0].Text != "sooner" {
		t.Fatalf("PopDue = %#v, want sooner", due)
	}
	if pending := r.Pending(); len(pending) != 1 || pending[0].Text != "later" {
		t.Fatalf("Pending = %#v, want later", pending)
	}
}

func TestRemindersAddValidates(t *testing.T) {
	r := NewReminders()

	if _, err := r.Add(testReference("c1"), " ", time.Minute); err == nil {
		t.Fatal("expected error for empty text")
	}
	if _, err := r.Add(testReference("c1"), "x", 0); err == nil {
		t.Fatal("expected error for non-positive delay")
	}
	if _, err := r.Add(testReference(""), "x", time.Minute); err == nil {
		t.Fatal("expected error for missing conversation")
	}
}

func TestRemindersAddSignalsWake(t *testing.T) {
	r := NewReminders()
	if _, err := r.Add(testReference("c1"), "x", time.Minute); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	select {
	case <-r.Wake():
	default:
		t.Fatal("expected wake signal")
	}
}
