package bot

import (
	"context"
	"errors"
	"testing"

	"botkit/pkg/schema"
)

func TestNewTurnContextRequiresAdapter(t *testing.T) {
	if _, err := NewTurnContext(nil, inbound()); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("NewTurnContext(nil) error = %v, want %v", err, ErrInvalidArgument)
	}
}

func TestTurnContextValues(t *testing.T) {
	adapter, err := NewAdapter(&recordingTransport{})
	if err != nil {
		t.Fatalf("NewAdapter error: %v", err)
	}
	turn, err := NewTurnContext(adapter, nil)
	if err != nil {
		t.Fatalf("NewTurnContext error: %v", err)
	}

	if turn.Adapter() != adapter {
		t.Fatal("expected turn adapter to be the owning adapter")
	}
	if turn.Activity() != nil {
		t.Fatal("expected proactive turn without activity")
	}

	if _, ok := turn.Get("missing"); ok {
		t.Fatal("expected missing key")
	}

	turn.Set("count", 3)
	if got, ok := Value[int](turn, "count"); !ok || got != 3 {
		t.Fatalf("Value[int] = %v, %v, want 3, true", got, ok)
	}
	if _, ok := Value[string](turn, "count"); ok {
		t.Fatal("expected type mismatch to report false")
	}
	if _, ok := Value[int](nil, "count"); ok {
		t.Fatal("expected nil turn to report false")
	}
}

func TestTurnContextSendAddressesInboundConversation(t *testing.T) {
	transport := &recordingTransport{}
	adapter, err := NewAdapter(transport)
	if err != nil {
		t.Fatalf("NewAdapter error: %v", err)
	}
	turn, err := NewTurnContext(adapter, inbound())
	if err != nil {
		t.Fatalf("NewTurnContext error: %v", err)
	}

	if turn.Responded() {
		t.Fatal("expected no response before send")
	}

	res, err := turn.SendText(context.Background(), "hi")
	if err != nil {
		t.Fatalf("SendText error: %v", err)
	}
	if res.ID != "sent-1" {
		t.Fatalf("resource id = %q, want %q", res.ID, "sent-1")
	}
	if !turn.Responded() {
		t.Fatal("expected responded after send")
	}

	sent := transport.sent[0]
	if sent.Conversation.ID != "conv" || sent.Recipient.ID != "user" || sent.From.ID != "bot" {
		t.Fatalf("sent activity address = %#v", sent)
	}
	if sent.ReplyToID != "in-1" {
		t.Fatalf("reply to = %q, want %q", sent.ReplyToID, "in-1")
	}

	explicit := &schema.Activity{Type: schema.ActivityMessage, Text: "elsewhere", Conversation: schema.ConversationAccount{ID: "other"}}
	if _, err := turn.SendActivities(context.Background(), explicit); err != nil {
		t.Fatalf("SendActivities error: %v", err)
	}
	if transport.sent[1].Conversation.ID != "other" {
		t.Fatalf("conversation = %q, want %q", transport.sent[1].Conversation.ID, "other")
	}
}

func TestTurnContextUpdateAndDelete(t *testing.T) {
	transport := &recordingTransport{}
	adapter, err := NewAdapter(transport)
	if err != nil {
		t.Fatalf("NewAdapter error: %v", err)
	}
	turn, err := NewTurnContext(adapter, inbound())
	if err != nil {
		t.Fatalf("NewTurnContext error: %v", err)
	}

	update := &schema.Activity{ID: "sent-9", Text: "edited"}
	res, err := turn.UpdateActivity(context.Background(), update)
	if err != nil {
		t.Fatalf("UpdateActivity error: %v", err)
	}
	if res.ID != "sent-9" {
		t.Fatalf("resource id = %q, want %q", res.ID, "sent-9")
	}
	if transport.updated[0].Conversation.ID != "conv" {
		t.Fatalf("updated conversation = %q, want %q", transport.updated[0].Conversation.ID, "conv")
	}
	if transport.updated[0].ReplyToID != "" {
		t.Fatalf("updated reply to = %q, want empty", transport.updated[0].ReplyToID)
	}

	if err := turn.DeleteActivity(context.Background(), "sent-9"); err != nil {
		t.Fatalf("DeleteActivity error: %v", err)
	}
	if len(transport.deleted) != 1 || transport.deleted[0] != "sent-9" {
		t.Fatalf("deleted = %#v, want [sent-9]", transport.deleted)
	}

	if err := turn.DeleteActivity(context.Background(), ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("DeleteActivity(\"\") error = %v, want %v", err, ErrInvalidArgument)
	}
}

func TestTurnContextSendFailureKeepsRespondedFalse(t *testing.T) {
	transport := &recordingTransport{sendErr: errors.New("down")}
	adapter, err := NewAdapter(transport)
	if err != nil {
		t.Fatalf("NewAdapter error: %v", err)
	}
	turn, err := NewTurnContext(adapter, inbound())
	if err != nil {
		t.Fatalf("NewTurnContext error: %v", err)
	}

	if _, err := turn.SendText(context.Background(), "hi"); err == nil {
		t.Fatal("expected send error")
	}
	if turn.Responded() {
		t.Fatal("expected responded to stay false after failed send")
	}
}
