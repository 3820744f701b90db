package gateway

import (
	"context"
	"fmt"
	"time"

	"botkit/pkg/bot"
	"botkit/pkg/schema"
)

const defaultSchedulerInterval = time.Second

// runScheduler moves due reminders onto the outbound queue. It wakes on every
// tick and whenever a reminder is added.
func (s *Service) runScheduler(ctx context.Context) {
	interval := time.Duration(s.cfg.Scheduler.Interval) * time.Second
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reminders.Wake():
		case <-ticker.C:
		}

		s.enqueueDueReminders(ctx, time.Now())
	}
}

func (s *Service) enqueueDueReminders(ctx context.Context, now time.Time) int {
	queued := 0
	for _, reminder := range s.reminders.PopDue(now) {
		activity := reminder.Reference.ApplyTo(schema.NewMessage("⏰ " + reminder.Text))
		if !s.bus.PublishOutbound(ctx, activity) {
			s.log.Warn("Dropped due reminder", "reminder_id", reminder.ID, "key", reminder.Reference.Key())
			continue
		}
		queued++
	}

	return queued
}

// dispatchOutbound delivers queued outbound activities until ctx ends or the
// bus closes.
func (s *Service) dispatchOutbound(ctx context.Context) {
	for {
		activity, ok := s.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}

		if err := s.deliver(ctx, activity); err != nil {
			s.log.Error("Failed to deliver outbound activity",
				"channel", activity.ChannelID,
				"conversation_id", activity.Conversation.ID,
				"error", err,
			)
		}
	}
}

// deliver sends one addressed activity in a proactive turn on the adapter of
// its channel.
func (s *Service) deliver(ctx context.Context, activity *schema.Activity) error {
	adapter, ok := s.adapters[activity.ChannelID]
	if !ok {
		return fmt.Errorf("channel %q is not running", activity.ChannelID)
	}

	reference := schema.ConversationReference{
		ActivityID:   activity.ReplyToID,
		User:         activity.Recipient,
		Bot:          activity.From,
		Conversation: activity.Conversation,
		ChannelID:    activity.ChannelID,
		ServiceURL:   activity.ServiceURL,
	}

	return adapter.ContinueConversation(ctx, &reference, func(ctx context.Context, turn *bot.TurnContext) error {
		_, err := turn.SendActivities(ctx, activity)
		return err
	})
}
