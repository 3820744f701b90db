// Package middleware holds the built-in turn middleware: logging, sender
// allow lists, bus events, reference capture, tracing and panic recovery.
package middleware

import (
	"botkit/pkg/bot"
	"botkit/pkg/schema"
)

// activityOf returns the turn's inbound activity, or an empty one when a set
// runs outside an adapter without an activity.
func activityOf(turn *bot.TurnContext) *schema.Activity {
	if activity := turn.Activity(); activity != nil {
		return activity
	}

	return &schema.Activity{}
}
