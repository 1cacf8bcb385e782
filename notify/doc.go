// Package notify provides notification services for workflow events.
//
// Core types:
//   - Notifier: Interface for sending notifications
//   - Event: Notification event with type, message, and metadata
//   - EventType: Type of event (thread_started, review_needed, etc.)
//
// Implementations:
//   - SlackNotifier: Sends notifications to Slack webhooks
//   - WebhookNotifier: Sends notifications to generic webhooks
//   - LogNotifier: Logs notifications (for testing/debugging)
//   - MultiNotifier: Combines multiple notifiers
//   - NopNotifier: No-op notifier (for testing)
//
// Example usage:
//
//	notifier := notify.NewSlackNotifier(webhookURL,
//	    notify.WithSlackChannel("#care-review"),
//	    notify.WithSlackUsername("careflow-bot"),
//	)
//	err := notifier.Notify(ctx, notify.Event{
//	    Type:     notify.EventReviewNeeded,
//	    ThreadID: "thr_abc123",
//	    Message:  "Draft awaiting human review",
//	})
package notify
