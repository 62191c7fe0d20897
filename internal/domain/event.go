package domain

// EventType enumerates the normalised webhook event types the event
// ingestor (C10) accepts, per spec.md §4.10's mapping table. Provider-
// specific payload shapes are normalised into this set before reaching the
// core — that normalisation step is an external collaborator (spec.md §1).
type EventType string

const (
	EventDelivered   EventType = "delivered"
	EventRejected    EventType = "rejected"
	EventFailed      EventType = "failed"
	EventBounced     EventType = "bounced"
	EventComplained  EventType = "complained"
	EventUnsubscribed EventType = "unsubscribed"
	EventOpened      EventType = "opened"
	EventClicked     EventType = "clicked"
)

// WebhookEvent is the normalised shape the event ingestor consumes
// (spec.md §4.10).
type WebhookEvent struct {
	EventType   EventType
	MessageID   string // matched against SendRecord.ESPMessageID when present
	Recipient   string
	Provider    string
	IsPermanent bool // only meaningful for EventBounced: hard vs soft bounce
	RawPayload  []byte
}
