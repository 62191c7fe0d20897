package domain

import "time"

// SendResult is the result enum for a SendRecord (a.k.a. CampaignSentEvent),
// spec.md §3/§4.7. New records start as ResultPending; the zero value ""
// is not a valid result.
type SendResult string

const (
	ResultPending      SendResult = "pending"
	ResultUnknown      SendResult = "unknown"
	ResultRejected     SendResult = "rejected"
	ResultOk           SendResult = "ok"
	ResultBounced      SendResult = "bounced"
	ResultComplained   SendResult = "complained"
	ResultUnsubscribed SendResult = "unsubscribed"
	ResultBlocked      SendResult = "blocked"
	ResultError        SendResult = "error"
)

// resultRank orders SendResult for the monotonicity invariant of spec.md §8
// property 2: Pending < {Unknown,Blocked} < everything terminal.
var resultRank = map[SendResult]int{
	ResultPending:      0,
	ResultUnknown:      1,
	ResultBlocked:      1,
	ResultOk:           2,
	ResultRejected:     2,
	ResultBounced:      2,
	ResultComplained:   2,
	ResultUnsubscribed: 2,
	ResultError:        2,
}

// CanTransitionFrom reports whether moving from `from` to `to` respects the
// monotonic partial order required by spec.md §8 property 2 and §4.7's
// statement that Ok/Rejected/Bounced/Complained/Unsubscribed/Blocked/Error
// are terminal with respect to the sender loop. Webhooks are allowed to
// refine Unknown and Ok into a later terminal state (spec.md §4.7 table);
// this is expressed here as rank non-decrease plus the explicit Unknown/Ok
// refinement paths the caller already restricts to in the state machine.
func CanTransitionFrom(from, to SendResult) bool {
	return resultRank[to] >= resultRank[from]
}

// SendRecord is the per-recipient row tracking scheduling, delivery outcome,
// and tracking counters for one (campaign, subscriber) pair (spec.md §3).
type SendRecord struct {
	ID           string `json:"id" db:"id"`
	CampaignID   string `json:"campaign_id" db:"campaign_id"`
	SubscriberID string `json:"subscriber_id" db:"subscriber_id"`

	// Email is frozen at creation time so history survives subscriber
	// deletion (spec.md §3 "Ownership").
	Email string `json:"email" db:"email"`

	Result   SendResult `json:"result" db:"result"`
	Datetime time.Time  `json:"datetime" db:"datetime"`

	ESPMessageID *string `json:"esp_message_id" db:"esp_message_id"`

	// TrackingID is a 12-char URL-safe random token, unique and immutable
	// after creation (spec.md §3, §6).
	TrackingID string `json:"tracking_id" db:"tracking_id"`

	OpenCount  int `json:"open_count" db:"open_count"`
	ClickCount int `json:"click_count" db:"click_count"`
}

// IsTerminalForSender reports whether the sender loop must never transition
// out of this result (spec.md §4.7). Pending is the only non-terminal state
// from the sender's point of view; Unknown/Blocked may still be refined by
// webhooks but the sender itself never revisits a record in these states.
func (r *SendRecord) IsTerminalForSender() bool {
	return r.Result != ResultPending
}
