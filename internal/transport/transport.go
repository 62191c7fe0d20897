// Package transport implements the connection manager (spec.md §4.4) and
// its pluggable transport backends (SMTP, SES, a SparkPost-shaped
// transactional HTTP API).
package transport

import (
	"context"
	"errors"

	"github.com/ignite/nuntius/internal/domain"
)

// Transport sends one EmailMessage over an already-open connection.
// Implementations classify failures into the three buckets the connection
// manager needs to decide whether to retry (spec.md §4.4, §4.7):
// ErrServerDisconnected (reopen + retry), a transient error (retry in
// place), or ErrRecipientRefused (never retried, maps to Blocked).
type Transport interface {
	// Open establishes the underlying connection (SMTP session, HTTP
	// client, SES client). Called once per connection lifetime.
	Open(ctx context.Context) error
	// Send transmits one message over the open connection.
	Send(ctx context.Context, msg *domain.EmailMessage) (domain.SendOutcome, error)
	// Close tears down the underlying connection.
	Close() error
}

// ErrRecipientRefused marks a per-recipient refusal: the transport rejected
// this specific address, not the connection. Never retried (spec.md §4.4
// "Do not retry on per-recipient refusals").
var ErrRecipientRefused = errors.New("transport: recipient refused")

// ErrServerDisconnected marks a dropped/reset connection. The connection
// manager closes and reopens before retrying (spec.md §4.4).
var ErrServerDisconnected = errors.New("transport: server disconnected")

// ErrTransient marks a retryable transport-level error that does not
// require reopening the connection (timeout, 5xx API error).
var ErrTransient = errors.New("transport: transient error")
