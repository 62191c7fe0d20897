package transport

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/ignite/nuntius/internal/domain"
	"github.com/ignite/nuntius/internal/pkg/logger"
)

const (
	maxOpenAttempts = 10
	maxSendAttempts = 5
	baseBackoff     = 500 * time.Millisecond
	maxBackoff      = 30 * time.Second
)

// ConnectionManager wraps a single Transport, reopening it on disconnect and
// after max_messages_per_connection sends, per spec.md §4.4.
type ConnectionManager struct {
	transport       Transport
	shutdown        <-chan struct{}
	maxPerConn      int
	sent            int
	open            bool
	log             *logger.Logger
}

// NewConnectionManager wraps transport, recycling the connection every
// maxMessagesPerConnection sends.
func NewConnectionManager(t Transport, shutdown <-chan struct{}, maxMessagesPerConnection int) *ConnectionManager {
	return &ConnectionManager{
		transport:  t,
		shutdown:   shutdown,
		maxPerConn: maxMessagesPerConnection,
		log:        logger.With("transport"),
	}
}

// Open establishes the connection, retrying with randomized exponential
// backoff (max 30s, bounded attempts) and short-circuiting to shutdown if
// the signal fires while waiting (spec.md §4.4).
func (m *ConnectionManager) Open(ctx context.Context) error {
	if m.transport == nil {
		return errors.New("transport: no transport configured")
	}
	var lastErr error
	for attempt := 0; attempt < maxOpenAttempts; attempt++ {
		if attempt > 0 {
			wait := backoffDelay(attempt)
			timer := time.NewTimer(wait)
			select {
			case <-m.shutdown:
				timer.Stop()
				return errors.New("transport: shutdown during open")
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := m.transport.Open(ctx); err != nil {
			lastErr = err
			m.log.Warn("connection open failed", "attempt", attempt+1, "error", err.Error())
			continue
		}
		m.open = true
		m.sent = 0
		return nil
	}
	return fmt.Errorf("transport: open failed after %d attempts: %w", maxOpenAttempts, lastErr)
}

// Send transmits msg, reopening the connection first if the per-connection
// message cap was reached, and retrying transport-level errors up to
// maxSendAttempts with randomized exponential backoff. Per-recipient
// refusals are never retried (spec.md §4.4).
func (m *ConnectionManager) Send(ctx context.Context, msg *domain.EmailMessage) (domain.SendOutcome, error) {
	if !m.open || (m.maxPerConn > 0 && m.sent >= m.maxPerConn) {
		if m.open {
			m.transport.Close()
			m.open = false
		}
		if err := m.Open(ctx); err != nil {
			return domain.SendOutcome{}, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if attempt > 0 {
			wait := backoffDelay(attempt)
			timer := time.NewTimer(wait)
			select {
			case <-m.shutdown:
				timer.Stop()
				return domain.SendOutcome{}, errors.New("transport: shutdown during send retry")
			case <-ctx.Done():
				timer.Stop()
				return domain.SendOutcome{}, ctx.Err()
			case <-timer.C:
			}
		}

		outcome, err := m.transport.Send(ctx, msg)
		if err == nil {
			m.sent++
			return outcome, nil
		}

		if errors.Is(err, ErrRecipientRefused) {
			return outcome, err
		}

		if errors.Is(err, ErrServerDisconnected) {
			m.transport.Close()
			m.open = false
			if openErr := m.Open(ctx); openErr != nil {
				return domain.SendOutcome{}, openErr
			}
			lastErr = err
			continue
		}

		lastErr = err
	}
	return domain.SendOutcome{}, fmt.Errorf("transport: send failed after %d attempts: %w", maxSendAttempts, lastErr)
}

// Close tears down the underlying connection.
func (m *ConnectionManager) Close() error {
	if !m.open {
		return nil
	}
	m.open = false
	return m.transport.Close()
}

// backoffDelay computes a randomized exponential backoff: a uniform random
// duration in [0, min(maxBackoff, baseBackoff*2^(attempt-1))], with a 100ms
// floor to avoid busy-looping.
func backoffDelay(attempt int) time.Duration {
	exp := float64(baseBackoff) * math.Pow(2, float64(attempt-1))
	if exp > float64(maxBackoff) {
		exp = float64(maxBackoff)
	}
	jittered := time.Duration(rand.Float64() * exp)
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}
