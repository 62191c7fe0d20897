// Package reputation implements the bounce-reputation policy (spec.md
// §4.11): the rule deciding when a recipient's repeated bounces tip it over
// into a permanently-Bounced subscriber status, versus a transient blip that
// leaves the subscriber untouched.
package reputation

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/nuntius/internal/domain"
	"github.com/ignite/nuntius/internal/pkg/logger"
	"github.com/ignite/nuntius/internal/repository"
)

// Event is the normalised input the event ingestor (C10) feeds to Apply.
type Event string

const (
	EventComplained   Event = "complained"
	EventUnsubscribed Event = "unsubscribed"
	EventBounce       Event = "bounce"
)

// Config mirrors BOUNCE_PARAMS.{consecutive,duration,limit} (spec.md §6).
type Config struct {
	Consecutive  int
	DurationDays int
	Limit        int
}

// DefaultConfig returns spec.md §4.11's defaults (consecutive=1, duration=7,
// limit=3).
func DefaultConfig() Config {
	return Config{Consecutive: 1, DurationDays: 7, Limit: 3}
}

// Policy applies the bounce-reputation rule against a subscriber's send
// history. It holds no state of its own; every call re-derives the verdict
// from the database, the source of truth (spec.md §5).
type Policy struct {
	sendRecords repository.SendRecordRepository
	subscribers repository.SubscriberRepository
	cfg         Config
	log         *logger.Logger
}

// New creates a reputation policy. cfg should come from config.BounceConfig.
func New(sendRecords repository.SendRecordRepository, subscribers repository.SubscriberRepository, cfg Config) *Policy {
	return &Policy{sendRecords: sendRecords, subscribers: subscribers, cfg: cfg, log: logger.With("reputation")}
}

// historyLimit bounds the RecentByEmail scan. consecutive+1 plus the handful
// of records needed to establish a duration-window success is always well
// under this; it exists only to keep the query from being unbounded.
const historyLimit = 200

// Apply implements spec.md §4.11. Complained/Unsubscribed set the
// subscriber's status directly; Bounce runs the ordered cascade over the
// subscriber's send-record history. Unknown emails (no subscriber row) are
// logged and ignored — there is nothing to update.
func (p *Policy) Apply(ctx context.Context, email string, event Event) error {
	switch event {
	case EventComplained:
		return p.setStatus(ctx, email, domain.SubscriberComplained)
	case EventUnsubscribed:
		return p.setStatus(ctx, email, domain.SubscriberUnsubscribed)
	case EventBounce:
		return p.applyBounceCascade(ctx, email)
	default:
		return fmt.Errorf("reputation: unknown event %q", event)
	}
}

func (p *Policy) setStatus(ctx context.Context, email string, status domain.SubscriberStatus) error {
	sub, err := p.subscribers.GetByEmail(ctx, email)
	if err == domain.ErrSubscriberNotFound {
		p.log.Debug("no subscriber for event", "email", email, "status", string(status))
		return nil
	}
	if err != nil {
		return fmt.Errorf("reputation: lookup subscriber: %w", err)
	}
	return p.subscribers.UpdateStatus(ctx, sub.ID, status)
}

// applyBounceCascade runs spec.md §4.11's four-step ordered cascade over
// SendRecords for email, most recent first.
func (p *Policy) applyBounceCascade(ctx context.Context, email string) error {
	records, err := p.sendRecords.RecentByEmail(ctx, email, historyLimit)
	if err != nil {
		return fmt.Errorf("reputation: recent send records: %w", err)
	}

	// Step 1: no Ok/Unknown record anywhere means the very first contact
	// with this address bounced. Fail closed.
	if !anyGood(records) {
		return p.setStatus(ctx, email, domain.SubscriberBounced)
	}

	// Step 2: a recent success within the window, and the recent bounce
	// count hasn't exceeded the limit, leaves the subscriber unchanged.
	cutoff := time.Now().AddDate(0, 0, -p.cfg.DurationDays)
	recentGood := false
	recentBounces := 0
	for _, r := range records {
		if r.Datetime.Before(cutoff) {
			continue
		}
		if r.Result == domain.ResultOk || r.Result == domain.ResultUnknown {
			recentGood = true
		}
		if r.Result == domain.ResultBounced {
			recentBounces++
		}
	}
	if recentGood && recentBounces <= p.cfg.Limit {
		return nil
	}

	// Step 3: a success among the most recent consecutive+1 records also
	// leaves the subscriber unchanged.
	n := p.cfg.Consecutive + 1
	if n > len(records) {
		n = len(records)
	}
	if anyGood(records[:n]) {
		return nil
	}

	// Step 4: otherwise, classify as Bounced.
	return p.setStatus(ctx, email, domain.SubscriberBounced)
}

func anyGood(records []domain.SendRecord) bool {
	for _, r := range records {
		if r.Result == domain.ResultOk || r.Result == domain.ResultUnknown {
			return true
		}
	}
	return false
}
