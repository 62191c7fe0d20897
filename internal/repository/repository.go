// Package repository defines the data-access contracts that the dispatcher,
// sender, tracking, webhook, and reputation components depend on, without
// committing them to Postgres. internal/repository/postgres provides the
// production implementation.
package repository

import (
	"context"

	"github.com/ignite/nuntius/internal/domain"
)

// CampaignRepository is the campaign data-access contract (spec.md §3, §4.6, §4.8).
type CampaignRepository interface {
	// Get returns a single campaign. Returns domain.ErrCampaignNotFound if absent.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns every campaign, most recently created first, for the
	// campaign-lifecycle service's administrative listing.
	List(ctx context.Context) ([]domain.Campaign, error)

	// Create inserts a new campaign in CampaignWaiting status and returns its id.
	Create(ctx context.Context, c *domain.Campaign) (string, error)

	// Outbox returns every campaign currently in the outbox (spec.md §3
	// "A campaign is in the outbox iff...", consulted by C8).
	Outbox(ctx context.Context) ([]domain.Campaign, error)

	// UpdateStatus transitions a campaign's status.
	UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error

	// MarkSent sets status=Sent and first_sent=now (if unset) on clean
	// dispatcher completion (spec.md §4.6 step 4).
	MarkSent(ctx context.Context, id string) error
}

// SubscriberRepository is the subscriber data-access contract (spec.md §3).
type SubscriberRepository interface {
	Get(ctx context.Context, id string) (*domain.Subscriber, error)
	// GetByEmail looks up a subscriber by email, the only identifier a
	// webhook/reputation-policy event carries (spec.md §4.10, §4.11).
	// Returns domain.ErrSubscriberNotFound if no subscriber row exists for
	// the address (orphan SendRecords have no subscriber to update).
	GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error)
	// UpdateStatus applies a reputation-policy transition (spec.md §4.11).
	UpdateStatus(ctx context.Context, id string, status domain.SubscriberStatus) error
	// AllSubscribed streams every Subscribed subscriber with no non-Pending
	// SendRecord for campaignID, used when a campaign targets the full
	// subscriber set rather than a segment (spec.md §4.6 steps 1-2: the
	// anti-join against existing send records is expressed here so the
	// sequence is streamed, not materialised).
	AllSubscribed(ctx context.Context, campaignID string) (domain.SubscriberCursor, error)
}

// SendRecordRepository is the send-record data-access contract (spec.md §3,
// §4.6, §4.7, §4.9, §4.10, §4.11).
type SendRecordRepository interface {
	// GetOrCreate atomically resolves the (campaign, subscriber) record,
	// creating one in state Pending with a fresh tracking id if none
	// exists (spec.md §4.6 step 3c).
	GetOrCreate(ctx context.Context, campaignID, subscriberID, email string) (*domain.SendRecord, bool, error)

	// UpdateResult transitions result, enforcing domain.CanTransitionFrom.
	// Returns domain.ErrInvalidTransition if the move is not monotonic.
	UpdateResult(ctx context.Context, id string, result domain.SendResult, espMessageID *string) error

	// GetByTrackingID looks up a record by its tracking id (spec.md §4.9).
	GetByTrackingID(ctx context.Context, trackingID string) (*domain.SendRecord, error)

	// GetByESPMessageID looks up a record by the opaque transport message
	// id captured at send time (spec.md §4.10).
	GetByESPMessageID(ctx context.Context, espMessageID string) (*domain.SendRecord, error)

	// IncrementOpenCount atomically bumps open_count (spec.md §4.9).
	IncrementOpenCount(ctx context.Context, id string) error
	// IncrementClickCount atomically bumps click_count (spec.md §4.9).
	IncrementClickCount(ctx context.Context, id string) error

	// RecentByEmail returns a subscriber's send-record history across all
	// campaigns, most recent first, bounded to limit rows — the input to
	// the reputation policy's bounce-history scan (spec.md §4.11).
	RecentByEmail(ctx context.Context, email string, limit int) ([]domain.SendRecord, error)

	// CreateOrphan inserts a send record with no owning campaign or
	// subscriber, for a webhook event whose esp_message_id matches nothing
	// on file (spec.md §4.10). CampaignID/SubscriberID are the empty-string
	// sentinel; the row is retained rather than dropped because the
	// reputation policy's history scan is keyed on email, not campaign.
	CreateOrphan(ctx context.Context, email string) (*domain.SendRecord, error)
}

// SegmentRepository resolves a campaign's segment, if any, for the
// dispatcher (spec.md §4.6 step 1).
type SegmentRepository interface {
	// ForCampaign returns the campaign's segment, or (nil, nil) if the
	// campaign targets the full subscriber set.
	ForCampaign(ctx context.Context, campaignID string) (domain.Segment, error)
}
