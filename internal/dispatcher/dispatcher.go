// Package dispatcher implements the campaign dispatcher (C6, spec.md §4.6):
// one instance per Sending campaign, streaming its subscriber sequence
// through rendering and into the shared work queue.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/ignite/nuntius/internal/domain"
	"github.com/ignite/nuntius/internal/pkg/logger"
	"github.com/ignite/nuntius/internal/queue"
	"github.com/ignite/nuntius/internal/render"
	"github.com/ignite/nuntius/internal/repository"
)

// Dispatcher drives one campaign's subscriber stream into the queue,
// grounded on the teacher's CampaignSender.PrepareCampaign loop
// (internal/mailing/sender.go), generalized from materializing a batch of
// QueueItems to streaming one-at-a-time against the shutdown signal.
type Dispatcher struct {
	campaigns   repository.CampaignRepository
	subscribers repository.SubscriberRepository
	sendRecords repository.SendRecordRepository
	segments    repository.SegmentRepository
	queue       *queue.Queue
	publicURL   string
	log         *logger.Logger
}

// New builds a Dispatcher for one campaign run.
func New(
	campaigns repository.CampaignRepository,
	subscribers repository.SubscriberRepository,
	sendRecords repository.SendRecordRepository,
	segments repository.SegmentRepository,
	q *queue.Queue,
	publicURL string,
) *Dispatcher {
	return &Dispatcher{
		campaigns:   campaigns,
		subscribers: subscribers,
		sendRecords: sendRecords,
		segments:    segments,
		queue:       q,
		publicURL:   publicURL,
		log:         logger.With("dispatcher"),
	}
}

// Run executes spec.md §4.6's algorithm for campaignID to completion or
// until the queue reports its shutdown signal. On clean completion it
// marks the campaign Sent; on shutdown it returns nil without doing so, so
// a later dispatcher run can resume.
func (d *Dispatcher) Run(ctx context.Context, campaignID string) error {
	campaign, err := d.campaigns.Get(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("dispatcher: load campaign: %w", err)
	}

	segment, err := d.segments.ForCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("dispatcher: resolve segment: %w", err)
	}

	var cursor domain.SubscriberCursor
	utmTerm := ""
	if segment != nil {
		cursor, err = segment.Subscribers(ctx, campaignID)
		utmTerm = segment.UTMTerm()
	} else {
		cursor, err = d.subscribers.AllSubscribed(ctx, campaignID)
	}
	if err != nil {
		return fmt.Errorf("dispatcher: open subscriber cursor: %w", err)
	}
	defer cursor.Close()

	tmpl := render.NewCampaignTemplate(campaign)
	finished, err := d.drain(ctx, campaign, cursor, tmpl, utmTerm)
	if err != nil {
		return err
	}
	if !finished {
		d.log.Info("dispatcher stopped on shutdown signal", "campaign_id", campaignID)
		return nil
	}

	if err := d.campaigns.MarkSent(ctx, campaignID); err != nil {
		return fmt.Errorf("dispatcher: mark sent: %w", err)
	}
	d.log.Info("dispatcher finished campaign", "campaign_id", campaignID)
	return nil
}

// drain implements algorithm step 3: the anti-join already narrowed the
// cursor to subscribers lacking a non-Pending SendRecord (steps 1-2); this
// loop re-checks subscriber status, get-or-creates the record, renders, and
// enqueues, polling the queue's shutdown signal on back-pressure.
func (d *Dispatcher) drain(
	ctx context.Context,
	campaign *domain.Campaign,
	cursor domain.SubscriberCursor,
	tmpl *render.CampaignTemplate,
	utmTerm string,
) (finished bool, err error) {
	for {
		if d.queue.ShuttingDown() {
			return false, nil
		}
		if ctx.Err() != nil {
			// Per-campaign cancellation (supervisor stopped just this
			// campaign: it reverted to Waiting, or a sender error marked it
			// Error), distinct from the shared queue's global shutdown.
			return false, nil
		}

		identity, ok, err := cursor.Next(ctx)
		if err != nil {
			return false, fmt.Errorf("dispatcher: cursor next: %w", err)
		}
		if !ok {
			return true, nil
		}

		sub, err := d.subscribers.Get(ctx, identity.SubscriberID)
		if err != nil {
			d.log.Warn("dispatcher: subscriber lookup failed, skipping", "subscriber_id", identity.SubscriberID, "err", err.Error())
			continue
		}
		if !sub.IsSendable() {
			continue
		}

		record, created, err := d.sendRecords.GetOrCreate(ctx, campaign.ID, sub.ID, sub.Email)
		if err != nil {
			return false, fmt.Errorf("dispatcher: get-or-create send record: %w", err)
		}
		if !created && record.Result != domain.ResultPending {
			continue
		}

		message := render.RenderWithTemplate(tmpl, render.Input{
			Campaign:   campaign,
			SendRecord: record,
			Attributes: sub.Attributes,
			UTMTerm:    utmTerm,
			PublicURL:  d.publicURL,
		})

		item := queue.Item{Message: message, SendRecordID: record.ID, CampaignID: campaign.ID}
		if err := d.queue.Put(item); err != nil {
			if err == queue.ErrShutdown {
				return false, nil
			}
			return false, fmt.Errorf("dispatcher: enqueue: %w", err)
		}
	}
}
