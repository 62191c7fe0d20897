// Package webhook implements the event ingestor (C10): normalised
// delivery-status callbacks are reconciled against send records and fed to
// the reputation policy (spec.md §4.10). The specific wire schema of any
// third-party transport provider is out of scope (spec.md "Out of scope");
// only the normalised event shape below matters.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/nuntius/internal/domain"
	"github.com/ignite/nuntius/internal/pkg/logger"
	"github.com/ignite/nuntius/internal/repository"
	"github.com/ignite/nuntius/internal/reputation"
)

// EventType enumerates the normalised event_type values spec.md §4.10's
// table maps.
type EventType string

const (
	EventDelivered    EventType = "delivered"
	EventSent         EventType = "sent"
	EventRejected     EventType = "rejected"
	EventFailed       EventType = "failed"
	EventBounced      EventType = "bounced"
	EventComplained   EventType = "complained"
	EventUnsubscribed EventType = "unsubscribed"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
)

// Event is the normalised webhook event spec.md §4.10/§6 describes:
// `{ event_type, message_id, recipient, provider, raw_payload }`. Any
// provider-specific JSON shape must be translated into this struct upstream
// of Ingestor; that translation is deliberately out of this module's scope.
type Event struct {
	Type        EventType       `json:"event_type"`
	MessageID   string          `json:"message_id"`
	Recipient   string          `json:"recipient"`
	Provider    string          `json:"provider"`
	IsPermanent bool            `json:"is_permanent"`
	RawPayload  json.RawMessage `json:"raw_payload"`
}

// Ingestor normalises webhook events into send-record mutations and
// reputation-policy calls (spec.md §4.10).
type Ingestor struct {
	records     repository.SendRecordRepository
	subscribers repository.SubscriberRepository
	policy      *reputation.Policy
	log         *logger.Logger
}

// New creates an event ingestor.
func New(records repository.SendRecordRepository, subscribers repository.SubscriberRepository, policy *reputation.Policy) *Ingestor {
	return &Ingestor{records: records, subscribers: subscribers, policy: policy, log: logger.With("webhook")}
}

// Ingest applies spec.md §4.10's event-type table against ev: resolving the
// owning SendRecord (or creating an orphan one), updating its result, and
// triggering the reputation policy where the table calls for it. Unknown
// event types are logged and ignored rather than mutating any state.
func (in *Ingestor) Ingest(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventDelivered, EventSent, EventRejected, EventFailed, EventBounced,
		EventComplained, EventUnsubscribed, EventOpened, EventClicked:
	default:
		in.log.Warn("ignoring unrecognized event type", "event_type", string(ev.Type), "recipient", ev.Recipient)
		return nil
	}

	record, err := in.resolveRecord(ctx, ev)
	if err != nil {
		return err
	}

	switch ev.Type {
	case EventDelivered, EventSent:
		return in.records.UpdateResult(ctx, record.ID, domain.ResultOk, messageIDPtr(ev))
	case EventRejected:
		return in.records.UpdateResult(ctx, record.ID, domain.ResultRejected, messageIDPtr(ev))
	case EventFailed:
		return in.records.UpdateResult(ctx, record.ID, domain.ResultError, messageIDPtr(ev))
	case EventBounced:
		if ev.IsPermanent {
			if err := in.records.UpdateResult(ctx, record.ID, domain.ResultBounced, messageIDPtr(ev)); err != nil {
				return err
			}
			return in.policy.Apply(ctx, ev.Recipient, reputation.EventBounce)
		}
		return in.records.UpdateResult(ctx, record.ID, domain.ResultBlocked, messageIDPtr(ev))
	case EventComplained:
		if err := in.records.UpdateResult(ctx, record.ID, domain.ResultComplained, messageIDPtr(ev)); err != nil {
			return err
		}
		return in.policy.Apply(ctx, ev.Recipient, reputation.EventComplained)
	case EventUnsubscribed:
		if err := in.records.UpdateResult(ctx, record.ID, domain.ResultUnsubscribed, messageIDPtr(ev)); err != nil {
			return err
		}
		return in.policy.Apply(ctx, ev.Recipient, reputation.EventUnsubscribed)
	case EventOpened:
		return in.records.IncrementOpenCount(ctx, record.ID)
	case EventClicked:
		return in.records.IncrementClickCount(ctx, record.ID)
	default:
		in.log.Warn("ignoring unrecognized event type", "event_type", string(ev.Type), "recipient", ev.Recipient)
		return nil
	}
}

// resolveRecord implements spec.md §4.10's lookup order: by esp_message_id
// if present, else a synthetic orphan record keyed on the recipient email so
// a late bounce against an address the dispatcher never sent to is still
// retained for the reputation policy's history scan.
func (in *Ingestor) resolveRecord(ctx context.Context, ev Event) (*domain.SendRecord, error) {
	if ev.MessageID != "" {
		record, err := in.records.GetByESPMessageID(ctx, ev.MessageID)
		if err == nil {
			return record, nil
		}
		if err != domain.ErrSendRecordNotFound {
			return nil, err
		}
	}
	return in.records.CreateOrphan(ctx, ev.Recipient)
}

func messageIDPtr(ev Event) *string {
	if ev.MessageID == "" {
		return nil
	}
	id := ev.MessageID
	return &id
}

// Routes returns the HTTP handler accepting normalised webhook events,
// mountable alongside tracking.Handler.Routes() under the same public
// prefix (spec.md §4.10).
func (in *Ingestor) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/events", in.handleEvents)
	return r
}

// handleEvents accepts either a single Event or a JSON array of Events, the
// shape most transactional-email providers batch callbacks into.
func (in *Ingestor) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body := http.MaxBytesReader(w, r.Body, 5*1024*1024)

	events, err := decodeEvents(body)
	if err != nil {
		http.Error(w, "invalid webhook payload", http.StatusBadRequest)
		return
	}

	for _, ev := range events {
		if err := in.Ingest(ctx, ev); err != nil {
			in.log.Error("ingest failed", "event_type", string(ev.Type), "recipient", ev.Recipient, "err", err.Error())
		}
	}
	w.WriteHeader(http.StatusOK)
}

func decodeEvents(body io.Reader) ([]Event, error) {
	dec := json.NewDecoder(body)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	var single Event
	if err := json.Unmarshal(raw, &single); err == nil && single.Type != "" {
		return []Event{single}, nil
	}

	var batch []Event
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, err
	}
	return batch, nil
}
