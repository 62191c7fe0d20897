package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/nuntius/internal/domain"
)

// SendRecordRepo implements repository.SendRecordRepository.
type SendRecordRepo struct{ db *sql.DB }

// NewSendRecordRepo creates a Postgres-backed send-record repository.
func NewSendRecordRepo(db *sql.DB) *SendRecordRepo { return &SendRecordRepo{db: db} }

// GetOrCreate resolves the (campaignID, subscriberID) send record,
// inserting one in state Pending with a fresh 12-char tracking id if none
// exists yet (spec.md §4.6 step 3c). The ON CONFLICT DO NOTHING plus a
// second SELECT keeps the operation atomic under concurrent dispatcher
// restarts, following the teacher's ON CONFLICT DO NOTHING + rows-affected
// idiom in EnqueueSubscribers.
func (r *SendRecordRepo) GetOrCreate(ctx context.Context, campaignID, subscriberID, email string) (*domain.SendRecord, bool, error) {
	trackingID := newTrackingID()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO send_records
			(id, campaign_id, subscriber_id, email, result, datetime, tracking_id, open_count, click_count)
		VALUES ($1, $2, $3, $4, 'pending', NOW(), $5, 0, 0)
		ON CONFLICT (campaign_id, subscriber_id) WHERE campaign_id != '' AND subscriber_id != '' DO NOTHING
	`, uuid.New().String(), campaignID, subscriberID, email, trackingID)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: get-or-create send record: %w", err)
	}
	n, _ := res.RowsAffected()
	created := n > 0

	sr := &domain.SendRecord{}
	var espMessageID sql.NullString
	err = r.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, subscriber_id, email, result, datetime,
		       esp_message_id, tracking_id, open_count, click_count
		FROM send_records WHERE campaign_id = $1 AND subscriber_id = $2
	`, campaignID, subscriberID).Scan(
		&sr.ID, &sr.CampaignID, &sr.SubscriberID, &sr.Email, &sr.Result, &sr.Datetime,
		&espMessageID, &sr.TrackingID, &sr.OpenCount, &sr.ClickCount,
	)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: fetch send record: %w", err)
	}
	if espMessageID.Valid {
		sr.ESPMessageID = &espMessageID.String
	}
	return sr, created, nil
}

// UpdateResult transitions a send record's result, rejecting any move that
// violates domain.CanTransitionFrom's monotonic ordering (spec.md §4.7,
// §8 property 2).
func (r *SendRecordRepo) UpdateResult(ctx context.Context, id string, result domain.SendResult, espMessageID *string) error {
	var current domain.SendResult
	if err := r.db.QueryRowContext(ctx, `SELECT result FROM send_records WHERE id = $1`, id).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrSendRecordNotFound
		}
		return fmt.Errorf("postgres: read current result: %w", err)
	}
	if !domain.CanTransitionFrom(current, result) {
		return domain.ErrInvalidTransition
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE send_records
		SET result = $1, esp_message_id = COALESCE($2, esp_message_id), datetime = NOW()
		WHERE id = $3
	`, result, espMessageID, id)
	if err != nil {
		return fmt.Errorf("postgres: update send record result: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrSendRecordNotFound
	}
	return nil
}

func (r *SendRecordRepo) GetByTrackingID(ctx context.Context, trackingID string) (*domain.SendRecord, error) {
	return r.scanOne(ctx, `
		SELECT id, campaign_id, subscriber_id, email, result, datetime,
		       esp_message_id, tracking_id, open_count, click_count
		FROM send_records WHERE tracking_id = $1
	`, trackingID)
}

func (r *SendRecordRepo) GetByESPMessageID(ctx context.Context, espMessageID string) (*domain.SendRecord, error) {
	return r.scanOne(ctx, `
		SELECT id, campaign_id, subscriber_id, email, result, datetime,
		       esp_message_id, tracking_id, open_count, click_count
		FROM send_records WHERE esp_message_id = $1
	`, espMessageID)
}

func (r *SendRecordRepo) scanOne(ctx context.Context, query string, arg interface{}) (*domain.SendRecord, error) {
	sr := &domain.SendRecord{}
	var espMessageID sql.NullString
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&sr.ID, &sr.CampaignID, &sr.SubscriberID, &sr.Email, &sr.Result, &sr.Datetime,
		&espMessageID, &sr.TrackingID, &sr.OpenCount, &sr.ClickCount,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSendRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get send record: %w", err)
	}
	if espMessageID.Valid {
		sr.ESPMessageID = &espMessageID.String
	}
	return sr, nil
}

func (r *SendRecordRepo) IncrementOpenCount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE send_records SET open_count = open_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: increment open count: %w", err)
	}
	return nil
}

func (r *SendRecordRepo) IncrementClickCount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE send_records SET click_count = click_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: increment click count: %w", err)
	}
	return nil
}

// RecentByEmail feeds the reputation policy's bounce-history cascade
// (spec.md §4.11): most recent first, bounded to limit rows.
func (r *SendRecordRepo) RecentByEmail(ctx context.Context, email string, limit int) ([]domain.SendRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, subscriber_id, email, result, datetime,
		       esp_message_id, tracking_id, open_count, click_count
		FROM send_records
		WHERE email = $1
		ORDER BY datetime DESC
		LIMIT $2
	`, email, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent by email: %w", err)
	}
	defer rows.Close()

	var out []domain.SendRecord
	for rows.Next() {
		var sr domain.SendRecord
		var espMessageID sql.NullString
		if err := rows.Scan(
			&sr.ID, &sr.CampaignID, &sr.SubscriberID, &sr.Email, &sr.Result, &sr.Datetime,
			&espMessageID, &sr.TrackingID, &sr.OpenCount, &sr.ClickCount,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan recent send record: %w", err)
		}
		if espMessageID.Valid {
			sr.ESPMessageID = &espMessageID.String
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// CreateOrphan inserts a send record with no owning campaign or subscriber
// for a webhook event that matches no esp_message_id on file (spec.md
// §4.10). campaign_id/subscriber_id are left as the empty-string sentinel
// used throughout rather than NULL, consistent with GetOrCreate's rows.
func (r *SendRecordRepo) CreateOrphan(ctx context.Context, email string) (*domain.SendRecord, error) {
	trackingID := newTrackingID()
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO send_records
			(id, campaign_id, subscriber_id, email, result, datetime, tracking_id, open_count, click_count)
		VALUES ($1, '', '', $2, 'pending', NOW(), $3, 0, 0)
	`, id, email, trackingID)
	if err != nil {
		return nil, fmt.Errorf("postgres: create orphan send record: %w", err)
	}
	return r.scanOne(ctx, `
		SELECT id, campaign_id, subscriber_id, email, result, datetime,
		       esp_message_id, tracking_id, open_count, click_count
		FROM send_records WHERE id = $1
	`, id)
}

// newTrackingID generates the 12-char URL-safe token spec.md §3/§6 requires.
func newTrackingID() string {
	id := uuid.New()
	return id.String()[:8] + id.String()[9:13]
}
