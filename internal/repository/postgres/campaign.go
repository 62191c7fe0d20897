package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/nuntius/internal/domain"
)

// CampaignRepo implements repository.CampaignRepository.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

// List returns every campaign, most recently created first.
func (r *CampaignRepo) List(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, utm_name, from_name, from_email, reply_to_name, reply_to_email,
		       subject, html_body, text_body, segment_id, status,
		       start_date, end_date, first_sent, signature_key, tracking_domain,
		       created, updated
		FROM campaigns ORDER BY created DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		var segmentID sql.NullString
		var startDate, endDate, firstSent sql.NullTime
		if err := rows.Scan(
			&c.ID, &c.Name, &c.UTMName, &c.FromName, &c.FromEmail, &c.ReplyToName, &c.ReplyToEmail,
			&c.Subject, &c.HTMLBody, &c.TextBody, &segmentID, &c.Status,
			&startDate, &endDate, &firstSent, &c.SignatureKey, &c.TrackingDomain,
			&c.Created, &c.Updated,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan campaign: %w", err)
		}
		if segmentID.Valid {
			c.SegmentID = &segmentID.String
		}
		if startDate.Valid {
			c.StartDate = &startDate.Time
		}
		if endDate.Valid {
			c.EndDate = &endDate.Time
		}
		if firstSent.Valid {
			c.FirstSent = &firstSent.Time
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Create inserts a new campaign. If c.ID is unset, a fresh uuid is assigned.
func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	var segmentID interface{}
	if c.SegmentID != nil {
		segmentID = *c.SegmentID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, name, utm_name, from_name, from_email, reply_to_name, reply_to_email,
			 subject, html_body, text_body, segment_id, status, signature_key, tracking_domain,
			 created, updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
	`, c.ID, c.Name, c.UTMName, c.FromName, c.FromEmail, c.ReplyToName, c.ReplyToEmail,
		c.Subject, c.HTMLBody, c.TextBody, segmentID, c.Status, c.SignatureKey, c.TrackingDomain)
	if err != nil {
		return "", fmt.Errorf("postgres: create campaign: %w", err)
	}
	return c.ID, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var segmentID sql.NullString
	var startDate, endDate, firstSent sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, utm_name, from_name, from_email, reply_to_name, reply_to_email,
		       subject, html_body, text_body, segment_id, status,
		       start_date, end_date, first_sent, signature_key, tracking_domain,
		       created, updated
		FROM campaigns WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Name, &c.UTMName, &c.FromName, &c.FromEmail, &c.ReplyToName, &c.ReplyToEmail,
		&c.Subject, &c.HTMLBody, &c.TextBody, &segmentID, &c.Status,
		&startDate, &endDate, &firstSent, &c.SignatureKey, &c.TrackingDomain,
		&c.Created, &c.Updated,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get campaign: %w", err)
	}
	if segmentID.Valid {
		c.SegmentID = &segmentID.String
	}
	if startDate.Valid {
		c.StartDate = &startDate.Time
	}
	if endDate.Valid {
		c.EndDate = &endDate.Time
	}
	if firstSent.Valid {
		c.FirstSent = &firstSent.Time
	}
	return c, nil
}

// Outbox returns every campaign with status in (Waiting, Sending) whose
// [start_date, end_date] window (if set) contains now, mirroring
// domain.Campaign.InOutbox at the SQL level so the supervisor's poll stays
// a single query rather than a full table scan plus in-memory filter
// (spec.md §3, §4.8).
func (r *CampaignRepo) Outbox(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, utm_name, from_name, from_email, reply_to_name, reply_to_email,
		       subject, html_body, text_body, segment_id, status,
		       start_date, end_date, first_sent, signature_key, tracking_domain,
		       created, updated
		FROM campaigns
		WHERE status IN ('waiting', 'sending')
		  AND (start_date IS NULL OR start_date <= NOW())
		  AND (end_date IS NULL OR end_date >= NOW())
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: outbox: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		var segmentID sql.NullString
		var startDate, endDate, firstSent sql.NullTime
		if err := rows.Scan(
			&c.ID, &c.Name, &c.UTMName, &c.FromName, &c.FromEmail, &c.ReplyToName, &c.ReplyToEmail,
			&c.Subject, &c.HTMLBody, &c.TextBody, &segmentID, &c.Status,
			&startDate, &endDate, &firstSent, &c.SignatureKey, &c.TrackingDomain,
			&c.Created, &c.Updated,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan outbox campaign: %w", err)
		}
		if segmentID.Valid {
			c.SegmentID = &segmentID.String
		}
		if startDate.Valid {
			c.StartDate = &startDate.Time
		}
		if endDate.Valid {
			c.EndDate = &endDate.Time
		}
		if firstSent.Valid {
			c.FirstSent = &firstSent.Time
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, updated = NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("postgres: update campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrCampaignNotFound
	}
	return nil
}

// MarkSent sets status=Sent and first_sent=now only if first_sent is
// currently unset (spec.md §4.6 step 4).
func (r *CampaignRepo) MarkSent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $1, updated = NOW(), first_sent = COALESCE(first_sent, $2)
		WHERE id = $3
	`, domain.CampaignSent, time.Now(), id)
	if err != nil {
		return fmt.Errorf("postgres: mark sent: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrCampaignNotFound
	}
	return nil
}
