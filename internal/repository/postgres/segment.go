package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/nuntius/internal/domain"
)

// SegmentRepo implements repository.SegmentRepository.
type SegmentRepo struct{ db *sql.DB }

// NewSegmentRepo creates a Postgres-backed segment repository.
func NewSegmentRepo(db *sql.DB) *SegmentRepo { return &SegmentRepo{db: db} }

// ForCampaign resolves the campaign's segment, or (nil, nil) when the
// campaign has no segment_id and so targets the full subscriber set
// (spec.md §4.6 step 1).
func (r *SegmentRepo) ForCampaign(ctx context.Context, campaignID string) (domain.Segment, error) {
	var segmentID sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT segment_id FROM campaigns WHERE id = $1`, campaignID).Scan(&segmentID)
	if err == sql.ErrNoRows {
		return nil, domain.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: resolve segment: %w", err)
	}
	if !segmentID.Valid || segmentID.String == "" {
		return nil, nil
	}

	var utmTerm string
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(utm_term,'') FROM segments WHERE id = $1`, segmentID.String).Scan(&utmTerm); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("postgres: segment %s not found", segmentID.String)
		}
		return nil, fmt.Errorf("postgres: segment utm_term: %w", err)
	}
	return &pgSegment{db: r.db, id: segmentID.String, utmTerm: utmTerm}, nil
}

// pgSegment implements domain.Segment against a segment_members membership
// table, anti-joining against send_records the same way SubscriberRepo's
// full-list AllSubscribed query does (spec.md §4.6 steps 1-2).
type pgSegment struct {
	db      *sql.DB
	id      string
	utmTerm string
}

func (s *pgSegment) Subscribers(ctx context.Context, campaignID string) (domain.SubscriberCursor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.email
		FROM subscribers s
		JOIN segment_members sm ON sm.subscriber_id = s.id
		WHERE sm.segment_id = $1
		  AND s.status = 'subscribed'
		  AND NOT EXISTS (
		      SELECT 1 FROM send_records sr
		      WHERE sr.subscriber_id = s.id
		        AND sr.campaign_id = $2
		        AND sr.result != 'pending'
		  )
	`, s.id, campaignID)
	if err != nil {
		return nil, fmt.Errorf("postgres: segment subscribers: %w", err)
	}
	return &rowCursor{rows: rows}, nil
}

func (s *pgSegment) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM segment_members sm
		JOIN subscribers s ON s.id = sm.subscriber_id
		WHERE sm.segment_id = $1 AND s.status = 'subscribed'
	`, s.id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: segment count: %w", err)
	}
	return n, nil
}

func (s *pgSegment) UTMTerm() string { return s.utmTerm }
