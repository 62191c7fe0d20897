package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/nuntius/internal/domain"
)

// SubscriberRepo implements repository.SubscriberRepository. Its
// status-flagging shape (an UPDATE against a status column guarded by a
// rows-affected check) is grounded on the teacher's suppression repository
// (internal/repository/postgres/suppression.go Remove), generalized from a
// boolean active flag to the subscriber status enum.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

func (r *SubscriberRepo) Get(ctx context.Context, id string) (*domain.Subscriber, error) {
	s := &domain.Subscriber{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, status FROM subscribers WHERE id = $1
	`, id).Scan(&s.ID, &s.Email, &s.Status)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get subscriber: %w", err)
	}
	s.Attributes, err = r.attributes(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SubscriberRepo) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	s := &domain.Subscriber{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, status FROM subscribers WHERE email = $1
	`, email).Scan(&s.ID, &s.Email, &s.Status)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get subscriber by email: %w", err)
	}
	s.Attributes, err = r.attributes(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SubscriberRepo) attributes(ctx context.Context, subscriberID string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, value FROM subscriber_attributes WHERE subscriber_id = $1
	`, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("postgres: subscriber attributes: %w", err)
	}
	defer rows.Close()

	attrs := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("postgres: scan attribute: %w", err)
		}
		attrs[k] = v
	}
	return attrs, rows.Err()
}

func (r *SubscriberRepo) UpdateStatus(ctx context.Context, id string, status domain.SubscriberStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers SET status = $1, updated = NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("postgres: update subscriber status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrSubscriberNotFound
	}
	return nil
}

// AllSubscribed streams every Subscribed subscriber lacking a non-Pending
// send_records row for campaignID. The NOT EXISTS anti-join keeps the filter
// in the database rather than an in-memory pass (spec.md §4.6 steps 1-2),
// mirrored on the teacher's EnqueueSubscribers NOT EXISTS suppression check.
func (r *SubscriberRepo) AllSubscribed(ctx context.Context, campaignID string) (domain.SubscriberCursor, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.email
		FROM subscribers s
		WHERE s.status = 'subscribed'
		  AND NOT EXISTS (
		      SELECT 1 FROM send_records sr
		      WHERE sr.subscriber_id = s.id
		        AND sr.campaign_id = $1
		        AND sr.result != 'pending'
		  )
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("postgres: all subscribed: %w", err)
	}
	return &rowCursor{rows: rows}, nil
}

// rowCursor adapts *sql.Rows to domain.SubscriberCursor for both
// SubscriberRepo.AllSubscribed and segment-backed queries.
type rowCursor struct{ rows *sql.Rows }

func (c *rowCursor) Next(ctx context.Context) (domain.SubscriberIdentity, bool, error) {
	if !c.rows.Next() {
		return domain.SubscriberIdentity{}, false, c.rows.Err()
	}
	var id domain.SubscriberIdentity
	if err := c.rows.Scan(&id.SubscriberID, &id.Email); err != nil {
		return domain.SubscriberIdentity{}, false, fmt.Errorf("postgres: scan subscriber identity: %w", err)
	}
	return id, true, nil
}

func (c *rowCursor) Close() error { return c.rows.Close() }
