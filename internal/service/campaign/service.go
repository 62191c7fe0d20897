// Package campaign implements the campaign lifecycle operations that sit in
// front of repository.CampaignRepository: creation (with the per-campaign
// HMAC signing key C5 needs), listing, lookup, and the Waiting->Sending
// transition an operator triggers to hand a campaign to the supervisor (C8).
package campaign

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/ignite/nuntius/internal/domain"
	"github.com/ignite/nuntius/internal/repository"
)

// signatureKeyLen is the width of the random key HMAC-SHA1 link signing
// (spec.md §4.5 step 4, §3 "a random 20-byte signature_key") uses to sign
// and verify every tracking link rewritten into a campaign's body.
const signatureKeyLen = 20

// Service wraps a CampaignRepository with the lifecycle behavior that does
// not belong in the data-access layer: signing-key generation at creation
// and status transitions.
type Service struct {
	campaigns repository.CampaignRepository
}

// New builds a campaign lifecycle service over repo.
func New(repo repository.CampaignRepository) *Service {
	return &Service{campaigns: repo}
}

// Create generates a random signing key for c, then inserts it in
// CampaignWaiting status. Callers must not set c.SignatureKey; it is always
// overwritten here so every campaign is created with a fresh key.
func (s *Service) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	key := make([]byte, signatureKeyLen)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("campaign: generate signature key: %w", err)
	}
	c.SignatureKey = key
	c.Status = domain.CampaignWaiting

	id, err := s.campaigns.Create(ctx, c)
	if err != nil {
		return "", fmt.Errorf("campaign: create: %w", err)
	}
	return id, nil
}

// Get returns a single campaign by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

// List returns every campaign, most recently created first.
func (s *Service) List(ctx context.Context) ([]domain.Campaign, error) {
	return s.campaigns.List(ctx)
}

// Send transitions a campaign from Waiting to Sending, the operator action
// that puts it in the supervisor's (C8) outbox. Returns
// domain.ErrAlreadySending if it is already Sending or Sent.
func (s *Service) Send(ctx context.Context, id string) error {
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignWaiting {
		return domain.ErrAlreadySending
	}
	return s.campaigns.UpdateStatus(ctx, id, domain.CampaignSending)
}
