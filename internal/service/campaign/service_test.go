package campaign

import (
	"context"
	"testing"

	"github.com/ignite/nuntius/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCampaigns struct {
	byID    map[string]*domain.Campaign
	created *domain.Campaign
}

func newFakeCampaigns() *fakeCampaigns {
	return &fakeCampaigns{byID: map[string]*domain.Campaign{}}
}

func (f *fakeCampaigns) Get(_ context.Context, id string) (*domain.Campaign, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrCampaignNotFound
	}
	return c, nil
}
func (f *fakeCampaigns) List(_ context.Context) ([]domain.Campaign, error) { return nil, nil }
func (f *fakeCampaigns) Create(_ context.Context, c *domain.Campaign) (string, error) {
	c.ID = "campaign-1"
	f.created = c
	f.byID[c.ID] = c
	return c.ID, nil
}
func (f *fakeCampaigns) Outbox(_ context.Context) ([]domain.Campaign, error) { return nil, nil }
func (f *fakeCampaigns) UpdateStatus(_ context.Context, id string, status domain.CampaignStatus) error {
	c, ok := f.byID[id]
	if !ok {
		return domain.ErrCampaignNotFound
	}
	c.Status = status
	return nil
}
func (f *fakeCampaigns) MarkSent(_ context.Context, id string) error { return nil }

func TestCreate_GeneratesSignatureKey(t *testing.T) {
	repo := newFakeCampaigns()
	svc := New(repo)

	id, err := svc.Create(context.Background(), &domain.Campaign{Name: "welcome"})
	require.NoError(t, err)
	assert.Equal(t, "campaign-1", id)
	require.Len(t, repo.created.SignatureKey, signatureKeyLen)
	assert.Equal(t, domain.CampaignWaiting, repo.created.Status)
}

func TestCreate_KeysDifferAcrossCampaigns(t *testing.T) {
	repo := newFakeCampaigns()
	svc := New(repo)

	_, err := svc.Create(context.Background(), &domain.Campaign{Name: "a"})
	require.NoError(t, err)
	first := append([]byte(nil), repo.created.SignatureKey...)

	repo.byID = map[string]*domain.Campaign{}
	_, err = svc.Create(context.Background(), &domain.Campaign{Name: "b"})
	require.NoError(t, err)

	assert.NotEqual(t, first, repo.created.SignatureKey)
}

func TestSend_TransitionsWaitingToSending(t *testing.T) {
	repo := newFakeCampaigns()
	repo.byID["c1"] = &domain.Campaign{ID: "c1", Status: domain.CampaignWaiting}
	svc := New(repo)

	err := svc.Send(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignSending, repo.byID["c1"].Status)
}

func TestSend_AlreadySendingErrors(t *testing.T) {
	repo := newFakeCampaigns()
	repo.byID["c1"] = &domain.Campaign{ID: "c1", Status: domain.CampaignSent}
	svc := New(repo)

	err := svc.Send(context.Background(), "c1")
	assert.ErrorIs(t, err, domain.ErrAlreadySending)
}

func TestSend_UnknownCampaignErrors(t *testing.T) {
	repo := newFakeCampaigns()
	svc := New(repo)

	err := svc.Send(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
}
