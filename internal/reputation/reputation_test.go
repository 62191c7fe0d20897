package reputation

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/nuntius/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSendRecords struct {
	byEmail map[string][]domain.SendRecord
}

func (f *fakeSendRecords) GetOrCreate(_ context.Context, campaignID, subscriberID, email string) (*domain.SendRecord, bool, error) {
	return nil, false, nil
}
func (f *fakeSendRecords) UpdateResult(_ context.Context, id string, result domain.SendResult, espMessageID *string) error {
	return nil
}
func (f *fakeSendRecords) GetByTrackingID(_ context.Context, trackingID string) (*domain.SendRecord, error) {
	return nil, nil
}
func (f *fakeSendRecords) GetByESPMessageID(_ context.Context, espMessageID string) (*domain.SendRecord, error) {
	return nil, nil
}
func (f *fakeSendRecords) IncrementOpenCount(_ context.Context, id string) error  { return nil }
func (f *fakeSendRecords) IncrementClickCount(_ context.Context, id string) error { return nil }
func (f *fakeSendRecords) RecentByEmail(_ context.Context, email string, limit int) ([]domain.SendRecord, error) {
	return f.byEmail[email], nil
}
func (f *fakeSendRecords) CreateOrphan(_ context.Context, email string) (*domain.SendRecord, error) {
	return nil, nil
}

type fakeSubscribers struct {
	byEmail map[string]*domain.Subscriber
}

func (f *fakeSubscribers) Get(_ context.Context, id string) (*domain.Subscriber, error) { return nil, nil }
func (f *fakeSubscribers) GetByEmail(_ context.Context, email string) (*domain.Subscriber, error) {
	sub, ok := f.byEmail[email]
	if !ok {
		return nil, domain.ErrSubscriberNotFound
	}
	return sub, nil
}
func (f *fakeSubscribers) UpdateStatus(_ context.Context, id string, status domain.SubscriberStatus) error {
	for _, s := range f.byEmail {
		if s.ID == id {
			s.Status = status
		}
	}
	return nil
}
func (f *fakeSubscribers) AllSubscribed(_ context.Context, campaignID string) (domain.SubscriberCursor, error) {
	return nil, nil
}

func TestPolicy_Apply_FirstContactBounceClassifiesBounced(t *testing.T) {
	sub := &domain.Subscriber{ID: "s1", Email: "a@example.com", Status: domain.SubscriberSubscribed}
	subs := &fakeSubscribers{byEmail: map[string]*domain.Subscriber{sub.Email: sub}}
	records := &fakeSendRecords{byEmail: map[string][]domain.SendRecord{
		sub.Email: {{Result: domain.ResultBounced, Datetime: time.Now()}},
	}}

	p := New(records, subs, DefaultConfig())
	require.NoError(t, p.Apply(context.Background(), sub.Email, EventBounce))
	assert.Equal(t, domain.SubscriberBounced, sub.Status)
}

func TestPolicy_Apply_RecentSuccessWithinLimitLeavesUnchanged(t *testing.T) {
	sub := &domain.Subscriber{ID: "s1", Email: "a@example.com", Status: domain.SubscriberSubscribed}
	subs := &fakeSubscribers{byEmail: map[string]*domain.Subscriber{sub.Email: sub}}
	now := time.Now()
	records := &fakeSendRecords{byEmail: map[string][]domain.SendRecord{
		sub.Email: {
			{Result: domain.ResultBounced, Datetime: now},
			{Result: domain.ResultOk, Datetime: now.Add(-24 * time.Hour)},
		},
	}}

	p := New(records, subs, DefaultConfig())
	require.NoError(t, p.Apply(context.Background(), sub.Email, EventBounce))
	assert.Equal(t, domain.SubscriberSubscribed, sub.Status)
}

func TestPolicy_Apply_ExceedsLimitClassifiesBounced(t *testing.T) {
	sub := &domain.Subscriber{ID: "s1", Email: "a@example.com", Status: domain.SubscriberSubscribed}
	subs := &fakeSubscribers{byEmail: map[string]*domain.Subscriber{sub.Email: sub}}
	now := time.Now()
	records := &fakeSendRecords{byEmail: map[string][]domain.SendRecord{
		sub.Email: {
			{Result: domain.ResultBounced, Datetime: now},
			{Result: domain.ResultBounced, Datetime: now.Add(-1 * time.Hour)},
			{Result: domain.ResultBounced, Datetime: now.Add(-2 * time.Hour)},
			{Result: domain.ResultBounced, Datetime: now.Add(-3 * time.Hour)},
			{Result: domain.ResultOk, Datetime: now.Add(-24 * time.Hour)},
		},
	}}

	cfg := DefaultConfig() // limit=3, consecutive=1: 4 recent bounces beat the limit
	p := New(records, subs, cfg)
	require.NoError(t, p.Apply(context.Background(), sub.Email, EventBounce))
	assert.Equal(t, domain.SubscriberBounced, sub.Status)
}

func TestPolicy_Apply_ConsecutiveWindowSuccessLeavesUnchanged(t *testing.T) {
	sub := &domain.Subscriber{ID: "s1", Email: "a@example.com", Status: domain.SubscriberSubscribed}
	subs := &fakeSubscribers{byEmail: map[string]*domain.Subscriber{sub.Email: sub}}
	old := time.Now().AddDate(0, 0, -30)
	records := &fakeSendRecords{byEmail: map[string][]domain.SendRecord{
		// All outside the duration window, so step 2 never fires, but the
		// most recent consecutive+1=2 records include one Ok.
		sub.Email: {
			{Result: domain.ResultBounced, Datetime: old},
			{Result: domain.ResultOk, Datetime: old.Add(-time.Hour)},
			{Result: domain.ResultBounced, Datetime: old.Add(-2 * time.Hour)},
		},
	}}

	p := New(records, subs, DefaultConfig())
	require.NoError(t, p.Apply(context.Background(), sub.Email, EventBounce))
	assert.Equal(t, domain.SubscriberSubscribed, sub.Status)
}

func TestPolicy_Apply_ComplainedSetsStatusDirectly(t *testing.T) {
	sub := &domain.Subscriber{ID: "s1", Email: "a@example.com", Status: domain.SubscriberSubscribed}
	subs := &fakeSubscribers{byEmail: map[string]*domain.Subscriber{sub.Email: sub}}
	records := &fakeSendRecords{byEmail: map[string][]domain.SendRecord{}}

	p := New(records, subs, DefaultConfig())
	require.NoError(t, p.Apply(context.Background(), sub.Email, EventComplained))
	assert.Equal(t, domain.SubscriberComplained, sub.Status)
}

func TestPolicy_Apply_UnknownEmailIsIgnored(t *testing.T) {
	subs := &fakeSubscribers{byEmail: map[string]*domain.Subscriber{}}
	records := &fakeSendRecords{byEmail: map[string][]domain.SendRecord{}}

	p := New(records, subs, DefaultConfig())
	err := p.Apply(context.Background(), "ghost@example.com", EventBounce)
	assert.NoError(t, err)
}
