package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/nuntius/internal/domain"
	"github.com/ignite/nuntius/internal/ratelimit"
	"github.com/ignite/nuntius/internal/sender"
	"github.com/ignite/nuntius/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCampaigns struct {
	mu   sync.Mutex
	byID map[string]*domain.Campaign
}

func newFakeCampaigns(c *domain.Campaign) *fakeCampaigns {
	return &fakeCampaigns{byID: map[string]*domain.Campaign{c.ID: c}}
}

func (f *fakeCampaigns) Get(_ context.Context, id string) (*domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *f.byID[id]
	return &c, nil
}
func (f *fakeCampaigns) List(_ context.Context) ([]domain.Campaign, error) { return nil, nil }
func (f *fakeCampaigns) Create(_ context.Context, c *domain.Campaign) (string, error) {
	return "", nil
}
func (f *fakeCampaigns) Outbox(_ context.Context) ([]domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Campaign
	for _, c := range f.byID {
		if c.Status == domain.CampaignWaiting || c.Status == domain.CampaignSending {
			out = append(out, *c)
		}
	}
	return out, nil
}
func (f *fakeCampaigns) UpdateStatus(_ context.Context, id string, status domain.CampaignStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Status = status
	return nil
}
func (f *fakeCampaigns) MarkSent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Status = domain.CampaignSent
	return nil
}
func (f *fakeCampaigns) statusOf(id string) domain.CampaignStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].Status
}

type fakeSubscribers struct {
	sub *domain.Subscriber
}

func (f *fakeSubscribers) Get(_ context.Context, id string) (*domain.Subscriber, error) {
	return f.sub, nil
}
func (f *fakeSubscribers) GetByEmail(_ context.Context, email string) (*domain.Subscriber, error) {
	return f.sub, nil
}
func (f *fakeSubscribers) UpdateStatus(_ context.Context, id string, status domain.SubscriberStatus) error {
	return nil
}
func (f *fakeSubscribers) AllSubscribed(_ context.Context, campaignID string) (domain.SubscriberCursor, error) {
	return &onceCursor{identity: domain.SubscriberIdentity{SubscriberID: f.sub.ID, Email: f.sub.Email}}, nil
}

type onceCursor struct {
	identity domain.SubscriberIdentity
	done     bool
}

func (c *onceCursor) Next(_ context.Context) (domain.SubscriberIdentity, bool, error) {
	if c.done {
		return domain.SubscriberIdentity{}, false, nil
	}
	c.done = true
	return c.identity, true, nil
}
func (c *onceCursor) Close() error { return nil }

type fakeSendRecords struct {
	mu      sync.Mutex
	records map[string]*domain.SendRecord
}

func newFakeSendRecords() *fakeSendRecords {
	return &fakeSendRecords{records: map[string]*domain.SendRecord{}}
}

func (f *fakeSendRecords) GetOrCreate(_ context.Context, campaignID, subscriberID, email string) (*domain.SendRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sr, ok := f.records[subscriberID]; ok {
		return sr, false, nil
	}
	sr := &domain.SendRecord{ID: "sr-" + subscriberID, CampaignID: campaignID, SubscriberID: subscriberID, Email: email, Result: domain.ResultPending}
	f.records[subscriberID] = sr
	return sr, true, nil
}
func (f *fakeSendRecords) UpdateResult(_ context.Context, id string, result domain.SendResult, espMessageID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sr := range f.records {
		if sr.ID == id {
			sr.Result = result
		}
	}
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
	return nil, nil
}
func (f *fakeSendRecords) CreateOrphan(_ context.Context, email string) (*domain.SendRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sr := &domain.SendRecord{ID: "orphan-" + email, Email: email, Result: domain.ResultPending}
	f.records[sr.ID] = sr
	return sr, nil
}
func (f *fakeSendRecords) resultFor(subscriberID string) (domain.SendResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sr, ok := f.records[subscriberID]
	if !ok {
		return "", false
	}
	return sr.Result, true
}

type fakeSegments struct{}

func (fakeSegments) ForCampaign(_ context.Context, campaignID string) (domain.Segment, error) {
	return nil, nil
}

type fakeTransport struct{}

func (fakeTransport) Open(_ context.Context) error { return nil }
func (fakeTransport) Send(_ context.Context, _ *domain.EmailMessage) (domain.SendOutcome, error) {
	return domain.SendOutcome{}, nil
}
func (fakeTransport) Close() error { return nil }

func TestSupervisor_DispatchesSendingCampaignAndMarksSent(t *testing.T) {
	campaign := &domain.Campaign{ID: "c1", Name: "Camp", Subject: "Hi", HTMLBody: "<p>hi</p>", SignatureKey: []byte("k"), Status: domain.CampaignSending}
	campaigns := newFakeCampaigns(campaign)
	subs := &fakeSubscribers{sub: &domain.Subscriber{ID: "s1", Email: "a@example.com", Status: domain.SubscriberSubscribed}}
	records := newFakeSendRecords()
	connShutdown := make(chan struct{})

	sv := New(Config{
		Campaigns:     campaigns,
		Subscribers:   subs,
		SendRecords:   records,
		Segments:      fakeSegments{},
		Bucket:        ratelimit.NewLocalBucket(100, 1000),
		NewConn:       func() *transport.ConnectionManager { return transport.NewConnectionManager(fakeTransport{}, connShutdown, 100) },
		NumWorkers:    1,
		QueueCapacity: 4,
		PollInterval:  10 * time.Millisecond,
		PublicURL:     "https://track.example.com",
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- sv.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if campaigns.statusOf("c1") == domain.CampaignSent {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, domain.CampaignSent, campaigns.statusOf("c1"))

	result, ok := records.resultFor("s1")
	require.True(t, ok)
	assert.Equal(t, domain.ResultUnknown, result)

	cancel()
	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after context cancellation")
	}
}

func TestSupervisor_SendErrorMarksCampaignError(t *testing.T) {
	campaign := &domain.Campaign{ID: "c1", Name: "Camp", Subject: "Hi", HTMLBody: "<p>hi</p>", SignatureKey: []byte("k"), Status: domain.CampaignSending}
	campaigns := newFakeCampaigns(campaign)

	sv := New(Config{
		Campaigns:     campaigns,
		Subscribers:   &fakeSubscribers{sub: &domain.Subscriber{ID: "s1", Email: "a@example.com", Status: domain.SubscriberSubscribed}},
		SendRecords:   newFakeSendRecords(),
		Segments:      fakeSegments{},
		Bucket:        ratelimit.NewLocalBucket(100, 1000),
		NewConn:       func() *transport.ConnectionManager { return transport.NewConnectionManager(fakeTransport{}, make(chan struct{}), 100) },
		NumWorkers:    1,
		QueueCapacity: 4,
		PollInterval:  10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sv.Run(ctx)

	// Give checkCampaigns a tick to start the dispatcher before injecting
	// the error directly against the supervisor's own handling path.
	time.Sleep(30 * time.Millisecond)
	sv.handleSendError(ctx, sender.ErrorReport{CampaignID: "c1", Err: errors.New("boom")})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if campaigns.statusOf("c1") == domain.CampaignError {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, domain.CampaignError, campaigns.statusOf("c1"))
}
