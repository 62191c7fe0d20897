package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ignite/nuntius/internal/domain"
	"github.com/ignite/nuntius/internal/reputation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSendRecords struct {
	byID        map[string]*domain.SendRecord
	byMessageID map[string]string // espMessageID -> record id
	orphans     int
}

func newFakeSendRecords() *fakeSendRecords {
	return &fakeSendRecords{byID: map[string]*domain.SendRecord{}, byMessageID: map[string]string{}}
}

func (f *fakeSendRecords) GetOrCreate(_ context.Context, campaignID, subscriberID, email string) (*domain.SendRecord, bool, error) {
	return nil, false, nil
}
func (f *fakeSendRecords) UpdateResult(_ context.Context, id string, result domain.SendResult, espMessageID *string) error {
	sr, ok := f.byID[id]
	if !ok {
		return domain.ErrSendRecordNotFound
	}
	sr.Result = result
	if espMessageID != nil {
		sr.ESPMessageID = espMessageID
		f.byMessageID[*espMessageID] = id
	}
	return nil
}
func (f *fakeSendRecords) GetByTrackingID(_ context.Context, trackingID string) (*domain.SendRecord, error) {
	return nil, nil
}
func (f *fakeSendRecords) GetByESPMessageID(_ context.Context, espMessageID string) (*domain.SendRecord, error) {
	id, ok := f.byMessageID[espMessageID]
	if !ok {
		return nil, domain.ErrSendRecordNotFound
	}
	return f.byID[id], nil
}
func (f *fakeSendRecords) IncrementOpenCount(_ context.Context, id string) error {
	sr, ok := f.byID[id]
	if !ok {
		return domain.ErrSendRecordNotFound
	}
	sr.OpenCount++
	return nil
}
func (f *fakeSendRecords) IncrementClickCount(_ context.Context, id string) error {
	sr, ok := f.byID[id]
	if !ok {
		return domain.ErrSendRecordNotFound
	}
	sr.ClickCount++
	return nil
}
func (f *fakeSendRecords) RecentByEmail(_ context.Context, email string, limit int) ([]domain.SendRecord, error) {
	var out []domain.SendRecord
	for _, sr := range f.byID {
		if sr.Email == email {
			out = append(out, *sr)
		}
	}
	return out, nil
}
func (f *fakeSendRecords) CreateOrphan(_ context.Context, email string) (*domain.SendRecord, error) {
	f.orphans++
	sr := &domain.SendRecord{ID: "orphan-1", Email: email, Result: domain.ResultPending}
	f.byID[sr.ID] = sr
	return sr, nil
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

func newIngestor(records *fakeSendRecords, subs *fakeSubscribers) *Ingestor {
	policy := reputation.New(records, subs, reputation.DefaultConfig())
	return New(records, subs, policy)
}

func TestIngest_DeliveredMarksOk(t *testing.T) {
	records := newFakeSendRecords()
	records.byID["sr1"] = &domain.SendRecord{ID: "sr1", Email: "a@example.com", Result: domain.ResultPending}
	records.byMessageID["msg-1"] = "sr1"
	in := newIngestor(records, &fakeSubscribers{byEmail: map[string]*domain.Subscriber{}})

	err := in.Ingest(context.Background(), Event{Type: EventDelivered, MessageID: "msg-1", Recipient: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultOk, records.byID["sr1"].Result)
}

func TestIngest_UnknownMessageIDCreatesOrphan(t *testing.T) {
	records := newFakeSendRecords()
	in := newIngestor(records, &fakeSubscribers{byEmail: map[string]*domain.Subscriber{}})

	err := in.Ingest(context.Background(), Event{Type: EventFailed, MessageID: "unknown", Recipient: "ghost@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, records.orphans)
	assert.Equal(t, domain.ResultError, records.byID["orphan-1"].Result)
}

func TestIngest_HardBounceUpdatesResultAndAppliesPolicy(t *testing.T) {
	records := newFakeSendRecords()
	records.byID["sr1"] = &domain.SendRecord{ID: "sr1", Email: "a@example.com", Result: domain.ResultPending}
	records.byMessageID["msg-1"] = "sr1"
	sub := &domain.Subscriber{ID: "s1", Email: "a@example.com", Status: domain.SubscriberSubscribed}
	in := newIngestor(records, &fakeSubscribers{byEmail: map[string]*domain.Subscriber{sub.Email: sub}})

	err := in.Ingest(context.Background(), Event{Type: EventBounced, MessageID: "msg-1", Recipient: "a@example.com", IsPermanent: true})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultBounced, records.byID["sr1"].Result)
	// First-contact bounce: no prior Ok/Unknown record anywhere, fail closed.
	assert.Equal(t, domain.SubscriberBounced, sub.Status)
}

func TestIngest_SoftBounceMarksBlockedOnly(t *testing.T) {
	records := newFakeSendRecords()
	records.byID["sr1"] = &domain.SendRecord{ID: "sr1", Email: "a@example.com", Result: domain.ResultPending}
	records.byMessageID["msg-1"] = "sr1"
	sub := &domain.Subscriber{ID: "s1", Email: "a@example.com", Status: domain.SubscriberSubscribed}
	in := newIngestor(records, &fakeSubscribers{byEmail: map[string]*domain.Subscriber{sub.Email: sub}})

	err := in.Ingest(context.Background(), Event{Type: EventBounced, MessageID: "msg-1", Recipient: "a@example.com", IsPermanent: false})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultBlocked, records.byID["sr1"].Result)
	assert.Equal(t, domain.SubscriberSubscribed, sub.Status)
}

func TestIngest_ComplainedSetsResultAndSubscriberStatus(t *testing.T) {
	records := newFakeSendRecords()
	records.byID["sr1"] = &domain.SendRecord{ID: "sr1", Email: "a@example.com", Result: domain.ResultOk}
	records.byMessageID["msg-1"] = "sr1"
	sub := &domain.Subscriber{ID: "s1", Email: "a@example.com", Status: domain.SubscriberSubscribed}
	in := newIngestor(records, &fakeSubscribers{byEmail: map[string]*domain.Subscriber{sub.Email: sub}})

	err := in.Ingest(context.Background(), Event{Type: EventComplained, MessageID: "msg-1", Recipient: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultComplained, records.byID["sr1"].Result)
	assert.Equal(t, domain.SubscriberComplained, sub.Status)
}

func TestIngest_OpenedIncrementsOpenCount(t *testing.T) {
	records := newFakeSendRecords()
	records.byID["sr1"] = &domain.SendRecord{ID: "sr1", Email: "a@example.com", Result: domain.ResultOk}
	records.byMessageID["msg-1"] = "sr1"
	in := newIngestor(records, &fakeSubscribers{byEmail: map[string]*domain.Subscriber{}})

	require.NoError(t, in.Ingest(context.Background(), Event{Type: EventOpened, MessageID: "msg-1", Recipient: "a@example.com"}))
	assert.Equal(t, 1, records.byID["sr1"].OpenCount)
}

func TestIngest_UnrecognizedEventTypeIsIgnored(t *testing.T) {
	records := newFakeSendRecords()
	records.byID["sr1"] = &domain.SendRecord{ID: "sr1", Email: "a@example.com", Result: domain.ResultOk}
	records.byMessageID["msg-1"] = "sr1"
	in := newIngestor(records, &fakeSubscribers{byEmail: map[string]*domain.Subscriber{}})

	err := in.Ingest(context.Background(), Event{Type: "deferred", MessageID: "msg-1", Recipient: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultOk, records.byID["sr1"].Result)
}

func TestRoutes_HandleEventsAcceptsSingleAndBatchPayloads(t *testing.T) {
	records := newFakeSendRecords()
	records.byID["sr1"] = &domain.SendRecord{ID: "sr1", Email: "a@example.com", Result: domain.ResultPending}
	records.byMessageID["msg-1"] = "sr1"
	in := newIngestor(records, &fakeSubscribers{byEmail: map[string]*domain.Subscriber{}})
	srv := httptest.NewServer(in.Routes())
	defer srv.Close()

	single := `{"event_type":"delivered","message_id":"msg-1","recipient":"a@example.com"}`
	resp, err := http.Post(srv.URL+"/events", "application/json", strings.NewReader(single))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, domain.ResultOk, records.byID["sr1"].Result)

	batch := `[{"event_type":"opened","message_id":"msg-1","recipient":"a@example.com"}]`
	resp, err = http.Post(srv.URL+"/events", "application/json", strings.NewReader(batch))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 1, records.byID["sr1"].OpenCount)
}

func TestRoutes_HandleEventsRejectsMalformedPayload(t *testing.T) {
	records := newFakeSendRecords()
	in := newIngestor(records, &fakeSubscribers{byEmail: map[string]*domain.Subscriber{}})
	srv := httptest.NewServer(in.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/events", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
