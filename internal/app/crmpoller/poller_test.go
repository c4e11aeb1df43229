package crmpoller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore-orders/internal/shared/config"
	"bookstore-orders/internal/shared/contracts"
	"bookstore-orders/internal/shared/logger"
	"bookstore-orders/internal/shared/rabbitmq"
	"bookstore-orders/internal/shared/salesforce"
)

type recordingPublisher struct {
	published []contracts.StatusUpdateMessage
	queues    []string
	err       error
}

func (p *recordingPublisher) Publish(queue string, body []byte, persistent bool) error {
	if p.err != nil {
		return p.err
	}
	var msg contracts.StatusUpdateMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return err
	}
	p.published = append(p.published, msg)
	p.queues = append(p.queues, queue)
	return nil
}

// crmQueryServer serves the token endpoint and a query endpoint whose records
// and failure mode the test controls.
type crmQueryServer struct {
	srv        *httptest.Server
	records    []salesforce.CaseRecord
	failQuery  atomic.Bool
	queryCalls atomic.Int64
}

func newCRMQueryServer(t *testing.T) *crmQueryServer {
	s := &crmQueryServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok",
			"instance_url": s.srv.URL,
		})
	})

	mux.HandleFunc("GET /services/data/v58.0/query", func(w http.ResponseWriter, r *http.Request) {
		s.queryCalls.Add(1)
		if s.failQuery.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"records": s.records})
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func newPoller(s *crmQueryServer, pub *recordingPublisher) *Poller {
	crm := salesforce.NewClient(config.SalesforceConfig{
		AuthURL:      s.srv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		APIVersion:   "v58.0",
	})
	return New(crm, pub, time.Second, logger.NewLogger("crm-poller-test"))
}

func TestTickPublishesModifiedCases(t *testing.T) {
	s := newCRMQueryServer(t)
	s.records = []salesforce.CaseRecord{
		{ID: "500A", Status: "Completed", Description: "Web Order #12 from a@b.c"},
		{ID: "500B", Status: "Processing", Description: "Order #13"},
	}
	pub := &recordingPublisher{}
	p := newPoller(s, pub)

	p.Tick(context.Background(), time.Now().UTC())

	require.Len(t, pub.published, 2)
	assert.Equal(t, "500A", pub.published[0].ID)
	assert.Equal(t, "Completed", pub.published[0].Status)
	assert.Equal(t, rabbitmq.QueueOrderUpdates, pub.queues[0])
}

func TestTickAdvancesWatermarkOnSuccessOnly(t *testing.T) {
	s := newCRMQueryServer(t)
	pub := &recordingPublisher{}
	p := newPoller(s, pub)

	start := p.Watermark()

	// a failed query keeps the watermark where it was
	s.failQuery.Store(true)
	p.Tick(context.Background(), start.Add(time.Minute))
	assert.Equal(t, start, p.Watermark())

	// a successful query moves it to the tick time
	s.failQuery.Store(false)
	tickAt := start.Add(2 * time.Minute)
	p.Tick(context.Background(), tickAt)
	assert.Equal(t, tickAt, p.Watermark())
}

func TestTickPublishFailureDoesNotRollBackWatermark(t *testing.T) {
	s := newCRMQueryServer(t)
	s.records = []salesforce.CaseRecord{{ID: "500A", Status: "Completed", Description: "Web Order #1"}}
	pub := &recordingPublisher{err: errors.New("broker down")}
	p := newPoller(s, pub)

	tickAt := p.Watermark().Add(time.Minute)
	p.Tick(context.Background(), tickAt)

	// the record was never delivered, yet the window has moved past it
	assert.Empty(t, pub.published)
	assert.Equal(t, tickAt, p.Watermark())
}
