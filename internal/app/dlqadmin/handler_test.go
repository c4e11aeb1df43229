package dlqadmin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore-orders/internal/shared/logger"
	"bookstore-orders/internal/shared/rabbitmq"
)

const testAPIKey = "remediation-key"

func newTestServer(t *testing.T, ch *fakeChannel) (*httptest.Server, *int) {
	opens := 0
	open := func() (BrokerChannel, error) {
		opens++
		return ch, nil
	}

	log := logger.NewLogger("web-service-test")
	handler := NewHandler(NewService(open, log), testAPIKey, log)

	mux := http.NewServeMux()
	handler.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &opens
}

func doRequest(t *testing.T, method, url, key string) (*http.Response, map[string]any) {
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("X-Api-Key", key)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestMissingAPIKeyTouchesNoQueue(t *testing.T) {
	srv, opens := newTestServer(t, newFakeChannel())

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/dlq/count?queue=orders", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])
	assert.Zero(t, *opens)
}

func TestWrongAPIKeyRejected(t *testing.T) {
	srv, opens := newTestServer(t, newFakeChannel())

	resp, _ := doRequest(t, http.MethodPost, srv.URL+"/api/dlq/purge?queue=orders", "not-the-key")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, *opens)
}

func TestCountEndpoint(t *testing.T) {
	ch := newFakeChannel()
	ch.seed(rabbitmq.DLQName(rabbitmq.QueueOrders), "a", "b")
	srv, _ := newTestServer(t, ch)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/dlq/count?queue=orders", testAPIKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "orders", body["queue"])
	assert.Equal(t, float64(2), body["count"])
}

func TestListEndpoint(t *testing.T) {
	ch := newFakeChannel()
	ch.seed(rabbitmq.DLQName(rabbitmq.QueueOrders), "a", "b", "c")
	srv, _ := newTestServer(t, ch)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/dlq/list?queue=orders&count=2", testAPIKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["count"])

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	first, ok := msgs[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a", first["body"])
}

func TestRequeueAllEndpoint(t *testing.T) {
	ch := newFakeChannel()
	ch.seed(rabbitmq.DLQName(rabbitmq.QueueOrders), "a", "b")
	srv, _ := newTestServer(t, ch)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/dlq/requeue-all?queue=orders", testAPIKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["requeued"])
	assert.Equal(t, []string{"a", "b"}, ch.bodies(rabbitmq.QueueOrders))
}

func TestRequeueOneEndpoint(t *testing.T) {
	ch := newFakeChannel()
	ch.seed(rabbitmq.DLQName(rabbitmq.QueueOrders), "a", "b")
	srv, _ := newTestServer(t, ch)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/dlq/requeue?queue=orders&index=1", testAPIKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []string{"b"}, ch.bodies(rabbitmq.QueueOrders))
}

func TestDeleteOneEndpoint(t *testing.T) {
	ch := newFakeChannel()
	ch.seed(rabbitmq.DLQName(rabbitmq.QueueOrders), "a", "b")
	srv, _ := newTestServer(t, ch)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/dlq/delete?queue=orders&index=0", testAPIKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["deleted"])
	assert.Equal(t, []string{"b"}, ch.bodies(rabbitmq.DLQName(rabbitmq.QueueOrders)))
}

func TestMissingQueueParam(t *testing.T) {
	srv, opens := newTestServer(t, newFakeChannel())

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/dlq/count", testAPIKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "queue")
	assert.Zero(t, *opens)
}

func TestBadIndexParam(t *testing.T) {
	srv, opens := newTestServer(t, newFakeChannel())

	resp, _ := doRequest(t, http.MethodPost, srv.URL+"/api/dlq/requeue?queue=orders&index=-1", testAPIKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, *opens)
}
