package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore-orders/internal/shared/config"
)

// fakeCRM serves the token endpoint and the Case REST surface from one mux so
// instance_url can point back at the same server.
type fakeCRM struct {
	srv *httptest.Server

	tokenCalls   atomic.Int64
	createCalls  atomic.Int64
	queryCalls   atomic.Int64
	rejectToken  atomic.Bool
	lastCase     Case
	queryRecords []CaseRecord
	lastQuery    string
}

func newFakeCRM(t *testing.T) *fakeCRM {
	f := &fakeCRM{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "id-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))

		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok-valid",
			"instance_url": f.srv.URL,
		})
	})

	mux.HandleFunc("POST /services/data/v58.0/sobjects/Case", func(w http.ResponseWriter, r *http.Request) {
		f.createCalls.Add(1)
		if f.rejectToken.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastCase))
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("GET /services/data/v58.0/query", func(w http.ResponseWriter, r *http.Request) {
		f.queryCalls.Add(1)
		if f.rejectToken.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.lastQuery = r.URL.Query().Get("q")
		json.NewEncoder(w).Encode(map[string]any{"records": f.queryRecords})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCRM) client() *Client {
	return NewClient(config.SalesforceConfig{
		AuthURL:      f.srv.URL,
		ClientID:     "id-1",
		ClientSecret: "secret-1",
		APIVersion:   "v58.0",
	})
}

func TestCreateCaseAuthenticatesOnceAndCaches(t *testing.T) {
	crm := newFakeCRM(t)
	c := crm.client()
	ctx := context.Background()

	require.NoError(t, c.CreateCase(ctx, Case{Subject: "Web Order #7", Status: "New", Origin: "Web"}))
	require.NoError(t, c.CreateCase(ctx, Case{Subject: "Web Order #8", Status: "New", Origin: "Web"}))

	assert.Equal(t, int64(1), crm.tokenCalls.Load())
	assert.Equal(t, int64(2), crm.createCalls.Load())
	assert.Equal(t, "Web Order #8", crm.lastCase.Subject)
}

func TestCreateCaseUnauthorized(t *testing.T) {
	crm := newFakeCRM(t)
	c := crm.client()
	ctx := context.Background()

	crm.rejectToken.Store(true)
	err := c.CreateCase(ctx, Case{Subject: "Web Order #9"})
	require.ErrorIs(t, err, ErrUnauthorized)

	// InvalidateToken forces a fresh grant on the next call.
	crm.rejectToken.Store(false)
	c.InvalidateToken()
	require.NoError(t, c.CreateCase(ctx, Case{Subject: "Web Order #9"}))
	assert.Equal(t, int64(2), crm.tokenCalls.Load())
}

func TestCasesModifiedSince(t *testing.T) {
	crm := newFakeCRM(t)
	crm.queryRecords = []CaseRecord{
		{ID: "500A", Status: "Completed", Description: "Web Order #12 from a@b.c"},
		{ID: "500B", Status: "Processing", Description: "Order #13"},
	}
	c := crm.client()

	since := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	records, err := c.CasesModifiedSince(context.Background(), since)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "500A", records[0].ID)
	assert.Equal(t, "Completed", records[0].Status)
	assert.Contains(t, crm.lastQuery, "LastModifiedDate > 2026-03-01T10:30:00Z")
}

func TestBadTokenResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": ""})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(config.SalesforceConfig{
		AuthURL: srv.URL, ClientID: "x", ClientSecret: "y", APIVersion: "v58.0",
	})
	err := c.CreateCase(context.Background(), Case{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token")
}
