package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bookstore-orders/internal/shared/config"
)

// ErrUnauthorized signals a rejected bearer token (HTTP 401). Callers decide
// whether to invalidate the cache and retry; the client itself never retries.
var ErrUnauthorized = errors.New("salesforce: unauthorized")

// Case is the object the relay creates for each order.
type Case struct {
	Subject     string `json:"Subject"`
	Description string `json:"Description"`
	Status      string `json:"Status"`
	Origin      string `json:"Origin"`
}

// CaseRecord is the subset of fields the poller reads from a modified-since
// query. The CRM payload is schemaless beyond these.
type CaseRecord struct {
	ID          string `json:"Id"`
	Status      string `json:"Status"`
	Description string `json:"Description"`
}

// Client talks to a Salesforce-shaped CRM: OAuth2 client-credentials token
// exchange, REST object creation, and SOQL polling. The bearer token and
// instance URL are cached after the first successful authentication.
type Client struct {
	authURL      string
	clientID     string
	clientSecret string
	apiVersion   string
	httpc        *http.Client

	mu          sync.Mutex
	token       string
	instanceURL string
}

// NewClient builds a Client from config. No network I/O happens here;
// authentication is lazy, on the first request that needs a token.
func NewClient(cfg config.SalesforceConfig) *Client {
	return &Client{
		authURL:      strings.TrimRight(cfg.AuthURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		apiVersion:   cfg.APIVersion,
		httpc:        &http.Client{Timeout: 15 * time.Second},
	}
}

// InvalidateToken drops the cached token so the next call re-authenticates.
func (c *Client) InvalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
}

// authenticate performs the client-credentials grant and caches the token and
// instance URL.
func (c *Client) authenticate(ctx context.Context) error {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.authURL+"/services/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("salesforce: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("salesforce: token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("salesforce: decode token response: %w", err)
	}
	if tok.AccessToken == "" || tok.InstanceURL == "" {
		return errors.New("salesforce: token response missing access_token or instance_url")
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.instanceURL = strings.TrimRight(tok.InstanceURL, "/")
	c.mu.Unlock()

	return nil
}

// session returns the cached token and instance URL, authenticating first if
// no token is cached.
func (c *Client) session(ctx context.Context) (token, instance string, err error) {
	c.mu.Lock()
	token, instance = c.token, c.instanceURL
	c.mu.Unlock()

	if token != "" {
		return token, instance, nil
	}
	if err := c.authenticate(ctx); err != nil {
		return "", "", err
	}

	c.mu.Lock()
	token, instance = c.token, c.instanceURL
	c.mu.Unlock()
	return token, instance, nil
}

// CreateCase POSTs a new Case object. Returns ErrUnauthorized on HTTP 401 so
// the relay can invalidate the cache, re-authenticate once, and retry once.
func (c *Client) CreateCase(ctx context.Context, cs Case) error {
	token, instance, err := c.session(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(cs)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/services/data/%s/sobjects/Case", instance, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("salesforce: create case: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("salesforce: create case returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

type queryResponse struct {
	Records []CaseRecord `json:"records"`
}

// CasesModifiedSince queries Cases whose LastModifiedDate is after the given
// time. Returns ErrUnauthorized on HTTP 401.
func (c *Client) CasesModifiedSince(ctx context.Context, since time.Time) ([]CaseRecord, error) {
	token, instance, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	soql := fmt.Sprintf(
		"SELECT Id, Status, Description FROM Case WHERE LastModifiedDate > %s",
		since.UTC().Format("2006-01-02T15:04:05Z"),
	)
	endpoint := fmt.Sprintf("%s/services/data/%s/query?q=%s", instance, c.apiVersion, url.QueryEscape(soql))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("salesforce: query cases: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("salesforce: query returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("salesforce: decode query response: %w", err)
	}
	return out.Records, nil
}
