// Package zoho provides a client for the Zoho CRM v2 records API using the
// OAuth refresh-token grant.
package zoho

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Access tokens last 60 minutes; treat them as valid for 55.
const tokenTTL = 55 * time.Minute

const tokenCacheKey = "zoho-access-token"

const perPage = 200

// Client defines the Zoho CRM operations used by the pipeline.
type Client interface {
	// FetchModule pages through a CRM module sorted by Created_Time
	// descending and returns the raw records.
	FetchModule(ctx context.Context, module string, maxPages int) ([]map[string]any, error)
	// FetchRecentLeads pages through Leads and stops early once a page's
	// oldest record falls outside the lookback window.
	FetchRecentLeads(ctx context.Context, lookbackDays, maxPages int) ([]map[string]any, error)
}

// TokenCache persists access tokens across invocations so runs within the
// token's lifetime skip re-authentication.
type TokenCache interface {
	GetToken(ctx context.Context, name string) (string, error)
	SetToken(ctx context.Context, name, token string, ttl time.Duration) error
}

// Credentials holds the OAuth refresh-token grant inputs.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// Region selects the Zoho datacenter TLD, e.g. "in", "com", "eu".
	Region string
}

// Option configures the Zoho client.
type Option func(*httpClient)

// WithAccountsBaseURL sets a custom accounts base URL (for testing).
func WithAccountsBaseURL(url string) Option {
	return func(c *httpClient) {
		c.accountsBaseURL = url
	}
}

// WithAPIBaseURL sets a custom API base URL (for testing).
func WithAPIBaseURL(url string) Option {
	return func(c *httpClient) {
		c.apiBaseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets a per-second rate limit for CRM API calls.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithTokenCache plugs in a persistent token cache.
func WithTokenCache(tc TokenCache) Option {
	return func(c *httpClient) {
		c.tokens = tc
	}
}

// WithNow overrides the wall clock (for testing lookback cutoffs).
func WithNow(now func() time.Time) Option {
	return func(c *httpClient) {
		c.now = now
	}
}

type httpClient struct {
	creds           Credentials
	accountsBaseURL string
	apiBaseURL      string
	http            *http.Client
	limiter         *rate.Limiter
	tokens          TokenCache
	now             func() time.Time
}

// NewClient creates a new Zoho CRM client.
func NewClient(creds Credentials, opts ...Option) Client {
	region := creds.Region
	if region == "" {
		region = "in"
	}
	c := &httpClient{
		creds:           creds,
		accountsBaseURL: fmt.Sprintf("https://accounts.zoho.%s", region),
		apiBaseURL:      fmt.Sprintf("https://www.zohoapis.%s", region),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Error       string `json:"error"`
}

// accessToken returns a valid access token, using the cache when possible
// and falling back to a fresh refresh-token grant.
func (c *httpClient) accessToken(ctx context.Context) (string, error) {
	if c.tokens != nil {
		token, err := c.tokens.GetToken(ctx, tokenCacheKey)
		if err != nil {
			return "", eris.Wrap(err, "zoho: read token cache")
		}
		if token != "" {
			return token, nil
		}
	}

	form := url.Values{
		"refresh_token": {c.creds.RefreshToken},
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.accountsBaseURL+"/oauth/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "zoho: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "zoho: token request failed")
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", eris.Wrap(readErr, "zoho: read token response")
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", eris.Wrap(err, "zoho: unmarshal token response")
	}
	if resp.StatusCode != http.StatusOK || tr.AccessToken == "" {
		return "", eris.Errorf("zoho: token refresh failed: status %d: %s", resp.StatusCode, string(body))
	}

	if c.tokens != nil {
		if err := c.tokens.SetToken(ctx, tokenCacheKey, tr.AccessToken, tokenTTL); err != nil {
			return "", eris.Wrap(err, "zoho: write token cache")
		}
	}
	return tr.AccessToken, nil
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503). Returns the response body and
// status code on success, or the last error after exhausting retries.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "zoho: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("zoho: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

type moduleResponse struct {
	Data []map[string]any `json:"data"`
}

// getRecords performs one authenticated GET against a CRM records endpoint.
// Zoho returns 204 for an empty page.
func (c *httpClient) getRecords(ctx context.Context, endpoint string, params url.Values) ([]map[string]any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "zoho: rate limit wait")
		}
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := c.apiBaseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "zoho: create request")
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "zoho: GET %s", endpoint)
	}
	if statusCode == http.StatusNoContent {
		return nil, nil
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("zoho: GET %s: unexpected status %d: %s", endpoint, statusCode, string(body))
	}

	var result moduleResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrapf(err, "zoho: unmarshal %s response", endpoint)
	}
	return result.Data, nil
}

func (c *httpClient) FetchModule(ctx context.Context, module string, maxPages int) ([]map[string]any, error) {
	if maxPages <= 0 {
		maxPages = 10
	}
	endpoint := "/crm/v2/" + module

	var all []map[string]any
	for page := 1; page <= maxPages; page++ {
		params := url.Values{
			"page":       {fmt.Sprint(page)},
			"per_page":   {fmt.Sprint(perPage)},
			"sort_by":    {"Created_Time"},
			"sort_order": {"desc"},
		}
		batch, err := c.getRecords(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		if len(batch) < perPage {
			break
		}
	}
	return all, nil
}

func (c *httpClient) FetchRecentLeads(ctx context.Context, lookbackDays, maxPages int) ([]map[string]any, error) {
	if lookbackDays <= 0 {
		lookbackDays = 7
	}
	if maxPages <= 0 {
		maxPages = 10
	}
	cutoff := c.now().Add(-time.Duration(lookbackDays) * 24 * time.Hour)

	var all []map[string]any
	for page := 1; page <= maxPages; page++ {
		params := url.Values{
			"page":       {fmt.Sprint(page)},
			"per_page":   {fmt.Sprint(perPage)},
			"sort_by":    {"Created_Time"},
			"sort_order": {"desc"},
		}
		batch, err := c.getRecords(ctx, "/crm/v2/Leads", params)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)

		if oldest, ok := batchOldestCreated(batch); ok && oldest.Before(cutoff) {
			break
		}
		if len(batch) < perPage {
			break
		}
	}
	return all, nil
}

// batchOldestCreated parses the Created_Time of the last record in a page
// sorted by Created_Time descending.
func batchOldestCreated(batch []map[string]any) (time.Time, bool) {
	raw, _ := batch[len(batch)-1]["Created_Time"].(string)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
