// Package cloudflare implements a ddns.DnsProvider backed by the Cloudflare
// DNS API v4.
package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
	"gitlab.bluewillows.net/root/ddnsd/pkg/httputil"
)

const (
	// DefaultAPIEndpoint is the base URL for Cloudflare API v4.
	DefaultAPIEndpoint = "https://api.cloudflare.com/client/v4"

	// DefaultTimeout is the HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// Cloudflare error codes for a record that already exists with the
	// same name/content; classifyStatus maps both to KindConflict.
	errCodeRecordExists          = 81053
	errCodeIdenticalRecordExists = 81058

	// Cloudflare body error codes that classifyStatus maps independently of
	// the HTTP status code, since Cloudflare sometimes returns these with a
	// 200 and success:false.
	errCodeInvalidAPIToken  = 1000
	errCodeAuthError        = 10000
	errCodeRecordNotFound   = 81044
	errCodeRecordConflicted = 81057
)

// apiError represents one error entry from the Cloudflare API.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// apiResponse is the standard Cloudflare API response wrapper.
type apiResponse struct {
	Success  bool            `json:"success"`
	Errors   []apiError      `json:"errors"`
	Messages []string        `json:"messages"`
	Result   json.RawMessage `json:"result"`
}

type zoneResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type dnsRecord struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
	ZoneID  string `json:"zone_id"`
}

type recordRequest struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

// Client is a Cloudflare DNS API v4 client. It never logs or returns the
// bearer token in any error or log message.
type Client struct {
	apiEndpoint string
	token       string
	dryRun      bool
	httpClient  *http.Client
	logger      *slog.Logger
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAPIEndpoint sets a custom API endpoint, for tests.
func WithAPIEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.apiEndpoint = endpoint }
}

// WithDryRun makes every write verb (Create/Update/Delete) a no-op that
// logs intent and returns success without contacting the API. Read verbs
// (zone lookup, list, find) still hit the network.
func WithDryRun(dryRun bool) ClientOption {
	return func(c *Client) { c.dryRun = dryRun }
}

// NewClient creates a new Cloudflare API client.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		apiEndpoint: DefaultAPIEndpoint,
		token:       token,
		httpClient: httputil.NewClient(&httputil.ClientConfig{
			Timeout:   DefaultTimeout,
			UserAgent: "ddnsd-cloudflare/1.0",
		}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// classifyStatus maps an HTTP status code plus Cloudflare error code to a
// ddns.Kind so the engine can decide whether a failed call is retryable.
func classifyStatus(status int, cfErrCode int) ddns.Kind {
	switch cfErrCode {
	case errCodeInvalidAPIToken, errCodeAuthError:
		return ddns.KindAuthentication
	case errCodeRecordNotFound:
		return ddns.KindNotFound
	case errCodeRecordConflicted, errCodeRecordExists, errCodeIdenticalRecordExists:
		return ddns.KindConflict
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ddns.KindAuthentication
	case status == http.StatusNotFound:
		return ddns.KindNotFound
	case status == http.StatusTooManyRequests:
		return ddns.KindRateLimited
	case status == http.StatusConflict:
		return ddns.KindConflict
	case status >= 500:
		return ddns.KindTransient
	case status >= 400:
		return ddns.KindConfig
	default:
		return ddns.KindInternal
	}
}

// doRequest performs an authenticated HTTP request against the Cloudflare
// API and returns a classified *ddns.Error on any non-success outcome.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*apiResponse, error) {
	reqURL := c.apiEndpoint + path

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, ddns.Wrap(ddns.KindInternal, "building cloudflare request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ddns.Wrap(ddns.KindTransient, "cloudflare request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ddns.Wrap(ddns.KindTransient, "reading cloudflare response body", err)
	}

	var apiResp apiResponse
	parseErr := json.Unmarshal(respBody, &apiResp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cfCode := 0
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if parseErr == nil && len(apiResp.Errors) > 0 {
			cfCode = apiResp.Errors[0].Code
			msg = apiResp.Errors[0].Message
		}
		kind := classifyStatus(resp.StatusCode, cfCode)
		e := ddns.Newf(kind, "cloudflare: %s (status %d, code %d)", msg, resp.StatusCode, cfCode)
		if kind == ddns.KindRateLimited {
			if ra := retryAfter(resp.Header.Get("Retry-After")); ra > 0 {
				e = e.WithRetryAfter(ra)
			}
		}
		return nil, e
	}

	if parseErr != nil {
		return nil, ddns.Wrap(ddns.KindInternal, "parsing cloudflare response", parseErr)
	}
	if !apiResp.Success {
		if len(apiResp.Errors) > 0 {
			return nil, ddns.Newf(classifyStatus(resp.StatusCode, apiResp.Errors[0].Code), "cloudflare: %s", apiResp.Errors[0].Message)
		}
		return nil, ddns.New(ddns.KindInternal, "cloudflare request failed with unknown error")
	}

	return &apiResp, nil
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs
	}
	return 0
}

// Ping checks connectivity and token validity against the Cloudflare API.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/user/tokens/verify", nil)
	return err
}

// GetZoneID resolves domain's zone ID by progressively stripping
// subdomains until a zone is found.
func (c *Client) GetZoneID(ctx context.Context, domain string) (string, error) {
	parts := strings.Split(domain, ".")
	var lastErr error
	for i := 0; i < len(parts)-1; i++ {
		zoneName := strings.Join(parts[i:], ".")
		params := url.Values{}
		params.Set("name", zoneName)
		params.Set("status", "active")

		resp, err := c.doRequest(ctx, http.MethodGet, "/zones?"+params.Encode(), nil)
		if err != nil {
			lastErr = err
			continue
		}
		var zones []zoneResult
		if err := json.Unmarshal(resp.Result, &zones); err != nil {
			lastErr = ddns.Wrap(ddns.KindInternal, "parsing zones response", err)
			continue
		}
		if len(zones) > 0 {
			return zones[0].ID, nil
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", ddns.Newf(ddns.KindNotFound, "no zone found for domain %s", domain)
}

// FindRecord finds a DNS record by name and type in the given zone.
// Returns nil, nil if no matching record exists.
func (c *Client) FindRecord(ctx context.Context, zoneID, recordType, name string) (*dnsRecord, error) {
	params := url.Values{}
	params.Set("type", recordType)
	params.Set("name", name)

	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/zones/%s/dns_records?%s", zoneID, params.Encode()), nil)
	if err != nil {
		return nil, err
	}
	var records []dnsRecord
	if err := json.Unmarshal(resp.Result, &records); err != nil {
		return nil, ddns.Wrap(ddns.KindInternal, "parsing dns_records response", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// CreateRecord creates a new DNS record in the specified zone. In dry-run
// mode it logs intent and returns without contacting the API.
func (c *Client) CreateRecord(ctx context.Context, zoneID, recordType, name, content string, ttl int, proxied bool) error {
	if c.dryRun {
		c.logger.Info("dry-run: would create record", slog.String("name", name), slog.String("content", content))
		return nil
	}
	body, err := json.Marshal(recordRequest{Type: recordType, Name: name, Content: content, TTL: ttl, Proxied: proxied})
	if err != nil {
		return ddns.Wrap(ddns.KindInternal, "marshaling create request", err)
	}
	_, err = c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/zones/%s/dns_records", zoneID), strings.NewReader(string(body)))
	return err
}

// UpdateRecord overwrites an existing DNS record by ID via PUT. In dry-run
// mode it logs intent and returns without contacting the API.
func (c *Client) UpdateRecord(ctx context.Context, zoneID, recordID, recordType, name, content string, ttl int, proxied bool) error {
	if c.dryRun {
		c.logger.Info("dry-run: would update record", slog.String("name", name), slog.String("content", content))
		return nil
	}
	body, err := json.Marshal(recordRequest{Type: recordType, Name: name, Content: content, TTL: ttl, Proxied: proxied})
	if err != nil {
		return ddns.Wrap(ddns.KindInternal, "marshaling update request", err)
	}
	_, err = c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID), strings.NewReader(string(body)))
	return err
}

// DeleteRecord deletes a DNS record by ID.
func (c *Client) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	if c.dryRun {
		c.logger.Info("dry-run: would delete record", slog.String("record_id", recordID))
		return nil
	}
	_, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID), nil)
	return err
}

// String redacts the bearer token; safe for %v in log fields.
func (c *Client) String() string {
	return fmt.Sprintf("cloudflare.Client{endpoint: %s, token: ***REDACTED***}", c.apiEndpoint)
}
