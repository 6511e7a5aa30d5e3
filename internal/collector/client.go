package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/visitors"
	apperrors "github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/errors"
	"github.com/gojektech/heimdall/v6/httpclient"
)

// newHTTPClient returns a heimdall client with retries disabled: a failed
// call is reported once and never repeated.
func newHTTPClient(timeout time.Duration) *httpclient.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return httpclient.NewClient(
		httpclient.WithHTTPTimeout(timeout),
		httpclient.WithRetryCount(0),
	)
}

// errorBody is the failure shape returned by the aggregation service.
type errorBody struct {
	Error string `json:"error"`
}

// doJSON sends in (if non-nil) as JSON with the given headers and decodes a
// 2xx response into out. Any other status is returned as an ErrUpstream
// carrying the server's error message when it sent one.
func doJSON(ctx context.Context, client *httpclient.Client, method, url string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrUpstream, http.StatusBadGateway,
			fmt.Sprintf("%s %s", method, url), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrUpstream, http.StatusBadGateway, "reading response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := resp.Status
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			msg = eb.Error
		}
		return apperrors.New(apperrors.ErrUpstream, resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.Wrap(apperrors.ErrUpstream, http.StatusBadGateway, "decoding response", err)
	}
	return nil
}

// IPResolver looks up the host's public address from an ipify-compatible
// service that answers {"ip": "..."}.
type IPResolver struct {
	url    string
	client *httpclient.Client
	logger *slog.Logger
}

func NewIPResolver(url string, timeout time.Duration) *IPResolver {
	return &IPResolver{
		url:    url,
		client: newHTTPClient(timeout),
		logger: slog.Default().With("component", "ip-resolver"),
	}
}

// Resolve returns the public address reported by the service.
func (r *IPResolver) Resolve(ctx context.Context) (string, error) {
	var out struct {
		IP string `json:"ip"`
	}
	if err := doJSON(ctx, r.client, http.MethodGet, r.url, nil, nil, &out); err != nil {
		return "", err
	}
	if out.IP == "" {
		return "", apperrors.New(apperrors.ErrUpstream, http.StatusBadGateway, "ip service returned no address")
	}
	r.logger.Debug("public address resolved", "ip", out.IP)
	return out.IP, nil
}

// Client talks to the aggregation service's log endpoint.
type Client struct {
	endpoint string
	client   *httpclient.Client
}

// NewClient creates a Client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/log",
		client:   newHTTPClient(timeout),
	}
}

// Submit posts s and returns the service's receipt. The snapshot's user agent
// is also sent as the User-Agent header.
func (c *Client) Submit(ctx context.Context, s Snapshot) (visitors.Receipt, error) {
	var receipt visitors.Receipt
	headers := map[string]string{"User-Agent": s.UserAgent}
	if err := doJSON(ctx, c.client, http.MethodPost, c.endpoint, headers, s, &receipt); err != nil {
		return visitors.Receipt{}, err
	}
	return receipt, nil
}

// Stats fetches the current aggregate breakdowns.
func (c *Client) Stats(ctx context.Context) (visitors.Summary, error) {
	var summary visitors.Summary
	if err := doJSON(ctx, c.client, http.MethodGet, c.endpoint, nil, nil, &summary); err != nil {
		return visitors.Summary{}, err
	}
	return summary, nil
}
