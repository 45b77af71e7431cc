// Package carriers implements carrier rate providers over each carrier's JSON API.
package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

const (
	defaultTimeout  = 8 * time.Second
	maxErrorBody    = 4 << 10
	maxResponseBody = 1 << 20
)

// Option customises a carrier client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTimeout overrides the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock injects the clock used to compute estimated delivery dates.
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) clientOptions {
	o := clientOptions{timeout: defaultTimeout, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{
			Timeout:   o.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return o
}

// jsonClient posts JSON to a carrier API and maps failures onto the carrier error set.
type jsonClient struct {
	carrier string
	baseURL string
	apiKey  string
	http    *http.Client
	// invalidAddress reports whether an error response body describes a rejected address.
	invalidAddress func(status int, body []byte) bool
}

func (c *jsonClient) post(ctx context.Context, path string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: %s base url not configured", domain.ErrCarrierUnavailable, c.carrier)
	}
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("%w: %s endpoint: %v", domain.ErrCarrierUnavailable, c.carrier, err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", c.carrier, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.carrier, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrCarrierUnavailable, c.carrier, ctxErr)
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrCarrierUnavailable, c.carrier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if c.invalidAddress != nil && c.invalidAddress(resp.StatusCode, raw) {
			return fmt.Errorf("%w: %s: %s", domain.ErrInvalidAddress, c.carrier, strings.TrimSpace(string(raw)))
		}
		return fmt.Errorf("%w: %s status %d: %s", domain.ErrCarrierUnavailable, c.carrier, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: malformed response: %v", domain.ErrCarrierUnavailable, c.carrier, err)
	}
	return nil
}

// errorCodes extracts `code` fields from the common {"errors":[{"code":...}]} envelope.
func errorCodes(body []byte) []string {
	var envelope struct {
		Errors []struct {
			Code string `json:"code"`
		} `json:"errors"`
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	codes := make([]string, 0, len(envelope.Errors)+1)
	if envelope.Code != "" {
		codes = append(codes, envelope.Code)
	}
	for _, e := range envelope.Errors {
		codes = append(codes, e.Code)
	}
	return codes
}

func hasCodePrefix(codes []string, prefix string) bool {
	for _, code := range codes {
		if strings.HasPrefix(strings.ToUpper(code), prefix) {
			return true
		}
	}
	return false
}

func deliveryEstimate(now time.Time, days int) (*int, *time.Time) {
	if days <= 0 {
		return nil, nil
	}
	d := days
	eta := now.UTC().AddDate(0, 0, days)
	return &d, &eta
}
