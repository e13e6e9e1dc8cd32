// Package httpx provides the outbound HTTP primitives shared by the search
// client, the LLM client and the legal-page crawler: a tuned http.Client,
// POST-JSON with bounded retry, and an HTML-only GET with charset decoding.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// Statuses worth another attempt. Any other non-2xx returns immediately.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// NewHTTPClient builds a high-throughput client so the per-service
// concurrency caps, not the transport, bound parallelism.
func NewHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          512,
		MaxIdleConnsPerHost:   256,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   connectTimeout + readTimeout,
	}
}

// Client issues requests with the retry policy: retryable statuses and
// connection/timeout failures back off BackoffBase^(attempt-1) plus a small
// uniform jitter, up to MaxRetries attempts.
type Client struct {
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase float64
	// RedirectMaxHops caps redirect following for GETs. Zero means default (5).
	RedirectMaxHops int
}

// ErrRetriesExhausted is returned when every attempt failed transiently.
var ErrRetriesExhausted = errors.New("httpx: retries exhausted")

func (c *Client) attempts() int {
	if c.MaxRetries <= 0 {
		return 1
	}
	return c.MaxRetries
}

func (c *Client) backoff(attempt int) time.Duration {
	base := c.BackoffBase
	if base <= 0 {
		base = 1.6
	}
	delay := math.Pow(base, float64(attempt-1))
	jitter := 0.05 + rand.Float64()*0.30
	return time.Duration((delay + jitter) * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PostJSON marshals body, POSTs it and returns the final status and response
// bytes. A non-retryable status is a terminal result, not an error; exhausted
// retries return ErrRetriesExhausted wrapped with the last failure.
func (c *Client) PostJSON(ctx context.Context, rawURL string, headers map[string]string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	var lastErr error
	for attempt := 1; attempt <= c.attempts(); attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := c.httpClient().Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			lastErr = err
		} else {
			b, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = readErr
			} else if !retryableStatus(resp.StatusCode) {
				return resp.StatusCode, b, nil
			} else {
				lastErr = errors.New("httpx: status " + resp.Status)
			}
		}
		if attempt == c.attempts() {
			break
		}
		if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
			return 0, nil, err
		}
	}
	return 0, nil, errors.Join(ErrRetriesExhausted, lastErr)
}

// GetHTML fetches a page, follows redirects up to the hop cap, accepts only
// text/html, and decodes the body using the declared charset with sniffing
// fallback. Non-HTML and non-2xx results return an empty document without
// error; callers treat them as "nothing found".
func (c *Client) GetHTML(ctx context.Context, rawURL string, headers map[string]string) (int, string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts(); attempt++ {
		status, doc, err := c.getHTMLOnce(ctx, rawURL, headers)
		if err == nil && !retryableStatus(status) {
			return status, doc, nil
		}
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		if err != nil {
			lastErr = err
		}
		if attempt == c.attempts() {
			break
		}
		if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
			return 0, "", err
		}
	}
	return 0, "", errors.Join(ErrRetriesExhausted, lastErr)
}

func (c *Client) getHTMLOnce(ctx context.Context, rawURL string, headers map[string]string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	hc := *c.httpClient()
	hc.CheckRedirect = c.checkRedirect()
	resp, err := hc.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if retryableStatus(resp.StatusCode) {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, "", errors.New("httpx: status " + resp.Status)
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !strings.Contains(ct, "text/html") {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, "", nil
	}
	r, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return resp.StatusCode, "", nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return resp.StatusCode, "", nil
	}
	return resp.StatusCode, string(b), nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) checkRedirect() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}
