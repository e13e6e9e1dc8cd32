// Package serper implements the web-search client against the Serper API,
// with locale hints derived from row context.
package serper

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/domainresolve/domainresolve/internal/candidate"
	"github.com/domainresolve/domainresolve/internal/httpx"
	"github.com/domainresolve/domainresolve/internal/limiter"
)

// DefaultURL is the production search endpoint.
const DefaultURL = "https://google.serper.dev/search"

// Client posts search queries. Every call first passes the shared RPS
// limiter, then the concurrency semaphore.
type Client struct {
	APIKey  string
	BaseURL string
	HTTP    *httpx.Client
	Limiter *limiter.RPS
	Sem     *semaphore.Weighted
}

type searchBody struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
	GL  string `json:"gl,omitempty"`
	HL  string `json:"hl,omitempty"`
}

type searchResponse struct {
	Organic []candidate.Raw `json:"organic"`
}

// Search returns the provider's organic results for one query. Transport
// failures and non-200 statuses yield an empty result set: a search that
// cannot be answered is a row with no candidates, not a batch failure.
func (c *Client) Search(ctx context.Context, query string, loc Locale, num int) ([]candidate.Raw, error) {
	if c.Sem != nil {
		if err := c.Sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer c.Sem.Release(1)
	}
	if c.Limiter != nil {
		if err := c.Limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	if num < 1 {
		num = 1
	}
	if num > 100 {
		num = 100
	}
	body := searchBody{Q: query, Num: num, GL: loc.GL, HL: loc.HL}
	url := c.BaseURL
	if url == "" {
		url = DefaultURL
	}
	status, raw, err := c.HTTP.PostJSON(ctx, url, map[string]string{"X-API-KEY": c.APIKey}, body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("query", query).Msg("search request failed")
		return nil, nil
	}
	if status != 200 {
		log.Warn().Int("status", status).Str("query", query).Msg("search returned non-200")
		return nil, nil
	}
	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Warn().Err(err).Str("query", query).Msg("search response shape mismatch")
		return nil, nil
	}
	return resp.Organic, nil
}
