// Package enrich drives the batch pipeline: per row, search the web for
// candidate domains, ask the model to choose, guard and score the pick,
// optionally override it with a registration-page match, and write the
// output columns back.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/domainresolve/domainresolve/internal/cache"
	"github.com/domainresolve/domainresolve/internal/candidate"
	"github.com/domainresolve/domainresolve/internal/httpx"
	"github.com/domainresolve/domainresolve/internal/legal"
	"github.com/domainresolve/domainresolve/internal/limiter"
	"github.com/domainresolve/domainresolve/internal/llm"
	"github.com/domainresolve/domainresolve/internal/regid"
	"github.com/domainresolve/domainresolve/internal/score"
	"github.com/domainresolve/domainresolve/internal/serper"
	"github.com/domainresolve/domainresolve/internal/table"
	"github.com/domainresolve/domainresolve/internal/token"
)

// ProgressFunc receives batch progress updates. It may be called from many
// goroutines at once.
type ProgressFunc func(current, total int, message string)

// Engine holds the wired clients and the two process-lifetime caches. The
// unhealthy flag latches on the first LLM infrastructure failure and stops
// further rows from being dispatched.
type Engine struct {
	Cfg     Config
	Search  *serper.Client
	Chooser *llm.Chooser
	Crawler *legal.Crawler
	DNS     *score.DNSChecker

	Progress ProgressFunc

	searchCache *cache.Loader
	llmCache    *cache.Loader
	unhealthy   atomic.Bool
}

// New wires an Engine from configuration. The search and LLM sides get
// separate HTTP clients so one saturated pool cannot starve the other.
func New(cfg Config) *Engine {
	serpHTTP := &httpx.Client{
		HTTPClient:  httpx.NewHTTPClient(cfg.HTTPConnectTimeout, cfg.HTTPReadTimeout),
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
	}
	crawlHTTP := &httpx.Client{
		HTTPClient:  httpx.NewHTTPClient(cfg.HTTPConnectTimeout, cfg.HTTPReadTimeout),
		MaxRetries:  1,
		BackoffBase: cfg.BackoffBase,
	}
	return &Engine{
		Cfg: cfg,
		Search: &serper.Client{
			APIKey:  cfg.SerperAPIKey,
			BaseURL: cfg.SerperBaseURL,
			HTTP:    serpHTTP,
			Limiter: limiter.NewRPS(cfg.SerpMaxRPS),
			Sem:     semaphore.NewWeighted(int64(cfg.SerpConcurrency)),
		},
		Chooser: &llm.Chooser{
			Client: llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIOrgID, cfg.OpenAIBaseURL,
				httpx.NewHTTPClient(cfg.HTTPConnectTimeout, cfg.HTTPReadTimeout)),
			Model:         cfg.OpenAIModel,
			Sem:           semaphore.NewWeighted(int64(cfg.OpenAIConcurrency)),
			MaxRetries:    cfg.MaxRetries,
			BackoffBase:   cfg.BackoffBase,
			MaxCandidates: cfg.MaxCandidates,
		},
		Crawler: &legal.Crawler{
			HTTP:        crawlHTTP,
			Hosts:       legal.NewHostLimiter(cfg.CrawlHostRPS, 1),
			MaxParallel: cfg.CrawlParallel,
		},
		DNS:         &score.DNSChecker{Enabled: cfg.EnableDNSCheck, Timeout: cfg.DNSTimeout},
		searchCache: cache.NewLoader(cache.DefaultEntries),
		llmCache:    cache.NewLoader(cache.DefaultEntries),
	}
}

// Unhealthy reports whether the LLM side has failed hard during this batch.
func (e *Engine) Unhealthy() bool {
	return e.unhealthy.Load()
}

func (e *Engine) progress(current, total int, message string) {
	if e.Progress != nil {
		e.Progress(current, total, message)
	}
}

var urlInReason = regexp.MustCompile(`https?://[^\s"')]+`)

func isNullish(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "none":
		return true
	}
	return false
}

// rowContext splits the context columns of one row into the pieces the
// pipeline needs: a value map for locale and scoring, ordered key/value
// pairs for the prompt, and the non-registration values for query text.
func rowContext(row table.Row, contextCols []string) (ctx map[string]string, kvs []llm.ContextKV, queryBits []string) {
	ctx = make(map[string]string, len(contextCols))
	for _, col := range contextCols {
		v := table.CleanValue(row[col])
		if v == "" {
			continue
		}
		ctx[col] = v
		kvs = append(kvs, llm.ContextKV{Key: col, Value: v})
		if !table.IsRegistration(col) {
			queryBits = append(queryBits, v)
		}
	}
	return ctx, kvs, queryBits
}

// queryVariants returns the search queries in priority order. The first one
// folds in up to three context values.
func queryVariants(company string, queryBits []string) []string {
	first := company + " official website"
	if len(queryBits) > 0 {
		n := len(queryBits)
		if n > 3 {
			n = 3
		}
		first = company + " " + strings.Join(queryBits[:n], " ") + " official website"
	}
	return []string{
		first,
		company + " website",
		`"` + company + `" website`,
		`"` + company + `" official website`,
		company + " site web",
		company + " site officiel",
	}
}

// gatherCandidates runs the query variants until enough distinct domains
// are collected. Every query result passes through the process-lifetime
// cache; a query that fails upstream contributes nothing.
func (e *Engine) gatherCandidates(ctx context.Context, company string, rowCtx map[string]string, queryBits []string) ([]candidate.Candidate, error) {
	loc := serper.LocaleFor(rowCtx)
	var out []candidate.Candidate
	have := make(map[string]struct{})
	tried := make(map[string]struct{})

	for _, q := range queryVariants(company, queryBits) {
		key := serper.CacheKey(q, loc, e.Cfg.ResultsPerCall, 1)
		if _, ok := tried[key]; ok {
			continue
		}
		tried[key] = struct{}{}

		v, err := e.searchCache.Do(key, func() (any, error) {
			raw, err := e.Search.Search(ctx, q, loc, e.Cfg.ResultsPerCall)
			if err != nil {
				return nil, err
			}
			return candidate.Filter(raw), nil
		})
		if err != nil {
			return nil, err
		}
		for _, c := range v.([]candidate.Candidate) {
			if _, ok := have[c.Domain]; ok {
				continue
			}
			have[c.Domain] = struct{}{}
			out = append(out, c)
		}
		if len(out) >= e.Cfg.MaxCandidates {
			out = out[:e.Cfg.MaxCandidates]
			break
		}
	}
	return out, nil
}

// llmCacheKey identifies one choice call: same company, same context, same
// candidate list means the same answer.
func llmCacheKey(company string, rowCtx map[string]string, cands []candidate.Candidate) string {
	pairs := make([]string, 0, len(rowCtx))
	for k, v := range rowCtx {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	var b strings.Builder
	b.WriteString(company)
	b.WriteString("\x1f")
	b.WriteString(strings.Join(pairs, "\x1e"))
	for _, c := range cands {
		b.WriteString("\x1f")
		b.WriteString(c.URL)
		b.WriteString("\x1e")
		b.WriteString(c.Domain)
	}
	return b.String()
}

// ProcessRow enriches one row in place. Rows with a filled URL column are
// left untouched. An error means the LLM side is down; search and crawl
// failures degrade to empty candidates instead.
func (e *Engine) ProcessRow(ctx context.Context, idx int, row table.Row, companyCol string, contextCols []string) error {
	if table.CleanValue(row[table.ColURL]) != "" {
		return nil
	}
	company := table.CleanValue(row[companyCol])
	if company == "" {
		row[table.ColURL] = ""
		return nil
	}
	if e.unhealthy.Load() {
		return nil
	}

	rowCtx, kvs, queryBits := rowContext(row, contextCols)

	cands, err := e.gatherCandidates(ctx, company, rowCtx, queryBits)
	if err != nil {
		return err
	}
	log.Debug().Str("company", company).Int("candidates", len(cands)).Msg("search done")

	lkey := llmCacheKey(company, rowCtx, cands)
	v, err := e.llmCache.Do(lkey, func() (any, error) {
		choice, err := e.Chooser.Choose(ctx, idx, company, kvs, cands)
		if err != nil {
			return nil, err
		}
		return choice, nil
	})
	if err != nil {
		// A cancellation propagated from another row is not an LLM
		// infrastructure failure.
		if ctx.Err() == nil {
			e.unhealthy.Store(true)
		}
		return fmt.Errorf("openai: %w", err)
	}
	g := v.(llm.Choice)

	domRaw := strings.ToLower(strings.TrimSpace(g.ChosenDomain))
	confidence := strings.ToLower(strings.TrimSpace(g.Confidence))
	reason := strings.TrimSpace(g.Reason)
	srcURL := strings.TrimSpace(g.ChosenFromURL)
	foundDom := strings.ToLower(strings.TrimSpace(g.FoundDomain))

	// Recovery: an empty pick can still be salvaged from the chosen URL,
	// from a URL inside the reason text, or from found_domain.
	if (isNullish(domRaw) || token.StripToDomain(domRaw) == "") && srcURL != "" {
		domRaw = token.StripToDomain(srcURL)
	}
	if (isNullish(domRaw) || token.StripToDomain(domRaw) == "") && reason != "" {
		if m := urlInReason.FindString(reason); m != "" {
			if srcURL == "" {
				srcURL = m
			}
			domRaw = token.StripToDomain(srcURL)
		}
	}
	usedLLMFound := false
	if (isNullish(domRaw) || token.StripToDomain(domRaw) == "") && !isNullish(foundDom) {
		if d := token.StripToDomain(foundDom); d != "" {
			domRaw = d
			confidence = "entity"
			usedLLMFound = true
			if reason != "" {
				reason = strings.Trim(reason+" | LLM-direct-found", " |")
			} else {
				reason = "LLM-direct-found"
			}
		}
	}

	var (
		finalDomain string
		scoreStr    string
		ambiguity   int
		chosen      candidate.Candidate
		hasChosen   bool
	)
	if !isNullish(domRaw) {
		d := token.StripToDomain(domRaw)
		for _, c := range cands {
			if token.StripToDomain(c.Domain) == d {
				chosen = c
				hasChosen = true
				break
			}
		}
		switch {
		case d == "":
		case !e.DNS.OK(ctx, d):
			log.Debug().Str("company", company).Str("domain", d).Msg("dns check rejected domain")
		case !score.Guard(company, d, confidence):
			log.Debug().Str("company", company).Str("domain", d).Msg("homonym guard rejected domain")
		default:
			finalDomain = d
			var n int
			n, ambiguity = score.Compute(score.Input{
				Company:         company,
				Confidence:      confidence,
				Candidates:      cands,
				ChosenDomain:    d,
				Chosen:          chosen,
				HasChosen:       hasChosen,
				Ctx:             rowCtx,
				MaxCandidates:   e.Cfg.MaxCandidates,
				UsedFoundDomain: usedLLMFound,
			})
			scoreStr = strconv.Itoa(n)
		}
	}

	// Registration override: when the input carries expected IDs, a crawled
	// legal page that confirms them beats whatever the model said.
	regMatchDomain := ""
	foundIDs := ""
	expected := regid.Expected(rowCtx)
	if !expected.Empty() && (len(cands) > 0 || finalDomain != "") {
		domains := make([]string, 0, e.Cfg.MaxCandidates+1)
		for i, c := range cands {
			if i >= e.Cfg.MaxCandidates {
				break
			}
			domains = append(domains, c.Domain)
		}
		if finalDomain != "" && !containsDomain(domains, finalDomain) {
			domains = append(domains, finalDomain)
		}
		results, best, ok := e.Crawler.CrawlDomains(ctx, domains, expected)
		if ok {
			regMatchDomain = token.StripToDomain(best)
			finalDomain = regMatchDomain
			scoreStr = "100"
			foundIDs = results[best].Found.SortedJoin()
			if reason == "" {
				reason = "registration-match"
			}
			confidence = "entity"
			log.Info().Str("company", company).Str("domain", finalDomain).Msg("registration match override")
		}
	}
	// A cancelled row leaves no partial output: the crawl and the DNS check
	// degrade silently under cancellation, so their results cannot be
	// trusted as a negative.
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Debug().
		Str("company", company).
		Str("domain", finalDomain).
		Str("confidence", confidence).
		Str("reason", reason).
		Msg("row resolved")

	row[table.ColURL] = finalDomain
	if finalDomain == "" {
		row[table.ColScore] = ""
	} else {
		row[table.ColScore] = scoreStr
	}
	row[table.ColAmbiguity] = strconv.Itoa(ambiguity)
	row[table.ColCandCount] = strconv.Itoa(len(cands))
	if regMatchDomain != "" {
		row[table.ColRegMatch] = "yes"
	} else {
		row[table.ColRegMatch] = "no"
	}
	row[table.ColRegIDs] = foundIDs
	debug, _ := json.Marshal(map[string]string{
		"chosen_obj_title":   chosen.Title,
		"chosen_obj_snippet": chosen.Snippet,
	})
	row[table.ColDebug] = string(debug)
	if isNullish(foundDom) {
		row[table.ColFoundDomain] = ""
	} else {
		row[table.ColFoundDomain] = foundDom
	}
	return nil
}

func containsDomain(domains []string, d string) bool {
	for _, x := range domains {
		if token.StripToDomain(x) == d {
			return true
		}
	}
	return false
}

// Enrich processes every pending row of the table concurrently and writes
// results in place. The company column is resolved before any network I/O.
// The first LLM failure cancels the remaining rows; rows finished by then
// keep their results.
func (e *Engine) Enrich(ctx context.Context, t *table.Table) error {
	companyCol, err := table.FindCompanyColumn(t.Columns)
	if err != nil {
		return err
	}
	contextCols := table.DetectContextColumns(t.Columns)
	t.EnsureOutputColumns()

	if err := e.Chooser.Preflight(ctx); err != nil {
		return err
	}

	var pending []int
	for i, row := range t.Rows {
		if table.CleanValue(row[table.ColURL]) == "" {
			pending = append(pending, i)
		}
	}
	total := len(pending)
	e.progress(0, total, "Starting enrichment...")

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, idx := range pending {
		idx := idx
		if e.unhealthy.Load() {
			break
		}
		g.Go(func() error {
			row := t.Rows[idx]
			if err := e.ProcessRow(gctx, idx, row, companyCol, contextCols); err != nil {
				return err
			}
			company := table.CleanValue(row[companyCol])
			e.progress(int(done.Add(1)), total, "Processing: "+truncateName(company, 30))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	e.progress(total, total, "Enrichment complete!")
	return nil
}

func truncateName(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
