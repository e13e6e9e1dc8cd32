package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"github.com/domainresolve/domainresolve/internal/candidate"
)

const systemInstruction = `You will receive one company name with optional context (country/city, industry/sector, description, LinkedIn hints) and a list of web-search candidate URLs.

Choose the OFFICIAL domain using these rules:
- Priority 1: The exact legal entity's domain.
- Priority 2: Localized/country domains for the brand when relevant.
- Priority 3: Global/parent domain when relevant.
- If no candidate clearly matches but you can confidently identify the official website from your own knowledge or the context, OUTPUT that domain in 'found_domain'.
- Use the description and context fields to ensure the domain aligns with the activity.
- If still uncertain, set chosen_domain and found_domain to "null" and give a short reason.

Return ONE JSON object with keys: {index, company, chosen_domain, chosen_from_url, found_domain, confidence ∈ [entity,country,group,null], reason}.
Notes:
- 'chosen_domain' must be from the provided candidates (normalize if needed). Fill 'chosen_from_url' with the URL actually chosen.
- 'found_domain' is for a confident domain you know that is NOT in the candidates.`

const strictReturnInstruction = `Return ONLY a single JSON object (no prose, no code fences). Keys: index, company, chosen_domain, chosen_from_url, found_domain, confidence, reason. Confidence must be one of: entity, country, group, null. If unsure, set chosen_domain and found_domain to "null". Do not add extra keys.`

// ParseFailReason marks a reply that was not a parseable JSON object. The row
// completes with an empty URL; the batch keeps going.
const ParseFailReason = "openai-parse-fail"

// Choice is the model's (possibly recovered) answer for one company.
type Choice struct {
	ChosenDomain  string
	ChosenFromURL string
	FoundDomain   string
	Confidence    string
	Reason        string
}

// ContextKV preserves the input column order inside the prompt.
type ContextKV struct {
	Key   string
	Value string
}

// Chooser runs the selection call under a concurrency cap with bounded retry.
// Errors escaping Choose indicate LLM infrastructure failure and make the
// batch driver stop dispatching.
type Chooser struct {
	Client        Client
	Model         string
	Sem           *semaphore.Weighted
	MaxRetries    int
	BackoffBase   float64
	MaxCandidates int
}

// Preflight issues a minimal completion and verifies the response shape. A
// batch never starts when the chat endpoint cannot answer this.
func (c *Chooser) Preflight(ctx context.Context) error {
	resp, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: `Reply with only this JSON: {"ok":true}`},
		{Role: openai.ChatMessageRoleUser, Content: "ping"},
	})
	if err != nil {
		return fmt.Errorf("llm preflight: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("llm preflight: empty choices")
	}
	return nil
}

// Choose asks the model to pick a domain for the company.
func (c *Chooser) Choose(ctx context.Context, index int, company string, rowCtx []ContextKV, cands []candidate.Candidate) (Choice, error) {
	if c.Sem != nil {
		if err := c.Sem.Acquire(ctx, 1); err != nil {
			return Choice{}, err
		}
		defer c.Sem.Release(1)
	}
	resp, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemInstruction + "\n" + strictReturnInstruction},
		{Role: openai.ChatMessageRoleUser, Content: c.UserPrompt(index, company, rowCtx, cands)},
	})
	if err != nil {
		return Choice{}, fmt.Errorf("llm choose: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Choice{}, errors.New("llm choose: empty choices")
	}
	return ParseChoice(resp.Choices[0].Message.Content), nil
}

// UserPrompt renders the index, name, non-empty context pairs and the
// numbered candidate block.
func (c *Chooser) UserPrompt(index int, company string, rowCtx []ContextKV, cands []candidate.Candidate) string {
	var b strings.Builder
	b.WriteString("index=")
	b.WriteString(strconv.Itoa(index))
	b.WriteString("\nname=\"")
	b.WriteString(company)
	b.WriteString("\"")

	var bits []string
	for _, kv := range rowCtx {
		if v := strings.TrimSpace(kv.Value); v != "" {
			bits = append(bits, fmt.Sprintf("%s=%q", kv.Key, v))
		}
	}
	if len(bits) > 0 {
		b.WriteString("\ncontext: ")
		b.WriteString(strings.Join(bits, " ; "))
	}

	b.WriteString("\n\nCandidates:")
	max := c.MaxCandidates
	if max <= 0 {
		max = 8
	}
	for i, cd := range cands {
		if i >= max {
			break
		}
		fmt.Fprintf(&b, "\n[%d] url=%q title=%q snippet=%q", i, cd.URL, cd.Title, cd.Snippet)
	}
	return b.String()
}

func (c *Chooser) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (openai.ChatCompletionResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.Model,
		Temperature: math.SmallestNonzeroFloat32, // effectively 0; zero is dropped by omitempty
		Messages:    messages,
	}
	attempts := c.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.Client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return openai.ChatCompletionResponse{}, ctx.Err()
		}
		if !retryableLLMError(err) {
			return openai.ChatCompletionResponse{}, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		delay := c.backoff(attempt)
		log.Debug().Err(err).Dur("delay", delay).Int("attempt", attempt).Msg("llm retry")
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return openai.ChatCompletionResponse{}, ctx.Err()
		case <-t.C:
		}
	}
	return openai.ChatCompletionResponse{}, lastErr
}

func (c *Chooser) backoff(attempt int) time.Duration {
	base := c.BackoffBase
	if base <= 0 {
		base = 1.6
	}
	return time.Duration((math.Pow(base, float64(attempt-1)) + 0.05 + rand.Float64()*0.30) * float64(time.Second))
}

func retryableLLMError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	// Connection-level failure.
	return true
}

var (
	codeFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*|\\s*```$")
	jsonObjRe   = regexp.MustCompile(`(?s)\{.*\}`)
)

// ExtractFirstJSON strips code fences and returns the outermost {...} block.
func ExtractFirstJSON(s string) string {
	t := strings.TrimSpace(codeFenceRe.ReplaceAllString(s, ""))
	if m := jsonObjRe.FindString(t); m != "" {
		return m
	}
	return t
}

// ParseChoice decodes the model reply. Malformed content degrades to a null
// choice tagged ParseFailReason rather than an error.
func ParseChoice(content string) Choice {
	var obj map[string]any
	if err := json.Unmarshal([]byte(ExtractFirstJSON(strings.TrimSpace(content))), &obj); err != nil {
		return Choice{
			ChosenDomain: "null",
			FoundDomain:  "null",
			Confidence:   "null",
			Reason:       ParseFailReason,
		}
	}
	fromURL := asString(obj["chosen_from_url"])
	if fromURL == "" {
		fromURL = asString(obj["chosen_url"])
	}
	return Choice{
		ChosenDomain:  defaultIfEmpty(asString(obj["chosen_domain"]), "null"),
		ChosenFromURL: fromURL,
		FoundDomain:   defaultIfEmpty(asString(obj["found_domain"]), "null"),
		Confidence:    strings.ToLower(defaultIfEmpty(asString(obj["confidence"]), "null")),
		Reason:        asString(obj["reason"]),
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func defaultIfEmpty(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
