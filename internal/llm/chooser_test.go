package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/domainresolve/domainresolve/internal/candidate"
)

type fakeClient struct {
	replies []string
	errs    []error
	calls   int
	lastReq openai.ChatCompletionRequest
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := f.calls
	f.calls++
	f.lastReq = req
	if i < len(f.errs) && f.errs[i] != nil {
		return openai.ChatCompletionResponse{}, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: reply}},
		},
	}, nil
}

func TestExtractFirstJSON(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go: {\"a\":1} thanks", `{"a":1}`},
		{"no json here", "no json here"},
	}
	for _, c := range cases {
		if got := ExtractFirstJSON(c.in); got != c.want {
			t.Errorf("ExtractFirstJSON(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseChoice_FullObject(t *testing.T) {
	g := ParseChoice(`{"chosen_domain":"airbus.com","chosen_from_url":"https://airbus.com","found_domain":"null","confidence":"ENTITY","reason":"exact match"}`)
	if g.ChosenDomain != "airbus.com" || g.Confidence != "entity" || g.Reason != "exact match" {
		t.Fatalf("unexpected choice: %+v", g)
	}
}

func TestParseChoice_MalformedFallsBack(t *testing.T) {
	g := ParseChoice("I could not decide, sorry!")
	if g.ChosenDomain != "null" || g.FoundDomain != "null" || g.Confidence != "null" {
		t.Fatalf("expected null choice, got %+v", g)
	}
	if g.Reason != ParseFailReason {
		t.Fatalf("reason = %q", g.Reason)
	}
}

func TestParseChoice_MissingKeysDefault(t *testing.T) {
	g := ParseChoice(`{"chosen_domain":"acme.com"}`)
	if g.FoundDomain != "null" || g.Confidence != "null" || g.Reason != "" {
		t.Fatalf("unexpected defaults: %+v", g)
	}
}

func TestParseChoice_ChosenURLAlias(t *testing.T) {
	g := ParseChoice(`{"chosen_domain":"acme.com","chosen_url":"https://acme.com/about"}`)
	if g.ChosenFromURL != "https://acme.com/about" {
		t.Fatalf("alias not honoured: %+v", g)
	}
}

func TestUserPrompt_Shape(t *testing.T) {
	c := &Chooser{MaxCandidates: 2}
	got := c.UserPrompt(7, "Reel IT", []ContextKV{
		{Key: "country", Value: "France"},
		{Key: "notes", Value: "  "},
	}, []candidate.Candidate{
		{URL: "https://reel.fr", Title: "Reel", Snippet: "industrie"},
		{URL: "https://reel-it.fr", Title: "Reel IT"},
		{URL: "https://too-many.fr", Title: "dropped"},
	})
	for _, want := range []string{
		"index=7",
		`name="Reel IT"`,
		`context: country="France"`,
		`[0] url="https://reel.fr"`,
		`[1] url="https://reel-it.fr"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "too-many") {
		t.Error("candidate list not truncated")
	}
	if strings.Contains(got, "notes=") {
		t.Error("empty context value not skipped")
	}
}

func TestChoose_RetriesOn429(t *testing.T) {
	f := &fakeClient{
		errs: []error{
			&openai.APIError{HTTPStatusCode: 429},
			nil,
		},
		replies: []string{"", `{"chosen_domain":"acme.com","confidence":"entity"}`},
	}
	c := &Chooser{Client: f, Model: "gpt-4o-mini", MaxRetries: 3, BackoffBase: 1.01}
	g, err := c.Choose(context.Background(), 0, "Acme", nil, nil)
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if f.calls != 2 {
		t.Fatalf("calls = %d, want 2", f.calls)
	}
	if g.ChosenDomain != "acme.com" {
		t.Fatalf("choice = %+v", g)
	}
}

func TestChoose_FatalOn401(t *testing.T) {
	f := &fakeClient{errs: []error{&openai.APIError{HTTPStatusCode: 401}}}
	c := &Chooser{Client: f, Model: "gpt-4o-mini", MaxRetries: 4, BackoffBase: 1.01}
	if _, err := c.Choose(context.Background(), 0, "Acme", nil, nil); err == nil {
		t.Fatal("expected error for non-retryable status")
	}
	if f.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 4xx)", f.calls)
	}
}

func TestPreflight(t *testing.T) {
	f := &fakeClient{replies: []string{`{"ok":true}`}}
	c := &Chooser{Client: f, Model: "gpt-4o-mini", MaxRetries: 1}
	if err := c.Preflight(context.Background()); err != nil {
		t.Fatalf("Preflight: %v", err)
	}
	bad := &Chooser{Client: &fakeClient{errs: []error{errors.New("connect refused")}}, Model: "m", MaxRetries: 1}
	if err := bad.Preflight(context.Background()); err == nil {
		t.Fatal("expected preflight failure")
	}
}
