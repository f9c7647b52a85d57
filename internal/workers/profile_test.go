package workers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ledgerline/advisor-plane/internal/bundle"
	"github.com/ledgerline/advisor-plane/internal/llm"
	"github.com/ledgerline/advisor-plane/internal/store"
)

type stubProvider struct {
	response string
	err      error
	calls    int
}

func (p *stubProvider) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	p.calls++
	return p.response, p.err
}

func profileBundle() *bundle.ContextBundle {
	return &bundle.ContextBundle{
		Client: store.Client{
			ID:          "c1",
			Name:        "Sarah Chen",
			Email:       "sarah.chen@example.com",
			Province:    "ON",
			RiskProfile: "growth",
			Goals:       []string{"first home purchase"},
		},
		Accounts: []store.Account{
			{Type: "FHSA", Balance: 16000},
			{Type: "checking", Balance: 23400},
		},
		Query: "Help Sarah plan her FHSA contributions",
	}
}

func TestProfileDeterministicWithoutProvider(t *testing.T) {
	adapter := &ProfileAdapter{}
	output, err := adapter.Invoke(context.Background(), profileBundle())
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	profile := output.Profile
	if profile == nil {
		t.Fatalf("output union: %+v", output)
	}
	if profile.Draft.To != "sarah.chen@example.com" {
		t.Fatalf("draft to = %q", profile.Draft.To)
	}
	if profile.Draft.Subject != "Your first-home savings plan" {
		t.Fatalf("subject = %q", profile.Draft.Subject)
	}
	if profile.Draft.Tone != "encouraging" {
		t.Fatalf("tone = %q", profile.Draft.Tone)
	}
	if !strings.Contains(profile.Draft.Body, "Hi Sarah,") {
		t.Fatalf("body = %q", profile.Draft.Body)
	}
	if len(profile.Unknowns) != 0 {
		t.Fatalf("unexpected unknowns: %v", profile.Unknowns)
	}
}

func TestProfileLLMPolishAndFallback(t *testing.T) {
	provider := &stubProvider{response: "Hi Sarah,\n\nPolished email body.\n\nYour advisor"}
	adapter := &ProfileAdapter{Provider: provider}
	output, err := adapter.Invoke(context.Background(), profileBundle())
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if output.Profile.Draft.Body != provider.response {
		t.Fatalf("polished body not used: %q", output.Profile.Draft.Body)
	}
	if provider.calls != 1 {
		t.Fatalf("provider calls = %d", provider.calls)
	}

	failing := &ProfileAdapter{Provider: &stubProvider{err: errors.New("rate limited")}}
	output, err = failing.Invoke(context.Background(), profileBundle())
	if err != nil {
		t.Fatalf("Invoke with failing provider: %v", err)
	}
	if !strings.Contains(output.Profile.Draft.Body, "Hi Sarah,") {
		t.Fatalf("deterministic fallback not used: %q", output.Profile.Draft.Body)
	}
}

func TestProfileMarksMissingEmailUnknown(t *testing.T) {
	b := profileBundle()
	b.Client.Email = ""
	adapter := &ProfileAdapter{}
	output, err := adapter.Invoke(context.Background(), b)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(output.Profile.Unknowns) != 1 || output.Profile.Unknowns[0] != "client_email" {
		t.Fatalf("unknowns = %v", output.Profile.Unknowns)
	}
}

func TestDraftSubjectAndTone(t *testing.T) {
	cases := []struct {
		query   string
		subject string
		tone    string
	}{
		{"rrsp deadline coming up", "RRSP deadline: let's lock in your tax savings", "urgent"},
		{"resp grants for the kids", "Free government money for your kids' education", "friendly"},
		{"time to rebalance the portfolio", "Your portfolio review is ready", "professional"},
		{"hello there", "Checking in on your financial plan", "friendly"},
	}
	for _, tc := range cases {
		subject, tone := draftSubjectAndTone(tc.query)
		if subject != tc.subject || tone != tc.tone {
			t.Errorf("draftSubjectAndTone(%q) = (%q, %q), want (%q, %q)", tc.query, subject, tone, tc.subject, tc.tone)
		}
	}
}
