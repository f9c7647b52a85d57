package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerline/advisor-plane/internal/bundle"
	"github.com/ledgerline/advisor-plane/internal/llm"
)

// ProfileAdapter synthesizes a client summary and a drafted outreach email.
// When a Provider is configured the email body is polished by the model;
// otherwise the deterministic draft ships as-is.
type ProfileAdapter struct {
	Provider llm.Provider
}

func (a *ProfileAdapter) Kind() Kind { return KindProfile }

func (a *ProfileAdapter) Timeout() time.Duration { return Timeout(KindProfile) }

func (a *ProfileAdapter) Invoke(ctx context.Context, b *bundle.ContextBundle) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	first := b.FirstName()
	total := b.TotalPortfolio()
	query := strings.ToLower(b.Query)

	highlights := []string{
		fmt.Sprintf("Total portfolio: %s across %d accounts", dollars(total), len(b.Accounts)),
	}
	if b.Client.RiskProfile != "" {
		highlights = append(highlights, fmt.Sprintf("Risk profile: %s", b.Client.RiskProfile))
	}
	if len(b.Client.Goals) > 0 {
		highlights = append(highlights, fmt.Sprintf("Goals: %s", strings.Join(b.Client.Goals, ", ")))
	}
	if b.Client.Dependents > 0 {
		highlights = append(highlights, fmt.Sprintf("Dependents: %d", b.Client.Dependents))
	}
	for _, note := range b.Notes {
		if len(highlights) >= 6 {
			break
		}
		highlights = append(highlights, fmt.Sprintf("Note: %s", truncate(note.Content, 120)))
	}

	var unknowns []string
	if b.Client.Email == "" {
		unknowns = append(unknowns, "client_email")
	}

	subject, tone := draftSubjectAndTone(query)
	body := a.draftBody(ctx, b, first, subject)

	summary := fmt.Sprintf(
		"%s (%s, %s) holds %s across %d accounts. Request: %s",
		b.Client.Name, b.Client.Province, b.Client.RiskProfile, dollars(total), len(b.Accounts), b.Query)

	return Output{Kind: KindProfile, Profile: &ProfileResult{
		Summary:    summary,
		Highlights: highlights,
		Draft: DraftMessage{
			To:         b.Client.Email,
			Subject:    subject,
			Body:       body,
			Tone:       tone,
			Highlights: highlights[:min(len(highlights), 3)],
		},
		Unknowns: unknowns,
	}}, nil
}

// draftSubjectAndTone maps the request to outreach copy. Unmatched requests
// get a neutral check-in.
func draftSubjectAndTone(query string) (string, string) {
	switch {
	case containsAny(query, "fhsa", "home", "mortgage"):
		return "Your first-home savings plan", "encouraging"
	case containsAny(query, "rrsp", "deadline", "contribution"):
		return "RRSP deadline: let's lock in your tax savings", "urgent"
	case containsAny(query, "resp", "cesg", "education"):
		return "Free government money for your kids' education", "friendly"
	case containsAny(query, "retire", "rrif", "oas", "pension"):
		return "A check-in on your retirement income plan", "reassuring"
	case containsAny(query, "portfolio", "review", "rebalance"):
		return "Your portfolio review is ready", "professional"
	default:
		return "Checking in on your financial plan", "friendly"
	}
}

func (a *ProfileAdapter) draftBody(ctx context.Context, b *bundle.ContextBundle, first, subject string) string {
	fallback := fmt.Sprintf(
		"Hi %s,\n\nI've been reviewing your accounts and wanted to reach out about \"%s\". Based on your current position (%s total across %d accounts), there are a few opportunities worth a quick conversation.\n\nWould a 20-minute call this week work for you?\n\nBest regards,\nYour advisor",
		first, b.Query, dollars(b.TotalPortfolio()), len(b.Accounts))

	if a.Provider == nil {
		return fallback
	}

	prompt := fmt.Sprintf(
		"Write a short, warm outreach email from a financial advisor to a client named %s. Subject line: %q. The advisor's request context: %q. Client province: %s, risk profile: %s. Keep it under 120 words, plain text, no placeholders, sign off as 'Your advisor'.",
		first, subject, b.Query, b.Client.Province, b.Client.RiskProfile)
	polished, err := a.Provider.Generate(ctx, []llm.Message{
		{Role: "system", Content: "You draft concise, compliant client outreach emails for a Canadian financial advisor. Never promise returns."},
		{Role: "user", Content: prompt},
	})
	if err != nil || strings.TrimSpace(polished) == "" {
		return fallback
	}
	return strings.TrimSpace(polished)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
