package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerline/advisor-plane/internal/bundle"
)

var prohibitedTerms = []string{
	"guaranteed returns", "guaranteed profit", "risk-free", "no risk", "can't lose",
}

// ComplianceAdapter audits the request and client position against CRA and
// CIRO rules. Findings are severity-ranked; the overall status is the
// worst severity seen.
type ComplianceAdapter struct {
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (a *ComplianceAdapter) Kind() Kind { return KindCompliance }

func (a *ComplianceAdapter) Timeout() time.Duration { return Timeout(KindCompliance) }

func (a *ComplianceAdapter) Invoke(ctx context.Context, b *bundle.ContextBundle) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	query := strings.ToLower(b.Query)
	age := estimateAge(b.Client.DateOfBirth, now())
	items := []ComplianceItem{}

	for _, account := range b.Accounts {
		switch account.Type {
		case "RRSP":
			if account.ContributionRoom > rrspLimit2024 {
				items = append(items, ComplianceItem{
					Severity: "info",
					Message: fmt.Sprintf(
						"RRSP contribution room (%s) exceeds the 2024 annual limit (%s). Room carries forward from prior years.",
						dollars(account.ContributionRoom), dollars(rrspLimit2024)),
					RuleCitation: "ITA 146(1) - RRSP deduction limit",
				})
			}
		case "FHSA":
			if account.ContributionRoom > 0 && containsAny(query, "fhsa", "home") {
				items = append(items, ComplianceItem{
					Severity: "info",
					Message: fmt.Sprintf(
						"FHSA annual contribution limit is %s. Available room: %s. Lifetime limit: %s.",
						dollars(fhsaAnnualLimit), dollars(account.ContributionRoom), dollars(fhsaLifetimeLimit)),
					RuleCitation: "ITA 146.6 - Tax-Free First Home Savings Account",
				})
			}
		case "RESP":
			if containsAny(query, "resp", "cesg", "education") {
				dependents := b.Client.Dependents
				if dependents == 0 {
					dependents = 1
				}
				childWord := "child"
				if dependents > 1 {
					childWord = "children"
				}
				items = append(items, ComplianceItem{
					Severity: "info",
					Message: fmt.Sprintf(
						"CESG matches 20%% on first $2,500/child/year (max %s/child). With %d %s, max annual CESG is %s.",
						dollars(cesgAnnualMaxPerKid), dependents, childWord, dollars(float64(cesgAnnualMaxPerKid*dependents))),
					RuleCitation: "Canada Education Savings Act s.5",
				})
			}
		}
	}

	if age >= 65 {
		totalIncome := b.Client.EmploymentIncome
		for _, account := range b.Accounts {
			if account.Type == "RRIF" {
				totalIncome += account.Balance * rrifMinPct(age)
			}
		}
		if totalIncome > oasClawbackThreshold {
			items = append(items, ComplianceItem{
				Severity: "warning",
				Message: fmt.Sprintf(
					"Estimated total income (%s) exceeds the OAS clawback threshold (%s). OAS benefits may be reduced.",
					dollars(totalIncome), dollars(oasClawbackThreshold)),
				RuleCitation: "ITA 180.2 - OAS Recovery Tax",
			})
		}
		for _, account := range b.Accounts {
			if account.Type == "RRIF" {
				pct := rrifMinPct(age)
				items = append(items, ComplianceItem{
					Severity: "info",
					Message: fmt.Sprintf(
						"RRIF minimum withdrawal for age %d: %.2f%% of %s = %s.",
						age, pct*100, dollars(account.Balance), dollars(account.Balance*pct)),
					RuleCitation: "ITA 146.3(1) - Minimum RRIF Withdrawal",
				})
			}
		}
	}

	if b.Client.Province == "QC" {
		items = append(items, ComplianceItem{
			Severity:     "info",
			Message:      "Quebec tax rules apply (Revenu Quebec). Provincial rates differ from federal and other provinces.",
			RuleCitation: "Taxation Act (Quebec) - Provincial income tax",
		})
	}

	for _, term := range prohibitedTerms {
		if strings.Contains(query, term) {
			items = append(items, ComplianceItem{
				Severity: "error",
				Message: fmt.Sprintf(
					"Flagged term: %q. Advice must not imply guaranteed outcomes per CIRO suitability requirements.", term),
				RuleCitation: "CIRO Rule 3400 - Suitability",
			})
		}
	}

	status := "clear"
	for _, item := range items {
		if item.Severity == "error" {
			status = "error"
			break
		}
		if item.Severity == "warning" {
			status = "warning"
		}
	}

	return Output{Kind: KindCompliance, Compliance: &ComplianceResult{Status: status, Items: items}}, nil
}
