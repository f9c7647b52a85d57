package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerline/advisor-plane/internal/bundle"
	"github.com/ledgerline/advisor-plane/internal/store"
)

// QuantAdapter performs deterministic financial calculations against the
// bundle's account data. It picks an analysis from the request text and
// reports unknowns instead of inventing figures when an account is absent.
type QuantAdapter struct{}

func (a *QuantAdapter) Kind() Kind { return KindQuant }

func (a *QuantAdapter) Timeout() time.Duration { return Timeout(KindQuant) }

func (a *QuantAdapter) Invoke(ctx context.Context, b *bundle.ContextBundle) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	accounts := b.AccountsByType()
	query := strings.ToLower(b.Query)
	first := b.FirstName()

	var result QuantResult
	switch {
	case containsAny(query, "mortgage", "fhsa", "home", "first home"):
		result = fhsaAnalysis(first, accounts, b.Client)
	case containsAny(query, "resp", "cesg", "education", "grant"):
		result = cesgAnalysis(first, accounts, b.Client)
	case containsAny(query, "rrsp", "contribution room", "contribution"):
		result = rrspAnalysis(first, accounts, b.Client)
	case containsAny(query, "portfolio", "review", "drift", "rebalance"):
		result = portfolioReview(first, b)
	case containsAny(query, "tfsa", "compare", "student loan", "loan"):
		result = tfsaVsRRSP(first, accounts, b.Client)
	case containsAny(query, "tax", "bracket", "salary", "dividend"):
		result = taxOverview(first, b.Client)
	default:
		result = generalOverview(first, b)
	}

	return Output{Kind: KindQuant, Quant: &result}, nil
}

func fhsaAnalysis(first string, accounts map[string]store.Account, client store.Client) QuantResult {
	fhsa, hasFHSA := accounts["FHSA"]
	if !hasFHSA {
		return QuantResult{
			Summary:  fmt.Sprintf("%s has no FHSA on file, so I can't size a first-home contribution plan.", first),
			Details:  "Open an FHSA to unlock the analysis: deductible contributions, tax-free growth, tax-free withdrawal for a first home.",
			Unknowns: []string{"fhsa_contribution_room"},
		}
	}
	rrsp := accounts["RRSP"]
	checking := accounts["checking"]
	rate := estimateMarginalRate(client.EmploymentIncome)
	fhsaSavings := fhsa.ContributionRoom * rate

	rrspSavings := 0.0
	if checking.Balance > fhsa.ContributionRoom {
		available := checking.Balance - fhsa.ContributionRoom
		if available > rrsp.ContributionRoom {
			available = rrsp.ContributionRoom
		}
		rrspSavings = available * rate
	}

	code := fmt.Sprintf(`# FHSA vs mortgage down payment
fhsa_room = %.0f
rrsp_room = %.0f
idle_cash = %.0f
marginal_rate = %.2f
fhsa_tax_savings = fhsa_room * marginal_rate
print(f"FHSA tax savings: ${fhsa_tax_savings:,.0f}")
print(f"FHSA future value (5yr, 6%%): ${fhsa_room * 1.06**5:,.0f}")`,
		fhsa.ContributionRoom, rrsp.ContributionRoom, checking.Balance, rate)

	return QuantResult{
		Summary: fmt.Sprintf(
			"For %s, maxing the FHSA first (%s) is the clear winner: a %s deduction now at the %s marginal rate, tax-free growth, and tax-free withdrawal for a home purchase.",
			first, dollars(fhsa.ContributionRoom), dollars(fhsaSavings), percent(rate)),
		Details: fmt.Sprintf(
			"Step 1: contribute %s to the FHSA for a %s refund.\nStep 2: RRSP room of %s could add %s in tax savings.\nStep 3: remaining cash stays liquid for the down payment.",
			dollars(fhsa.ContributionRoom), dollars(fhsaSavings), dollars(rrsp.ContributionRoom), dollars(rrspSavings)),
		PythonCode: code,
		Latex:      `FV = PV \times (1 + r)^n \quad \text{Tax savings} = \text{Contribution} \times \text{Marginal Rate}`,
	}
}

func rrspAnalysis(first string, accounts map[string]store.Account, client store.Client) QuantResult {
	rrsp, ok := accounts["RRSP"]
	if !ok {
		return QuantResult{
			Summary:  fmt.Sprintf("%s has no RRSP on file, so contribution-room math isn't available.", first),
			Unknowns: []string{"rrsp_contribution_room"},
		}
	}
	rate := estimateMarginalRate(client.EmploymentIncome)
	savings := rrsp.ContributionRoom * rate
	return QuantResult{
		Summary: fmt.Sprintf(
			"%s has %s in RRSP contribution room. A full contribution would save %s in taxes at the %s marginal rate. RRSP deadline is March 1.",
			first, dollars(rrsp.ContributionRoom), dollars(savings), percent(rate)),
		Details: fmt.Sprintf(
			"Current RRSP balance: %s\nAvailable room: %s\nEmployment income: %s\nEstimated marginal rate: %s\nTax savings from max contribution: %s\n\nNote: the 2024 RRSP deduction limit is %s; room is 18%% of prior-year earned income less pension adjustment.",
			dollars(rrsp.Balance), dollars(rrsp.ContributionRoom), dollars(client.EmploymentIncome),
			percent(rate), dollars(savings), dollars(rrspLimit2024)),
		PythonCode: fmt.Sprintf("room = %.0f\nmarginal_rate = %.2f\nprint(f'Tax savings: ${room * marginal_rate:,.0f}')", rrsp.ContributionRoom, rate),
		Latex:      `\text{Tax Savings} = \text{Contribution Room} \times \text{Marginal Tax Rate}`,
	}
}

func cesgAnalysis(first string, accounts map[string]store.Account, client store.Client) QuantResult {
	resp, ok := accounts["RESP"]
	if !ok {
		return QuantResult{
			Summary:  fmt.Sprintf("%s has no RESP on file, so CESG math isn't available.", first),
			Unknowns: []string{"resp_balance"},
		}
	}
	dependents := client.Dependents
	if dependents == 0 {
		dependents = 1
	}
	optimal := float64(cesgContribForMax * dependents)
	grant := float64(cesgAnnualMaxPerKid * dependents)
	childWord := "child"
	if dependents > 1 {
		childWord = "children"
	}
	return QuantResult{
		Summary: fmt.Sprintf(
			"To maximize the CESG for %d %s, %s should contribute %s/year (%s/child). That unlocks %s in grants this year.",
			dependents, childWord, first, dollars(optimal), dollars(cesgContribForMax), dollars(grant)),
		Details: fmt.Sprintf(
			"RESP balance: %s\nBeneficiaries: %d\nCESG match: %s on first %s/child/year, max %s/child\nLifetime CESG limit: %s/child, available until the beneficiary turns 17.",
			dollars(resp.Balance), dependents, percent(cesgMatchRate), dollars(cesgContribForMax),
			dollars(cesgAnnualMaxPerKid), dollars(cesgLifetimeMax)),
		PythonCode: fmt.Sprintf("children = %d\ncesg = children * %d * %.2f\nprint(f'CESG grant: ${cesg * %d:,.0f}')", dependents, cesgContribForMax, cesgMatchRate, 1),
		Latex:      `\text{CESG} = \min(\$500, \text{Contribution} \times 20\%) \text{ per child per year}`,
	}
}

func portfolioReview(first string, b *bundle.ContextBundle) QuantResult {
	total := b.TotalPortfolio()
	risk := b.Client.RiskProfile
	targets := map[string]int{"conservative": 30, "balanced": 60, "growth": 80, "aggressive": 90}
	target, ok := targets[risk]
	if !ok {
		target = 60
	}
	lines := make([]string, 0, len(b.Accounts))
	for _, account := range b.Accounts {
		lines = append(lines, fmt.Sprintf("  %s: %s", account.Type, dollars(account.Balance)))
	}
	return QuantResult{
		Summary: fmt.Sprintf(
			"%s's total portfolio is %s with a %s risk profile. Target equity allocation is %d%%; worth reviewing current allocation for drift.",
			first, dollars(total), risk, target),
		Details: fmt.Sprintf(
			"Total portfolio value: %s\nRisk profile: %s\nTarget equity: %d%%\nTarget fixed income: %d%%\n\nAccount breakdown:\n%s",
			dollars(total), risk, target, 100-target, strings.Join(lines, "\n")),
		PythonCode: fmt.Sprintf("total = %.0f\ntarget_equity = %.2f\nprint(f'Equity target: ${total * target_equity:,.0f}')", total, float64(target)/100),
		Latex:      `\text{Target Equity} = \text{Total Portfolio} \times \text{Equity \%}`,
	}
}

func tfsaVsRRSP(first string, accounts map[string]store.Account, client store.Client) QuantResult {
	tfsa := accounts["TFSA"]
	rrsp := accounts["RRSP"]
	income := client.EmploymentIncome
	rate := estimateMarginalRate(income)

	var recommendation, reason string
	switch {
	case income < 55000:
		recommendation = "TFSA first"
		reason = fmt.Sprintf("At %s income the marginal rate is only %s; TFSA flexibility wins.", dollars(income), percent(rate))
	case income > 100000:
		recommendation = "RRSP first"
		reason = fmt.Sprintf("At %s income the %s marginal rate makes the RRSP deduction very valuable.", dollars(income), percent(rate))
	default:
		recommendation = "Split between both"
		reason = fmt.Sprintf("At %s income both accounts have merit; consider splitting contributions.", dollars(income))
	}

	return QuantResult{
		Summary: fmt.Sprintf("For %s: %s. %s", first, recommendation, reason),
		Details: fmt.Sprintf(
			"TFSA room: %s\nRRSP room: %s\nIncome: %s\nMarginal rate: %s\n\nTFSA: no deduction, but growth and withdrawals are tax-free.\nRRSP: deduction now, withdrawals taxed as income.\nRule of thumb: RRSP wins when the current marginal rate exceeds the expected retirement rate.",
			dollars(tfsa.ContributionRoom), dollars(rrsp.ContributionRoom), dollars(income), percent(rate)),
		PythonCode: fmt.Sprintf("income = %.0f\nmarginal_rate = %.2f\nprint(f'RRSP tax savings: ${%.0f * marginal_rate:,.0f}')", income, rate, rrsp.ContributionRoom),
		Latex:      `\text{RRSP advantage} = \text{Room} \times (r_{\text{now}} - r_{\text{retirement}})`,
	}
}

func taxOverview(first string, client store.Client) QuantResult {
	income := client.EmploymentIncome
	rate := estimateMarginalRate(income)
	return QuantResult{
		Summary: fmt.Sprintf(
			"%s's employment income of %s lands at an estimated %s combined marginal rate.",
			first, dollars(income), percent(rate)),
		Details: fmt.Sprintf(
			"Employment income: %s\nEstimated marginal rate: %s\n\n2024 federal brackets:\n  $0 - $55,867: 15%%\n  $55,867 - $111,733: 20.5%%\n  $111,733 - $173,675: 26%%\n  $173,675 - $235,699: 29%%\n  $235,699+: 33%%",
			dollars(income), percent(rate)),
		PythonCode: fmt.Sprintf("income = %.0f\nprint('Marginal rate: %s')", income, percent(rate)),
		Latex:      `T = \sum_{i=1}^{n} r_i \times \min(I - B_{i-1}, B_i - B_{i-1})`,
	}
}

func generalOverview(first string, b *bundle.ContextBundle) QuantResult {
	total := b.TotalPortfolio()
	lines := make([]string, 0, len(b.Accounts))
	for _, account := range b.Accounts {
		lines = append(lines, fmt.Sprintf("  %s: %s", account.Type, dollars(account.Balance)))
	}
	return QuantResult{
		Summary: fmt.Sprintf(
			"Overview for %s: total portfolio %s, income %s. Ask about a specific area to dig deeper.",
			first, dollars(total), dollars(b.Client.EmploymentIncome)),
		Details: fmt.Sprintf("Portfolio: %s\nIncome: %s\nAccounts:\n%s",
			dollars(total), dollars(b.Client.EmploymentIncome), strings.Join(lines, "\n")),
	}
}
