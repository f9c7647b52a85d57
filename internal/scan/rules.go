package scan

import (
	"fmt"
	"strings"
	"time"

	"github.com/ledgerline/advisor-plane/internal/store"
)

const (
	idleCashThreshold    = 10000
	cesgContribForMax    = 2500
	cesgAnnualMaxPerKid  = 500
	oasClawbackThreshold = 90997
	rrifConversionAge    = 71
)

// candidate is a rule hit before dedupe. ProposedAction carries the
// drafted outreach email the advisor can approve and send.
type candidate struct {
	Kind           string
	Title          string
	Description    string
	ProposedAction map[string]any
}

type rule func(client store.Client, accounts []store.Account, now time.Time) *candidate

// ruleSet is evaluated in order for every client on every cycle. Each rule
// returns at most one candidate; dedupe against open alerts happens in the
// engine, not here.
var ruleSet = []rule{
	idleCashRule,
	rrspDeadlineRule,
	cesgOptimizationRule,
	oasClawbackRule,
	rrifMinimumRule,
}

func idleCashRule(client store.Client, accounts []store.Account, now time.Time) *candidate {
	var idle float64
	for _, account := range accounts {
		if account.Type == "checking" || account.Type == "savings" {
			idle += account.Balance
		}
	}
	if idle <= idleCashThreshold {
		return nil
	}
	return &candidate{
		Kind:  "idle_cash",
		Title: fmt.Sprintf("%s has %s sitting in cash", firstName(client), dollars(idle)),
		Description: fmt.Sprintf(
			"%s is holding %s across chequing/savings, well above the %s working-cash threshold. Registered room may be going unused.",
			firstName(client), dollars(idle), dollars(idleCashThreshold)),
		ProposedAction: draftEmail(client,
			"Putting your idle cash to work",
			fmt.Sprintf(
				"Hi %s,\n\nI noticed you're holding about %s in cash. With your registered accounts still having room, we could put some of that to work tax-efficiently. Would a quick call this week suit you?\n\nBest regards,\nYour advisor",
				firstName(client), dollars(idle))),
	}
}

func rrspDeadlineRule(client store.Client, accounts []store.Account, now time.Time) *candidate {
	if now.Month() != time.January && now.Month() != time.February {
		return nil
	}
	for _, account := range accounts {
		if account.Type == "RRSP" && account.ContributionRoom > 0 {
			return &candidate{
				Kind:  "rrsp_deadline",
				Title: fmt.Sprintf("RRSP deadline approaching for %s", firstName(client)),
				Description: fmt.Sprintf(
					"%s has %s in unused RRSP room with the March 1 contribution deadline approaching.",
					firstName(client), dollars(account.ContributionRoom)),
				ProposedAction: draftEmail(client,
					"RRSP deadline: March 1 is coming up",
					fmt.Sprintf(
						"Hi %s,\n\nThe RRSP contribution deadline is March 1 and you still have %s in room. A contribution before the deadline counts against last year's income. Want me to run the numbers?\n\nBest regards,\nYour advisor",
						firstName(client), dollars(account.ContributionRoom))),
			}
		}
	}
	return nil
}

func cesgOptimizationRule(client store.Client, accounts []store.Account, now time.Time) *candidate {
	if client.Dependents == 0 {
		return nil
	}
	for _, account := range accounts {
		if account.Type != "RESP" {
			continue
		}
		optimal := float64(cesgContribForMax * client.Dependents)
		grant := float64(cesgAnnualMaxPerKid * client.Dependents)
		return &candidate{
			Kind:  "cesg_optimization",
			Title: fmt.Sprintf("Unclaimed CESG grant room for %s", firstName(client)),
			Description: fmt.Sprintf(
				"Contributing %s/year to the RESP unlocks %s in CESG matching for %d beneficiaries.",
				dollars(optimal), dollars(grant), client.Dependents),
			ProposedAction: draftEmail(client,
				"Free government money for the kids' education",
				fmt.Sprintf(
					"Hi %s,\n\nA reminder that contributing %s to the RESP this year captures the full %s CESG match from the government. That's a 20%% match on contributions up to the limit. Shall we set it up?\n\nBest regards,\nYour advisor",
					firstName(client), dollars(optimal), dollars(grant))),
		}
	}
	return nil
}

func oasClawbackRule(client store.Client, accounts []store.Account, now time.Time) *candidate {
	if ageOf(client, now) < 65 {
		return nil
	}
	if client.EmploymentIncome <= oasClawbackThreshold {
		return nil
	}
	return &candidate{
		Kind:  "oas_clawback",
		Title: fmt.Sprintf("OAS clawback exposure for %s", firstName(client)),
		Description: fmt.Sprintf(
			"Income of %s exceeds the %s OAS recovery-tax threshold; benefits will be reduced without income planning.",
			dollars(client.EmploymentIncome), dollars(oasClawbackThreshold)),
		ProposedAction: draftEmail(client,
			"Protecting your OAS benefits",
			fmt.Sprintf(
				"Hi %s,\n\nYour income level puts you above the OAS recovery threshold of %s, which means part of your OAS would be clawed back. There are income-splitting and withdrawal-sequencing options worth discussing. Can we schedule a review?\n\nBest regards,\nYour advisor",
				firstName(client), dollars(oasClawbackThreshold))),
	}
}

func rrifMinimumRule(client store.Client, accounts []store.Account, now time.Time) *candidate {
	age := ageOf(client, now)
	if age < rrifConversionAge {
		return nil
	}
	for _, account := range accounts {
		if account.Type == "RRSP" && account.Balance > 0 {
			return &candidate{
				Kind:  "rrif_minimum",
				Title: fmt.Sprintf("RRSP must convert to RRIF for %s", firstName(client)),
				Description: fmt.Sprintf(
					"%s is %d; the RRSP (%s) must convert to a RRIF by the end of the year they turn 71, after which minimum withdrawals apply.",
					firstName(client), age, dollars(account.Balance)),
				ProposedAction: draftEmail(client,
					"Time to plan your RRIF conversion",
					fmt.Sprintf(
						"Hi %s,\n\nYour RRSP needs to convert to a RRIF, and the withdrawal schedule we pick now shapes your taxes for years. Let's walk through the options together.\n\nBest regards,\nYour advisor",
						firstName(client))),
			}
		}
	}
	return nil
}

func draftEmail(client store.Client, subject, body string) map[string]any {
	return map[string]any{
		"type":    "email",
		"to":      client.Email,
		"subject": subject,
		"body":    body,
	}
}

func firstName(client store.Client) string {
	fields := strings.Fields(client.Name)
	if len(fields) == 0 {
		return client.Name
	}
	return fields[0]
}

func ageOf(client store.Client, now time.Time) int {
	dob, err := time.Parse("2006-01-02", strings.TrimSpace(client.DateOfBirth))
	if err != nil {
		return 0
	}
	age := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

func dollars(value float64) string {
	negative := value < 0
	if negative {
		value = -value
	}
	whole := int64(value + 0.5)
	raw := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, digit := range raw {
		if i > 0 && (len(raw)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	if negative {
		return "-$" + b.String()
	}
	return "$" + b.String()
}
