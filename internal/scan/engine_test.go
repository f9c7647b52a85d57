package scan

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerline/advisor-plane/internal/events"
	"github.com/ledgerline/advisor-plane/internal/store"
	"github.com/ledgerline/advisor-plane/internal/store/memory"
)

func seedBook(t *testing.T) *memory.MemoryStore {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	clients := []store.Client{
		{ID: "c-sarah", Name: "Sarah Chen", Email: "sarah@example.com", DateOfBirth: "1992-03-14", Dependents: 0, EmploymentIncome: 95000},
		{ID: "c-eleanor", Name: "Eleanor Whitfield", Email: "eleanor@example.com", DateOfBirth: "1952-06-21", Dependents: 0, EmploymentIncome: 98500},
	}
	for _, client := range clients {
		if err := st.CreateClient(ctx, client); err != nil {
			t.Fatalf("CreateClient: %v", err)
		}
	}
	accounts := []store.Account{
		{ID: "a1", ClientID: "c-sarah", Type: "checking", Balance: 23400},
		{ID: "a2", ClientID: "c-sarah", Type: "RRSP", Balance: 42000, ContributionRoom: 18500},
		{ID: "a3", ClientID: "c-eleanor", Type: "savings", Balance: 54000},
		{ID: "a4", ClientID: "c-eleanor", Type: "RRIF", Balance: 480000},
	}
	for _, account := range accounts {
		if err := st.CreateAccount(ctx, account); err != nil {
			t.Fatalf("CreateAccount: %v", err)
		}
	}
	return st
}

func fixedNow(t *testing.T, value string) func() time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return func() time.Time { return parsed }
}

func TestCycleCreatesAlertsOnce(t *testing.T) {
	ctx := context.Background()
	st := seedBook(t)
	engine := NewEngine(st, events.NewBroker())
	engine.Now = fixedNow(t, "2026-09-01T00:00:00Z")

	summary, err := engine.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary == nil || summary.Created == 0 {
		t.Fatalf("first cycle created nothing: %+v", summary)
	}
	firstCreated := summary.Created

	// A second sweep over the same book must dedupe against the open
	// alerts instead of stacking duplicates.
	summary, err = engine.RunCycle(ctx)
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if summary.Created != 0 {
		t.Fatalf("second cycle created %d alerts", summary.Created)
	}
	if summary.Deduped != firstCreated {
		t.Fatalf("deduped = %d, want %d", summary.Deduped, firstCreated)
	}

	alerts, err := st.ListAlerts(ctx, store.AlertFilter{ClientID: "c-sarah"})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	seen := map[string]int{}
	for _, alert := range alerts {
		seen[alert.Kind]++
	}
	for kind, count := range seen {
		if count != 1 {
			t.Fatalf("kind %s has %d alerts", kind, count)
		}
	}
}

func TestDismissedAlertIsNotReraised(t *testing.T) {
	ctx := context.Background()
	st := seedBook(t)
	engine := NewEngine(st, events.NewBroker())
	engine.Now = fixedNow(t, "2026-09-01T00:00:00Z")

	if _, err := engine.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	alerts, err := st.ListAlerts(ctx, store.AlertFilter{ClientID: "c-sarah", Status: store.AlertPending})
	if err != nil || len(alerts) == 0 {
		t.Fatalf("seed alerts: %v (%d)", err, len(alerts))
	}
	dismissedKind := alerts[0].Kind
	if _, err := st.UpdateAlertStatus(ctx, alerts[0].ID, store.AlertDismissed); err != nil {
		t.Fatalf("UpdateAlertStatus: %v", err)
	}

	// Dismissal is terminal for the (client, kind) pair: the condition
	// still holds but the next sweep must not raise it again.
	summary, err := engine.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary.Created != 0 {
		t.Fatalf("created = %d after dismissal, want 0", summary.Created)
	}
	fresh, err := st.ListAlerts(ctx, store.AlertFilter{ClientID: "c-sarah", Status: store.AlertPending})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	for _, alert := range fresh {
		if alert.Kind == dismissedKind {
			t.Fatalf("dismissed kind %s re-raised as %s", dismissedKind, alert.ID)
		}
	}
}

func TestCycleEmitsItemCreatedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := seedBook(t)
	broker := events.NewBroker()
	engine := NewEngine(st, broker)
	engine.Now = fixedNow(t, "2026-09-01T00:00:00Z")

	feed := broker.SubscribeGlobal(ctx)
	summary, err := engine.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	received := 0
	for received < summary.Created {
		select {
		case event := <-feed:
			if event.Type != events.TypeItemCreated {
				t.Fatalf("unexpected event type: %s", event.Type)
			}
			if event.Payload["alert_id"] == "" {
				t.Fatalf("event missing alert_id: %+v", event)
			}
			received++
		case <-time.After(time.Second):
			t.Fatalf("received %d of %d item_created events", received, summary.Created)
		}
	}
}

func TestConcurrentCycleSkipped(t *testing.T) {
	st := seedBook(t)
	engine := NewEngine(st, events.NewBroker())
	engine.Now = fixedNow(t, "2026-09-01T00:00:00Z")

	engine.mu.Lock()
	engine.running = true
	engine.state = StateScanning
	engine.mu.Unlock()

	summary, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary != nil {
		t.Fatalf("in-flight cycle not skipped: %+v", summary)
	}
}

func TestRuleThresholds(t *testing.T) {
	now := fixedNow(t, "2026-01-15T00:00:00Z")()

	quiet := store.Client{ID: "q", Name: "Quiet Client", DateOfBirth: "1990-05-01", EmploymentIncome: 50000}
	if c := idleCashRule(quiet, []store.Account{{Type: "checking", Balance: 9000}}, now); c != nil {
		t.Fatalf("idle cash below threshold flagged: %+v", c)
	}
	if c := idleCashRule(quiet, []store.Account{{Type: "checking", Balance: 8000}, {Type: "savings", Balance: 4000}}, now); c == nil {
		t.Fatal("combined idle cash above threshold not flagged")
	}

	withRoom := []store.Account{{Type: "RRSP", ContributionRoom: 5000}}
	if c := rrspDeadlineRule(quiet, withRoom, now); c == nil {
		t.Fatal("rrsp deadline not flagged in January")
	}
	july := fixedNow(t, "2026-07-15T00:00:00Z")()
	if c := rrspDeadlineRule(quiet, withRoom, july); c != nil {
		t.Fatalf("rrsp deadline flagged outside Jan/Feb: %+v", c)
	}

	parent := store.Client{ID: "p", Name: "Parent", DateOfBirth: "1985-11-02", Dependents: 2}
	c := cesgOptimizationRule(parent, []store.Account{{Type: "RESP", Balance: 21000}}, now)
	if c == nil {
		t.Fatal("cesg rule not flagged for RESP holder with dependents")
	}
	if c.ProposedAction["type"] != "email" {
		t.Fatalf("proposed action is not a drafted email: %+v", c.ProposedAction)
	}
	if cesgOptimizationRule(quiet, []store.Account{{Type: "RESP"}}, now) != nil {
		t.Fatal("cesg rule flagged without dependents")
	}

	retiree := store.Client{ID: "r", Name: "Retiree", DateOfBirth: "1952-06-21", EmploymentIncome: 98500}
	if oasClawbackRule(retiree, nil, now) == nil {
		t.Fatal("oas clawback not flagged")
	}
	midIncome := retiree
	midIncome.EmploymentIncome = 80000
	if c := oasClawbackRule(midIncome, nil, now); c != nil {
		t.Fatalf("oas clawback flagged below threshold: %+v", c)
	}

	elder := store.Client{ID: "e", Name: "Elder", DateOfBirth: "1950-01-01"}
	if rrifMinimumRule(elder, []store.Account{{Type: "RRSP", Balance: 100000}}, now) == nil {
		t.Fatal("rrif conversion not flagged for unconverted RRSP at 76")
	}
	if c := rrifMinimumRule(quiet, []store.Account{{Type: "RRSP", Balance: 100000}}, now); c != nil {
		t.Fatalf("rrif conversion flagged before age 71: %+v", c)
	}
}
