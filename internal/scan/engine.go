package scan

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/advisor-plane/internal/events"
	"github.com/ledgerline/advisor-plane/internal/store"
)

// Engine states. Scanning evaluates rules; Reconciling dedupes candidates
// against open alerts and inserts the survivors.
const (
	StateIdle        = "idle"
	StateScanning    = "scanning"
	StateReconciling = "reconciling"
)

// Summary reports one completed cycle.
type Summary struct {
	ClientsScanned int    `json:"clients_scanned"`
	Candidates     int    `json:"candidates"`
	Created        int    `json:"created"`
	Deduped        int    `json:"deduped"`
	ClientErrors   int    `json:"client_errors"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at"`
}

// Engine runs the rule sweep. Cycles are mutually exclusive: a trigger
// that arrives while one is in flight is skipped, not queued.
type Engine struct {
	Store  store.Store
	Broker *events.Broker
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	mu      sync.Mutex
	state   string
	running bool
}

func NewEngine(st store.Store, broker *events.Broker) *Engine {
	return &Engine{Store: st, Broker: broker, state: StateIdle}
}

// State reports the engine's current phase.
func (e *Engine) State() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == "" {
		return StateIdle
	}
	return e.state
}

// RunCycle performs one sweep over every client. It returns a nil summary
// without error when a cycle is already in flight. Per-client failures are
// logged and counted but never abort the sweep.
func (e *Engine) RunCycle(ctx context.Context) (*Summary, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, nil
	}
	e.running = true
	e.state = StateScanning
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.state = StateIdle
		e.mu.Unlock()
	}()

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	summary := Summary{StartedAt: now().UTC().Format(time.RFC3339Nano)}

	clients, err := e.Store.ListClients(ctx)
	if err != nil {
		return nil, err
	}

	type hit struct {
		clientID  string
		candidate candidate
	}
	var hits []hit
	for _, client := range clients {
		accounts, err := e.Store.ListAccounts(ctx, client.ID)
		if err != nil {
			log.Printf("scan: client=%s skipped: %v", client.ID, err)
			summary.ClientErrors++
			continue
		}
		summary.ClientsScanned++
		for _, r := range ruleSet {
			if c := evaluate(r, client, accounts, now()); c != nil {
				hits = append(hits, hit{clientID: client.ID, candidate: *c})
			}
		}
	}
	summary.Candidates = len(hits)

	e.mu.Lock()
	e.state = StateReconciling
	e.mu.Unlock()

	openByClient := map[string]map[string]struct{}{}
	for _, h := range hits {
		open, ok := openByClient[h.clientID]
		if !ok {
			open, err = e.Store.SuppressedAlertKinds(ctx, h.clientID)
			if err != nil {
				log.Printf("scan: client=%s dedupe lookup failed: %v", h.clientID, err)
				summary.ClientErrors++
				continue
			}
			openByClient[h.clientID] = open
		}
		if _, exists := open[h.candidate.Kind]; exists {
			summary.Deduped++
			continue
		}
		alert := store.Alert{
			ID:             uuid.NewString(),
			ClientID:       h.clientID,
			Kind:           h.candidate.Kind,
			Title:          h.candidate.Title,
			Description:    h.candidate.Description,
			ProposedAction: h.candidate.ProposedAction,
			Status:         store.AlertPending,
			CreatedAt:      now().UTC().Format(time.RFC3339Nano),
		}
		if err := e.Store.CreateAlert(ctx, alert); err != nil {
			log.Printf("scan: client=%s alert insert failed: %v", h.clientID, err)
			summary.ClientErrors++
			continue
		}
		open[h.candidate.Kind] = struct{}{}
		summary.Created++
		e.Broker.Publish(events.Event{
			Type:     events.TypeItemCreated,
			ClientID: h.clientID,
			Payload: map[string]any{
				"alert_id": alert.ID,
				"kind":     alert.Kind,
				"title":    alert.Title,
			},
		})
	}

	summary.FinishedAt = now().UTC().Format(time.RFC3339Nano)
	log.Printf("scan: cycle done clients=%d candidates=%d created=%d deduped=%d errors=%d",
		summary.ClientsScanned, summary.Candidates, summary.Created, summary.Deduped, summary.ClientErrors)
	return &summary, nil
}

// evaluate shields the sweep from a panicking rule so one bad client record
// cannot take the cycle down.
func evaluate(r rule, client store.Client, accounts []store.Account, now time.Time) (c *candidate) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("scan: rule panic client=%s: %v", client.ID, rec)
			c = nil
		}
	}()
	return r(client, accounts, now)
}

// RunScheduler ticks RunCycle on the interval until the context ends. An
// interval of zero disables the scheduler.
func (e *Engine) RunScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.RunCycle(ctx); err != nil {
				log.Printf("scan: scheduled cycle failed: %v", err)
			}
		}
	}
}
