package api

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/ledgerline/advisor-plane/internal/config"
	"github.com/ledgerline/advisor-plane/internal/intent"
	"github.com/ledgerline/advisor-plane/internal/scan"
	"github.com/ledgerline/advisor-plane/internal/store"
	"github.com/ledgerline/advisor-plane/internal/store/memory"
	"github.com/ledgerline/advisor-plane/internal/workflows"
)

type MockDispatchService struct {
	mock.Mock
}

func (m *MockDispatchService) StartDispatch(ctx context.Context, input workflows.DispatchInput) error {
	args := m.Called(ctx, input)
	return args.Error(0)
}

type MockScanner struct {
	mock.Mock
}

func (m *MockScanner) RunCycle(ctx context.Context) (*scan.Summary, error) {
	args := m.Called(ctx)
	if value := args.Get(0); value != nil {
		return value.(*scan.Summary), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockScanner) State() string {
	args := m.Called()
	return args.String(0)
}

// seedStore loads a memory store with one client, two accounts, a completed
// task, and a pending alert so route tests have real rows to act on.
func seedStore(t *testing.T) *memory.MemoryStore {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	if err := st.CreateClient(ctx, store.Client{
		ID:          "c-sarah",
		Name:        "Sarah Chen",
		Email:       "sarah.chen@example.com",
		Province:    "ON",
		DateOfBirth: "1992-03-14",
		RiskProfile: "growth",
	}); err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	accounts := []store.Account{
		{ID: "a-chequing", ClientID: "c-sarah", Type: "checking", Balance: 23400},
		{ID: "a-fhsa", ClientID: "c-sarah", Type: "FHSA", Balance: 16000, ContributionRoom: 8000},
	}
	for _, account := range accounts {
		if err := st.CreateAccount(ctx, account); err != nil {
			t.Fatalf("CreateAccount: %v", err)
		}
	}
	if err := st.CreateTask(ctx, store.Task{
		ID:          "t-done",
		ClientID:    "c-sarah",
		DispatchID:  "d-old",
		Worker:      "quant",
		Status:      store.TaskCompleted,
		Disposition: store.DispositionNone,
		CreatedAt:   "2026-08-01T00:00:00Z",
		CompletedAt: "2026-08-01T00:00:05Z",
	}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := st.CreateAlert(ctx, store.Alert{
		ID:        "al-idle",
		ClientID:  "c-sarah",
		Kind:      "idle_cash",
		Title:     "Sarah has $23,400 sitting in cash",
		Status:    store.AlertPending,
		CreatedAt: "2026-08-15T00:00:00Z",
	}); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	return st
}

func newTestServer(t *testing.T, st store.Store, broker Broker, dispatches DispatchService, scanner Scanner, cfg config.Config) *httptest.Server {
	t.Helper()
	server := NewServer(st, broker, dispatches, scanner, &intent.Classifier{}, cfg)
	return httptest.NewServer(server.Router())
}
