package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/advisor-plane/internal/config"
	"github.com/ledgerline/advisor-plane/internal/events"
	"github.com/ledgerline/advisor-plane/internal/scan"
	"github.com/ledgerline/advisor-plane/internal/store"
	"github.com/ledgerline/advisor-plane/internal/workflows"
)

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, seedStore(t), events.NewBroker(), nil, nil, config.Config{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "ok", payload["status"])
}

func TestReady(t *testing.T) {
	scanner := &MockScanner{}
	scanner.On("State").Return(scan.StateIdle).Once()

	server := newTestServer(t, seedStore(t), events.NewBroker(), &MockDispatchService{}, scanner, config.Config{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload readinessResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "ok", payload.Status)
	require.Equal(t, "ok", payload.Subsystems["store"].Status)
	require.Equal(t, "ok", payload.Subsystems["dispatches"].Status)
	require.Equal(t, scan.StateIdle, payload.Subsystems["scan"].Status)
	scanner.AssertExpectations(t)
}

func TestListClients(t *testing.T) {
	server := newTestServer(t, seedStore(t), events.NewBroker(), nil, nil, config.Config{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/clients")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Clients []map[string]any `json:"clients"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Clients, 1)
	require.Equal(t, "c-sarah", payload.Clients[0]["id"])
	require.Equal(t, float64(39400), payload.Clients[0]["total_portfolio"])
	require.Equal(t, float64(2), payload.Clients[0]["account_count"])
}

func TestGetClientBundle(t *testing.T) {
	server := newTestServer(t, seedStore(t), events.NewBroker(), nil, nil, config.Config{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/clients/c-sarah")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	for _, key := range []string{"client", "accounts", "documents", "notes", "chat", "tasks", "open_alerts", "total_portfolio"} {
		require.Contains(t, payload, key)
	}

	var openAlerts []store.Alert
	require.NoError(t, json.Unmarshal(payload["open_alerts"], &openAlerts))
	require.Len(t, openAlerts, 1)
	require.Equal(t, "al-idle", openAlerts[0].ID)

	resp, err = http.Get(server.URL + "/clients/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDispatchAccepted(t *testing.T) {
	dispatches := &MockDispatchService{}
	dispatches.On("StartDispatch", mock.Anything, mock.MatchedBy(func(input workflows.DispatchInput) bool {
		if input.ClientID != "c-sarah" || input.DispatchID == "" {
			return false
		}
		// Every selected worker must already hold its promised task ID.
		for _, worker := range input.Workers {
			if input.TaskIDs[worker] == "" {
				return false
			}
		}
		return len(input.Workers) > 0
	})).Return(nil).Once()

	server := newTestServer(t, seedStore(t), events.NewBroker(), dispatches, nil, config.Config{})
	defer server.Close()

	resp := postJSON(t, server.URL+"/clients/c-sarah/dispatch", map[string]string{"text": "how much FHSA room is left?"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var payload struct {
		DispatchID string            `json:"dispatch_id"`
		ClientID   string            `json:"client_id"`
		Workers    []string          `json:"workers"`
		TaskIDs    map[string]string `json:"task_ids"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.NotEmpty(t, payload.DispatchID)
	require.Equal(t, "c-sarah", payload.ClientID)
	require.Len(t, payload.TaskIDs, len(payload.Workers))
	dispatches.AssertExpectations(t)
}

func TestDispatchRejections(t *testing.T) {
	t.Run("busy client conflicts", func(t *testing.T) {
		dispatches := &MockDispatchService{}
		dispatches.On("StartDispatch", mock.Anything, mock.Anything).Return(workflows.ErrBusy).Once()

		server := newTestServer(t, seedStore(t), events.NewBroker(), dispatches, nil, config.Config{})
		defer server.Close()

		resp := postJSON(t, server.URL+"/clients/c-sarah/dispatch", map[string]string{"text": "review the plan"})
		defer resp.Body.Close()
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		dispatches.AssertExpectations(t)
	})

	t.Run("unknown client", func(t *testing.T) {
		server := newTestServer(t, seedStore(t), events.NewBroker(), &MockDispatchService{}, nil, config.Config{})
		defer server.Close()

		resp := postJSON(t, server.URL+"/clients/nope/dispatch", map[string]string{"text": "review the plan"})
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("empty text", func(t *testing.T) {
		server := newTestServer(t, seedStore(t), events.NewBroker(), &MockDispatchService{}, nil, config.Config{})
		defer server.Close()

		resp := postJSON(t, server.URL+"/clients/c-sarah/dispatch", map[string]string{"text": "   "})
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestTaskAction(t *testing.T) {
	st := seedStore(t)
	broker := events.NewBroker()
	server := newTestServer(t, st, broker, nil, nil, config.Config{})
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := broker.SubscribeGlobal(ctx)

	resp := postJSON(t, server.URL+"/tasks/t-done/action", map[string]string{"action": "edit", "edited_content": "softer wording"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	task, err := st.GetTask(context.Background(), "t-done")
	require.NoError(t, err)
	require.Equal(t, store.DispositionEdited, task.Disposition)
	require.Equal(t, "softer wording", task.DispositionNote)

	select {
	case event := <-feed:
		require.Equal(t, events.TypeItemMutated, event.Type)
		require.Equal(t, "t-done", event.TaskID)
	case <-time.After(time.Second):
		t.Fatal("no item_mutated event")
	}
}

func TestTaskActionRejections(t *testing.T) {
	st := seedStore(t)
	require.NoError(t, st.CreateTask(context.Background(), store.Task{
		ID: "t-running", ClientID: "c-sarah", Worker: "quant", Status: store.TaskRunning, CreatedAt: "2026-08-20T00:00:00Z",
	}))
	server := newTestServer(t, st, events.NewBroker(), nil, nil, config.Config{})
	defer server.Close()

	resp := postJSON(t, server.URL+"/tasks/t-running/action", map[string]string{"action": "approve"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, server.URL+"/tasks/missing/action", map[string]string{"action": "approve"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, server.URL+"/tasks/t-done/action", map[string]string{"action": "edit"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, server.URL+"/tasks/t-done/action", map[string]string{"action": "shred"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAlertAction(t *testing.T) {
	st := seedStore(t)
	server := newTestServer(t, st, events.NewBroker(), nil, nil, config.Config{})
	defer server.Close()

	resp := postJSON(t, server.URL+"/alerts/al-idle/action", map[string]string{"action": "dismiss"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	alert, err := st.GetAlert(context.Background(), "al-idle")
	require.NoError(t, err)
	require.Equal(t, store.AlertDismissed, alert.Status)

	// A second disposition against the resolved alert conflicts.
	resp = postJSON(t, server.URL+"/alerts/al-idle/action", map[string]string{"action": "approve"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRunScan(t *testing.T) {
	t.Run("returns the summary", func(t *testing.T) {
		scanner := &MockScanner{}
		scanner.On("RunCycle", mock.Anything).Return(&scan.Summary{ClientsScanned: 3, Created: 2}, nil).Once()

		server := newTestServer(t, seedStore(t), events.NewBroker(), nil, scanner, config.Config{})
		defer server.Close()

		resp := postJSON(t, server.URL+"/alerts/scan", map[string]string{})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var summary scan.Summary
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
		require.Equal(t, 3, summary.ClientsScanned)
		require.Equal(t, 2, summary.Created)
		scanner.AssertExpectations(t)
	})

	t.Run("conflicts while a cycle is in flight", func(t *testing.T) {
		scanner := &MockScanner{}
		scanner.On("RunCycle", mock.Anything).Return(nil, nil).Once()

		server := newTestServer(t, seedStore(t), events.NewBroker(), nil, scanner, config.Config{})
		defer server.Close()

		resp := postJSON(t, server.URL+"/alerts/scan", map[string]string{})
		defer resp.Body.Close()
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		scanner.AssertExpectations(t)
	})

	t.Run("unavailable without an engine", func(t *testing.T) {
		server := newTestServer(t, seedStore(t), events.NewBroker(), nil, nil, config.Config{})
		defer server.Close()

		resp := postJSON(t, server.URL+"/alerts/scan", map[string]string{})
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("propagates engine errors", func(t *testing.T) {
		scanner := &MockScanner{}
		scanner.On("RunCycle", mock.Anything).Return(nil, errors.New("store unavailable")).Once()

		server := newTestServer(t, seedStore(t), events.NewBroker(), nil, scanner, config.Config{})
		defer server.Close()

		resp := postJSON(t, server.URL+"/alerts/scan", map[string]string{})
		defer resp.Body.Close()
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		scanner.AssertExpectations(t)
	})
}

func TestNotesLifecycle(t *testing.T) {
	st := seedStore(t)
	server := newTestServer(t, st, events.NewBroker(), nil, nil, config.Config{})
	defer server.Close()

	resp := postJSON(t, server.URL+"/clients/c-sarah/notes", map[string]string{"content": "prefers email over phone"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var note store.Note
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&note))
	resp.Body.Close()
	require.NotEmpty(t, note.ID)
	require.Equal(t, "advisor", note.Source)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/clients/c-sarah/notes/"+note.ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIngestEventRepublishes(t *testing.T) {
	broker := events.NewBroker()
	server := newTestServer(t, seedStore(t), broker, nil, nil, config.Config{})
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := broker.Subscribe(ctx, "c-sarah")

	resp := postJSON(t, server.URL+"/internal/events", events.Event{
		Type:       events.TypeWorkerProgress,
		ClientID:   "c-sarah",
		DispatchID: "d-1",
		TaskID:     "t-1",
		Worker:     "quant",
		Payload:    map[string]any{"status": "running"},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case event := <-feed:
		require.Equal(t, events.TypeWorkerProgress, event.Type)
		require.Equal(t, "d-1", event.DispatchID)
	case <-time.After(time.Second):
		t.Fatal("ingested event never reached the broker")
	}

	resp = postJSON(t, server.URL+"/internal/events", map[string]string{"client_id": "c-sarah"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	server := newTestServer(t, seedStore(t), events.NewBroker(), nil, nil, config.Config{
		AllowedOrigins: []string{"http://advisor.local"},
	})
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/clients", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://advisor.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "http://advisor.local", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
