package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/advisor-plane/internal/events"
	"github.com/ledgerline/advisor-plane/internal/store"
)

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	filter := store.AlertFilter{
		ClientID: strings.TrimSpace(r.URL.Query().Get("client_id")),
		Status:   strings.TrimSpace(r.URL.Query().Get("status")),
	}
	alerts, err := s.store.ListAlerts(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"alerts": alerts})
}

type alertActionRequest struct {
	Action string `json:"action"`
	Note   string `json:"note"`
}

func (s *Server) alertAction(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")
	var req alertActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	var status string
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "approve":
		status = store.AlertApproved
	case "reject":
		status = store.AlertRejected
	case "dismiss":
		status = store.AlertDismissed
	default:
		http.Error(w, "action must be approve, reject, or dismiss", http.StatusBadRequest)
		return
	}

	alert, err := s.store.GetAlert(r.Context(), alertID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if alert == nil {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}

	applied, err := s.store.UpdateAlertStatus(r.Context(), alertID, status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !applied {
		http.Error(w, "alert already resolved", http.StatusConflict)
		return
	}

	s.broker.Publish(events.Event{
		Type:     events.TypeItemMutated,
		ClientID: alert.ClientID,
		Payload:  map[string]any{"item": "alert", "alert_id": alertID, "kind": alert.Kind, "status": status},
	})
	writeJSON(w, map[string]any{"alert_id": alertID, "status": status})
}

func (s *Server) runScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		http.Error(w, "scan engine unavailable", http.StatusServiceUnavailable)
		return
	}
	summary, err := s.scanner.RunCycle(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if summary == nil {
		writeJSONStatus(w, map[string]string{"status": "already_running"}, http.StatusConflict)
		return
	}
	writeJSON(w, summary)
}
