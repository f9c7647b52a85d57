package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ledgerline/advisor-plane/internal/store"
	"github.com/ledgerline/advisor-plane/internal/workflows"
)

func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.store.ListClients(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	summaries := make([]map[string]any, 0, len(clients))
	for _, client := range clients {
		accounts, err := s.store.ListAccounts(r.Context(), client.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		total := 0.0
		for _, account := range accounts {
			total += account.Balance
		}
		summaries = append(summaries, map[string]any{
			"id":              client.ID,
			"name":            client.Name,
			"email":           client.Email,
			"province":        client.Province,
			"risk_profile":    client.RiskProfile,
			"total_portfolio": total,
			"account_count":   len(accounts),
		})
	}
	writeJSON(w, map[string]any{"clients": summaries})
}

func (s *Server) getClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "id")
	client, err := s.store.GetClient(r.Context(), clientID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if client == nil {
		http.Error(w, "client not found", http.StatusNotFound)
		return
	}

	accounts, err := s.store.ListAccounts(r.Context(), clientID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	documents, err := s.store.ListDocuments(r.Context(), clientID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	notes, err := s.store.ListNotes(r.Context(), clientID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	chat, err := s.store.ListChatMessages(r.Context(), clientID, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	tasks, err := s.store.ListTasks(r.Context(), store.TaskFilter{ClientID: clientID, Limit: 50})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	alerts, err := s.store.ListAlerts(r.Context(), store.AlertFilter{ClientID: clientID})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	openAlerts := make([]store.Alert, 0, len(alerts))
	for _, alert := range alerts {
		if alert.Open() {
			openAlerts = append(openAlerts, alert)
		}
	}
	total := 0.0
	for _, account := range accounts {
		total += account.Balance
	}

	writeJSON(w, map[string]any{
		"client":          client,
		"accounts":        accounts,
		"documents":       documents,
		"notes":           notes,
		"chat":            chat,
		"tasks":           tasks,
		"open_alerts":     openAlerts,
		"total_portfolio": total,
	})
}

type dispatchRequest struct {
	Text string `json:"text"`
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "id")
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	response, status, err := s.startDispatch(r.Context(), clientID, req.Text)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	writeJSONStatus(w, response, status)
}

// startDispatch is shared by the REST route and the WebSocket
// submit_request message. It classifies the request, mints the dispatch
// and task IDs, and hands off to the workflow service; the task rows are
// created by the workflow itself so a Busy rejection leaves nothing behind.
func (s *Server) startDispatch(ctx context.Context, clientID string, text string) (map[string]any, int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, http.StatusBadRequest, errors.New("text required")
	}
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	if client == nil {
		return nil, http.StatusNotFound, errors.New("client not found")
	}
	if s.dispatches == nil {
		return nil, http.StatusServiceUnavailable, errors.New("dispatching unavailable")
	}

	kinds := s.classifier.Classify(ctx, text)
	workerNames := make([]string, 0, len(kinds))
	taskIDs := make(map[string]string, len(kinds))
	for _, kind := range kinds {
		workerNames = append(workerNames, string(kind))
		taskIDs[string(kind)] = uuid.NewString()
	}

	dispatchID := uuid.NewString()
	err = s.dispatches.StartDispatch(ctx, workflows.DispatchInput{
		DispatchID: dispatchID,
		ClientID:   clientID,
		Query:      text,
		Workers:    workerNames,
		TaskIDs:    taskIDs,
	})
	if errors.Is(err, workflows.ErrBusy) {
		return nil, http.StatusConflict, errors.New("dispatch already in flight for client")
	}
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}

	return map[string]any{
		"dispatch_id": dispatchID,
		"client_id":   clientID,
		"workers":     workerNames,
		"task_ids":    taskIDs,
	}, http.StatusAccepted, nil
}

type addNoteRequest struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "id")
	var req addNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "content required", http.StatusBadRequest)
		return
	}
	client, err := s.store.GetClient(r.Context(), clientID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if client == nil {
		http.Error(w, "client not found", http.StatusNotFound)
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "advisor"
	}
	note := store.Note{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		Content:   strings.TrimSpace(req.Content),
		Source:    source,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.store.AddNote(r.Context(), note); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, note, http.StatusCreated)
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "id")
	noteID := chi.URLParam(r, "noteID")
	deleted, err := s.store.DeleteNote(r.Context(), clientID, noteID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "note not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
