package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/advisor-plane/internal/events"
	"github.com/ledgerline/advisor-plane/internal/store"
)

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	filter := store.TaskFilter{
		ClientID: strings.TrimSpace(r.URL.Query().Get("client_id")),
		Status:   strings.TrimSpace(r.URL.Query().Get("status")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	tasks, err := s.store.ListTasks(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"tasks": tasks})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if task == nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, task)
}

type taskActionRequest struct {
	Action        string `json:"action"`
	Note          string `json:"note"`
	EditedContent string `json:"edited_content"`
}

// taskAction records an advisor disposition against a completed task.
// Dispositions annotate history; they never change the task's status.
func (s *Server) taskAction(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	var req taskActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	var disposition string
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "approve":
		disposition = store.DispositionApproved
	case "edit":
		disposition = store.DispositionEdited
	case "reject":
		disposition = store.DispositionRejected
	default:
		http.Error(w, "action must be approve, edit, or reject", http.StatusBadRequest)
		return
	}
	if disposition == store.DispositionEdited && strings.TrimSpace(req.EditedContent) == "" {
		http.Error(w, "edited_content required for edit", http.StatusBadRequest)
		return
	}

	task, err := s.store.GetTask(r.Context(), taskID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if task == nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	if task.Status != store.TaskCompleted {
		http.Error(w, "only completed tasks accept dispositions", http.StatusConflict)
		return
	}

	note := strings.TrimSpace(req.Note)
	if disposition == store.DispositionEdited {
		note = strings.TrimSpace(req.EditedContent)
	}
	if err := s.store.RecordTaskDisposition(r.Context(), taskID, disposition, note); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.broker.Publish(events.Event{
		Type:       events.TypeItemMutated,
		ClientID:   task.ClientID,
		DispatchID: task.DispatchID,
		TaskID:     taskID,
		Worker:     task.Worker,
		Payload:    map[string]any{"item": "task", "disposition": disposition},
	})
	writeJSON(w, map[string]any{"task_id": taskID, "disposition": disposition})
}
