package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ledgerline/advisor-plane/internal/store"
)

// MemoryStore keeps everything in process. It backs tests and local runs
// where no Postgres is available.
type MemoryStore struct {
	mu       sync.RWMutex
	clients  map[string]store.Client
	accounts map[string][]store.Account
	docs     map[string][]store.Document
	notes    map[string][]store.Note
	chat     map[string][]store.ChatMessage
	tasks    map[string]store.Task
	alerts   map[string]store.Alert
}

func New() *MemoryStore {
	return &MemoryStore{
		clients:  map[string]store.Client{},
		accounts: map[string][]store.Account{},
		docs:     map[string][]store.Document{},
		notes:    map[string][]store.Note{},
		chat:     map[string][]store.ChatMessage{},
		tasks:    map[string]store.Task{},
		alerts:   map[string]store.Alert{},
	}
}

func (m *MemoryStore) ListClients(ctx context.Context) ([]store.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]store.Client, 0, len(m.clients))
	for _, client := range m.clients {
		results = append(results, cloneClient(client))
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Name < results[j].Name
	})
	return results, nil
}

func (m *MemoryStore) GetClient(ctx context.Context, clientID string) (*store.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[clientID]
	if !ok {
		return nil, nil
	}
	cloned := cloneClient(client)
	return &cloned, nil
}

func (m *MemoryStore) CreateClient(ctx context.Context, client store.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(client.RiskProfile) == "" {
		client.RiskProfile = "balanced"
	}
	m.clients[client.ID] = cloneClient(client)
	return nil
}

func (m *MemoryStore) ListAccounts(ctx context.Context, clientID string) ([]store.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := append([]store.Account{}, m.accounts[clientID]...)
	sort.Slice(results, func(i, j int) bool {
		return results[i].Type < results[j].Type
	})
	return results, nil
}

func (m *MemoryStore) CreateAccount(ctx context.Context, account store.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ClientID] = append(m.accounts[account.ClientID], account)
	return nil
}

func (m *MemoryStore) ListDocuments(ctx context.Context, clientID string) ([]store.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := append([]store.Document{}, m.docs[clientID]...)
	sort.Slice(results, func(i, j int) bool {
		return results[i].TaxYear > results[j].TaxYear
	})
	return results, nil
}

func (m *MemoryStore) CreateDocument(ctx context.Context, document store.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[document.ClientID] = append(m.docs[document.ClientID], document)
	return nil
}

func (m *MemoryStore) ListNotes(ctx context.Context, clientID string) ([]store.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := append([]store.Note{}, m.notes[clientID]...)
	sort.Slice(results, func(i, j int) bool {
		return parseTime(results[i].CreatedAt).Before(parseTime(results[j].CreatedAt))
	})
	return results, nil
}

func (m *MemoryStore) AddNote(ctx context.Context, note store.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(note.Source) == "" {
		note.Source = "advisor"
	}
	m.notes[note.ClientID] = append(m.notes[note.ClientID], note)
	return nil
}

func (m *MemoryStore) DeleteNote(ctx context.Context, clientID string, noteID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.notes[clientID]
	for i, note := range existing {
		if note.ID == noteID {
			m.notes[clientID] = append(existing[:i:i], existing[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) AddChatMessage(ctx context.Context, msg store.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chat[msg.ClientID] = append(m.chat[msg.ClientID], msg)
	return nil
}

func (m *MemoryStore) ListChatMessages(ctx context.Context, clientID string, limit int) ([]store.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := append([]store.ChatMessage{}, m.chat[clientID]...)
	sort.Slice(results, func(i, j int) bool {
		return parseTime(results[i].CreatedAt).Before(parseTime(results[j].CreatedAt))
	})
	if limit > 0 && len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

func (m *MemoryStore) CreateTask(ctx context.Context, task store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[task.ID]; exists {
		return fmt.Errorf("task already exists: %s", task.ID)
	}
	if strings.TrimSpace(task.Status) == "" {
		task.Status = store.TaskPending
	}
	if strings.TrimSpace(task.Disposition) == "" {
		task.Disposition = store.DispositionNone
	}
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *MemoryStore) GetTask(ctx context.Context, taskID string) (*store.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, nil
	}
	cloned := cloneTask(task)
	return &cloned, nil
}

func (m *MemoryStore) ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]store.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		if filter.ClientID != "" && task.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		results = append(results, cloneTask(task))
	}
	sort.Slice(results, func(i, j int) bool {
		return parseTime(results[i].CreatedAt).After(parseTime(results[j].CreatedAt))
	})
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (m *MemoryStore) TransitionTask(ctx context.Context, transition store.TaskTransition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[transition.ID]
	if !ok {
		return false, fmt.Errorf("task not found: %s", transition.ID)
	}
	if task.Terminal() {
		return false, nil
	}
	task.Status = transition.Status
	if transition.Output != nil {
		task.Output = cloneMap(transition.Output)
	}
	task.Failure = transition.Failure
	if transition.CompletedAt != "" {
		task.CompletedAt = transition.CompletedAt
	}
	m.tasks[transition.ID] = task
	return true, nil
}

func (m *MemoryStore) RecordTaskDisposition(ctx context.Context, taskID string, disposition string, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("task not found: %s", taskID)
	}
	task.Disposition = disposition
	task.DispositionNote = note
	m.tasks[taskID] = task
	return nil
}

func (m *MemoryStore) CreateAlert(ctx context.Context, alert store.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(alert.Status) == "" {
		alert.Status = store.AlertPending
	}
	m.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

func (m *MemoryStore) GetAlert(ctx context.Context, alertID string) (*store.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	alert, ok := m.alerts[alertID]
	if !ok {
		return nil, nil
	}
	cloned := cloneAlert(alert)
	return &cloned, nil
}

func (m *MemoryStore) ListAlerts(ctx context.Context, filter store.AlertFilter) ([]store.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]store.Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		if filter.ClientID != "" && alert.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && alert.Status != filter.Status {
			continue
		}
		results = append(results, cloneAlert(alert))
	}
	sort.Slice(results, func(i, j int) bool {
		return parseTime(results[i].CreatedAt).After(parseTime(results[j].CreatedAt))
	})
	return results, nil
}

func (m *MemoryStore) SuppressedAlertKinds(ctx context.Context, clientID string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kinds := map[string]struct{}{}
	for _, alert := range m.alerts {
		if alert.ClientID != clientID {
			continue
		}
		if alert.Open() || alert.Status == store.AlertDismissed {
			kinds[alert.Kind] = struct{}{}
		}
	}
	return kinds, nil
}

func (m *MemoryStore) UpdateAlertStatus(ctx context.Context, alertID string, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[alertID]
	if !ok {
		return false, nil
	}
	if alert.Status == store.AlertRejected || alert.Status == store.AlertDismissed {
		return false, nil
	}
	alert.Status = status
	m.alerts[alertID] = alert
	return true, nil
}

func cloneClient(client store.Client) store.Client {
	cloned := client
	cloned.Goals = append([]string(nil), client.Goals...)
	return cloned
}

func cloneTask(task store.Task) store.Task {
	cloned := task
	cloned.Input = cloneMap(task.Input)
	cloned.Output = cloneMap(task.Output)
	return cloned
}

func cloneAlert(alert store.Alert) store.Alert {
	cloned := alert
	cloned.ProposedAction = cloneMap(alert.ProposedAction)
	return cloned
}

func cloneMap(value map[string]any) map[string]any {
	if value == nil {
		return nil
	}
	cloned := make(map[string]any, len(value))
	for key, item := range value {
		cloned[key] = item
	}
	return cloned
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
