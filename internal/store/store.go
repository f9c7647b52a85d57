package store

import "context"

// Task statuses. Tasks only ever move forward: pending -> running -> one of
// the terminal states. A terminal task never changes status again.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// Advisor dispositions recorded against a completed task.
const (
	DispositionNone     = "none"
	DispositionApproved = "approved"
	DispositionEdited   = "edited"
	DispositionRejected = "rejected"
)

// Alert statuses. Pending and approved count as open; rejected and
// dismissed rows never change status again. A dismissed kind additionally
// stays suppressed for its client, while a rejected one may be re-raised.
const (
	AlertPending   = "pending"
	AlertApproved  = "approved"
	AlertRejected  = "rejected"
	AlertDismissed = "dismissed"
)

type Client struct {
	ID               string
	Name             string
	Email            string
	Phone            string
	Province         string
	DateOfBirth      string
	RiskProfile      string
	Goals            []string
	MaritalStatus    string
	Dependents       int
	EmploymentIncome float64
	AdvisorNotes     string
	CreatedAt        string
}

type Account struct {
	ID               string
	ClientID         string
	Type             string
	Label            string
	Balance          float64
	ContributionRoom float64
	UpdatedAt        string
}

type Document struct {
	ID          string
	ClientID    string
	Type        string
	ContentText string
	TaxYear     int
	UploadedAt  string
}

type Note struct {
	ID        string
	ClientID  string
	Content   string
	Source    string
	CreatedAt string
}

type ChatMessage struct {
	ID        string
	ClientID  string
	Role      string
	Content   string
	CreatedAt string
}

// Task is one worker invocation. ClientID is empty for global scan tasks.
type Task struct {
	ID              string
	ClientID        string
	DispatchID      string
	Worker          string
	Status          string
	Input           map[string]any
	Output          map[string]any
	Failure         string
	Disposition     string
	DispositionNote string
	CreatedAt       string
	CompletedAt     string
}

func (t Task) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

type Alert struct {
	ID             string
	ClientID       string
	Kind           string
	Title          string
	Description    string
	ProposedAction map[string]any
	Status         string
	CreatedAt      string
}

func (a Alert) Open() bool {
	return a.Status == AlertPending || a.Status == AlertApproved
}

type TaskFilter struct {
	ClientID string
	Status   string
	Limit    int
}

type AlertFilter struct {
	ClientID string
	Status   string
}

type TaskTransition struct {
	ID          string
	Status      string
	Output      map[string]any
	Failure     string
	CompletedAt string
}

type Store interface {
	ListClients(ctx context.Context) ([]Client, error)
	GetClient(ctx context.Context, clientID string) (*Client, error)
	CreateClient(ctx context.Context, client Client) error
	ListAccounts(ctx context.Context, clientID string) ([]Account, error)
	CreateAccount(ctx context.Context, account Account) error
	ListDocuments(ctx context.Context, clientID string) ([]Document, error)
	CreateDocument(ctx context.Context, document Document) error
	ListNotes(ctx context.Context, clientID string) ([]Note, error)
	AddNote(ctx context.Context, note Note) error
	DeleteNote(ctx context.Context, clientID string, noteID string) (bool, error)
	AddChatMessage(ctx context.Context, msg ChatMessage) error
	ListChatMessages(ctx context.Context, clientID string, limit int) ([]ChatMessage, error)

	CreateTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, taskID string) (*Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	// TransitionTask applies a status change and reports whether it took
	// effect. Transitions out of a terminal status are no-ops, not errors,
	// so duplicate deliveries are safe to replay.
	TransitionTask(ctx context.Context, transition TaskTransition) (bool, error)
	RecordTaskDisposition(ctx context.Context, taskID string, disposition string, note string) error

	CreateAlert(ctx context.Context, alert Alert) error
	GetAlert(ctx context.Context, alertID string) (*Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error)
	// SuppressedAlertKinds returns the alert kinds the scan engine must not
	// raise again for one client: kinds with an open (pending or approved)
	// alert, plus kinds the advisor dismissed. Dismissal is terminal per
	// (client, kind); rejection frees the kind for a future sweep.
	SuppressedAlertKinds(ctx context.Context, clientID string) (map[string]struct{}, error)
	UpdateAlertStatus(ctx context.Context, alertID string, status string) (bool, error)
}
