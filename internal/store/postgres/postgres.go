package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ledgerline/advisor-plane/internal/store"
)

type PostgresStore struct {
	db *sql.DB
}

var openDB = sql.Open

func New(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := verifySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func verifySchema(ctx context.Context, db *sql.DB) error {
	required := []string{
		"clients",
		"accounts",
		"documents",
		"notes",
		"chat_messages",
		"tasks",
		"alerts",
	}
	for _, table := range required {
		var regclass sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT to_regclass($1)", fmt.Sprintf("public.%s", table)).Scan(&regclass); err != nil {
			return err
		}
		if !regclass.Valid {
			return fmt.Errorf("database schema missing: %s table not found (run infra/migrations/001_init.sql)", table)
		}
	}
	return nil
}

func (p *PostgresStore) ListClients(ctx context.Context) ([]store.Client, error) {
	const query = `
		SELECT id, name, email, phone, province, date_of_birth, risk_profile,
			goals, marital_status, dependents, employment_income, advisor_notes, created_at
		FROM clients
		ORDER BY name
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := []store.Client{}
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

func (p *PostgresStore) GetClient(ctx context.Context, clientID string) (*store.Client, error) {
	const query = `
		SELECT id, name, email, phone, province, date_of_birth, risk_profile,
			goals, marital_status, dependents, employment_income, advisor_notes, created_at
		FROM clients
		WHERE id = $1
	`
	row := p.db.QueryRowContext(ctx, query, clientID)
	client, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (p *PostgresStore) CreateClient(ctx context.Context, client store.Client) error {
	goalsBytes, err := json.Marshal(client.Goals)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO clients (id, name, email, phone, province, date_of_birth, risk_profile,
			goals, marital_status, dependents, employment_income, advisor_notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = p.db.ExecContext(ctx, query,
		client.ID,
		client.Name,
		nullString(client.Email),
		nullString(client.Phone),
		client.Province,
		client.DateOfBirth,
		defaultString(client.RiskProfile, "balanced"),
		goalsBytes,
		nullString(client.MaritalStatus),
		client.Dependents,
		client.EmploymentIncome,
		client.AdvisorNotes,
		client.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListAccounts(ctx context.Context, clientID string) ([]store.Account, error) {
	const query = `
		SELECT id, client_id, type, label, balance, contribution_room, updated_at
		FROM accounts
		WHERE client_id = $1
		ORDER BY type
	`
	rows, err := p.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []store.Account{}
	for rows.Next() {
		var account store.Account
		if err := rows.Scan(&account.ID, &account.ClientID, &account.Type, &account.Label,
			&account.Balance, &account.ContributionRoom, &account.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (p *PostgresStore) CreateAccount(ctx context.Context, account store.Account) error {
	const query = `
		INSERT INTO accounts (id, client_id, type, label, balance, contribution_room, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.db.ExecContext(ctx, query, account.ID, account.ClientID, account.Type,
		account.Label, account.Balance, account.ContributionRoom, account.UpdatedAt)
	return err
}

func (p *PostgresStore) ListDocuments(ctx context.Context, clientID string) ([]store.Document, error) {
	const query = `
		SELECT id, client_id, type, content_text, tax_year, uploaded_at
		FROM documents
		WHERE client_id = $1
		ORDER BY tax_year DESC NULLS LAST
	`
	rows, err := p.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	documents := []store.Document{}
	for rows.Next() {
		var document store.Document
		var taxYear sql.NullInt64
		if err := rows.Scan(&document.ID, &document.ClientID, &document.Type,
			&document.ContentText, &taxYear, &document.UploadedAt); err != nil {
			return nil, err
		}
		document.TaxYear = int(taxYear.Int64)
		documents = append(documents, document)
	}
	return documents, rows.Err()
}

func (p *PostgresStore) CreateDocument(ctx context.Context, document store.Document) error {
	var taxYear sql.NullInt64
	if document.TaxYear > 0 {
		taxYear = sql.NullInt64{Int64: int64(document.TaxYear), Valid: true}
	}
	const query = `
		INSERT INTO documents (id, client_id, type, content_text, tax_year, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := p.db.ExecContext(ctx, query, document.ID, document.ClientID, document.Type,
		document.ContentText, taxYear, document.UploadedAt)
	return err
}

func (p *PostgresStore) ListNotes(ctx context.Context, clientID string) ([]store.Note, error) {
	const query = `
		SELECT id, client_id, content, source, created_at
		FROM notes
		WHERE client_id = $1
		ORDER BY created_at ASC
	`
	rows, err := p.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := []store.Note{}
	for rows.Next() {
		var note store.Note
		if err := rows.Scan(&note.ID, &note.ClientID, &note.Content, &note.Source, &note.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func (p *PostgresStore) AddNote(ctx context.Context, note store.Note) error {
	const query = `
		INSERT INTO notes (id, client_id, content, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := p.db.ExecContext(ctx, query, note.ID, note.ClientID, note.Content,
		defaultString(note.Source, "advisor"), note.CreatedAt)
	return err
}

func (p *PostgresStore) DeleteNote(ctx context.Context, clientID string, noteID string) (bool, error) {
	result, err := p.db.ExecContext(ctx, "DELETE FROM notes WHERE id = $1 AND client_id = $2", noteID, clientID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (p *PostgresStore) AddChatMessage(ctx context.Context, msg store.ChatMessage) error {
	const query = `
		INSERT INTO chat_messages (id, client_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := p.db.ExecContext(ctx, query, msg.ID, msg.ClientID, msg.Role, msg.Content, msg.CreatedAt)
	return err
}

func (p *PostgresStore) ListChatMessages(ctx context.Context, clientID string, limit int) ([]store.ChatMessage, error) {
	query := `
		SELECT id, client_id, role, content, created_at
		FROM chat_messages
		WHERE client_id = $1
		ORDER BY created_at DESC
	`
	args := []any{clientID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []store.ChatMessage{}
	for rows.Next() {
		var msg store.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.ClientID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Query runs newest-first for the limit; callers expect oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (p *PostgresStore) CreateTask(ctx context.Context, task store.Task) error {
	inputBytes, err := json.Marshal(orEmptyMap(task.Input))
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO tasks (id, client_id, dispatch_id, worker, status, input, output,
			failure, disposition, disposition_note, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, $7, $8, $9, $10, NULL)
	`
	_, err = p.db.ExecContext(ctx, query,
		task.ID,
		nullString(task.ClientID),
		task.DispatchID,
		task.Worker,
		defaultString(task.Status, store.TaskPending),
		inputBytes,
		task.Failure,
		defaultString(task.Disposition, store.DispositionNone),
		task.DispositionNote,
		task.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetTask(ctx context.Context, taskID string) (*store.Task, error) {
	const query = `
		SELECT id, client_id, dispatch_id, worker, status, input, output,
			failure, disposition, disposition_note, created_at, completed_at
		FROM tasks
		WHERE id = $1
	`
	row := p.db.QueryRowContext(ctx, query, taskID)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (p *PostgresStore) ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, error) {
	query := `
		SELECT id, client_id, dispatch_id, worker, status, input, output,
			failure, disposition, disposition_note, created_at, completed_at
		FROM tasks
		WHERE 1=1
	`
	args := []any{}
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		query += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []store.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (p *PostgresStore) TransitionTask(ctx context.Context, transition store.TaskTransition) (bool, error) {
	var outputBytes []byte
	if transition.Output != nil {
		marshaled, err := json.Marshal(transition.Output)
		if err != nil {
			return false, err
		}
		outputBytes = marshaled
	}
	// The status guard keeps terminal transitions idempotent under
	// duplicate delivery: a row already completed or failed is untouched.
	const query = `
		UPDATE tasks
		SET status = $2,
			output = COALESCE($3, output),
			failure = $4,
			completed_at = COALESCE(NULLIF($5, ''), completed_at)
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`
	result, err := p.db.ExecContext(ctx, query,
		transition.ID, transition.Status, outputBytes, transition.Failure, transition.CompletedAt)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)", transition.ID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, fmt.Errorf("task not found: %s", transition.ID)
		}
		return false, nil
	}
	return true, nil
}

func (p *PostgresStore) RecordTaskDisposition(ctx context.Context, taskID string, disposition string, note string) error {
	result, err := p.db.ExecContext(ctx,
		"UPDATE tasks SET disposition = $2, disposition_note = $3 WHERE id = $1",
		taskID, disposition, note)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("task not found: %s", taskID)
	}
	return nil
}

func (p *PostgresStore) CreateAlert(ctx context.Context, alert store.Alert) error {
	actionBytes, err := json.Marshal(orEmptyMap(alert.ProposedAction))
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO alerts (id, client_id, kind, title, description, proposed_action, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = p.db.ExecContext(ctx, query, alert.ID, alert.ClientID, alert.Kind, alert.Title,
		alert.Description, actionBytes, defaultString(alert.Status, store.AlertPending), alert.CreatedAt)
	return err
}

func (p *PostgresStore) GetAlert(ctx context.Context, alertID string) (*store.Alert, error) {
	const query = `
		SELECT id, client_id, kind, title, description, proposed_action, status, created_at
		FROM alerts
		WHERE id = $1
	`
	row := p.db.QueryRowContext(ctx, query, alertID)
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (p *PostgresStore) ListAlerts(ctx context.Context, filter store.AlertFilter) ([]store.Alert, error) {
	query := `
		SELECT id, client_id, kind, title, description, proposed_action, status, created_at
		FROM alerts
		WHERE 1=1
	`
	args := []any{}
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		query += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []store.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (p *PostgresStore) SuppressedAlertKinds(ctx context.Context, clientID string) (map[string]struct{}, error) {
	const query = `
		SELECT DISTINCT kind
		FROM alerts
		WHERE client_id = $1 AND status IN ('pending', 'approved', 'dismissed')
	`
	rows, err := p.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	kinds := map[string]struct{}{}
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, err
		}
		kinds[kind] = struct{}{}
	}
	return kinds, rows.Err()
}

func (p *PostgresStore) UpdateAlertStatus(ctx context.Context, alertID string, status string) (bool, error) {
	result, err := p.db.ExecContext(ctx,
		"UPDATE alerts SET status = $2 WHERE id = $1 AND status NOT IN ('rejected', 'dismissed')",
		alertID, status)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (store.Client, error) {
	var client store.Client
	var email, phone, marital sql.NullString
	var goalsBytes []byte
	if err := row.Scan(&client.ID, &client.Name, &email, &phone, &client.Province,
		&client.DateOfBirth, &client.RiskProfile, &goalsBytes, &marital,
		&client.Dependents, &client.EmploymentIncome, &client.AdvisorNotes, &client.CreatedAt); err != nil {
		return store.Client{}, err
	}
	client.Email = email.String
	client.Phone = phone.String
	client.MaritalStatus = marital.String
	if len(goalsBytes) > 0 {
		if err := json.Unmarshal(goalsBytes, &client.Goals); err != nil {
			return store.Client{}, err
		}
	}
	return client, nil
}

func scanTask(row rowScanner) (store.Task, error) {
	var task store.Task
	var clientID, completedAt sql.NullString
	var inputBytes, outputBytes []byte
	if err := row.Scan(&task.ID, &clientID, &task.DispatchID, &task.Worker, &task.Status,
		&inputBytes, &outputBytes, &task.Failure, &task.Disposition, &task.DispositionNote,
		&task.CreatedAt, &completedAt); err != nil {
		return store.Task{}, err
	}
	task.ClientID = clientID.String
	task.CompletedAt = completedAt.String
	if len(inputBytes) > 0 {
		if err := json.Unmarshal(inputBytes, &task.Input); err != nil {
			return store.Task{}, err
		}
	}
	if len(outputBytes) > 0 {
		if err := json.Unmarshal(outputBytes, &task.Output); err != nil {
			return store.Task{}, err
		}
	}
	return task, nil
}

func scanAlert(row rowScanner) (store.Alert, error) {
	var alert store.Alert
	var actionBytes []byte
	if err := row.Scan(&alert.ID, &alert.ClientID, &alert.Kind, &alert.Title,
		&alert.Description, &actionBytes, &alert.Status, &alert.CreatedAt); err != nil {
		return store.Alert{}, err
	}
	if len(actionBytes) > 0 {
		if err := json.Unmarshal(actionBytes, &alert.ProposedAction); err != nil {
			return store.Alert{}, err
		}
	}
	return alert, nil
}

func nullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func orEmptyMap(value map[string]any) map[string]any {
	if value == nil {
		return map[string]any{}
	}
	return value
}
