package bundle

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledgerline/advisor-plane/internal/store"
)

const recentChatLimit = 10

// ContextBundle is the read-only snapshot every worker of one dispatch
// shares. It is built once, before fan-out, and never mutated afterwards.
type ContextBundle struct {
	Client     store.Client
	Accounts   []store.Account
	Documents  []store.Document
	Notes      []store.Note
	RecentChat []store.ChatMessage
	Query      string
}

// Build assembles the snapshot for one client. A missing client is an
// error: dispatching against an unknown entity is a caller bug, not a
// degraded analysis.
func Build(ctx context.Context, st store.Store, clientID string, query string) (*ContextBundle, error) {
	client, err := st.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("client not found: %s", clientID)
	}
	accounts, err := st.ListAccounts(ctx, clientID)
	if err != nil {
		return nil, err
	}
	documents, err := st.ListDocuments(ctx, clientID)
	if err != nil {
		return nil, err
	}
	notes, err := st.ListNotes(ctx, clientID)
	if err != nil {
		return nil, err
	}
	recent, err := st.ListChatMessages(ctx, clientID, recentChatLimit)
	if err != nil {
		return nil, err
	}
	return &ContextBundle{
		Client:     *client,
		Accounts:   accounts,
		Documents:  documents,
		Notes:      notes,
		RecentChat: recent,
		Query:      query,
	}, nil
}

// AccountsByType indexes the snapshot's accounts for rule lookups. Later
// duplicates of a type win, matching how statements are imported.
func (b *ContextBundle) AccountsByType() map[string]store.Account {
	index := make(map[string]store.Account, len(b.Accounts))
	for _, account := range b.Accounts {
		index[account.Type] = account
	}
	return index
}

// FirstName is used in advisor-facing copy and drafted emails.
func (b *ContextBundle) FirstName() string {
	fields := strings.Fields(b.Client.Name)
	if len(fields) == 0 {
		return b.Client.Name
	}
	return fields[0]
}

// TotalPortfolio sums every account balance in the snapshot.
func (b *ContextBundle) TotalPortfolio() float64 {
	total := 0.0
	for _, account := range b.Accounts {
		total += account.Balance
	}
	return total
}
