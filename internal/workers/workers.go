package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerline/advisor-plane/internal/bundle"
	"github.com/ledgerline/advisor-plane/internal/llm"
)

// Kind identifies one analysis capability.
type Kind string

const (
	KindProfile    Kind = "profile"
	KindQuant      Kind = "quant"
	KindCompliance Kind = "compliance"
	KindResearch   Kind = "research"
)

// AllKinds is the assembly order for composite sections as well: numbers,
// research, compliance, draft come from quant, research, compliance,
// profile respectively.
var AllKinds = []Kind{KindProfile, KindQuant, KindCompliance, KindResearch}

// DefaultSet is the worker subset used when classification picks nothing
// more specific.
var DefaultSet = []Kind{KindProfile, KindQuant, KindCompliance}

func ParseKind(raw string) (Kind, error) {
	kind := Kind(raw)
	switch kind {
	case KindProfile, KindQuant, KindCompliance, KindResearch:
		return kind, nil
	}
	return "", fmt.Errorf("unknown worker kind: %s", raw)
}

// Output is a tagged union keyed by Kind: exactly one result pointer is
// populated. Keeping the union closed lets composite assembly switch
// exhaustively instead of sniffing dynamic payloads.
type Output struct {
	Kind       Kind              `json:"kind"`
	Profile    *ProfileResult    `json:"profile,omitempty"`
	Quant      *QuantResult      `json:"quant,omitempty"`
	Compliance *ComplianceResult `json:"compliance,omitempty"`
	Research   *ResearchResult   `json:"research,omitempty"`
}

// QuantResult carries a deterministic calculation. Unknowns names inputs
// the worker could not derive from the bundle; it never substitutes a
// fabricated number for them.
type QuantResult struct {
	Summary    string   `json:"summary"`
	Details    string   `json:"details"`
	PythonCode string   `json:"python_code,omitempty"`
	Latex      string   `json:"latex,omitempty"`
	Unknowns   []string `json:"unknowns,omitempty"`
}

type ComplianceItem struct {
	Severity     string `json:"severity"`
	Message      string `json:"message"`
	RuleCitation string `json:"rule_citation"`
}

type ComplianceResult struct {
	Status string           `json:"status"`
	Items  []ComplianceItem `json:"items"`
}

type DraftMessage struct {
	To         string   `json:"to"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Tone       string   `json:"tone"`
	Highlights []string `json:"highlights,omitempty"`
}

type ProfileResult struct {
	Summary    string       `json:"summary"`
	Highlights []string     `json:"highlights,omitempty"`
	Draft      DraftMessage `json:"draft_message"`
	Unknowns   []string     `json:"unknowns,omitempty"`
}

type MarketPoint struct {
	Label     string  `json:"label"`
	Value     float64 `json:"value"`
	ChangePct float64 `json:"change_pct"`
}

type Suggestion struct {
	Ticker    string `json:"ticker"`
	Name      string `json:"name"`
	Rationale string `json:"rationale"`
}

type ResearchResult struct {
	Summary     string        `json:"summary"`
	MarketData  []MarketPoint `json:"market_data"`
	Suggestions []Suggestion  `json:"suggestions,omitempty"`
}

// Adapter is the uniform capability contract. Invoke either returns a
// typed output or an error; it must not fabricate values it cannot derive
// from the bundle.
type Adapter interface {
	Kind() Kind
	Timeout() time.Duration
	Invoke(ctx context.Context, b *bundle.ContextBundle) (Output, error)
}

// NewAdapters builds the full adapter set. The LLM provider may be nil;
// adapters that would use it fall back to deterministic output.
func NewAdapters(provider llm.Provider) map[Kind]Adapter {
	return map[Kind]Adapter{
		KindProfile:    &ProfileAdapter{Provider: provider},
		KindQuant:      &QuantAdapter{},
		KindCompliance: &ComplianceAdapter{},
		KindResearch:   &ResearchAdapter{},
	}
}

// Timeout returns the per-kind invocation budget. The orchestrator treats
// an adapter that exceeds it as failed without retrying.
func Timeout(kind Kind) time.Duration {
	switch kind {
	case KindProfile:
		return 45 * time.Second
	case KindQuant:
		return 30 * time.Second
	case KindCompliance:
		return 15 * time.Second
	case KindResearch:
		return 20 * time.Second
	default:
		return 30 * time.Second
	}
}
