package artifact

import (
	"fmt"

	"github.com/ledgerline/advisor-plane/internal/workers"
)

// Unavailable marks a section whose worker did not produce a result. The
// marker is explicit so renderers never mistake a missing section for an
// empty one.
type Unavailable struct {
	Reason string `json:"reason"`
}

// Composite is the merged dispatch result. Section order is fixed:
// numbers, then research, then compliance, then draft. A section is
// either its typed result or an Unavailable marker, never both.
type Composite struct {
	DispatchID string `json:"dispatch_id"`
	ClientID   string `json:"client_id"`
	Query      string `json:"query"`

	Numbers           *workers.QuantResult      `json:"numbers,omitempty"`
	NumbersMissing    *Unavailable              `json:"numbers_unavailable,omitempty"`
	Research          *workers.ResearchResult   `json:"research,omitempty"`
	ResearchMissing   *Unavailable              `json:"research_unavailable,omitempty"`
	Compliance        *workers.ComplianceResult `json:"compliance,omitempty"`
	ComplianceMissing *Unavailable              `json:"compliance_unavailable,omitempty"`
	Draft             *workers.ProfileResult    `json:"draft,omitempty"`
	DraftMissing      *Unavailable              `json:"draft_unavailable,omitempty"`

	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed,omitempty"`
}

// Assemble merges per-worker outputs and failures into a composite.
// requested fixes which sections appear: a kind that was never dispatched
// is simply absent, while a dispatched kind that failed gets an
// Unavailable marker carrying the failure reason.
func Assemble(dispatchID, clientID, query string, requested []workers.Kind, outputs map[workers.Kind]workers.Output, failures map[workers.Kind]string) Composite {
	composite := Composite{
		DispatchID: dispatchID,
		ClientID:   clientID,
		Query:      query,
	}

	for _, kind := range requested {
		output, ok := outputs[kind]
		if !ok {
			reason := failures[kind]
			if reason == "" {
				reason = "worker produced no result"
			}
			missing := &Unavailable{Reason: reason}
			switch kind {
			case workers.KindQuant:
				composite.NumbersMissing = missing
			case workers.KindResearch:
				composite.ResearchMissing = missing
			case workers.KindCompliance:
				composite.ComplianceMissing = missing
			case workers.KindProfile:
				composite.DraftMissing = missing
			}
			composite.Failed = append(composite.Failed, string(kind))
			continue
		}
		switch kind {
		case workers.KindQuant:
			composite.Numbers = output.Quant
		case workers.KindResearch:
			composite.Research = output.Research
		case workers.KindCompliance:
			composite.Compliance = output.Compliance
		case workers.KindProfile:
			composite.Draft = output.Profile
		}
		composite.Succeeded = append(composite.Succeeded, string(kind))
	}

	return composite
}

// Validate rejects a composite where a section carries both a result and
// an unavailable marker, or where a requested section carries neither.
func (c Composite) Validate() error {
	checks := []struct {
		name    string
		present bool
		missing bool
	}{
		{"numbers", c.Numbers != nil, c.NumbersMissing != nil},
		{"research", c.Research != nil, c.ResearchMissing != nil},
		{"compliance", c.Compliance != nil, c.ComplianceMissing != nil},
		{"draft", c.Draft != nil, c.DraftMissing != nil},
	}
	for _, check := range checks {
		if check.present && check.missing {
			return fmt.Errorf("section %s carries both a result and an unavailable marker", check.name)
		}
	}
	return nil
}
