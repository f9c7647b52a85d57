package artifact

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ledgerline/advisor-plane/internal/workers"
)

func TestAssembleFixedSectionOrder(t *testing.T) {
	requested := []workers.Kind{workers.KindProfile, workers.KindQuant, workers.KindCompliance, workers.KindResearch}
	outputs := map[workers.Kind]workers.Output{
		workers.KindProfile:    {Kind: workers.KindProfile, Profile: &workers.ProfileResult{Summary: "p"}},
		workers.KindQuant:      {Kind: workers.KindQuant, Quant: &workers.QuantResult{Summary: "q"}},
		workers.KindCompliance: {Kind: workers.KindCompliance, Compliance: &workers.ComplianceResult{Status: "clear"}},
		workers.KindResearch:   {Kind: workers.KindResearch, Research: &workers.ResearchResult{Summary: "r"}},
	}

	composite := Assemble("d1", "c1", "query", requested, outputs, nil)
	if err := composite.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	encoded, err := json.Marshal(composite)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(encoded)
	// Serialized section order is numbers, research, compliance, draft
	// regardless of completion order.
	numbersAt := strings.Index(body, `"numbers"`)
	researchAt := strings.Index(body, `"research"`)
	complianceAt := strings.Index(body, `"compliance"`)
	draftAt := strings.Index(body, `"draft"`)
	if numbersAt < 0 || researchAt < 0 || complianceAt < 0 || draftAt < 0 {
		t.Fatalf("missing sections in %s", body)
	}
	if !(numbersAt < researchAt && researchAt < complianceAt && complianceAt < draftAt) {
		t.Fatalf("section order wrong: %s", body)
	}
}

func TestAssemblePartialFailure(t *testing.T) {
	requested := []workers.Kind{workers.KindProfile, workers.KindQuant, workers.KindCompliance}
	outputs := map[workers.Kind]workers.Output{
		workers.KindProfile:    {Kind: workers.KindProfile, Profile: &workers.ProfileResult{Summary: "p"}},
		workers.KindCompliance: {Kind: workers.KindCompliance, Compliance: &workers.ComplianceResult{Status: "clear"}},
	}
	failures := map[workers.Kind]string{workers.KindQuant: "deadline exceeded"}

	composite := Assemble("d1", "c1", "query", requested, outputs, failures)
	if err := composite.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if composite.Numbers != nil {
		t.Fatal("failed section carries a result")
	}
	if composite.NumbersMissing == nil || composite.NumbersMissing.Reason != "deadline exceeded" {
		t.Fatalf("unavailable marker = %+v", composite.NumbersMissing)
	}
	if len(composite.Succeeded) != 2 || len(composite.Failed) != 1 || composite.Failed[0] != "quant" {
		t.Fatalf("bookkeeping: succeeded=%v failed=%v", composite.Succeeded, composite.Failed)
	}
	// Research was never requested, so it is absent rather than unavailable.
	if composite.Research != nil || composite.ResearchMissing != nil {
		t.Fatal("unrequested section present")
	}
}

func TestAssembleMissingWithoutReason(t *testing.T) {
	composite := Assemble("d1", "c1", "q", []workers.Kind{workers.KindQuant}, nil, nil)
	if composite.NumbersMissing == nil || composite.NumbersMissing.Reason != "worker produced no result" {
		t.Fatalf("marker = %+v", composite.NumbersMissing)
	}
}

func TestValidateRejectsContradictorySection(t *testing.T) {
	composite := Composite{
		Numbers:        &workers.QuantResult{Summary: "q"},
		NumbersMissing: &Unavailable{Reason: "timeout"},
	}
	if err := composite.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
