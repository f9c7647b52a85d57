package intent

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/ledgerline/advisor-plane/internal/llm"
	"github.com/ledgerline/advisor-plane/internal/workers"
)

const routerPrompt = `You route a financial advisor's request to analysis workers. Available workers:
- profile: client summary and drafted client outreach
- quant: deterministic contribution-room, tax, and portfolio math
- compliance: CRA/CIRO rule checks
- research: market data and instrument ideas

Respond with a JSON array of worker names only, e.g. ["profile","quant","compliance"]. Pick every worker the request plausibly needs.`

// Classifier picks the worker subset for a request. When a Provider is
// configured it asks the model; a bad or missing answer falls back to
// keyword routing. The result is never empty.
type Classifier struct {
	Provider llm.Provider
}

func (c *Classifier) Classify(ctx context.Context, query string) []workers.Kind {
	if c.Provider != nil {
		if kinds, ok := c.classifyLLM(ctx, query); ok {
			return kinds
		}
	}
	return classifyKeywords(query)
}

func (c *Classifier) classifyLLM(ctx context.Context, query string) ([]workers.Kind, bool) {
	raw, err := c.Provider.Generate(ctx, []llm.Message{
		{Role: "system", Content: routerPrompt},
		{Role: "user", Content: query},
	})
	if err != nil {
		log.Printf("intent: classifier fell back to keywords: %v", err)
		return nil, false
	}
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	var names []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &names); err != nil {
		return nil, false
	}
	var kinds []workers.Kind
	seen := map[workers.Kind]struct{}{}
	for _, name := range names {
		kind, err := workers.ParseKind(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			continue
		}
		if _, dup := seen[kind]; dup {
			continue
		}
		seen[kind] = struct{}{}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return nil, false
	}
	return kinds, true
}

// classifyKeywords is the deterministic router. The default set always
// runs; research joins when the request has a market or
// portfolio-construction angle.
func classifyKeywords(query string) []workers.Kind {
	kinds := append([]workers.Kind{}, workers.DefaultSet...)
	if containsAny(query,
		"market", "stock", "etf", "invest", "buy", "sell", "ticker",
		"allocation", "rebalance", "portfolio", "research", "rate", "inflation") {
		kinds = append(kinds, workers.KindResearch)
	}
	return kinds
}

func containsAny(haystack string, needles ...string) bool {
	lowered := strings.ToLower(haystack)
	for _, needle := range needles {
		if strings.Contains(lowered, needle) {
			return true
		}
	}
	return false
}
