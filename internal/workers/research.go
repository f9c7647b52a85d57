package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerline/advisor-plane/internal/bundle"
)

// marketSnapshot is a fixed dataset standing in for a market data feed.
// Values refresh when the feed integration lands.
var marketSnapshot = []MarketPoint{
	{Label: "S&P 500", Value: 5892.34, ChangePct: 0.45},
	{Label: "S&P/TSX Composite", Value: 24156.78, ChangePct: 0.32},
	{Label: "CAD/USD", Value: 0.7342, ChangePct: -0.12},
	{Label: "BoC Policy Rate", Value: 4.50, ChangePct: 0},
	{Label: "CPI YoY", Value: 2.8, ChangePct: -0.1},
	{Label: "WTI Crude", Value: 78.45, ChangePct: 1.2},
}

var suggestionsByRisk = map[string][]Suggestion{
	"conservative": {
		{Ticker: "XBB.TO", Name: "iShares Core Canadian Bond", Rationale: "Broad investment-grade bond exposure; yields attractive at current policy rates."},
		{Ticker: "ZAG.TO", Name: "BMO Aggregate Bond", Rationale: "Low-fee fixed income core holding."},
	},
	"balanced": {
		{Ticker: "VBAL.TO", Name: "Vanguard Balanced ETF", Rationale: "One-ticket 60/40 allocation with automatic rebalancing."},
		{Ticker: "XIC.TO", Name: "iShares Core S&P/TSX Capped", Rationale: "Canadian equity core at minimal cost."},
	},
	"growth": {
		{Ticker: "VGRO.TO", Name: "Vanguard Growth ETF", Rationale: "80/20 equity tilt suited to a long horizon."},
		{Ticker: "XUU.TO", Name: "iShares Core S&P US Total Market", Rationale: "Broad US equity exposure in CAD."},
	},
	"aggressive": {
		{Ticker: "VEQT.TO", Name: "Vanguard All-Equity ETF", Rationale: "Global 100% equity allocation for maximum growth."},
		{Ticker: "XQQ.TO", Name: "iShares NASDAQ 100 (CAD-hedged)", Rationale: "Concentrated large-cap tech exposure."},
	},
}

// ResearchAdapter surfaces market context and risk-matched instrument
// ideas. It only runs when classification detects a market or
// portfolio-construction angle in the request.
type ResearchAdapter struct{}

func (a *ResearchAdapter) Kind() Kind { return KindResearch }

func (a *ResearchAdapter) Timeout() time.Duration { return Timeout(KindResearch) }

func (a *ResearchAdapter) Invoke(ctx context.Context, b *bundle.ContextBundle) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	query := b.Query
	points := filterMarketData(query)

	risk := b.Client.RiskProfile
	suggestions, ok := suggestionsByRisk[risk]
	if !ok {
		risk = "balanced"
		suggestions = suggestionsByRisk[risk]
	}

	summary := fmt.Sprintf(
		"Market snapshot: S&P 500 at 5,892, TSX at 24,157, BoC policy rate at 4.50%%, CPI running 2.8%% YoY. For a %s profile, %d instrument ideas attached.",
		risk, len(suggestions))

	return Output{Kind: KindResearch, Research: &ResearchResult{
		Summary:     summary,
		MarketData:  points,
		Suggestions: suggestions,
	}}, nil
}

// filterMarketData narrows the snapshot to points relevant to the request;
// an unmatched request gets the full snapshot.
func filterMarketData(query string) []MarketPoint {
	var keep []MarketPoint
	for _, point := range marketSnapshot {
		switch point.Label {
		case "S&P 500", "S&P/TSX Composite":
			if containsAny(query, "equity", "stock", "market", "portfolio", "index") {
				keep = append(keep, point)
			}
		case "CAD/USD":
			if containsAny(query, "currency", "usd", "exchange", "us ") {
				keep = append(keep, point)
			}
		case "BoC Policy Rate":
			if containsAny(query, "rate", "mortgage", "bond", "gic", "interest") {
				keep = append(keep, point)
			}
		case "CPI YoY":
			if containsAny(query, "inflation", "cpi", "cost of living") {
				keep = append(keep, point)
			}
		case "WTI Crude":
			if containsAny(query, "oil", "energy", "commodity") {
				keep = append(keep, point)
			}
		}
	}
	if len(keep) == 0 {
		return marketSnapshot
	}
	return keep
}
