package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/ledgerline/advisor-plane/internal/llm"
	"github.com/ledgerline/advisor-plane/internal/workers"
)

type fakeProvider struct {
	response string
	err      error
}

func (p *fakeProvider) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	return p.response, p.err
}

func kindsEqual(got []workers.Kind, want ...workers.Kind) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestKeywordDefaultSet(t *testing.T) {
	classifier := &Classifier{}
	kinds := classifier.Classify(context.Background(), "how much RRSP room does Sarah have?")
	if !kindsEqual(kinds, workers.KindProfile, workers.KindQuant, workers.KindCompliance) {
		t.Fatalf("kinds = %v", kinds)
	}
}

func TestKeywordAddsResearchForMarketPhrasing(t *testing.T) {
	classifier := &Classifier{}
	kinds := classifier.Classify(context.Background(), "rebalance the portfolio toward ETFs")
	if !kindsEqual(kinds, workers.KindProfile, workers.KindQuant, workers.KindCompliance, workers.KindResearch) {
		t.Fatalf("kinds = %v", kinds)
	}
}

func TestLLMRouteParsed(t *testing.T) {
	classifier := &Classifier{Provider: &fakeProvider{response: `Sure: ["quant", "research"]`}}
	kinds := classifier.Classify(context.Background(), "anything")
	if !kindsEqual(kinds, workers.KindQuant, workers.KindResearch) {
		t.Fatalf("kinds = %v", kinds)
	}
}

func TestLLMRouteDedupesAndSkipsUnknown(t *testing.T) {
	classifier := &Classifier{Provider: &fakeProvider{response: `["quant","quant","astrology","Profile"]`}}
	kinds := classifier.Classify(context.Background(), "anything")
	if !kindsEqual(kinds, workers.KindQuant, workers.KindProfile) {
		t.Fatalf("kinds = %v", kinds)
	}
}

func TestLLMErrorFallsBackToKeywords(t *testing.T) {
	classifier := &Classifier{Provider: &fakeProvider{err: errors.New("unavailable")}}
	kinds := classifier.Classify(context.Background(), "summarize the file")
	if !kindsEqual(kinds, workers.KindProfile, workers.KindQuant, workers.KindCompliance) {
		t.Fatalf("kinds = %v", kinds)
	}
}

func TestLLMGarbageFallsBackToKeywords(t *testing.T) {
	cases := []string{"no list here", "[]", `["astrology"]`}
	for _, response := range cases {
		classifier := &Classifier{Provider: &fakeProvider{response: response}}
		kinds := classifier.Classify(context.Background(), "hello")
		if len(kinds) == 0 {
			t.Fatalf("response %q produced an empty set", response)
		}
		if !kindsEqual(kinds, workers.KindProfile, workers.KindQuant, workers.KindCompliance) {
			t.Fatalf("response %q: kinds = %v", response, kinds)
		}
	}
}
