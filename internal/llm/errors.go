package llm

import (
	"errors"
	"fmt"
)

// maxCompletionTokens bounds every provider call; drafts and summaries are
// short, so a runaway completion is a provider bug, not a need.
const maxCompletionTokens = 2048

var (
	errMissingAPIKey   = errors.New("no API key configured")
	errMissingModel    = errors.New("no model configured")
	errEmptyCompletion = errors.New("provider returned an empty completion")
)

// ErrUnsupportedProvider is returned when the configured provider name does
// not match a known adapter.
type ErrUnsupportedProvider struct {
	Provider string
}

func (e ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("llm: no adapter for provider %q (supported: anthropic, openai)", e.Provider)
}
