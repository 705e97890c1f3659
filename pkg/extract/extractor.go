package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soundprediction/factgraph/pkg/nlp"
	"github.com/soundprediction/factgraph/pkg/types"
)

// LLMExtractor extracts structured facts from text with a language model.
type LLMExtractor struct {
	client nlp.Client
	logger *slog.Logger
}

// NewLLMExtractor creates an extractor over the given model client.
func NewLLMExtractor(client nlp.Client, logger *slog.Logger) *LLMExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMExtractor{client: client, logger: logger}
}

// ExtractFacts pulls discrete facts out of content. The identifier names the
// subject; history carries earlier content about the same subject for
// context. Facts that fail validation after parsing are dropped, not fatal.
func (e *LLMExtractor) ExtractFacts(ctx context.Context, content string, identifier types.Identifier, history []string) ([]types.ExtractedFact, error) {
	if strings.TrimSpace(content) == "" {
		return nil, types.NewValidationError("content", types.ErrEmptyContent)
	}

	resp, err := e.client.ChatWithJSONOutput(ctx, extractFactsPrompt(content, identifier, history))
	if err != nil {
		return nil, fmt.Errorf("fact extraction call failed: %w", err)
	}

	parsed, err := parseExtractedFacts(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("fact extraction response unusable: %w", err)
	}

	facts := make([]types.ExtractedFact, 0, len(parsed))
	for _, fact := range parsed {
		if err := fact.Validate(); err != nil {
			e.logger.Warn("dropping invalid extracted fact",
				"name", fact.Name,
				"type", fact.Type,
				"verb", fact.Verb,
				"error", err)
			continue
		}
		facts = append(facts, fact)
	}

	e.logger.Debug("extracted facts", "count", len(facts))
	return facts, nil
}

// LLMSummarizer answers a question from verified facts with a language model.
type LLMSummarizer struct {
	client nlp.Client
	logger *slog.Logger
}

// NewLLMSummarizer creates a summarizer over the given model client.
func NewLLMSummarizer(client nlp.Client, logger *slog.Logger) *LLMSummarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMSummarizer{client: client, logger: logger}
}

// Summarize renders a short natural-language answer from the facts, in lang
// when one is given. An empty fact list yields an empty answer without a
// model call.
func (s *LLMSummarizer) Summarize(ctx context.Context, question string, facts []types.FactWithSource, lang string) (string, error) {
	if len(facts) == 0 {
		return "", nil
	}

	resp, err := s.client.Chat(ctx, summarizePrompt(question, facts, lang))
	if err != nil {
		return "", fmt.Errorf("summarization call failed: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}
