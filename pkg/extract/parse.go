package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonrepair "github.com/kaptinlin/jsonrepair"
	"github.com/soundprediction/factgraph/pkg/types"
)

// extractedFactPayload is the wire shape of one fact in an LLM response.
// Confidence is a pointer so an omitted field can be told apart from 0.
type extractedFactPayload struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Verb       string   `json:"verb"`
	Confidence *float64 `json:"confidence"`
}

// extractedFactsEnvelope accepts the wrapped response formats models produce.
type extractedFactsEnvelope struct {
	Facts          []extractedFactPayload `json:"facts"`
	ExtractedFacts []extractedFactPayload `json:"extracted_facts"`
}

func (e extractedFactsEnvelope) list() []extractedFactPayload {
	if len(e.Facts) > 0 {
		return e.Facts
	}
	return e.ExtractedFacts
}

// parseExtractedFacts decodes an LLM extraction response. The response is
// repaired before decoding, and both wrapped and bare-array shapes are
// accepted; as a last resort the JSON region is sliced out of surrounding
// prose.
func parseExtractedFacts(responseContent string) ([]types.ExtractedFact, error) {
	repaired, err := jsonrepair.JSONRepair(responseContent)
	if err == nil {
		responseContent = repaired
	}

	var payloads []extractedFactPayload

	var envelope extractedFactsEnvelope
	if err := json.Unmarshal([]byte(responseContent), &envelope); err == nil {
		payloads = envelope.list()
	}

	if len(payloads) == 0 {
		if err := json.Unmarshal([]byte(responseContent), &payloads); err != nil {
			jsonStart := strings.Index(responseContent, "[")
			if jsonStart == -1 {
				jsonStart = strings.Index(responseContent, "{")
			}
			jsonEnd := strings.LastIndex(responseContent, "]")
			if jsonEnd == -1 {
				jsonEnd = strings.LastIndex(responseContent, "}")
			}

			if jsonStart == -1 || jsonEnd <= jsonStart {
				return nil, fmt.Errorf("no JSON found in extraction response")
			}

			jsonContent := responseContent[jsonStart : jsonEnd+1]
			if err := json.Unmarshal([]byte(jsonContent), &payloads); err != nil {
				var wrapped extractedFactsEnvelope
				if err := json.Unmarshal([]byte(jsonContent), &wrapped); err != nil {
					return nil, fmt.Errorf("failed to decode extraction response: %w", err)
				}
				payloads = wrapped.list()
			}
		}
	}

	facts := make([]types.ExtractedFact, 0, len(payloads))
	for _, p := range payloads {
		name := strings.TrimSpace(p.Name)
		factType := strings.TrimSpace(p.Type)
		verb := strings.TrimSpace(p.Verb)
		if name == "" || factType == "" || verb == "" {
			continue
		}

		confidence := 1.0
		if p.Confidence != nil {
			confidence = clampConfidence(*p.Confidence)
		}

		facts = append(facts, types.ExtractedFact{
			Name:       name,
			Type:       factType,
			Verb:       verb,
			Confidence: confidence,
		})
	}

	return facts, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
