package extract

import (
	"fmt"
	"strings"

	"github.com/soundprediction/factgraph/pkg/nlp"
	"github.com/soundprediction/factgraph/pkg/types"
)

const extractSystemPrompt = `You are a helpful assistant that extracts discrete facts about a single person or entity from unstructured text.`

const summarizeSystemPrompt = `You are a helpful assistant that answers a question about an entity using only the facts provided.`

// extractFactsPrompt builds the chat messages asking the model to pull
// facts out of raw content. Earlier content about the same subject is
// included for context only; facts come from the current content.
func extractFactsPrompt(content string, identifier types.Identifier, history []string) []nlp.Message {
	var historyBlock string
	if len(history) > 0 {
		historyBlock = fmt.Sprintf("<HISTORY>\n%s\n</HISTORY>\n\n", strings.Join(history, "\n"))
	}

	userPrompt := fmt.Sprintf(`
The subject is identified by %s %q.

%s<CONTENT>
%s
</CONTENT>

Extract every discrete fact about the subject from the CONTENT above. Use the
HISTORY, if present, only to resolve references in the content.

For each fact provide:
- name: the value of the fact (e.g. "Paris", "Engineer")
- type: the category of the fact (e.g. "Location", "Profession", "Hobby")
- verb: the relationship between the subject and the fact, in snake_case (e.g. "lives_in", "works_as", "enjoys")
- confidence: your confidence in the fact, between 0.0 and 1.0

Respond with a JSON object of the form:
{"facts": [{"name": "...", "type": "...", "verb": "...", "confidence": 0.9}]}

If the content contains no extractable facts, respond with {"facts": []}.`, string(identifier.Type), identifier.Value, historyBlock, content)

	return []nlp.Message{
		nlp.NewSystemMessage(extractSystemPrompt),
		nlp.NewUserMessage(userPrompt),
	}
}

// summarizePrompt builds the chat messages asking the model to answer a
// question from verified facts, in lang when one is given.
func summarizePrompt(question string, facts []types.FactWithSource, lang string) []nlp.Message {
	var b strings.Builder
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s %s: %s (confidence %.2f)\n", f.Relationship.Verb, f.Fact.Type, f.Fact.Name, f.Relationship.Confidence)
	}

	langLine := ""
	if lang != "" {
		langLine = fmt.Sprintf("\nAnswer in %s.", lang)
	}

	userPrompt := fmt.Sprintf(`
<QUESTION>
%s
</QUESTION>
<FACTS>
%s</FACTS>

Answer the question using only the facts above. Answer in one or two sentences.
If the facts do not answer the question, say so plainly.%s`, question, b.String(), langLine)

	return []nlp.Message{
		nlp.NewSystemMessage(summarizeSystemPrompt),
		nlp.NewUserMessage(userPrompt),
	}
}
