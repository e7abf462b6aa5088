// Package llmutil holds small helpers shared by every component that asks
// an LLMProvider for structured JSON and has to tolerate it wrapping the
// answer in a markdown code fence. Grounded on the `_parse_response`/
// `_parse_synthesis` pattern repeated in
// original_source/plugins/agents/macro.py and
// original_source/engine/orchestrator.py.
package llmutil

import "strings"

// StripCodeFence removes a leading/trailing ``` or ```json fence around a
// model response, if present, so the remainder can be parsed as JSON.
func StripCodeFence(response string) string {
	cleaned := strings.TrimSpace(response)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	lines := strings.Split(cleaned, "\n")
	if len(lines) <= 2 {
		return cleaned
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}
