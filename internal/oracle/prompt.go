package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"promisetracker/internal/models"
)

const systemPrompt = `You assess whether a Canadian government document is evidence of progress on a government commitment.
Answer with a JSON object: {"likelihood": "low" | "medium" | "high", "explanation": "<one or two sentences>"}.
"high" means the document directly advances or reports on the commitment. "medium" means it is related
but indirect. "low" means it is unrelated.`

func userPrompt(evidenceText, promiseText string) string {
	var b strings.Builder
	b.WriteString("Commitment:\n")
	b.WriteString(strings.TrimSpace(promiseText))
	b.WriteString("\n\nDocument:\n")
	b.WriteString(strings.TrimSpace(evidenceText))
	return b.String()
}

// parseVerdict decodes the model's JSON answer. Code fences are tolerated.
func parseVerdict(content string) (Verdict, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var v Verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &v); err != nil {
		return Verdict{}, NewError(CategoryBadResponse, "decode verdict", err)
	}
	v.Likelihood = models.Likelihood(strings.ToLower(strings.TrimSpace(string(v.Likelihood))))
	if !v.Likelihood.Valid() {
		return Verdict{}, NewError(CategoryBadResponse, fmt.Sprintf("unknown likelihood %q", v.Likelihood), nil)
	}
	v.Explanation = strings.TrimSpace(v.Explanation)
	return v, nil
}
