// internal/oracle/prompt.go
package oracle

import (
	"fmt"
	"strings"

	"github.com/shashank9mittal/uxray/api/schemas"
)

const decisionSystemPrompt = `You are the decision maker for a goal-directed web agent.
You are given a goal and a ranked list of interactive page elements. Pick the
single element most likely to advance the goal and the action to perform on it.

Respond with raw JSON only, no prose, in exactly this shape:
{"selectedLocalId": "<localId of the chosen element>",
 "action": "click" | "fill" | "select",
 "inputData": "<text to enter, ONLY when action is fill, omit otherwise>",
 "rationale": "<one sentence explaining why>"}

Rules:
- selectedLocalId MUST be one of the listed localId values.
- Use "fill" only for input elements, and always include inputData with it.
- Never include inputData for click or select.`

const goalCheckSystemPrompt = `You judge whether a web agent's goal has been reached
based on the current page's URL, title, and visible text.

Respond with raw JSON only: {"achieved": true} or {"achieved": false}.`

// buildDecisionPrompt renders the goal and candidate list for the model. The
// candidate list is serialized in rank order, which the model should respect
// as a prior.
func buildDecisionPrompt(goal string, candidates []schemas.CandidateElement) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n\n", goal)
	sb.WriteString("Interactive elements, ranked most promising first:\n")

	payload, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		// Fall back to a terse line-per-candidate rendering.
		for _, c := range candidates {
			fmt.Fprintf(&sb, "- localId=%s tag=%s category=%s text=%q\n",
				c.LocalID, c.Tag, c.Category, c.Text)
		}
		return sb.String()
	}
	sb.Write(payload)
	sb.WriteString("\n\nChoose the next action.")
	return sb.String()
}

// buildGoalCheckPrompt renders the page state for the goal judge.
func buildGoalCheckPrompt(goal string, state schemas.PageState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n\n", goal)
	fmt.Fprintf(&sb, "Current URL: %s\n", state.Location)
	fmt.Fprintf(&sb, "Current title: %s\n\n", state.Title)
	sb.WriteString("Visible page text (truncated):\n")
	text := state.VisibleText
	if len(text) > 4000 {
		text = text[:4000]
	}
	sb.WriteString(text)
	return sb.String()
}
