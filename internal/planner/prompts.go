// internal/planner/prompts.go
package planner

import (
	"fmt"
	"strings"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
)

const plannerSystemPrompt = `You are the planning brain of a browser automation agent. You receive a task, the current page state, and a numbered catalog of interactive elements. You answer with a JSON plan.

Rules:
- Respond with JSON only: {"steps": [...], "needs_vision": false}
- Each step: {"id": N, "action": "...", "description": "...", "target_id": N, "text": "...", "url": "...", "expected_result": "..."}
- Step ids MUST be sequential integers starting at 1, with no gaps or duplicates.
- Actions: navigate, click, type, scroll, hover, extract, inspect, wait, search, ask_user, finish.
- When a catalog element is the target, set target_id to its number.
- For "type" steps put the input text in "text". For "navigate" steps put the destination in "url".
- Set "needs_vision": true only when the catalog is useless and the next decision needs a screenshot.
- Plan only the next few concrete steps; the plan is revised after every step.
- End with a "finish" step once the task is demonstrably complete.`

const critiqueSystemPrompt = `You review a browser automation plan before it runs. Approve it unless it is clearly wrong for the task or unsafe (purchases, deletions, or messages the task did not ask for).

Respond with JSON only: {"approved": true|false, "critique": "one sentence"}`

const verifySystemPrompt = `You judge whether a browser automation task is complete, given the execution history and the current page text.

Respond with JSON only: {"completed": true|false, "reason": "one sentence"}`

const summarySystemPrompt = `You write the closing summary of a browser automation run. Summarize what was attempted, what happened, and any extracted answer, in a short paragraph of plain text. No JSON, no markdown.`

// Context is everything the planner gets to see for one planning round.
type Context struct {
	Task           string
	Snapshot       *schemas.Snapshot
	PageText       string
	History        []schemas.ExecutionRecord
	Experience     string
	Warnings       []string
	RemainingSteps int
}

func buildPlanPrompt(pctx Context) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Task: %s\n", pctx.Task)
	fmt.Fprintf(&sb, "Step budget remaining: %d\n\n", pctx.RemainingSteps)

	if pctx.Snapshot != nil {
		fmt.Fprintf(&sb, "Current page: %q (%s)\n", pctx.Snapshot.Title, pctx.Snapshot.URL)
		sb.WriteString(formatCatalog(pctx.Snapshot))
		sb.WriteString("\n")
	}

	if pctx.PageText != "" {
		fmt.Fprintf(&sb, "Page text (simplified):\n%s\n\n", pctx.PageText)
	}

	if len(pctx.History) > 0 {
		sb.WriteString("Executed so far:\n")
		for i, rec := range pctx.History {
			fmt.Fprintf(&sb, "%d. [%s] %s -> %s\n", i+1, rec.Action, rec.Description, rec.Outcome)
		}
		sb.WriteString("\n")
	}

	if pctx.Experience != "" {
		fmt.Fprintf(&sb, "A previous run of a similar task went like this:\n%s\n\n", pctx.Experience)
	}

	for _, w := range pctx.Warnings {
		fmt.Fprintf(&sb, "WARNING: %s\n", w)
	}

	sb.WriteString("\nProduce the JSON plan for the next steps.")
	return sb.String()
}

// formatCatalog renders the element catalog one line per element, the same
// numbering the annotated screenshot shows.
func formatCatalog(snapshot *schemas.Snapshot) string {
	if len(snapshot.Elements) == 0 {
		return "Interactive elements: none visible.\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Interactive elements (%d):\n", len(snapshot.Elements))
	for _, el := range snapshot.Elements {
		fmt.Fprintf(&sb, "[%d] %s", el.ID, el.Role)
		if el.Label != "" {
			fmt.Fprintf(&sb, " %q", el.Label)
		}
		if href, ok := el.Attributes["href"]; ok {
			fmt.Fprintf(&sb, " href=%s", href)
		}
		if ph, ok := el.Attributes["placeholder"]; ok {
			fmt.Fprintf(&sb, " placeholder=%q", ph)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatRecords renders execution history for the verification and summary
// prompts.
func formatRecords(records []schemas.ExecutionRecord) string {
	if len(records) == 0 {
		return "No steps were executed.\n"
	}
	var sb strings.Builder
	for i, rec := range records {
		fmt.Fprintf(&sb, "%d. [%s] %s -> %s\n", i+1, rec.Action, rec.Description, rec.Outcome)
	}
	return sb.String()
}
