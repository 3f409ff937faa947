package schemas

import (
	"fmt"
	"strings"
	"time"
)

// StepAction enumerates the intents the planner may emit.
type StepAction string

const (
	ActionNavigate StepAction = "navigate"
	ActionClick    StepAction = "click"
	ActionType     StepAction = "type"
	ActionScroll   StepAction = "scroll"
	ActionHover    StepAction = "hover"
	ActionExtract  StepAction = "extract"
	ActionInspect  StepAction = "inspect"
	ActionWait     StepAction = "wait"
	ActionSearch   StepAction = "search"
	ActionAskUser  StepAction = "ask_user"
	ActionFinish   StepAction = "finish"
)

// IsTerminal reports whether the action ends the task.
func (a StepAction) IsTerminal() bool {
	return a == ActionFinish
}

// actionAliases maps loosely phrased planner output onto the canonical set.
var actionAliases = map[string]StepAction{
	"navigate": ActionNavigate, "goto": ActionNavigate, "go_to": ActionNavigate, "open": ActionNavigate,
	"click": ActionClick, "press": ActionClick, "tap": ActionClick,
	"type": ActionType, "input": ActionType, "fill": ActionType, "enter_text": ActionType,
	"scroll": ActionScroll, "scroll_down": ActionScroll, "scroll_up": ActionScroll,
	"hover":   ActionHover,
	"extract": ActionExtract, "read": ActionExtract, "extract_data": ActionExtract,
	"inspect": ActionInspect, "analyze": ActionInspect,
	"wait": ActionWait, "pause": ActionWait,
	"search":   ActionSearch,
	"ask_user": ActionAskUser, "ask": ActionAskUser,
	"finish": ActionFinish, "done": ActionFinish, "complete": ActionFinish, "stop": ActionFinish,
}

// ParseStepAction canonicalizes a planner-supplied action string. Unknown
// verbs default to inspect so the loop can still reason about the outcome.
func ParseStepAction(raw string) StepAction {
	key := strings.ToLower(strings.TrimSpace(raw))
	if a, ok := actionAliases[key]; ok {
		return a
	}
	return ActionInspect
}

// Step is one intended action within a Plan. The Description is free text and
// may embed a Snapshot element reference such as "[E12]".
type Step struct {
	ID          int        `json:"id"`
	Action      StepAction `json:"action"`
	Description string     `json:"description"`
	// TargetID optionally names a Snapshot element directly, skipping textual
	// target resolution.
	TargetID int `json:"target_id,omitempty"`
	// Text is the payload for type and search steps.
	Text string `json:"text,omitempty"`
	// URL is the destination for navigate steps; free text is tolerated.
	URL            string `json:"url,omitempty"`
	ExpectedResult string `json:"expected_result,omitempty"`
}

// Plan is an ordered list of Steps produced by the planner. Step IDs must be
// contiguous from 1, with no duplicates or gaps; NewPlan enforces this.
type Plan struct {
	Steps       []Step `json:"steps"`
	NeedsVision bool   `json:"needs_vision,omitempty"`
}

// NewPlan validates the step-id contract and returns an immutable Plan.
func NewPlan(steps []Step, needsVision bool) (Plan, error) {
	for i, s := range steps {
		if s.ID != i+1 {
			if i > 0 && s.ID == steps[i-1].ID {
				return Plan{}, fmt.Errorf("plan step %d: duplicate id %d", i+1, s.ID)
			}
			return Plan{}, fmt.Errorf("plan step %d: expected id %d, got %d", i+1, i+1, s.ID)
		}
	}
	out := make([]Step, len(steps))
	copy(out, steps)
	return Plan{Steps: out, NeedsVision: needsVision}, nil
}

// Empty reports whether the plan carries no steps.
func (p Plan) Empty() bool { return len(p.Steps) == 0 }

// TerminalOnly reports whether the plan consists of a single terminal step.
func (p Plan) TerminalOnly() bool {
	return len(p.Steps) == 1 && p.Steps[0].Action.IsTerminal()
}

// ExecutionRecord captures the outcome of one executed step. The record list
// for a run is append-only.
type ExecutionRecord struct {
	Description string     `json:"description"`
	Action      StepAction `json:"action"`
	Outcome     string     `json:"outcome"`
	URL         string     `json:"url"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Failed reports whether the outcome text denotes a failure. Outcomes are
// data, not errors, so this is a textual convention shared with the resolver.
func (r ExecutionRecord) Failed() bool {
	lower := strings.ToLower(r.Outcome)
	return strings.HasPrefix(lower, "failed") ||
		strings.HasPrefix(lower, "error") ||
		strings.HasPrefix(lower, "no target found")
}

// RunStatus is the terminal state of one task run.
type RunStatus string

const (
	RunDone    RunStatus = "DONE"
	RunStopped RunStatus = "STOPPED"
	RunFailed  RunStatus = "FAILED"
)

// RunResult is what the control loop hands back to its caller: the complete
// record list plus a delegated human-readable summary.
type RunResult struct {
	Task    string            `json:"task"`
	Status  RunStatus         `json:"status"`
	Records []ExecutionRecord `json:"records"`
	Summary string            `json:"summary"`
}
