// internal/planner/planner.go

// Package planner holds the LLM-facing plan lifecycle: drafting, revising,
// critiquing, completion checking, and the final run summary.
package planner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/llmclient"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/llmutil"
)

// Planner drafts and maintains plans through the LLM.
type Planner struct {
	client  llmclient.Client
	model   string
	retries int
	logger  *zap.Logger
}

// New builds a planner over the given client.
func New(client llmclient.Client, llmCfg config.LLMConfig, agentCfg config.AgentConfig, logger *zap.Logger) *Planner {
	retries := agentCfg.PlannerRetries
	if retries < 1 {
		retries = 1
	}
	return &Planner{
		client:  client,
		model:   llmCfg.PlannerModel,
		retries: retries,
		logger:  logger.Named("planner"),
	}
}

type stepPayload struct {
	ID             int    `json:"id"`
	Action         string `json:"action"`
	Description    string `json:"description"`
	TargetID       int    `json:"target_id"`
	Text           string `json:"text"`
	URL            string `json:"url"`
	ExpectedResult string `json:"expected_result"`
}

type planPayload struct {
	Steps       []stepPayload `json:"steps"`
	NeedsVision bool          `json:"needs_vision"`
}

type critiquePayload struct {
	Approved bool   `json:"approved"`
	Critique string `json:"critique"`
}

type verifyPayload struct {
	Completed bool   `json:"completed"`
	Reason    string `json:"reason"`
}

// CreatePlan drafts the initial plan for a task.
func (p *Planner) CreatePlan(ctx context.Context, pctx Context) (schemas.Plan, error) {
	return p.requestPlan(ctx, buildPlanPrompt(pctx), nil)
}

// UpdatePlan revises the plan mid-run, given the execution history and any
// cycle warnings carried in the context.
func (p *Planner) UpdatePlan(ctx context.Context, pctx Context) (schemas.Plan, error) {
	return p.requestPlan(ctx, buildPlanPrompt(pctx), nil)
}

// UpdatePlanWithVision revises the plan with the annotated screenshot
// attached, for pages whose catalog is not enough to decide on.
func (p *Planner) UpdatePlanWithVision(ctx context.Context, pctx Context, raster []byte) (schemas.Plan, error) {
	var images [][]byte
	if len(raster) > 0 {
		images = [][]byte{raster}
	}
	return p.requestPlan(ctx, buildPlanPrompt(pctx), images)
}

// requestPlan asks the model for a plan and validates it, echoing validation
// failures back into the prompt for a bounded number of retries.
func (p *Planner) requestPlan(ctx context.Context, prompt string, images [][]byte) (schemas.Plan, error) {
	var lastErr error
	userPrompt := prompt

	for attempt := 1; attempt <= p.retries; attempt++ {
		reply, err := p.client.Generate(ctx, llmclient.GenerationRequest{
			Model:        p.model,
			SystemPrompt: plannerSystemPrompt,
			UserPrompt:   userPrompt,
			Images:       images,
			ForceJSON:    true,
		})
		if err != nil {
			return schemas.Plan{}, fmt.Errorf("plan request: %w", err)
		}

		plan, err := parsePlan(reply)
		if err == nil {
			p.logger.Debug("Plan accepted.", zap.Int("steps", len(plan.Steps)), zap.Int("attempt", attempt))
			return plan, nil
		}

		lastErr = err
		p.logger.Warn("Rejecting invalid plan.", zap.Int("attempt", attempt), zap.Error(err))
		userPrompt = fmt.Sprintf("%s\n\nYour previous plan was rejected: %v. Produce a corrected JSON plan.", prompt, err)
	}
	return schemas.Plan{}, fmt.Errorf("no valid plan after %d attempts: %w", p.retries, lastErr)
}

func parsePlan(reply string) (schemas.Plan, error) {
	payload, err := llmutil.ParseJSONResponse[planPayload](reply)
	if err != nil {
		return schemas.Plan{}, fmt.Errorf("unparseable plan: %w", err)
	}
	if len(payload.Steps) == 0 {
		return schemas.Plan{}, fmt.Errorf("the plan has no steps")
	}

	steps := make([]schemas.Step, len(payload.Steps))
	for i, sp := range payload.Steps {
		if strings.TrimSpace(sp.Description) == "" {
			return schemas.Plan{}, fmt.Errorf("step %d has no description", sp.ID)
		}
		steps[i] = schemas.Step{
			ID:             sp.ID,
			Action:         schemas.ParseStepAction(sp.Action),
			Description:    strings.TrimSpace(sp.Description),
			TargetID:       sp.TargetID,
			Text:           sp.Text,
			URL:            sp.URL,
			ExpectedResult: strings.TrimSpace(sp.ExpectedResult),
		}
	}
	return schemas.NewPlan(steps, payload.NeedsVision)
}

// CritiquePlan has the model review a drafted plan before execution.
func (p *Planner) CritiquePlan(ctx context.Context, task string, plan schemas.Plan) (bool, string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\nPlan:\n", task)
	for _, s := range plan.Steps {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", s.ID, s.Action, s.Description)
	}

	reply, err := p.client.Generate(ctx, llmclient.GenerationRequest{
		Model:        p.model,
		SystemPrompt: critiqueSystemPrompt,
		UserPrompt:   sb.String(),
		ForceJSON:    true,
	})
	if err != nil {
		return false, "", fmt.Errorf("critique request: %w", err)
	}

	payload, err := llmutil.ParseJSONResponse[critiquePayload](reply)
	if err != nil {
		// An unreadable critique must not block execution.
		p.logger.Warn("Unparseable critique, approving by default.", zap.Error(err))
		return true, "", nil
	}
	return payload.Approved, payload.Critique, nil
}

// VerifyCompletion asks the model whether the task is actually done.
func (p *Planner) VerifyCompletion(ctx context.Context, task string, records []schemas.ExecutionRecord, pageText string) (bool, string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\nHistory:\n%s", task, formatRecords(records))
	if pageText != "" {
		fmt.Fprintf(&sb, "\nCurrent page text:\n%s\n", pageText)
	}

	reply, err := p.client.Generate(ctx, llmclient.GenerationRequest{
		Model:        p.model,
		SystemPrompt: verifySystemPrompt,
		UserPrompt:   sb.String(),
		ForceJSON:    true,
	})
	if err != nil {
		return false, "", fmt.Errorf("verification request: %w", err)
	}

	payload, err := llmutil.ParseJSONResponse[verifyPayload](reply)
	if err != nil {
		return false, "", fmt.Errorf("unparseable verification: %w", err)
	}
	return payload.Completed, payload.Reason, nil
}

// GenerateSummary produces the human-readable closing summary of a run. A
// model failure degrades to a mechanical summary instead of erroring.
func (p *Planner) GenerateSummary(ctx context.Context, task string, records []schemas.ExecutionRecord, pageText string) string {
	prompt := fmt.Sprintf("Task: %s\n\nHistory:\n%s", task, formatRecords(records))
	if pageText != "" {
		prompt += fmt.Sprintf("\nFinal page:\n%s\n", pageText)
	}

	reply, err := p.client.Generate(ctx, llmclient.GenerationRequest{
		Model:        p.model,
		SystemPrompt: summarySystemPrompt,
		UserPrompt:   prompt,
	})
	if err != nil {
		p.logger.Warn("Summary generation failed, falling back.", zap.Error(err))
		return fmt.Sprintf("Executed %d steps for task %q; see the step records for details.", len(records), task)
	}
	return strings.TrimSpace(reply)
}
