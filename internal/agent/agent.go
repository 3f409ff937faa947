// internal/agent/agent.go

// Package agent runs the observe-plan-act loop that drives a task to
// completion. It owns the state machine; everything else (scanning,
// planning, acting, remembering) is injected.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/browser"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/grounding"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/memory"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/planner"
)

// State labels one phase of the control loop.
type State string

const (
	StateAwaitingPlan     State = "AWAITING_PLAN"
	StateExecutingStep    State = "EXECUTING_STEP"
	StateCapturingState   State = "CAPTURING_STATE"
	StateReplanning       State = "REPLANNING"
	StateVisionEscalation State = "VISION_ESCALATION"
	StateDone             State = "DONE"
	StateStopped          State = "STOPPED"
	StateFailed           State = "FAILED"
)

// PlanService is the planner surface the loop depends on.
type PlanService interface {
	CreatePlan(ctx context.Context, pctx planner.Context) (schemas.Plan, error)
	UpdatePlan(ctx context.Context, pctx planner.Context) (schemas.Plan, error)
	UpdatePlanWithVision(ctx context.Context, pctx planner.Context, raster []byte) (schemas.Plan, error)
	CritiquePlan(ctx context.Context, task string, plan schemas.Plan) (bool, string, error)
	VerifyCompletion(ctx context.Context, task string, records []schemas.ExecutionRecord, pageText string) (bool, string, error)
	GenerateSummary(ctx context.Context, task string, records []schemas.ExecutionRecord, pageText string) string
}

// StepExecutor turns one planned step into a textual outcome.
type StepExecutor interface {
	Execute(ctx context.Context, step schemas.Step, snapshot *schemas.Snapshot) (string, error)
}

// Grounder captures the page state.
type Grounder interface {
	Scan(ctx context.Context) (*schemas.Snapshot, error)
}

// ExperienceStore is the persistence port for remembered runs. A nil store
// disables memory without changing the loop.
type ExperienceStore interface {
	Save(ctx context.Context, domain, task string, success bool, steps []schemas.ExecutionRecord) error
	Recall(ctx context.Context, domain, task string) (*memory.Experience, error)
	LogStep(ctx context.Context, runID string, index int, rec schemas.ExecutionRecord) error
}

// HintProvider supplies an out-of-band operator hint when the loop keeps
// failing at the same step. A nil provider skips the pause.
type HintProvider interface {
	Hint(ctx context.Context, records []schemas.ExecutionRecord) (string, error)
}

// PageGuard clears transient overlays before a page scan so the catalog and
// the raster show the page content, not a popup. A nil guard skips this.
type PageGuard interface {
	DismissPopups(ctx context.Context)
}

// Agent is one task runner over one browser session.
type Agent struct {
	driver   browser.Driver
	grounder Grounder
	planner  PlanService
	executor StepExecutor
	store    ExperienceStore
	hints    HintProvider
	guard    PageGuard
	cfg      config.AgentConfig
	grndCfg  config.GroundingConfig
	logger   *zap.Logger
}

// New assembles the loop. store may be nil.
func New(driver browser.Driver, grounder Grounder, plan PlanService, executor StepExecutor,
	store ExperienceStore, cfg config.AgentConfig, grndCfg config.GroundingConfig, logger *zap.Logger) *Agent {
	return &Agent{
		driver:   driver,
		grounder: grounder,
		planner:  plan,
		executor: executor,
		store:    store,
		cfg:      cfg,
		grndCfg:  grndCfg,
		logger:   logger.Named("agent"),
	}
}

// SetHintProvider attaches an operator hint source, consulted on critical
// cycles when hint_on_critical is enabled.
func (a *Agent) SetHintProvider(p HintProvider) {
	a.hints = p
}

// SetPageGuard attaches an overlay dismisser run before every scan.
func (a *Agent) SetPageGuard(g PageGuard) {
	a.guard = g
}

// pageState is what one CAPTURING_STATE pass produces.
type pageState struct {
	snapshot *schemas.Snapshot
	pageText string
	raster   []byte
}

// Run drives the task until it is done, stopped, failed, or out of budget.
// Cancelling ctx stops the run cooperatively between steps: a run stopped
// after N complete steps reports exactly N records.
func (a *Agent) Run(ctx context.Context, task string) schemas.RunResult {
	runID := uuid.NewString()
	log := a.logger.With(zap.String("run_id", runID[:8]))
	log.Info("Run starting.", zap.String("task", task))

	records := make([]schemas.ExecutionRecord, 0, a.cfg.MaxSteps)
	state := StateAwaitingPlan
	log.Debug("State entered.", zap.String("state", string(state)))

	ps, err := a.capture(ctx)
	if err != nil {
		log.Error("Initial page capture failed.", zap.Error(err))
		return a.finish(ctx, task, schemas.RunFailed, records,
			fmt.Sprintf("Could not capture the initial page state: %v.", err))
	}

	plan, err := a.initialPlan(ctx, task, ps)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return a.finish(ctx, task, schemas.RunStopped, records, "The run was stopped before planning finished.")
		}
		log.Error("Initial planning failed.", zap.Error(err))
		return a.finish(ctx, task, schemas.RunFailed, records,
			fmt.Sprintf("Planning failed before any step ran: %v.", err))
	}
	if plan.Empty() {
		return a.finish(ctx, task, schemas.RunDone, records,
			"The planner produced no steps for this task; nothing to do.")
	}
	state = StateExecutingStep
	stepIdx := 0
	pendingHint := ""

	for len(records) < a.cfg.MaxSteps {
		select {
		case <-ctx.Done():
			log.Info("Run cancelled.", zap.Int("records", len(records)))
			return a.finish(context.WithoutCancel(ctx), task, schemas.RunStopped, records,
				a.planner.GenerateSummary(context.WithoutCancel(ctx), task, records, ps.pageText))
		default:
		}

		if state == StateExecutingStep && stepIdx >= len(plan.Steps) {
			state = StateReplanning
		}

		switch state {
		case StateExecutingStep:
			// A plan that asked for vision must not run blind; it is
			// replaced through a screenshot-informed revision first.
			if plan.NeedsVision {
				state = StateVisionEscalation
				continue
			}
			step := plan.Steps[stepIdx]
			log.Info("Executing step.",
				zap.Int("step", step.ID), zap.String("action", string(step.Action)),
				zap.String("description", step.Description))

			if step.Action.IsTerminal() {
				done, reason, verr := a.planner.VerifyCompletion(ctx, task, records, ps.pageText)
				if verr != nil || done {
					outcome := "done: the task was verified complete"
					if verr == nil && reason != "" {
						outcome = fmt.Sprintf("done: %s", reason)
					}
					records = a.append(ctx, runID, records, schemas.ExecutionRecord{
						Description: step.Description,
						Action:      step.Action,
						Outcome:     outcome,
						URL:         ps.snapshot.URL,
						Timestamp:   time.Now(),
					})
					// The summary should see the final page, not the one
					// captured before the last step.
					if text, terr := grounding.PageText(ctx, a.driver, a.grndCfg.PageTextMaxBytes); terr == nil && text != "" {
						ps.pageText = text
					}
					return a.finish(ctx, task, schemas.RunDone, records,
						a.planner.GenerateSummary(ctx, task, records, ps.pageText))
				}
				records = a.append(ctx, runID, records, schemas.ExecutionRecord{
					Description: step.Description,
					Action:      step.Action,
					Outcome:     fmt.Sprintf("failed: the plan declared the task finished but verification disagrees: %s", reason),
					URL:         ps.snapshot.URL,
					Timestamp:   time.Now(),
				})
				state = StateReplanning
				continue
			}

			outcome, err := a.executor.Execute(ctx, step, ps.snapshot)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					// The in-flight step produces no record.
					return a.finish(context.WithoutCancel(ctx), task, schemas.RunStopped, records,
						a.planner.GenerateSummary(context.WithoutCancel(ctx), task, records, ps.pageText))
				}
				if errors.Is(err, browser.ErrBrowserLost) {
					records = a.recoverBrowser(ctx, runID, log, step, records)
					state = StateReplanning
					continue
				}
				outcome = fmt.Sprintf("error: %v", err)
			}

			records = a.append(ctx, runID, records, schemas.ExecutionRecord{
				Description: step.Description,
				Action:      step.Action,
				Outcome:     outcome,
				URL:         ps.snapshot.URL,
				Timestamp:   time.Now(),
			})
			stepIdx++
			state = StateCapturingState

		case StateCapturingState:
			fresh, err := a.capture(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return a.finish(context.WithoutCancel(ctx), task, schemas.RunStopped, records,
						a.planner.GenerateSummary(context.WithoutCancel(ctx), task, records, ps.pageText))
				}
				if errors.Is(err, browser.ErrBrowserLost) {
					records = a.recoverBrowser(ctx, runID, log, schemas.Step{Description: "capture the page state"}, records)
					state = StateReplanning
					continue
				}
				log.Warn("State capture failed, replanning blind.", zap.Error(err))
			} else {
				ps = fresh
			}
			state = StateReplanning

		case StateReplanning:
			if a.cfg.HintOnCritical && a.hints != nil && pendingHint == "" &&
				criticalCycle(records, a.cfg.CycleWindow) {
				if hint, herr := a.hints.Hint(ctx, records); herr == nil && hint != "" {
					pendingHint = hint
				}
			}
			if criticalCycle(records, a.cfg.CycleWindow) {
				state = StateVisionEscalation
				continue
			}

			warnings := cycleWarnings(records, a.cfg.CycleWindow)
			if pendingHint != "" {
				warnings = append(warnings, "operator hint: "+pendingHint)
			}
			pctx := a.planContext(task, ps, records, warnings)

			next, err := a.planner.UpdatePlan(ctx, pctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return a.finish(context.WithoutCancel(ctx), task, schemas.RunStopped, records,
						a.planner.GenerateSummary(context.WithoutCancel(ctx), task, records, ps.pageText))
				}
				log.Error("Replanning failed.", zap.Error(err))
				return a.finish(ctx, task, schemas.RunFailed, records,
					fmt.Sprintf("Replanning failed after %d steps: %v.", len(records), err))
			}
			if next.Empty() {
				return a.finish(ctx, task, schemas.RunDone, records,
					a.planner.GenerateSummary(ctx, task, records, ps.pageText))
			}
			plan = next
			stepIdx = 0
			pendingHint = ""
			state = StateExecutingStep

		case StateVisionEscalation:
			// The screenshot must show the settled page, freshly captured.
			if err := a.driver.WaitReady(ctx); err != nil && errors.Is(err, context.Canceled) {
				return a.finish(context.WithoutCancel(ctx), task, schemas.RunStopped, records,
					a.planner.GenerateSummary(context.WithoutCancel(ctx), task, records, ps.pageText))
			}
			if fresh, err := a.capture(ctx); err == nil {
				ps = fresh
			} else if errors.Is(err, context.Canceled) {
				return a.finish(context.WithoutCancel(ctx), task, schemas.RunStopped, records,
					a.planner.GenerateSummary(context.WithoutCancel(ctx), task, records, ps.pageText))
			} else if errors.Is(err, browser.ErrBrowserLost) {
				records = a.recoverBrowser(ctx, runID, log, schemas.Step{Description: "capture the page state"}, records)
				state = StateReplanning
				continue
			}

			shot := ps.raster
			if len(shot) == 0 {
				if raw, serr := a.driver.Screenshot(ctx); serr == nil {
					shot = raw
				}
			}

			warnings := cycleWarnings(records, a.cfg.CycleWindow)
			if pendingHint != "" {
				warnings = append(warnings, "operator hint: "+pendingHint)
			}
			pctx := a.planContext(task, ps, records, warnings)

			next, err := a.planner.UpdatePlanWithVision(ctx, pctx, shot)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return a.finish(context.WithoutCancel(ctx), task, schemas.RunStopped, records,
						a.planner.GenerateSummary(context.WithoutCancel(ctx), task, records, ps.pageText))
				}
				log.Error("Vision replanning failed.", zap.Error(err))
				return a.finish(ctx, task, schemas.RunFailed, records,
					fmt.Sprintf("Vision replanning failed after %d steps: %v.", len(records), err))
			}
			if next.Empty() {
				return a.finish(ctx, task, schemas.RunDone, records,
					a.planner.GenerateSummary(ctx, task, records, ps.pageText))
			}
			plan = next
			plan.NeedsVision = false
			stepIdx = 0
			pendingHint = ""
			state = StateExecutingStep
		}
	}

	// The budget bounds the run, not its verdict: the partial results stand.
	log.Warn("Step budget exhausted, closing out.", zap.Int("budget", a.cfg.MaxSteps))
	return a.finish(ctx, task, schemas.RunDone, records,
		a.planner.GenerateSummary(ctx, task, records, ps.pageText))
}

// initialPlan drafts the first plan, folding in remembered experience and one
// critique round when enabled.
func (a *Agent) initialPlan(ctx context.Context, task string, ps *pageState) (schemas.Plan, error) {
	pctx := a.planContext(task, ps, nil, nil)

	if a.store != nil {
		if exp, err := a.store.Recall(ctx, hostOf(ps.snapshot.URL), task); err == nil {
			a.logger.Info("Recalled a similar run.",
				zap.String("domain", exp.Domain), zap.Float64("similarity", exp.Similarity))
			pctx.Experience = formatExperience(exp)
		}
	}

	plan, err := a.planner.CreatePlan(ctx, pctx)
	if err != nil {
		return schemas.Plan{}, err
	}

	// A fresh session has done nothing yet, so a plan with no real work in
	// it is pushed back once before being taken at its word.
	if plan.Empty() || plan.TerminalOnly() {
		a.logger.Warn("Initial plan contains no actionable steps, re-requesting.")
		pctx.Warnings = append(pctx.Warnings,
			"this is a fresh session and no steps have run yet; declaring the task finished now is wrong, you must plan concrete actions")
		plan, err = a.planner.CreatePlan(ctx, pctx)
		if err != nil {
			return schemas.Plan{}, err
		}
	}

	if a.cfg.CritiqueEnabled {
		approved, critique, cerr := a.planner.CritiquePlan(ctx, task, plan)
		if cerr == nil && !approved {
			a.logger.Warn("Plan rejected by critique, redrafting.", zap.String("critique", critique))
			pctx.Warnings = append(pctx.Warnings, fmt.Sprintf("your previous plan was rejected: %s", critique))
			return a.planner.CreatePlan(ctx, pctx)
		}
	}
	return plan, nil
}

// capture runs one CAPTURING_STATE pass: scan, optional raster, and the
// simplified page text when the element count suggests the catalog alone is
// a poor description of the page.
func (a *Agent) capture(ctx context.Context) (*pageState, error) {
	if a.guard != nil {
		a.guard.DismissPopups(ctx)
	}
	snap, err := a.grounder.Scan(ctx)
	if err != nil {
		return nil, err
	}
	ps := &pageState{snapshot: snap}

	if a.grndCfg.RasterEnabled {
		if shot, err := a.driver.Screenshot(ctx); err == nil {
			if raster, err := grounding.AnnotateImage(shot, snap); err == nil {
				ps.raster = raster
				if path, err := grounding.Annotate(shot, snap, a.grndCfg.RasterDir); err == nil {
					snap.RasterPath = path
				}
			}
		} else if errors.Is(err, browser.ErrBrowserLost) || errors.Is(err, context.Canceled) {
			return nil, err
		}
	}

	count := len(snap.Elements)
	if count <= a.cfg.LowElementCount || count >= a.cfg.HighElementCount {
		if text, err := grounding.PageText(ctx, a.driver, a.grndCfg.PageTextMaxBytes); err == nil {
			ps.pageText = text
		}
	}
	return ps, nil
}

// recoverBrowser restarts a lost browser and records what happened. The run
// resumes at REPLANNING against whatever page the fresh session shows.
func (a *Agent) recoverBrowser(ctx context.Context, runID string, log *zap.Logger,
	step schemas.Step, records []schemas.ExecutionRecord) []schemas.ExecutionRecord {
	log.Warn("Browser lost, restarting.", zap.String("step", step.Description))

	outcome := "error: the browser was lost; it has been restarted and the plan must be rebuilt"
	if err := a.driver.Restart(ctx); err != nil {
		outcome = fmt.Sprintf("error: the browser was lost and could not be restarted: %v", err)
	}
	return a.append(ctx, runID, records, schemas.ExecutionRecord{
		Description: step.Description,
		Action:      step.Action,
		Outcome:     outcome,
		Timestamp:   time.Now(),
	})
}

func (a *Agent) planContext(task string, ps *pageState, records []schemas.ExecutionRecord, warnings []string) planner.Context {
	history := records
	if len(history) > a.cfg.HistoryWindow {
		history = history[len(history)-a.cfg.HistoryWindow:]
	}
	return planner.Context{
		Task:           task,
		Snapshot:       ps.snapshot,
		PageText:       ps.pageText,
		History:        history,
		Warnings:       warnings,
		RemainingSteps: a.cfg.MaxSteps - len(records),
	}
}

// append adds a record and mirrors it into the run log.
func (a *Agent) append(ctx context.Context, runID string, records []schemas.ExecutionRecord, rec schemas.ExecutionRecord) []schemas.ExecutionRecord {
	records = append(records, rec)
	if a.store != nil {
		if err := a.store.LogStep(ctx, runID, len(records)-1, rec); err != nil {
			a.logger.Warn("Run log write failed.", zap.Error(err))
		}
	}
	return records
}

// finish assembles the result and persists the experience.
func (a *Agent) finish(ctx context.Context, task string, status schemas.RunStatus,
	records []schemas.ExecutionRecord, summary string) schemas.RunResult {

	result := schemas.RunResult{
		Task:    task,
		Status:  status,
		Records: records,
		Summary: summary,
	}

	if a.store != nil && len(records) > 0 && status != schemas.RunStopped {
		domain := ""
		for i := len(records) - 1; i >= 0 && domain == ""; i-- {
			domain = hostOf(records[i].URL)
		}
		if domain != "" {
			if err := a.store.Save(ctx, domain, task, status == schemas.RunDone, records); err != nil {
				a.logger.Warn("Experience save failed.", zap.Error(err))
			}
		}
	}

	a.logger.Info("Run finished.",
		zap.String("status", string(status)), zap.Int("records", len(records)))
	return result
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}

func formatExperience(exp *memory.Experience) string {
	var sb strings.Builder
	outcome := "failed"
	if exp.Success {
		outcome = "succeeded"
	}
	fmt.Fprintf(&sb, "Task %q on %s %s with these steps:\n", exp.Task, exp.Domain, outcome)
	for i, rec := range exp.Steps {
		fmt.Fprintf(&sb, "%d. [%s] %s -> %s\n", i+1, rec.Action, rec.Description, rec.Outcome)
	}
	return sb.String()
}
