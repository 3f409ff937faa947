// -- cmd/run.go --
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/agent"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/browser"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/grounding"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/humanoid"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/llmclient"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/memory"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/observability"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/planner"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/resolver"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/vlm"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/worker"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Runs one or more natural-language tasks against a live browser",
		Long: `Runs each task through the full agent loop: the page is scanned into an
element catalog, a plan is drafted, one step is executed, and the plan is
revised against the new page state until the task is done or the step budget
runs out. Tasks are executed in order on a single browser session.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := currentConfig()

			// Flag overrides take precedence over file and environment values.
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless, _ = cmd.Flags().GetBool("headless")
			}
			if cmd.Flags().Changed("confirm") {
				cfg.Browser.ConfirmActions, _ = cmd.Flags().GetBool("confirm")
			}
			startURL, _ := cmd.Flags().GetString("start-url")
			output, _ := cmd.Flags().GetString("output")

			components, err := initializeAgentComponents(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize agent components: %w", err)
			}
			// Teardown must survive a cancelled run context.
			defer components.Shutdown(context.WithoutCancel(ctx), logger)

			queue := worker.NewQueue(components.Runner, cfg.Worker, logger)
			queue.Start(ctx)

			// Submit everything up front; the worker serializes execution.
			channels := make([]<-chan schemas.RunResult, 0, len(args))
			for _, goal := range args {
				task, ch, err := queue.Submit(goal, startURL)
				if err != nil {
					logger.Error("Task submission rejected", zap.String("goal", goal), zap.Error(err))
					continue
				}
				logger.Info("Task submitted", zap.String("task_id", task.ID), zap.String("goal", goal))
				channels = append(channels, ch)
			}

			results := make([]schemas.RunResult, 0, len(channels))
			for _, ch := range channels {
				res := <-ch
				results = append(results, res)
				printResult(cmd, res)
			}

			if err := queue.Close(); err != nil {
				logger.Warn("Worker shutdown reported an error", zap.Error(err))
			}

			if output != "" {
				if err := writeResults(output, results); err != nil {
					return fmt.Errorf("failed to write results: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Results written to %s\n", output)
			}

			if ctx.Err() != nil {
				return context.Canceled
			}
			for _, res := range results {
				if res.Status == schemas.RunFailed {
					return fmt.Errorf("task %q did not complete", res.Task)
				}
			}
			return nil
		},
	}

	runCmd.Flags().StringP("start-url", "u", "", "URL to open before the first task step")
	runCmd.Flags().StringP("output", "o", "", "Output file path for run results as JSON. If unset, no file is written.")
	runCmd.Flags().Bool("headless", true, "Run the browser without a visible window (overrides config/env)")
	runCmd.Flags().Bool("confirm", false, "Ask for confirmation before every mutating browser action")

	return runCmd
}

// agentComponents holds everything the run command wires together, so a
// single Shutdown can tear it down in the right order.
type agentComponents struct {
	Session *browser.Session
	Store   *memory.Store
	Runner  worker.Runner
}

// Shutdown releases the browser and the experience store. Safe on a
// partially initialized struct.
func (c *agentComponents) Shutdown(ctx context.Context, logger *zap.Logger) {
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			logger.Warn("Failed to close experience store", zap.Error(err))
		}
	}
	if c.Session != nil {
		if err := c.Session.Close(ctx); err != nil {
			logger.Warn("Failed to close browser session", zap.Error(err))
		}
	}
}

// initializeAgentComponents builds the full stack: browser session, humanlike
// input layer, grounding scanner, LLM planner and vision oracle, resolver,
// experience store and the agent loop itself.
func initializeAgentComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*agentComponents, error) {
	components := &agentComponents{}

	session, err := browser.NewSession(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	components.Session = session

	var driver browser.Driver = session
	if cfg.Browser.ConfirmActions {
		driver = browser.WithConfirmation(driver, os.Stdin, os.Stderr, logger)
	}
	driver = browser.WithLogging(driver, logger)

	motor := humanoid.New(cfg.Humanoid, logger, browser.NewExecutor(session))
	scanner := grounding.NewScanner(driver, cfg.Grounding, logger)

	client, err := llmclient.NewGeminiClient(cfg.LLM, logger)
	if err != nil {
		components.Shutdown(ctx, logger)
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}

	oracle := vlm.NewOracle(client, cfg.LLM, logger)
	plan := planner.New(client, cfg.LLM, cfg.Agent, logger)
	exec := resolver.New(driver, motor, scanner, oracle, cfg.Resolver, logger)

	// Memory is optional: an empty path disables recall and persistence.
	var store agent.ExperienceStore
	if cfg.Memory.Path != "" {
		s, err := memory.NewStore(cfg.Memory, logger)
		if err != nil {
			components.Shutdown(ctx, logger)
			return nil, fmt.Errorf("opening experience store: %w", err)
		}
		components.Store = s
		store = s
	}

	loop := agent.New(driver, scanner, plan, exec, store, cfg.Agent, cfg.Grounding, logger)
	loop.SetPageGuard(exec)
	if cfg.Agent.HintOnCritical {
		loop.SetHintProvider(&consoleHints{in: bufio.NewReader(os.Stdin), out: os.Stderr})
	}
	components.Runner = &agentRunner{agent: loop, driver: driver, logger: logger}

	return components, nil
}

// consoleHints asks the operator for a steer when the loop keeps failing at
// the same step. An empty line skips the hint.
type consoleHints struct {
	in  *bufio.Reader
	out io.Writer
}

func (h *consoleHints) Hint(ctx context.Context, records []schemas.ExecutionRecord) (string, error) {
	last := records[len(records)-1]
	fmt.Fprintf(h.out, "\nThe agent keeps failing at %q.\nHint for the planner (enter to skip): ", last.Description)
	line, err := h.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// agentRunner adapts the agent loop to the worker queue, opening the start
// URL before the loop takes over.
type agentRunner struct {
	agent  *agent.Agent
	driver browser.Driver
	logger *zap.Logger
}

func (r *agentRunner) Run(ctx context.Context, task worker.Task) schemas.RunResult {
	if task.StartURL != "" {
		if err := r.driver.Navigate(ctx, task.StartURL); err != nil {
			if errors.Is(err, context.Canceled) {
				return schemas.RunResult{Task: task.Goal, Status: schemas.RunStopped, Summary: "The run was stopped before the start page loaded."}
			}
			r.logger.Error("Start URL failed to load", zap.String("url", task.StartURL), zap.Error(err))
			return schemas.RunResult{
				Task:    task.Goal,
				Status:  schemas.RunFailed,
				Summary: fmt.Sprintf("The start page %s could not be loaded: %v.", task.StartURL, err),
			}
		}
	}
	return r.agent.Run(ctx, task.Goal)
}

func printResult(cmd *cobra.Command, res schemas.RunResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nTask:   %s\nStatus: %s\n", res.Task, res.Status)
	for i, rec := range res.Records {
		marker := "ok"
		if rec.Failed() {
			marker = "!!"
		}
		fmt.Fprintf(out, "  %2d [%s] %s -> %s\n", i+1, marker, rec.Description, rec.Outcome)
	}
	if res.Summary != "" {
		fmt.Fprintf(out, "Summary: %s\n", res.Summary)
	}
}

func writeResults(path string, results []schemas.RunResult) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
