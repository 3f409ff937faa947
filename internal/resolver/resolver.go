// internal/resolver/resolver.go

// Package resolver turns planned steps into browser actions. Every failure
// mode becomes a textual outcome for the planner to reason about; only
// cancellation and browser loss surface as errors.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/browser"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
)

// Grounder re-scans the page when resolution needs a fresh catalog.
type Grounder interface {
	Scan(ctx context.Context) (*schemas.Snapshot, error)
}

// VisionOracle answers visual questions about annotated screenshots.
type VisionOracle interface {
	Locate(ctx context.Context, screenshot []byte, description string, snapshot *schemas.Snapshot) (int, error)
	Extract(ctx context.Context, screenshot []byte, instruction string) (string, error)
}

// Motor is the humanlike input surface the resolver drives.
type Motor interface {
	Click(ctx context.Context, box schemas.BBox) error
	Hover(ctx context.Context, box schemas.BBox) error
	ScrollBy(ctx context.Context, deltaY float64) error
	TypeText(ctx context.Context, text string, pressEnter bool) error
	CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error
}

// Resolver executes one step at a time against the live page.
type Resolver struct {
	driver   browser.Driver
	motor    Motor
	grounder Grounder
	oracle   VisionOracle
	cfg      config.ResolverConfig
	logger   *zap.Logger
}

// New wires the resolver's collaborators together.
func New(driver browser.Driver, motor Motor, grounder Grounder, oracle VisionOracle, cfg config.ResolverConfig, logger *zap.Logger) *Resolver {
	return &Resolver{
		driver:   driver,
		motor:    motor,
		grounder: grounder,
		oracle:   oracle,
		cfg:      cfg,
		logger:   logger.Named("resolver"),
	}
}

// Execute performs the step and reports what happened as text. The snapshot
// is the catalog the step was planned against.
func (r *Resolver) Execute(ctx context.Context, step schemas.Step, snapshot *schemas.Snapshot) (string, error) {
	if outcome, err := r.runGuards(ctx); err != nil {
		return "", err
	} else if outcome != "" {
		return outcome, nil
	}

	switch step.Action {
	case schemas.ActionNavigate:
		return r.doNavigate(ctx, step)
	case schemas.ActionSearch:
		return r.doSearch(ctx, step)
	case schemas.ActionClick:
		return r.doClick(ctx, step, snapshot, false)
	case schemas.ActionHover:
		return r.doClick(ctx, step, snapshot, true)
	case schemas.ActionType:
		return r.doType(ctx, step, snapshot)
	case schemas.ActionScroll:
		return r.doScroll(ctx, step)
	case schemas.ActionExtract:
		return r.doExtract(ctx, step, snapshot)
	case schemas.ActionInspect:
		return r.doInspect(ctx, snapshot)
	case schemas.ActionWait:
		return r.doWait(ctx, step)
	case schemas.ActionAskUser:
		return fmt.Sprintf("paused: user input needed: %s", step.Description), nil
	case schemas.ActionFinish:
		return "task marked finished by the plan", nil
	default:
		return fmt.Sprintf("failed: unsupported action %q", step.Action), nil
	}
}

// failure converts an action error into an outcome string, letting
// cancellation and browser loss pass through as real errors.
func (r *Resolver) failure(err error, format string, args ...interface{}) (string, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, browser.ErrBrowserLost) {
		return "", err
	}
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	r.logger.Debug("Step failed.", zap.String("outcome", msg))
	return msg, nil
}

func (r *Resolver) doScroll(ctx context.Context, step schemas.Step) (string, error) {
	delta := r.cfg.ScrollDelta
	desc := strings.ToLower(step.Description)
	if strings.Contains(desc, "up") && !strings.Contains(desc, "popup") {
		delta = -delta
	}
	if err := r.motor.ScrollBy(ctx, delta); err != nil {
		return r.failure(err, "failed to scroll")
	}
	direction := "down"
	if delta < 0 {
		direction = "up"
	}
	return fmt.Sprintf("scrolled %s by %.0f pixels", direction, absFloat(delta)), nil
}

func (r *Resolver) doWait(ctx context.Context, step schemas.Step) (string, error) {
	wait := 3 * time.Second
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(wait):
	}
	if err := r.driver.WaitReady(ctx); err != nil {
		return r.failure(err, "failed waiting for the page to settle")
	}
	return fmt.Sprintf("waited %s for the page to settle", wait), nil
}

func (r *Resolver) doInspect(ctx context.Context, snapshot *schemas.Snapshot) (string, error) {
	url, err := r.driver.CurrentURL(ctx)
	if err != nil {
		return r.failure(err, "failed to inspect the page")
	}
	title, _ := r.driver.Title(ctx)
	count := 0
	if snapshot != nil {
		count = len(snapshot.Elements)
	}
	return fmt.Sprintf("on %q (%s) with %d interactive elements visible", title, url, count), nil
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
