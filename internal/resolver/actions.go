// internal/resolver/actions.go
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/browser"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/grounding"
)

func (r *Resolver) doClick(ctx context.Context, step schemas.Step, snapshot *schemas.Snapshot, hover bool) (string, error) {
	el, snap, tier, err := r.resolveTarget(ctx, step, snapshot)
	if err != nil {
		if errors.Is(err, errTargetNotFound) {
			return fmt.Sprintf("no target found for %q", step.Description), nil
		}
		return r.failure(err, "failed to resolve %q", step.Description)
	}

	if hover {
		if err := r.motor.Hover(ctx, el.BBox); err != nil {
			return r.failure(err, "failed to hover over element %d (%s)", el.ID, el.Label)
		}
		return fmt.Sprintf("hovered over element %d (%s), resolved via %s", el.ID, el.Label, tier), nil
	}

	selector := grounding.SelectorFor(snap, el.ID)
	if r.isOccluded(ctx, selector, el.BBox) {
		if err := r.driver.ForceClick(ctx, selector); err != nil {
			return r.failure(err, "failed to click element %d (%s)", el.ID, el.Label)
		}
		return fmt.Sprintf("clicked element %d (%s) with a forced click, another element was covering it", el.ID, el.Label), nil
	}

	if err := r.motor.Click(ctx, el.BBox); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, browser.ErrBrowserLost) {
			return "", err
		}
		// Pointer synthesis failed somewhere mid-gesture; one forced retry.
		r.logger.Debug("Pointer click failed, retrying forced.", zap.Int("id", el.ID), zap.Error(err))
		if ferr := r.driver.ForceClick(ctx, selector); ferr != nil {
			return r.failure(ferr, "failed to click element %d (%s)", el.ID, el.Label)
		}
		return fmt.Sprintf("clicked element %d (%s) with a forced click after the pointer was intercepted", el.ID, el.Label), nil
	}
	return fmt.Sprintf("clicked element %d (%s), resolved via %s", el.ID, el.Label, tier), nil
}

// isOccluded hit-tests the element's center. A covered target takes the
// forced-click path instead of a pointless pointer gesture.
func (r *Resolver) isOccluded(ctx context.Context, selector string, box schemas.BBox) bool {
	cx, cy := box.Center()
	script := fmt.Sprintf(`(function(){
		const target = document.querySelector(%s);
		if (!target) return false;
		const hit = document.elementFromPoint(%f, %f);
		if (!hit) return true;
		return !(target === hit || target.contains(hit) || hit.contains(target));
	})()`, strconv.Quote(selector), cx, cy)

	var occluded bool
	if err := r.driver.Evaluate(ctx, script, &occluded); err != nil {
		return false
	}
	return occluded
}

func (r *Resolver) doType(ctx context.Context, step schemas.Step, snapshot *schemas.Snapshot) (string, error) {
	text := step.Text
	if text == "" {
		if lits := quotedLiterals(step.Description); len(lits) > 0 {
			text = lits[len(lits)-1]
		}
	}
	if text == "" {
		return "failed: the step gives no text to type", nil
	}

	el, snap, tier, err := r.resolveTarget(ctx, fieldTarget(step), snapshot)
	if err != nil {
		if errors.Is(err, errTargetNotFound) {
			return fmt.Sprintf("no target found for %q", step.Description), nil
		}
		return r.failure(err, "failed to resolve the input field for %q", step.Description)
	}

	selector := grounding.SelectorFor(snap, el.ID)
	if err := r.motor.Click(ctx, el.BBox); err != nil {
		if ferr := r.driver.Focus(ctx, selector); ferr != nil {
			return r.failure(ferr, "failed to focus element %d (%s)", el.ID, el.Label)
		}
	}
	if err := r.driver.ClearInput(ctx, selector); err != nil {
		return r.failure(err, "failed to clear element %d (%s)", el.ID, el.Label)
	}

	pressEnter := r.cfg.PressEnterAfterType && wantsSubmit(step)
	if err := r.motor.TypeText(ctx, text, pressEnter); err != nil {
		return r.failure(err, "failed to type into element %d (%s)", el.ID, el.Label)
	}

	suffix := ""
	if pressEnter {
		suffix = " and pressed Enter"
	}
	return fmt.Sprintf("typed %q into element %d (%s)%s, resolved via %s", text, el.ID, el.Label, suffix, tier), nil
}

// fieldTarget rewrites a type step so target resolution matches the field,
// not the text being typed. The payload literal would otherwise win the
// quoted-literal tier.
func fieldTarget(step schemas.Step) schemas.Step {
	if step.Text == "" {
		return step
	}
	out := step
	out.Description = strings.ReplaceAll(out.Description, `"`+step.Text+`"`, "")
	out.Description = strings.ReplaceAll(out.Description, `'`+step.Text+`'`, "")
	return out
}

// wantsSubmit decides whether the typed text should be submitted with Enter.
func wantsSubmit(step schemas.Step) bool {
	desc := strings.ToLower(step.Description + " " + step.ExpectedResult)
	for _, kw := range []string{"search", "submit", "press enter", "and enter"} {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

func (r *Resolver) doExtract(ctx context.Context, step schemas.Step, snapshot *schemas.Snapshot) (string, error) {
	// The DOM is the primary source; vision only answers when the document
	// text does not cover the question.
	if el, snap, _, err := r.resolveTarget(ctx, step, snapshot); err == nil {
		selector := grounding.SelectorFor(snap, el.ID)
		script := fmt.Sprintf(`(function(){
			const node = document.querySelector(%s);
			return node ? (node.innerText || node.value || '').trim() : '';
		})()`, strconv.Quote(selector))
		var text string
		if err := r.driver.Evaluate(ctx, script, &text); err == nil && text != "" {
			return fmt.Sprintf("extracted from element %d (%s): %s", el.ID, el.Label, text), nil
		}
	} else if !errors.Is(err, errTargetNotFound) {
		return r.failure(err, "failed to extract %q", step.Description)
	}

	// Without a catalog target the document text still often holds the
	// answer, and reading it is far cheaper than a vision round trip.
	if text, err := grounding.PageText(ctx, r.driver, r.cfg.ExtractTextMaxBytes); err == nil && strings.TrimSpace(text) != "" {
		return fmt.Sprintf("extracted from the page text: %s", strings.TrimSpace(text)), nil
	}

	if r.oracle != nil {
		shot, err := r.driver.Screenshot(ctx)
		if err != nil {
			return r.failure(err, "failed to extract %q", step.Description)
		}
		answer, err := r.oracle.Extract(ctx, shot, step.Description)
		if err != nil {
			return r.failure(err, "failed to extract %q", step.Description)
		}
		return fmt.Sprintf("extracted: %s", answer), nil
	}
	return fmt.Sprintf("no target found for %q", step.Description), nil
}
