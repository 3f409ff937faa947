// internal/resolver/target.go
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/grounding"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/vlm"
)

// errTargetNotFound marks a resolution miss; it never escapes Execute.
var errTargetNotFound = errors.New("target not found")

// explicitIDPattern accepts "[E12]" and "[12]" element references embedded in
// a step description.
var explicitIDPattern = regexp.MustCompile(`\[E?(\d+)\]`)

var quotedPattern = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)

// resolveTarget finds the element a step refers to, trying three tiers in
// order: an explicit catalog ID, a text match against labels and attributes,
// and finally the vision oracle with one scroll-and-retry. The returned
// snapshot is the one the element belongs to, which differs from the input
// only when the vision tier had to scroll and re-scan.
func (r *Resolver) resolveTarget(ctx context.Context, step schemas.Step, snapshot *schemas.Snapshot) (schemas.Element, *schemas.Snapshot, string, error) {
	if snapshot == nil {
		return schemas.Element{}, nil, "", errTargetNotFound
	}

	if id, ok := explicitID(step); ok {
		idCtx, cancel := context.WithTimeout(ctx, r.cfg.IDTimeout)
		defer cancel()
		if el, found := snapshot.ElementByID(id); found {
			if err := r.verifyTagged(idCtx, snapshot, el.ID); err == nil {
				return el, snapshot, "id", nil
			}
			r.logger.Debug("Explicit target no longer tagged in the page.", zap.Int("id", id))
		} else {
			r.logger.Debug("Explicit target is outside the catalog.",
				zap.Int("id", id), zap.Int("catalog_size", len(snapshot.Elements)))
		}
	}

	if el, ok := matchByText(step, snapshot); ok {
		txtCtx, cancel := context.WithTimeout(ctx, r.cfg.TextTimeout)
		defer cancel()
		if err := r.verifyTagged(txtCtx, snapshot, el.ID); err == nil {
			return el, snapshot, "text", nil
		}
		r.logger.Debug("Text-matched target no longer tagged in the page.", zap.Int("id", el.ID))
	}

	return r.resolveVisually(ctx, step, snapshot)
}

// explicitID extracts a direct element reference from the step, preferring
// the structured field over a bracketed token in the description.
func explicitID(step schemas.Step) (int, bool) {
	if step.TargetID > 0 {
		return step.TargetID, true
	}
	if m := explicitIDPattern.FindStringSubmatch(step.Description); m != nil {
		id, err := strconv.Atoi(m[1])
		if err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

// verifyTagged confirms the catalog tag is still present in the live DOM, so
// a reference into a mutated page falls through to the lower tiers.
func (r *Resolver) verifyTagged(ctx context.Context, snapshot *schemas.Snapshot, id int) error {
	script := fmt.Sprintf(`document.querySelector(%s) !== null`,
		strconv.Quote(grounding.SelectorFor(snapshot, id)))
	var present bool
	if err := r.driver.Evaluate(ctx, script, &present); err != nil {
		return err
	}
	if !present {
		return errTargetNotFound
	}
	return nil
}

// matchByText scores catalog entries against the step's quoted literals, or
// against the whole description when nothing is quoted. Exact label matches
// beat label substrings, which beat attribute substrings; ties go to the
// lowest ID.
func matchByText(step schemas.Step, snapshot *schemas.Snapshot) (schemas.Element, bool) {
	needles := quotedLiterals(step.Description)
	if len(needles) == 0 {
		cleaned := stripActionWords(step.Description)
		if cleaned == "" {
			return schemas.Element{}, false
		}
		needles = []string{cleaned}
	}

	var best schemas.Element
	bestScore := 0
	for _, needle := range needles {
		lower := strings.ToLower(needle)
		for _, el := range snapshot.Elements {
			label := strings.ToLower(el.Label)
			score := 0
			switch {
			case label != "" && label == lower:
				score = 3
			case label != "" && strings.Contains(label, lower):
				score = 2
			default:
				for _, attr := range el.Attributes {
					if strings.Contains(strings.ToLower(attr), lower) {
						score = 1
						break
					}
				}
			}
			if score > bestScore {
				best = el
				bestScore = score
			}
		}
	}
	return best, bestScore > 0
}

func quotedLiterals(s string) []string {
	var out []string
	for _, m := range quotedPattern.FindAllStringSubmatch(s, -1) {
		lit := m[1]
		if lit == "" {
			lit = m[2]
		}
		if strings.TrimSpace(lit) != "" {
			out = append(out, strings.TrimSpace(lit))
		}
	}
	return out
}

var actionWords = []string{
	"click", "press", "tap", "hover", "over", "on", "the", "a", "an",
	"button", "link", "field", "into", "type", "select", "choose", "open",
}

// stripActionWords drops imperative boilerplate so "click the Submit button"
// matches a label of "Submit".
func stripActionWords(desc string) string {
	words := strings.Fields(desc)
	var kept []string
	for _, w := range words {
		lower := strings.ToLower(strings.Trim(w, ".,:;!?"))
		skip := false
		for _, aw := range actionWords {
			if lower == aw {
				skip = true
				break
			}
		}
		if !skip {
			kept = append(kept, strings.Trim(w, ".,:;!?"))
		}
	}
	return strings.Join(kept, " ")
}

// resolveVisually asks the vision oracle, scrolling down one notch and
// re-scanning for a single retry when the first pass sees nothing.
func (r *Resolver) resolveVisually(ctx context.Context, step schemas.Step, snapshot *schemas.Snapshot) (schemas.Element, *schemas.Snapshot, string, error) {
	if r.oracle == nil {
		return schemas.Element{}, nil, "", errTargetNotFound
	}

	visionCtx, cancel := context.WithTimeout(ctx, r.cfg.VisionTimeout)
	defer cancel()

	current := snapshot
	for attempt := 0; attempt < 2; attempt++ {
		id, err := r.locateOnScreen(visionCtx, step, current)
		if err == nil {
			el, ok := current.ElementByID(id)
			if ok {
				return el, current, "vision", nil
			}
		} else if !errors.Is(err, vlm.ErrNotFound) {
			return schemas.Element{}, nil, "", err
		}

		if attempt == 1 {
			break
		}
		if err := r.motor.ScrollBy(visionCtx, r.cfg.ScrollDelta); err != nil {
			return schemas.Element{}, nil, "", err
		}
		fresh, err := r.grounder.Scan(visionCtx)
		if err != nil {
			return schemas.Element{}, nil, "", err
		}
		current = fresh
	}
	return schemas.Element{}, nil, "", errTargetNotFound
}

func (r *Resolver) locateOnScreen(ctx context.Context, step schemas.Step, snapshot *schemas.Snapshot) (int, error) {
	shot, err := r.driver.Screenshot(ctx)
	if err != nil {
		return 0, err
	}
	raster, err := grounding.AnnotateImage(shot, snapshot)
	if err != nil {
		return 0, err
	}
	return r.oracle.Locate(ctx, raster, step.Description, snapshot)
}
