// internal/resolver/guards.go
package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// runGuards checks for a CAPTCHA challenge and clears dismissable popups
// before the step runs. A detected challenge short-circuits the step with a
// waiting outcome so a human can intervene.
func (r *Resolver) runGuards(ctx context.Context) (string, error) {
	blocked, reason, err := r.detectChallenge(ctx)
	if err != nil {
		return r.failure(err, "failed checking the page state")
	}
	if blocked {
		r.logger.Warn("Challenge detected.", zap.String("reason", reason))
		if r.clickConsentBox(ctx) {
			return fmt.Sprintf("paused: a verification challenge was blocking the page (%s); its consent checkbox was clicked, re-check the page before proceeding", reason), nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.cfg.CaptchaPause):
		}
		return fmt.Sprintf("paused: a human verification challenge is blocking the page (%s); waited %s for manual resolution", reason, r.cfg.CaptchaPause), nil
	}

	if dismissed := r.dismissPopups(ctx); dismissed != "" {
		r.logger.Debug("Dismissed a popup.", zap.String("selector", dismissed))
	}
	return "", nil
}

// DismissPopups sweeps dismissable overlays off the page. It is best effort
// and safe to call before any read of the page.
func (r *Resolver) DismissPopups(ctx context.Context) {
	if dismissed := r.dismissPopups(ctx); dismissed != "" {
		r.logger.Debug("Dismissed a popup.", zap.String("selector", dismissed))
	}
}

// clickConsentBox tries the one-click checkbox some challenges offer before
// giving up and waiting for a human.
func (r *Resolver) clickConsentBox(ctx context.Context) bool {
	script := `(function(){
		const sels = ['.recaptcha-checkbox', '#recaptcha-anchor', 'input[type="checkbox"][name*="captcha"]', '[role="checkbox"]'];
		for (const s of sels) {
			const el = document.querySelector(s);
			if (!el) continue;
			const rect = el.getBoundingClientRect();
			if (rect.width === 0 || rect.height === 0) continue;
			el.click();
			return true;
		}
		return false;
	})()`

	var clicked bool
	if err := r.driver.Evaluate(ctx, script, &clicked); err != nil {
		return false
	}
	if clicked {
		r.logger.Info("Clicked a challenge consent checkbox.")
	}
	return clicked
}

// detectChallenge looks for CAPTCHA markers in the title and for known
// challenge frames in the document.
func (r *Resolver) detectChallenge(ctx context.Context) (bool, string, error) {
	title, err := r.driver.Title(ctx)
	if err != nil {
		return false, "", err
	}
	lowerTitle := strings.ToLower(title)
	for _, kw := range r.cfg.CaptchaKeywords {
		if strings.Contains(lowerTitle, strings.ToLower(kw)) {
			return true, fmt.Sprintf("page title contains %q", kw), nil
		}
	}

	if len(r.cfg.ChallengeURLParts) > 0 {
		parts := make([]string, len(r.cfg.ChallengeURLParts))
		for i, p := range r.cfg.ChallengeURLParts {
			parts[i] = strconv.Quote(strings.ToLower(p))
		}
		script := fmt.Sprintf(`(function(){
			const parts = [%s];
			for (const f of document.querySelectorAll('iframe[src]')) {
				const src = f.src.toLowerCase();
				if (parts.some(p => src.includes(p))) return src;
			}
			return '';
		})()`, strings.Join(parts, ","))

		var frameSrc string
		if err := r.driver.Evaluate(ctx, script, &frameSrc); err != nil {
			return false, "", err
		}
		if frameSrc != "" {
			return true, "challenge frame embedded in the page", nil
		}
	}
	return false, "", nil
}

// dismissPopups clicks the first matching dismissal control, if any. Popup
// handling is best effort and never fails the step.
func (r *Resolver) dismissPopups(ctx context.Context) string {
	for _, selector := range r.cfg.PopupSelectors {
		script := fmt.Sprintf(`(function(){
			const el = document.querySelector(%s);
			if (!el) return false;
			const rect = el.getBoundingClientRect();
			if (rect.width === 0 || rect.height === 0) return false;
			el.click();
			return true;
		})()`, strconv.Quote(selector))

		var clicked bool
		if err := r.driver.Evaluate(ctx, script, &clicked); err != nil {
			continue
		}
		if clicked {
			return selector
		}
	}
	return ""
}
