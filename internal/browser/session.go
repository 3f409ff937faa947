// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session owns one browser process and one tab. It is not safe for concurrent
// use: the control loop is the single logical owner, per the worker model.
type Session struct {
	id     string
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu          sync.Mutex
	parentCtx   context.Context
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

var _ Driver = (*Session)(nil)

// NewSession launches the browser process and opens the working tab.
func NewSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	s := &Session{
		id:        uuid.New().String(),
		cfg:       cfg,
		logger:    logger.Named("browser").With(zap.String("session_id", uuid.NewString()[:8])),
		parentCtx: ctx,
	}
	if err := s.launch(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) launch(ctx context.Context) error {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, s.buildAllocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Confirm the browser starts and responds before handing it out.
	probeCtx, cancelProbe := context.WithTimeout(tabCtx, 30*time.Second)
	defer cancelProbe()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	s.mu.Lock()
	s.allocCtx = allocCtx
	s.allocCancel = allocCancel
	s.tabCtx = tabCtx
	s.tabCancel = tabCancel
	s.mu.Unlock()

	s.logger.Info("Browser launched and responsive.")
	return nil
}

// buildAllocatorOptions assembles launch flags. Later flags win, so the
// automation banner from the defaults is switched back off.
func (s *Session) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", s.cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", s.cfg.Headless),
		chromedp.WindowSize(s.cfg.ViewportWidth, s.cfg.ViewportHeight),
	)
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}

	for _, arg := range s.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

// Run executes chromedp actions against the tab, translating a dead tab into
// ErrBrowserLost so callers can trigger recovery.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	tabCtx := s.tabCtx
	s.mu.Unlock()

	if tabCtx == nil || tabCtx.Err() != nil {
		return ErrBrowserLost
	}

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(tabCtx, actions...)
	}()

	select {
	case err := <-done:
		if err != nil && tabCtx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrBrowserLost, err)
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Navigate loads the URL, waits for the load event and the configured
// post-load settle time.
func (s *Session) Navigate(ctx context.Context, url string) error {
	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if s.cfg.PostLoadWait > 0 {
		actions = append(actions, chromedp.Sleep(s.cfg.PostLoadWait))
	}
	if err := s.Run(opCtx, actions...); err != nil {
		return fmt.Errorf("navigate %q: %w", url, err)
	}
	return nil
}

// CurrentURL returns the active document location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.Run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Title returns the document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.Run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Evaluate runs an expression and unmarshals the by-value result into out.
func (s *Session) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return s.Run(ctx, chromedp.Evaluate(expression, out,
		func(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}))
}

// OuterHTML returns the serialized document element.
func (s *Session) OuterHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Click performs a native, actionability-checked click. Failures that smell
// like occlusion map to ErrNotInteractable so the resolver can retry forced.
func (s *Session) Click(ctx context.Context, selector string) error {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := s.Run(opCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
	if err == nil {
		return nil
	}
	if classifyNodeError(err) != nil {
		return classifyNodeError(err)
	}
	if opCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: click timed out on %q", ErrNotInteractable, selector)
	}
	return err
}

// ForceClick dispatches a click directly on the node via JS, bypassing
// visibility and hit-target checks.
func (s *Session) ForceClick(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(function(sel){
		const node = document.querySelector(sel);
		if (!node) return false;
		node.click();
		return true;
	})(%s)`, jsString(selector))

	var clicked bool
	if err := s.Evaluate(ctx, script, &clicked); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: %q", ErrStaleElement, selector)
	}
	return nil
}

// Focus gives keyboard focus to the selector.
func (s *Session) Focus(ctx context.Context, selector string) error {
	err := s.Run(ctx, chromedp.Focus(selector, chromedp.ByQuery))
	if cerr := classifyNodeError(err); cerr != nil {
		return cerr
	}
	return err
}

// ClearInput empties the field natively; if the value survives (custom
// widgets, contenteditable), it falls back to select-all plus delete.
func (s *Session) ClearInput(ctx context.Context, selector string) error {
	err := s.Run(ctx, chromedp.SetValue(selector, "", chromedp.ByQuery))
	if err == nil {
		var residual string
		if verr := s.Run(ctx, chromedp.Value(selector, &residual, chromedp.ByQuery)); verr == nil && residual == "" {
			return nil
		}
	}

	if ferr := s.Focus(ctx, selector); ferr != nil {
		return ferr
	}
	return s.Run(ctx,
		chromedp.KeyEvent("a", chromedp.KeyModifiers(input.Modifier(schemas.ModCtrl))),
		chromedp.KeyEvent(kb.Delete),
	)
}

// WaitReady blocks until the document reaches readyState "complete".
func (s *Session) WaitReady(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for {
		var state string
		if err := s.Evaluate(opCtx, "document.readyState", &state); err != nil {
			return err
		}
		if state == "complete" {
			return nil
		}
		select {
		case <-opCtx.Done():
			return opCtx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Healthy reports nil while the tab context is alive and evaluating.
func (s *Session) Healthy(ctx context.Context) error {
	s.mu.Lock()
	tabCtx := s.tabCtx
	s.mu.Unlock()

	if tabCtx == nil || tabCtx.Err() != nil {
		return ErrBrowserLost
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var one int
	if err := s.Evaluate(probeCtx, "1", &one); err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserLost, err)
	}
	return nil
}

// Restart tears the browser down and relaunches it. Task context is
// preserved by the caller; the new tab starts at about:blank.
func (s *Session) Restart(ctx context.Context) error {
	s.logger.Warn("Restarting browser session.")
	s.teardown()
	return s.launch(s.parentCtx)
}

// Close releases the tab and the browser process.
func (s *Session) Close(ctx context.Context) error {
	s.teardown()
	s.logger.Info("Browser session closed.")
	return nil
}

func (s *Session) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tabCancel != nil {
		s.tabCancel()
		s.tabCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.tabCtx = nil
	s.allocCtx = nil
}

// EnableLifecycleEvents is occasionally needed before waiting on load states.
func (s *Session) EnableLifecycleEvents(ctx context.Context) error {
	return s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.Enable().Do(ctx)
	}))
}

// classifyNodeError maps chromedp error text onto the driver sentinels.
func classifyNodeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Could not find node") || strings.Contains(msg, "-32000"):
		return fmt.Errorf("%w: %v", ErrStaleElement, err)
	case strings.Contains(msg, "not visible") || strings.Contains(msg, "not clickable") ||
		strings.Contains(msg, "intercept"):
		return fmt.Errorf("%w: %v", ErrNotInteractable, err)
	}
	return nil
}

// jsString safely encodes a Go string as a JS string literal.
func jsString(v string) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
