// internal/browser/driver.go
package browser

import (
	"context"
	"errors"
)

// Sentinel errors surfaced by the driver layer. The resolver turns these into
// textual outcomes; only the control loop's recovery path inspects them.
var (
	// ErrBrowserLost indicates the browser process or tab went away mid-run.
	ErrBrowserLost = errors.New("browser: session lost")
	// ErrStaleElement indicates a tagged node no longer exists in the DOM.
	ErrStaleElement = errors.New("browser: stale element reference")
	// ErrNotInteractable indicates the native click was intercepted or the
	// target is occluded.
	ErrNotInteractable = errors.New("browser: element not interactable")
)

// Driver is the explicit capability surface the grounding engine, resolver and
// control loop operate against. Keeping it narrow makes the confirmation
// decorator and test fakes trivial.
type Driver interface {
	// Navigate loads the URL and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the location of the active document.
	CurrentURL(ctx context.Context) (string, error)
	// Title returns the document title.
	Title(ctx context.Context) (string, error)
	// Screenshot captures the viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// Evaluate runs a JS expression and unmarshals the result into out.
	// Pass a *json.RawMessage to defer decoding.
	Evaluate(ctx context.Context, expression string, out interface{}) error
	// OuterHTML returns the serialized document element.
	OuterHTML(ctx context.Context) (string, error)
	// Click performs a native, actionability-checked click on the selector.
	Click(ctx context.Context, selector string) error
	// ForceClick dispatches a click directly on the node, bypassing
	// actionability checks. Used as the one retry after Click fails.
	ForceClick(ctx context.Context, selector string) error
	// Focus gives keyboard focus to the selector.
	Focus(ctx context.Context, selector string) error
	// ClearInput empties an input natively, falling back to
	// select-all+delete when the native path fails.
	ClearInput(ctx context.Context, selector string) error
	// WaitReady blocks until the document reaches readyState "complete".
	WaitReady(ctx context.Context) error
	// Healthy reports nil while the underlying page handle is usable.
	Healthy(ctx context.Context) error
	// Restart tears down and relaunches the tab after a browser loss.
	Restart(ctx context.Context) error
	// Close releases the tab and the browser process.
	Close(ctx context.Context) error
}
