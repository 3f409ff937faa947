// internal/browser/executor.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
)

// cdpExecutor adapts a Session to the humanoid input primitives. All
// synthesized pointer and keyboard traffic flows through here.
type cdpExecutor struct {
	session *Session
}

// NewExecutor wraps the session for humanoid input synthesis.
func NewExecutor(session *Session) *cdpExecutor {
	return &cdpExecutor{session: session}
}

// Sleep pauses inside the tab's action pipeline so pacing survives
// chromedp's internal batching.
func (e *cdpExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return e.session.Run(ctx, chromedp.Sleep(d))
}

// DispatchMouseEvent forwards a raw mouse event over the Input domain.
func (e *cdpExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	return e.session.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y)

		switch data.Type {
		case schemas.MousePress, schemas.MouseRelease:
			p = p.WithButton(input.MouseButton(data.Button)).
				WithClickCount(int64(data.ClickCount))
		case schemas.MouseMove:
			if data.Buttons != 0 {
				p = p.WithButton(input.MouseButton(data.Button))
			}
		case schemas.MouseWheel:
			p = p.WithDeltaX(data.DeltaX).WithDeltaY(data.DeltaY)
		default:
			return fmt.Errorf("unsupported mouse event type %q", data.Type)
		}

		if data.Buttons != 0 {
			p = p.WithButtons(data.Buttons)
		}
		return p.Do(ctx)
	}))
}

// SendKeys types the key stream into the focused element. Control characters
// ("\b", "\r", "\t") map to their virtual keys via chromedp, and a modifier
// bitmask rides along when the event carries one.
func (e *cdpExecutor) SendKeys(ctx context.Context, data schemas.KeyEventData) error {
	if data.Modifiers != schemas.ModNone {
		return e.session.Run(ctx, chromedp.KeyEvent(data.Key,
			chromedp.KeyModifiers(input.Modifier(data.Modifiers))))
	}
	return e.session.Run(ctx, chromedp.KeyEvent(data.Key))
}
