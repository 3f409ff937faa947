// internal/humanoid/pointer.go
package humanoid

import (
	"context"
	"time"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
)

// Click moves to a point inside the box and issues a full press/hold/release
// sequence at the final cursor position.
func (h *Humanoid) Click(ctx context.Context, box schemas.BBox) error {
	target := h.TargetPoint(box)
	if err := h.MoveTo(ctx, target); err != nil {
		return err
	}

	h.mu.Lock()
	pos := h.currentPos
	holdRange := h.cfg.ClickHoldMaxMs - h.cfg.ClickHoldMinMs
	if holdRange < 1 {
		holdRange = 1
	}
	hold := time.Duration(h.cfg.ClickHoldMinMs+h.rng.Intn(holdRange)) * time.Millisecond
	h.mu.Unlock()

	press := schemas.MouseEventData{
		Type:       schemas.MousePress,
		X:          pos.X,
		Y:          pos.Y,
		Button:     schemas.ButtonLeft,
		Buttons:    1,
		ClickCount: 1,
	}
	if err := h.executor.DispatchMouseEvent(ctx, press); err != nil {
		return err
	}
	if err := h.executor.Sleep(ctx, hold); err != nil {
		return err
	}

	release := press
	release.Type = schemas.MouseRelease
	release.Buttons = 0
	return h.executor.DispatchMouseEvent(ctx, release)
}

// Hover moves to a point inside the box without pressing any button.
func (h *Humanoid) Hover(ctx context.Context, box schemas.BBox) error {
	return h.MoveTo(ctx, h.TargetPoint(box))
}

// ScrollBy emits wheel events covering the requested vertical delta, broken
// into irregular notches the way a physical wheel moves.
func (h *Humanoid) ScrollBy(ctx context.Context, deltaY float64) error {
	h.mu.Lock()
	pos := h.currentPos
	h.mu.Unlock()

	remaining := deltaY
	sign := 1.0
	if remaining < 0 {
		sign = -1.0
		remaining = -remaining
	}

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		h.mu.Lock()
		notch := 80.0 + h.rng.Float64()*60.0
		pause := time.Duration(30+h.rng.Intn(70)) * time.Millisecond
		h.mu.Unlock()

		if notch > remaining {
			notch = remaining
		}
		remaining -= notch

		event := schemas.MouseEventData{
			Type:   schemas.MouseWheel,
			X:      pos.X,
			Y:      pos.Y,
			Button: schemas.ButtonNone,
			DeltaY: sign * notch,
		}
		if err := h.executor.DispatchMouseEvent(ctx, event); err != nil {
			return err
		}
		if err := h.executor.Sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}
