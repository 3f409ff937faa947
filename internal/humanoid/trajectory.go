// internal/humanoid/trajectory.go
package humanoid

import (
	"context"
	"math"
	"time"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
)

// easeInOutCubic provides a smooth acceleration and deceleration profile.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// fittsDuration derives a movement time from Fitts's Law with ±15% jitter.
// Assumes the caller holds the lock.
func (h *Humanoid) fittsDuration(distance float64) time.Duration {
	const targetWidth = 30.0
	id := math.Log2(1.0 + distance/targetWidth)
	mt := h.cfg.FittsA + h.cfg.FittsB*id
	mt += mt * (h.rng.Float64()*0.3 - 0.15)
	return time.Duration(mt) * time.Millisecond
}

// quadraticPath samples a quadratic Bezier curve from start to end. The
// control point sits off the straight line by a random perpendicular offset
// proportional to the travel distance, which bows the path the way a real
// wrist movement does.
func (h *Humanoid) quadraticPath(start, end Vector2D, numSteps int) []Vector2D {
	mainVec := end.Sub(start)
	dist := mainVec.Mag()
	if dist < 1.0 || numSteps <= 1 {
		return []Vector2D{end}
	}

	mid := start.Add(mainVec.Mul(0.5))
	bend := (h.rng.Float64() - 0.5) * dist * 0.25
	control := mid.Add(mainVec.Normalize().Perp().Mul(bend))

	path := make([]Vector2D, numSteps)
	for i := 0; i < numSteps; i++ {
		t := float64(i) / float64(numSteps-1)
		omt := 1.0 - t
		// Quadratic Bezier: (1-t)^2*P0 + 2(1-t)t*C + t^2*P1.
		path[i] = start.Mul(omt * omt).Add(control.Mul(2 * omt * t)).Add(end.Mul(t * t))
	}
	return path
}

// MoveTo walks the cursor from its current position to the target, emitting
// mouseMoved events along a noisy Bezier trajectory. The step count grows
// with the travel distance, so long moves stay smooth.
func (h *Humanoid) MoveTo(ctx context.Context, target Vector2D) error {
	h.mu.Lock()
	start := h.currentPos
	dist := start.Dist(target)
	duration := h.fittsDuration(dist)
	numSteps := int(duration.Seconds() * 100)
	if numSteps < 2 {
		numSteps = 2
	}
	path := h.quadraticPath(start, target, numSteps)
	h.mu.Unlock()

	h.updateFatigue(dist / 1000.0)

	startTime := time.Now()
	for i := range path {
		if err := ctx.Err(); err != nil {
			return err
		}

		t := float64(i) / float64(len(path)-1)
		easedT := easeInOutCubic(t)

		pathIndex := int(easedT * float64(len(path)-1))
		if pathIndex >= len(path) {
			pathIndex = len(path) - 1
		}
		pos := path[pathIndex]

		// Stay on schedule relative to the eased timeline.
		due := startTime.Add(time.Duration(easedT * float64(duration)))
		if wait := time.Until(due); wait > 0 {
			if err := h.executor.Sleep(ctx, wait); err != nil {
				return err
			}
		}

		perturbed := h.perturb(pos, time.Since(startTime).Seconds())

		event := schemas.MouseEventData{
			Type:   schemas.MouseMove,
			X:      perturbed.X,
			Y:      perturbed.Y,
			Button: schemas.ButtonNone,
		}
		if err := h.executor.DispatchMouseEvent(ctx, event); err != nil {
			return err
		}

		h.mu.Lock()
		h.currentPos = perturbed
		pause := time.Duration(2+h.rng.Intn(4)) * time.Millisecond
		h.mu.Unlock()

		if err := h.executor.Sleep(ctx, pause); err != nil {
			return err
		}
	}

	// The tremor on the last sample can leave the cursor off target, so the
	// gesture closes with a clean corrective move onto it.
	event := schemas.MouseEventData{
		Type:   schemas.MouseMove,
		X:      target.X,
		Y:      target.Y,
		Button: schemas.ButtonNone,
	}
	if err := h.executor.DispatchMouseEvent(ctx, event); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentPos = target
	h.mu.Unlock()
	return nil
}

// perturb layers coherent Perlin drift and per-step Gaussian tremor onto an
// ideal path point. Fatigue widens both.
func (h *Humanoid) perturb(pos Vector2D, elapsedSec float64) Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()

	fatigueFactor := 1.0 + h.fatigueLevel
	const perlinFrequency = 0.8
	amp := h.cfg.PerlinAmplitude * fatigueFactor
	drift := Vector2D{
		X: h.noiseX.Noise1D(elapsedSec*perlinFrequency) * amp,
		Y: h.noiseY.Noise1D(elapsedSec*perlinFrequency) * amp,
	}

	strength := h.cfg.GaussianJitterPx * fatigueFactor * (0.5 + h.rng.Float64())
	tremor := Vector2D{
		X: h.rng.NormFloat64() * strength,
		Y: h.rng.NormFloat64() * strength,
	}

	return pos.Add(drift).Add(tremor)
}
