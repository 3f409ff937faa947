// internal/humanoid/humanoid.go
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
)

// Executor is the low-level event sink the Humanoid drives. The browser layer
// implements it on top of the CDP Input domain.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error
	SendKeys(ctx context.Context, data schemas.KeyEventData) error
}

// Humanoid synthesizes humanlike pointer and keyboard input. All coordinates
// are CSS pixels in the viewport; targets come from Snapshot bounding boxes.
type Humanoid struct {
	// mu protects all mutable state: rng, currentPos, fatigueLevel.
	mu           sync.Mutex
	cfg          config.HumanoidConfig
	logger       *zap.Logger
	executor     Executor
	currentPos   Vector2D
	fatigueLevel float64
	rng          *rand.Rand
	noiseX       *perlin.Perlin
	noiseY       *perlin.Perlin
}

// New creates and initializes a Humanoid seeded from the wall clock.
func New(cfg config.HumanoidConfig, logger *zap.Logger, executor Executor) *Humanoid {
	seed := time.Now().UnixNano()
	return newWithSeed(cfg, logger, executor, seed)
}

// NewTestHumanoid creates a deterministic instance for tests.
func NewTestHumanoid(executor Executor, seed int64) *Humanoid {
	cfg := config.NewDefaultConfig().Humanoid
	return newWithSeed(cfg, zap.NewNop(), executor, seed)
}

func newWithSeed(cfg config.HumanoidConfig, logger *zap.Logger, executor Executor, seed int64) *Humanoid {
	// Standard Perlin noise parameters.
	alpha, beta, n := 2.0, 2.0, int32(3)
	return &Humanoid{
		cfg:      cfg,
		logger:   logger.Named("humanoid"),
		executor: executor,
		rng:      rand.New(rand.NewSource(seed)),
		noiseX:   perlin.NewPerlin(alpha, beta, n, seed),
		noiseY:   perlin.NewPerlin(alpha, beta, n, seed+1),
	}
}

// Position returns the last known cursor position.
func (h *Humanoid) Position() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos
}

// SetPosition resets the cursor position, used after navigation resets the page.
func (h *Humanoid) SetPosition(pos Vector2D) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentPos = pos
}

// TargetPoint picks a realistic point inside the given box: normally
// distributed around the center and clamped to stay at least one pixel inside
// the edges.
func (h *Humanoid) TargetPoint(box schemas.BBox) Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()

	cx, cy := box.Center()
	if box.Width <= 2 || box.Height <= 2 {
		return Vector2D{X: cx, Y: cy}
	}

	// Aim for the inner 90% of the element to avoid clicking the very edge.
	stdDevX := box.Width * 0.9 / 6.0
	stdDevY := box.Height * 0.9 / 6.0
	x := cx + h.rng.NormFloat64()*stdDevX
	y := cy + h.rng.NormFloat64()*stdDevY

	x = math.Max(box.X+1, math.Min(box.X+box.Width-1, x))
	y = math.Max(box.Y+1, math.Min(box.Y+box.Height-1, y))
	return Vector2D{X: x, Y: y}
}

// updateFatigue accumulates effort; fatigue widens noise and slows pauses.
func (h *Humanoid) updateFatigue(intensity float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fatigueLevel = math.Min(1.0, h.fatigueLevel+intensity*0.005)
}

// recoverFatigue lets rest periods drain accumulated fatigue.
func (h *Humanoid) recoverFatigue(rest time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fatigueLevel = math.Max(0.0, h.fatigueLevel-rest.Seconds()*0.01)
}

// CognitivePause sleeps for a normally distributed duration, scaled up by the
// current fatigue level.
func (h *Humanoid) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	h.mu.Lock()
	factor := 1.0 + h.fatigueLevel
	d := time.Duration(factor*(meanMs+h.rng.NormFloat64()*stdDevMs)) * time.Millisecond
	h.mu.Unlock()

	if d <= 0 {
		return nil
	}
	h.recoverFatigue(d)
	return h.executor.Sleep(ctx, d)
}
