// internal/grounding/scanner.go

// Package grounding turns the live DOM into a numbered catalog of
// interactive elements, so that both the planner and the vision oracle can
// refer to targets by small stable integers instead of selectors.
package grounding

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/browser"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
)

// Scanner produces element catalogs from the live page. The generation
// counter is monotonic across the scanner's lifetime; every snapshot carries
// the generation that minted it.
type Scanner struct {
	driver     browser.Driver
	cfg        config.GroundingConfig
	logger     *zap.Logger
	generation atomic.Uint64
}

// NewScanner builds a scanner over the given driver.
func NewScanner(driver browser.Driver, cfg config.GroundingConfig, logger *zap.Logger) *Scanner {
	return &Scanner{
		driver: driver,
		cfg:    cfg,
		logger: logger.Named("grounding"),
	}
}

// scanResult mirrors the object returned by the in-page scan script.
type scanResult struct {
	URL              string            `json:"url"`
	Title            string            `json:"title"`
	Viewport         schemas.Viewport  `json:"viewport"`
	DevicePixelRatio float64           `json:"devicePixelRatio"`
	Elements         []schemas.Element `json:"elements"`
}

// Scan catalogs the currently visible interactive elements. A page with no
// interactive elements yields a valid, empty snapshot.
func (s *Scanner) Scan(ctx context.Context) (*schemas.Snapshot, error) {
	gen := s.generation.Add(1)

	script := fmt.Sprintf(scanScript,
		gen,
		s.cfg.MinSizePx,
		s.cfg.MaxElements,
		s.cfg.MaxCandidates,
		s.cfg.LabelMaxChars,
	)

	var result scanResult
	if err := s.driver.Evaluate(ctx, script, &result); err != nil {
		return nil, fmt.Errorf("page scan: %w", err)
	}

	snap := &schemas.Snapshot{
		Generation:       gen,
		URL:              result.URL,
		Title:            result.Title,
		Viewport:         result.Viewport,
		DevicePixelRatio: result.DevicePixelRatio,
		Elements:         result.Elements,
	}
	if snap.DevicePixelRatio <= 0 {
		snap.DevicePixelRatio = 1
	}

	s.logger.Debug("Page scanned.",
		zap.Uint64("generation", gen),
		zap.Int("elements", len(snap.Elements)),
		zap.String("url", snap.URL))
	return snap, nil
}

// SelectorFor returns the query selector that resolves a catalogued element
// in the live DOM. The generation prefix makes references from superseded
// snapshots miss instead of hitting a re-numbered element.
func SelectorFor(snapshot *schemas.Snapshot, id int) string {
	return fmt.Sprintf("[%s=%q]", tagAttribute, fmt.Sprintf("%d-%d", snapshot.Generation, id))
}

// Generation reports the latest generation minted by this scanner.
func (s *Scanner) Generation() uint64 {
	return s.generation.Load()
}
