package browser

import (
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
)

func TestBuildAllocatorOptionsExtendsDefaults(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	s := &Session{cfg: cfg, logger: zap.NewNop()}

	opts := s.buildAllocatorOptions()

	// The chromedp defaults must survive; the session layers its own flags
	// (automation banner off, headless, window size...) on top.
	assert.Greater(t, len(opts), len(chromedp.DefaultExecAllocatorOptions))
}

func TestBuildAllocatorOptionsAddsUserFlags(t *testing.T) {
	base := config.NewDefaultConfig().Browser
	base.UserAgent = ""
	base.Args = nil
	baseline := (&Session{cfg: base, logger: zap.NewNop()}).buildAllocatorOptions()

	cfg := base
	cfg.UserAgent = "sirius-test-agent"
	cfg.Args = []string{"--lang=en-US", "incognito"}
	opts := (&Session{cfg: cfg, logger: zap.NewNop()}).buildAllocatorOptions()

	// One option for the user agent, one per extra arg.
	assert.Equal(t, len(baseline)+3, len(opts))
}
