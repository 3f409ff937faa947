package resolver

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/vlm"
)

func testSnapshot() *schemas.Snapshot {
	return &schemas.Snapshot{
		Generation:       1,
		URL:              "https://shop.example.com",
		Viewport:         schemas.Viewport{Width: 1280, Height: 800},
		DevicePixelRatio: 1,
		Elements: []schemas.Element{
			{ID: 1, Role: "link", Tag: "a", Label: "Home", BBox: schemas.BBox{X: 10, Y: 10, Width: 60, Height: 20}},
			{ID: 2, Role: "button", Tag: "button", Label: "Add to cart", BBox: schemas.BBox{X: 500, Y: 300, Width: 120, Height: 40}},
			{ID: 3, Role: "textbox", Tag: "input", Label: "Search products", BBox: schemas.BBox{X: 200, Y: 40, Width: 300, Height: 32},
				Attributes: map[string]string{"placeholder": "Search products"}},
		},
	}
}

type fixture struct {
	driver   *fakeDriver
	motor    *fakeMotor
	grounder *fakeGrounder
	oracle   *fakeOracle
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.NewDefaultConfig().Resolver
	cfg.CaptchaPause = 10 * time.Millisecond

	f := &fixture{
		driver:   &fakeDriver{title: "Shop", url: "https://shop.example.com", screenshot: tinyPNG(t)},
		motor:    &fakeMotor{},
		grounder: &fakeGrounder{snapshots: []*schemas.Snapshot{testSnapshot()}},
		oracle:   &fakeOracle{},
	}
	f.resolver = New(f.driver, f.motor, f.grounder, f.oracle, cfg, zap.NewNop())
	return f
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1300, 820))))
	return buf.Bytes()
}

func TestClickByExplicitID(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionClick, Description: "Click the add to cart button", TargetID: 2},
		testSnapshot())
	require.NoError(t, err)

	assert.Contains(t, outcome, "clicked element 2")
	assert.Contains(t, outcome, "resolved via id")
	require.Len(t, f.motor.clicks, 1)
	assert.Equal(t, 500.0, f.motor.clicks[0].X)
}

func TestClickByBracketedID(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionClick, Description: "Click [E2] to add the item"},
		testSnapshot())
	require.NoError(t, err)
	assert.Contains(t, outcome, "clicked element 2")
}

func TestClickByQuotedText(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionClick, Description: `Click the "Add to cart" button`},
		testSnapshot())
	require.NoError(t, err)
	assert.Contains(t, outcome, "clicked element 2")
	assert.Contains(t, outcome, "resolved via text")
}

func TestClickTextMatchIsCaseInsensitiveSubstring(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionClick, Description: `Click "ADD TO"`},
		testSnapshot())
	require.NoError(t, err)
	assert.Contains(t, outcome, "clicked element 2")
}

func TestClickFallsBackToVisionWithScrollRetry(t *testing.T) {
	f := newFixture(t)
	f.oracle.locateErrs = []error{vlm.ErrNotFound, nil}
	f.oracle.locateIDs = []int{0, 1}

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionClick, Description: "Click the company logo in the corner"},
		testSnapshot())
	require.NoError(t, err)

	assert.Contains(t, outcome, "clicked element 1")
	assert.Contains(t, outcome, "resolved via vision")
	assert.Equal(t, 2, f.oracle.calls, "oracle must be retried exactly once")
	assert.Equal(t, 1, f.grounder.scans, "retry must re-scan after scrolling")
	require.Len(t, f.motor.scrolls, 1)
	assert.Positive(t, f.motor.scrolls[0])
}

func TestClickNoTargetBecomesOutcome(t *testing.T) {
	f := newFixture(t)
	f.oracle.locateErrs = []error{vlm.ErrNotFound, vlm.ErrNotFound}

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionClick, Description: "Click the imaginary banner"},
		testSnapshot())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(outcome, "no target found"), outcome)
	rec := schemas.ExecutionRecord{Outcome: outcome}
	assert.True(t, rec.Failed())
}

func TestClickOccludedUsesForcedClick(t *testing.T) {
	f := newFixture(t)
	f.driver.evalHook = func(expr string, out interface{}) bool {
		if strings.Contains(expr, "elementFromPoint") {
			*(out.(*bool)) = true
			return true
		}
		return false
	}

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionClick, TargetID: 2, Description: "Click add to cart"},
		testSnapshot())
	require.NoError(t, err)

	assert.Contains(t, outcome, "forced click")
	assert.Empty(t, f.motor.clicks)
	require.Len(t, f.driver.forceClicks, 1)
	assert.Contains(t, f.driver.forceClicks[0], "1-2")
}

func TestHover(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionHover, TargetID: 1, Description: "Hover over Home"},
		testSnapshot())
	require.NoError(t, err)
	assert.Contains(t, outcome, "hovered over element 1")
	assert.Len(t, f.motor.hovers, 1)
}

func TestTypeClearsThenTypes(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionType, TargetID: 3, Text: "wool socks",
			Description: "Type the query into the search box"},
		testSnapshot())
	require.NoError(t, err)

	assert.Contains(t, outcome, `typed "wool socks" into element 3`)
	require.Len(t, f.driver.cleared, 1)
	require.Len(t, f.motor.typed, 1)
	assert.Equal(t, "wool socks", f.motor.typed[0].text)
	assert.True(t, f.motor.typed[0].enter, "a search field submits with Enter")
}

func TestTypeWithoutSubmitKeyword(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionType, TargetID: 3, Text: "hello",
			Description: "Fill in the promo field"},
		testSnapshot())
	require.NoError(t, err)
	require.Len(t, f.motor.typed, 1)
	assert.False(t, f.motor.typed[0].enter)
}

func TestTypeWithoutTextFails(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionType, TargetID: 3, Description: "Type into the search box"},
		testSnapshot())
	require.NoError(t, err)
	assert.True(t, schemas.ExecutionRecord{Outcome: outcome}.Failed())
}

func TestScrollDirections(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionScroll, Description: "Scroll down to see more"},
		testSnapshot())
	require.NoError(t, err)
	assert.Contains(t, outcome, "scrolled down")

	outcome, err = f.resolver.Execute(context.Background(),
		schemas.Step{ID: 2, Action: schemas.ActionScroll, Description: "Scroll up to the header"},
		testSnapshot())
	require.NoError(t, err)
	assert.Contains(t, outcome, "scrolled up")

	require.Len(t, f.motor.scrolls, 2)
	assert.Positive(t, f.motor.scrolls[0])
	assert.Negative(t, f.motor.scrolls[1])
}

func TestExtractPrefersDOMText(t *testing.T) {
	f := newFixture(t)
	f.oracle.extract = "vision answer"
	f.driver.evalHook = func(expr string, out interface{}) bool {
		if strings.Contains(expr, "innerText") {
			*(out.(*string)) = "$42.17"
			return true
		}
		return false
	}

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionExtract, TargetID: 2, Description: "Read the add to cart button"},
		testSnapshot())
	require.NoError(t, err)
	assert.Contains(t, outcome, "$42.17")
	assert.NotContains(t, outcome, "vision answer")
}

func TestExtractReadsPageTextBeforeVision(t *testing.T) {
	f := newFixture(t)
	f.oracle.extract = "vision answer"
	f.oracle.locateErrs = []error{vlm.ErrNotFound, vlm.ErrNotFound}
	f.driver.html = "<html><body><h1>Order total: $42.17</h1></body></html>"

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionExtract, Description: "Read the order total"},
		testSnapshot())
	require.NoError(t, err)
	assert.Contains(t, outcome, "page text")
	assert.Contains(t, outcome, "$42.17")
	assert.NotContains(t, outcome, "vision answer")
}

func TestExtractFallsBackToVision(t *testing.T) {
	f := newFixture(t)
	f.oracle.extract = "the page shows a red banner"
	f.oracle.locateErrs = []error{vlm.ErrNotFound, vlm.ErrNotFound}

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionExtract, Description: "What color is the banner?"},
		testSnapshot())
	require.NoError(t, err)
	assert.Contains(t, outcome, "red banner")
}

func TestCaptchaGuardPausesStep(t *testing.T) {
	f := newFixture(t)
	f.driver.title = "Are you a robot? Verify you are human"

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionClick, TargetID: 1, Description: "Click Home"},
		testSnapshot())
	require.NoError(t, err)

	assert.Contains(t, outcome, "verification challenge")
	assert.Empty(t, f.motor.clicks, "the step must not run behind a challenge")
}

func TestCaptchaGuardTriesConsentCheckboxFirst(t *testing.T) {
	f := newFixture(t)
	f.driver.title = "Are you a robot? Verify you are human"
	f.driver.evalHook = func(expr string, out interface{}) bool {
		if strings.Contains(expr, "recaptcha-checkbox") {
			*(out.(*bool)) = true
			return true
		}
		return false
	}

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionClick, TargetID: 1, Description: "Click Home"},
		testSnapshot())
	require.NoError(t, err)

	assert.Contains(t, outcome, "consent checkbox was clicked")
	assert.NotContains(t, outcome, "manual resolution")
	assert.Empty(t, f.motor.clicks)
}

func TestNavigateOutcomeWording(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionNavigate, URL: "https://example.com"},
		testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "Navigated to https://example.com", outcome)
}

func TestNavigateSearchFallbackFlagsNextStep(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionNavigate, Description: "best hiking boots reviews"},
		testSnapshot())
	require.NoError(t, err)

	assert.Contains(t, outcome, "next step must click")
	require.Len(t, f.driver.navigations, 1)
	assert.Contains(t, f.driver.navigations[0], "duckduckgo.com")
}

func TestSearchAction(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionSearch, Text: "weather in oslo"},
		testSnapshot())
	require.NoError(t, err)
	assert.Contains(t, outcome, "next step must click")
	assert.Contains(t, f.driver.navigations[0], "weather+in+oslo")
}

func TestAskUser(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.resolver.Execute(context.Background(),
		schemas.Step{ID: 1, Action: schemas.ActionAskUser, Description: "Which shipping option should I pick?"},
		testSnapshot())
	require.NoError(t, err)
	assert.Contains(t, outcome, "user input needed")
}

func TestResolveDestination(t *testing.T) {
	engine := "https://duckduckgo.com/?q="
	cases := []struct {
		name     string
		in       string
		want     string
		isSearch bool
	}{
		{"full url", "https://example.com/page", "https://example.com/page", false},
		{"trailing punctuation", `Go to "https://example.com/page".`, "https://example.com/page", false},
		{"named site", "google", "https://www.google.com", false},
		{"named site with suffix", "open youtube.com", "https://www.youtube.com", false},
		{"bare domain", "news.ycombinator.com", "https://news.ycombinator.com", false},
		{"domain with path", "example.org/docs", "https://example.org/docs", false},
		{"sentence falls back to search", "cheap flights to lisbon", engine + "cheap+flights+to+lisbon", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, isSearch := ResolveDestination(tc.in, engine)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.isSearch, isSearch)
		})
	}
}
