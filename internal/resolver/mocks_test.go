package resolver

import (
	"context"
	"strings"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
)

// fakeDriver answers the scripts the resolver evaluates with plausible
// defaults, overridable per test through evalHook.
type fakeDriver struct {
	title       string
	url         string
	html        string
	screenshot  []byte
	navigations []string
	forceClicks []string
	focused     []string
	cleared     []string
	evalHook    func(expr string, out interface{}) bool
	navErr      error
}

func (f *fakeDriver) Evaluate(ctx context.Context, expr string, out interface{}) error {
	if f.evalHook != nil && f.evalHook(expr, out) {
		return nil
	}
	switch v := out.(type) {
	case *bool:
		// Tag presence probes succeed; occlusion, popup, and challenge
		// probes come back negative.
		*v = strings.Contains(expr, "!== null")
	case *string:
		*v = ""
	}
	return nil
}

func (f *fakeDriver) Navigate(ctx context.Context, url string) error {
	if f.navErr != nil {
		return f.navErr
	}
	f.navigations = append(f.navigations, url)
	f.url = url
	return nil
}

func (f *fakeDriver) CurrentURL(ctx context.Context) (string, error) { return f.url, nil }
func (f *fakeDriver) Title(ctx context.Context) (string, error)      { return f.title, nil }
func (f *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) { return f.screenshot, nil }
func (f *fakeDriver) OuterHTML(ctx context.Context) (string, error)  { return f.html, nil }
func (f *fakeDriver) Click(ctx context.Context, sel string) error    { return nil }
func (f *fakeDriver) ForceClick(ctx context.Context, sel string) error {
	f.forceClicks = append(f.forceClicks, sel)
	return nil
}
func (f *fakeDriver) Focus(ctx context.Context, sel string) error {
	f.focused = append(f.focused, sel)
	return nil
}
func (f *fakeDriver) ClearInput(ctx context.Context, sel string) error {
	f.cleared = append(f.cleared, sel)
	return nil
}
func (f *fakeDriver) WaitReady(ctx context.Context) error { return nil }
func (f *fakeDriver) Healthy(ctx context.Context) error   { return nil }
func (f *fakeDriver) Restart(ctx context.Context) error   { return nil }
func (f *fakeDriver) Close(ctx context.Context) error     { return nil }

// fakeMotor records the humanlike gestures the resolver requests.
type fakeMotor struct {
	clicks   []schemas.BBox
	hovers   []schemas.BBox
	scrolls  []float64
	typed    []typedText
	clickErr error
}

type typedText struct {
	text  string
	enter bool
}

func (m *fakeMotor) Click(ctx context.Context, box schemas.BBox) error {
	if m.clickErr != nil {
		return m.clickErr
	}
	m.clicks = append(m.clicks, box)
	return nil
}

func (m *fakeMotor) Hover(ctx context.Context, box schemas.BBox) error {
	m.hovers = append(m.hovers, box)
	return nil
}

func (m *fakeMotor) ScrollBy(ctx context.Context, deltaY float64) error {
	m.scrolls = append(m.scrolls, deltaY)
	return nil
}

func (m *fakeMotor) TypeText(ctx context.Context, text string, pressEnter bool) error {
	m.typed = append(m.typed, typedText{text: text, enter: pressEnter})
	return nil
}

func (m *fakeMotor) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error { return nil }

// fakeGrounder serves a fixed sequence of snapshots on re-scan.
type fakeGrounder struct {
	snapshots []*schemas.Snapshot
	scans     int
}

func (g *fakeGrounder) Scan(ctx context.Context) (*schemas.Snapshot, error) {
	g.scans++
	snap := g.snapshots[0]
	if len(g.snapshots) > 1 {
		g.snapshots = g.snapshots[1:]
	}
	return snap, nil
}

// fakeOracle replays scripted locate answers.
type fakeOracle struct {
	locateIDs  []int
	locateErrs []error
	calls      int
	extract    string
}

func (o *fakeOracle) Locate(ctx context.Context, screenshot []byte, description string, snapshot *schemas.Snapshot) (int, error) {
	i := o.calls
	o.calls++
	if i < len(o.locateErrs) && o.locateErrs[i] != nil {
		return 0, o.locateErrs[i]
	}
	if i < len(o.locateIDs) {
		return o.locateIDs[i], nil
	}
	return 0, nil
}

func (o *fakeOracle) Extract(ctx context.Context, screenshot []byte, instruction string) (string, error) {
	return o.extract, nil
}
