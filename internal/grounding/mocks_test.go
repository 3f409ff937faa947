package grounding

import (
	"context"

	jsoniter "github.com/json-iterator/go"
)

// fakeDriver serves canned evaluate results and page HTML. Only the methods
// the scanner touches do anything useful.
type fakeDriver struct {
	evalJSON string
	evalErr  error
	html     string
	scripts  []string
}

func (f *fakeDriver) Evaluate(ctx context.Context, expression string, out interface{}) error {
	f.scripts = append(f.scripts, expression)
	if f.evalErr != nil {
		return f.evalErr
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(f.evalJSON, out)
}

func (f *fakeDriver) OuterHTML(ctx context.Context) (string, error) { return f.html, nil }

func (f *fakeDriver) Navigate(ctx context.Context, url string) error   { return nil }
func (f *fakeDriver) CurrentURL(ctx context.Context) (string, error)   { return "", nil }
func (f *fakeDriver) Title(ctx context.Context) (string, error)        { return "", nil }
func (f *fakeDriver) Screenshot(ctx context.Context) ([]byte, error)   { return nil, nil }
func (f *fakeDriver) Click(ctx context.Context, sel string) error      { return nil }
func (f *fakeDriver) ForceClick(ctx context.Context, sel string) error { return nil }
func (f *fakeDriver) Focus(ctx context.Context, sel string) error      { return nil }
func (f *fakeDriver) ClearInput(ctx context.Context, sel string) error { return nil }
func (f *fakeDriver) WaitReady(ctx context.Context) error              { return nil }
func (f *fakeDriver) Healthy(ctx context.Context) error                { return nil }
func (f *fakeDriver) Restart(ctx context.Context) error                { return nil }
func (f *fakeDriver) Close(ctx context.Context) error                  { return nil }
