// internal/browser/decorator.go
package browser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// instrumentedDriver wraps a Driver and logs every outward call with its
// outcome. It implements the full capability surface explicitly, so adding a
// method to Driver breaks the build here instead of silently passing through.
type instrumentedDriver struct {
	inner  Driver
	logger *zap.Logger
}

// WithLogging decorates the driver with debug-level call tracing.
func WithLogging(inner Driver, logger *zap.Logger) Driver {
	return &instrumentedDriver{inner: inner, logger: logger.Named("driver")}
}

func (d *instrumentedDriver) trace(op string, err error, fields ...zap.Field) {
	if err != nil {
		d.logger.Debug("Driver call failed.", append(fields, zap.String("op", op), zap.Error(err))...)
		return
	}
	d.logger.Debug("Driver call completed.", append(fields, zap.String("op", op))...)
}

func (d *instrumentedDriver) Navigate(ctx context.Context, url string) error {
	err := d.inner.Navigate(ctx, url)
	d.trace("navigate", err, zap.String("url", url))
	return err
}

func (d *instrumentedDriver) CurrentURL(ctx context.Context) (string, error) {
	return d.inner.CurrentURL(ctx)
}

func (d *instrumentedDriver) Title(ctx context.Context) (string, error) {
	return d.inner.Title(ctx)
}

func (d *instrumentedDriver) Screenshot(ctx context.Context) ([]byte, error) {
	buf, err := d.inner.Screenshot(ctx)
	d.trace("screenshot", err, zap.Int("bytes", len(buf)))
	return buf, err
}

func (d *instrumentedDriver) Evaluate(ctx context.Context, expression string, out interface{}) error {
	err := d.inner.Evaluate(ctx, expression, out)
	d.trace("evaluate", err, zap.Int("script_len", len(expression)))
	return err
}

func (d *instrumentedDriver) OuterHTML(ctx context.Context) (string, error) {
	return d.inner.OuterHTML(ctx)
}

func (d *instrumentedDriver) Click(ctx context.Context, selector string) error {
	err := d.inner.Click(ctx, selector)
	d.trace("click", err, zap.String("selector", selector))
	return err
}

func (d *instrumentedDriver) ForceClick(ctx context.Context, selector string) error {
	err := d.inner.ForceClick(ctx, selector)
	d.trace("force_click", err, zap.String("selector", selector))
	return err
}

func (d *instrumentedDriver) Focus(ctx context.Context, selector string) error {
	err := d.inner.Focus(ctx, selector)
	d.trace("focus", err, zap.String("selector", selector))
	return err
}

func (d *instrumentedDriver) ClearInput(ctx context.Context, selector string) error {
	err := d.inner.ClearInput(ctx, selector)
	d.trace("clear_input", err, zap.String("selector", selector))
	return err
}

func (d *instrumentedDriver) WaitReady(ctx context.Context) error {
	return d.inner.WaitReady(ctx)
}

func (d *instrumentedDriver) Healthy(ctx context.Context) error {
	return d.inner.Healthy(ctx)
}

func (d *instrumentedDriver) Restart(ctx context.Context) error {
	err := d.inner.Restart(ctx)
	d.trace("restart", err)
	return err
}

func (d *instrumentedDriver) Close(ctx context.Context) error {
	return d.inner.Close(ctx)
}

// confirmingDriver gates mutating calls behind an interactive yes/no prompt.
// Read-only calls pass through untouched.
type confirmingDriver struct {
	inner  Driver
	in     *bufio.Reader
	out    io.Writer
	logger *zap.Logger
}

// WithConfirmation decorates the driver so that every state-changing call
// must be approved on the terminal first. Declined calls return a refusal
// error instead of touching the page.
func WithConfirmation(inner Driver, in io.Reader, out io.Writer, logger *zap.Logger) Driver {
	return &confirmingDriver{
		inner:  inner,
		in:     bufio.NewReader(in),
		out:    out,
		logger: logger.Named("confirm"),
	}
}

// ErrDeclined is returned when the operator refuses a gated call.
var ErrDeclined = fmt.Errorf("operator declined the action")

func (d *confirmingDriver) approve(op, detail string) error {
	fmt.Fprintf(d.out, "Allow %s %s? [y/N] ", op, detail)
	line, err := d.in.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("confirmation prompt: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	if answer != "y" && answer != "yes" {
		d.logger.Info("Action declined by operator.", zap.String("op", op))
		return fmt.Errorf("%w: %s", ErrDeclined, op)
	}
	return nil
}

func (d *confirmingDriver) Navigate(ctx context.Context, url string) error {
	if err := d.approve("navigate to", url); err != nil {
		return err
	}
	return d.inner.Navigate(ctx, url)
}

func (d *confirmingDriver) CurrentURL(ctx context.Context) (string, error) {
	return d.inner.CurrentURL(ctx)
}

func (d *confirmingDriver) Title(ctx context.Context) (string, error) {
	return d.inner.Title(ctx)
}

func (d *confirmingDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return d.inner.Screenshot(ctx)
}

func (d *confirmingDriver) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return d.inner.Evaluate(ctx, expression, out)
}

func (d *confirmingDriver) OuterHTML(ctx context.Context) (string, error) {
	return d.inner.OuterHTML(ctx)
}

func (d *confirmingDriver) Click(ctx context.Context, selector string) error {
	if err := d.approve("click", selector); err != nil {
		return err
	}
	return d.inner.Click(ctx, selector)
}

func (d *confirmingDriver) ForceClick(ctx context.Context, selector string) error {
	if err := d.approve("force-click", selector); err != nil {
		return err
	}
	return d.inner.ForceClick(ctx, selector)
}

func (d *confirmingDriver) Focus(ctx context.Context, selector string) error {
	return d.inner.Focus(ctx, selector)
}

func (d *confirmingDriver) ClearInput(ctx context.Context, selector string) error {
	if err := d.approve("clear input", selector); err != nil {
		return err
	}
	return d.inner.ClearInput(ctx, selector)
}

func (d *confirmingDriver) WaitReady(ctx context.Context) error {
	return d.inner.WaitReady(ctx)
}

func (d *confirmingDriver) Healthy(ctx context.Context) error {
	return d.inner.Healthy(ctx)
}

func (d *confirmingDriver) Restart(ctx context.Context) error {
	if err := d.approve("restart", "browser"); err != nil {
		return err
	}
	return d.inner.Restart(ctx)
}

func (d *confirmingDriver) Close(ctx context.Context) error {
	return d.inner.Close(ctx)
}
