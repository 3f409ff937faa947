// internal/grounding/annotate.go
package grounding

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
)

var (
	boxColor       = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	labelBackColor = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	labelTextColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// AnnotateImage draws each element's bounding box and ID onto the screenshot
// and returns the result as PNG bytes. Screenshot geometry is in device
// pixels, so every box is scaled by the snapshot's device pixel ratio before
// drawing.
func AnnotateImage(screenshot []byte, snapshot *schemas.Snapshot) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	for _, el := range snapshot.Elements {
		box := el.BBox.Scale(snapshot.DevicePixelRatio)
		drawRect(canvas, box, 2)
		drawBadge(canvas, box, fmt.Sprintf("%d", el.ID))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode raster: %w", err)
	}
	return buf.Bytes(), nil
}

// Annotate renders the annotated screenshot and writes it under dir, named
// after the snapshot's generation.
func Annotate(screenshot []byte, snapshot *schemas.Snapshot, dir string) (string, error) {
	raster, err := AnnotateImage(screenshot, snapshot)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("raster dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("scan-%d.png", snapshot.Generation))
	if err := os.WriteFile(path, raster, 0o644); err != nil {
		return "", fmt.Errorf("write raster: %w", err)
	}
	return path, nil
}

// drawRect strokes the box outline, clipped to the canvas bounds.
func drawRect(canvas *image.RGBA, box schemas.BBox, thickness int) {
	x1, y1 := int(box.X), int(box.Y)
	x2, y2 := int(box.X+box.Width), int(box.Y+box.Height)
	bounds := canvas.Bounds()

	setClipped := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			canvas.SetRGBA(x, y, boxColor)
		}
	}

	for t := 0; t < thickness; t++ {
		for x := x1; x <= x2; x++ {
			setClipped(x, y1+t)
			setClipped(x, y2-t)
		}
		for y := y1; y <= y2; y++ {
			setClipped(x1+t, y)
			setClipped(x2-t, y)
		}
	}
}

// drawBadge paints the element ID on a filled tab at the box's top-left
// corner, moved inside the canvas when the box hugs an edge.
func drawBadge(canvas *image.RGBA, box schemas.BBox, text string) {
	face := basicfont.Face7x13
	textW := len(text) * face.Advance
	badgeW := textW + 6
	badgeH := face.Height + 4

	bx := int(box.X)
	by := int(box.Y) - badgeH
	if by < canvas.Bounds().Min.Y {
		by = int(box.Y)
	}
	if bx+badgeW > canvas.Bounds().Max.X {
		bx = canvas.Bounds().Max.X - badgeW
	}
	if bx < canvas.Bounds().Min.X {
		bx = canvas.Bounds().Min.X
	}

	badge := image.Rect(bx, by, bx+badgeW, by+badgeH)
	draw.Draw(canvas, badge.Intersect(canvas.Bounds()), &image.Uniform{C: labelBackColor}, image.Point{}, draw.Src)

	d := font.Drawer{
		Dst:  canvas,
		Src:  &image.Uniform{C: labelTextColor},
		Face: face,
		Dot:  fixed.P(bx+3, by+badgeH-4),
	}
	d.DrawString(text)
}
