package schemas

// BBox is an axis-aligned bounding box in CSS pixels, already clamped to the
// viewport by the scanner.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box.
func (b BBox) Center() (float64, float64) {
	return b.X + b.Width/2.0, b.Y + b.Height/2.0
}

// Scale returns a copy of the box with every coordinate multiplied by factor.
// Used to convert CSS pixels to device pixels when drawing on a raster.
func (b BBox) Scale(factor float64) BBox {
	return BBox{
		X:      b.X * factor,
		Y:      b.Y * factor,
		Width:  b.Width * factor,
		Height: b.Height * factor,
	}
}

// Element is one interactive page element as reported by a scan. The ID is
// scoped to the Snapshot that produced it and is meaningless across Snapshots.
type Element struct {
	ID    int    `json:"id"`
	Role  string `json:"role"`
	Tag   string `json:"tag"`
	Label string `json:"label"`
	BBox  BBox   `json:"bbox"`
	// Attributes carries the type-specific subset the planner needs
	// (href, placeholder, value, name, alt).
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Snapshot is an immutable point-in-time catalog of a page's interactive
// elements. Element IDs are unique and sequential from 1 within one Snapshot.
// Generation increments on every re-scan; any element reference must carry its
// generation and is stale if it does not match the current Snapshot's.
type Snapshot struct {
	Generation       uint64    `json:"generation"`
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	Viewport         Viewport  `json:"viewport"`
	DevicePixelRatio float64   `json:"devicePixelRatio"`
	Elements         []Element `json:"elements"`
	// RasterPath is the on-disk location of the annotated screenshot, if one
	// was produced for this scan.
	RasterPath string `json:"rasterPath,omitempty"`
}

// ElementByID returns the element with the given scan-scoped ID, or false if
// the Snapshot does not contain it.
func (s *Snapshot) ElementByID(id int) (Element, bool) {
	for _, el := range s.Elements {
		if el.ID == id {
			return el, true
		}
	}
	return Element{}, false
}

// ElementRef is a generation-qualified handle to one element of a Snapshot.
type ElementRef struct {
	Generation uint64 `json:"generation"`
	ID         int    `json:"id"`
}

// Matches reports whether the reference belongs to the given Snapshot.
func (r ElementRef) Matches(s *Snapshot) bool {
	return s != nil && r.Generation == s.Generation
}
