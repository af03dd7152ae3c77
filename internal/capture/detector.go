package capture

import (
	"image"
	"math"
)

// DetectorConfig holds the calibration of the placement heuristic. The
// defaults were tuned empirically under indoor lighting and may need
// adjusting for other conditions.
type DetectorConfig struct {
	// Interior margin on each side of the guide, as a fraction of its size.
	InteriorMargin float64
	// Outer border strip thickness: max(MinBorderPx, BorderRatio*frameWidth).
	BorderRatio float64
	MinBorderPx int
	// Inner edge strip thickness: max(MinEdgeStripPx, EdgeStripRatio*frameWidth).
	EdgeStripRatio float64
	MinEdgeStripPx int
	// Corner margin skipped by inner edge strips, as a fraction of frame width.
	CornerMarginRatio float64

	FillThreshold     float64
	ContrastThreshold float64
	MinVariance       float64
	MaxVariance       float64

	MeanStep     int
	VarianceStep int
	StripStep    int
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		InteriorMargin:    0.2,
		BorderRatio:       0.025,
		MinBorderPx:       6,
		EdgeStripRatio:    0.012,
		MinEdgeStripPx:    5,
		CornerMarginRatio: 0.08,
		FillThreshold:     14,
		ContrastThreshold: 25,
		MinVariance:       100,
		MaxVariance:       12000,
		MeanStep:          4,
		VarianceStep:      8,
		StripStep:         2,
	}
}

// Edges holds one brightness value per side of the guide.
type Edges struct {
	Top, Bottom, Left, Right float64
}

func (e Edges) Mean() float64 {
	return (e.Top + e.Bottom + e.Left + e.Right) / 4
}

// DetectionSample is everything the detector measures in one frame.
type DetectionSample struct {
	Guide              Rect
	InteriorBrightness float64
	InteriorVariance   float64
	Outer              Edges
	Inner              Edges
}

func (s DetectionSample) AvgOuterBrightness() float64 {
	return s.Outer.Mean()
}

func (s DetectionSample) EdgeContrast() float64 {
	return math.Abs(s.InteriorBrightness - s.AvgOuterBrightness())
}

// FilledEdges reports, per side, whether the card reaches that guide edge.
func (s DetectionSample) FilledEdges(threshold float64) [4]bool {
	return [4]bool{
		math.Abs(s.Inner.Top-s.Outer.Top) > threshold,
		math.Abs(s.Inner.Bottom-s.Outer.Bottom) > threshold,
		math.Abs(s.Inner.Left-s.Outer.Left) > threshold,
		math.Abs(s.Inner.Right-s.Outer.Right) > threshold,
	}
}

type Detector struct {
	cfg DetectorConfig
}

func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg}
}

func pixels(ratio float64, width, min int) int {
	px := int(ratio * float64(width))
	if px < min {
		return min
	}
	return px
}

// Sample measures the guide interior, the strips just outside each guide
// edge and the strips just inside each guide edge.
func (d *Detector) Sample(f *image.RGBA) DetectionSample {
	width, height := f.Bounds().Dx(), f.Bounds().Dy()
	g := GuideRect(width, height)
	g.X += f.Bounds().Min.X
	g.Y += f.Bounds().Min.Y

	interior := SampleRegion(f, g.Inset(d.cfg.InteriorMargin, d.cfg.InteriorMargin), d.cfg.MeanStep, d.cfg.VarianceStep)

	bt := pixels(d.cfg.BorderRatio, width, d.cfg.MinBorderPx)
	step := d.cfg.StripStep
	outer := Edges{
		Top:    Brightness(f, Rect{X: g.X, Y: g.Y - bt, W: g.W, H: bt}, step),
		Bottom: Brightness(f, Rect{X: g.X, Y: g.Y + g.H, W: g.W, H: bt}, step),
		Left:   Brightness(f, Rect{X: g.X - bt, Y: g.Y, W: bt, H: g.H}, step),
		Right:  Brightness(f, Rect{X: g.X + g.W, Y: g.Y, W: bt, H: g.H}, step),
	}

	es := pixels(d.cfg.EdgeStripRatio, width, d.cfg.MinEdgeStripPx)
	m := int(d.cfg.CornerMarginRatio * float64(width))
	inner := Edges{
		Top:    Brightness(f, Rect{X: g.X + m, Y: g.Y, W: g.W - 2*m, H: es}, step),
		Bottom: Brightness(f, Rect{X: g.X + m, Y: g.Y + g.H - es, W: g.W - 2*m, H: es}, step),
		Left:   Brightness(f, Rect{X: g.X, Y: g.Y + m, W: es, H: g.H - 2*m}, step),
		Right:  Brightness(f, Rect{X: g.X + g.W - es, Y: g.Y + m, W: es, H: g.H - 2*m}, step),
	}

	return DetectionSample{
		Guide:              g,
		InteriorBrightness: interior.Mean,
		InteriorVariance:   interior.Variance,
		Outer:              outer,
		Inner:              inner,
	}
}

// Evaluate applies the contrast, variance and four-edge fill checks.
func (d *Detector) Evaluate(s DetectionSample) bool {
	if s.EdgeContrast() <= d.cfg.ContrastThreshold {
		return false
	}
	if s.InteriorVariance <= d.cfg.MinVariance || s.InteriorVariance >= d.cfg.MaxVariance {
		return false
	}
	for _, filled := range s.FilledEdges(d.cfg.FillThreshold) {
		if !filled {
			return false
		}
	}
	return true
}

// Detect reports whether a card fills the guide in f. A frame that cannot be
// sampled counts as no card.
func (d *Detector) Detect(f *image.RGBA) (detected bool) {
	defer func() {
		if r := recover(); r != nil {
			detected = false
		}
	}()
	if f == nil || f.Bounds().Empty() {
		return false
	}
	return d.Evaluate(d.Sample(f))
}
