package capture

import (
	"errors"
	"image"
)

// ReadyState mirrors the readiness levels of a media element.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

var ErrFrameUnavailable = errors.New("frame not available")

// FrameProvider is a live video source. DrawInto copies the current frame
// into dst, which the caller sizes to Width x Height.
type FrameProvider interface {
	ReadyState() ReadyState
	Width() int
	Height() int
	DrawInto(dst *image.RGBA) error
}

// Stream is an acquired camera. Stop releases every track of the stream.
type Stream interface {
	FrameProvider
	Stop()
}

// Rect is an integer rectangle in frame pixel coordinates.
type Rect struct {
	X, Y, W, H int
}

func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

func (r Rect) Bounds() image.Rectangle {
	if r.Empty() {
		return image.Rectangle{}
	}
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Inset shrinks r by fx of its width and fy of its height on each side.
func (r Rect) Inset(fx, fy float64) Rect {
	dx := int(float64(r.W) * fx)
	dy := int(float64(r.H) * fy)
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W - 2*dx, H: r.H - 2*dy}
}

// CardAspectRatio is width over height of a standard poker card (63x88mm).
const (
	cardWidthMM  = 63
	cardHeightMM = 88

	CardAspectRatio = float64(cardWidthMM) / float64(cardHeightMM)

	guideWidthNum = 3
	guideWidthDen = 5
)

// GuideRect returns the portrait card outline centered in a width x height
// frame. Its width is 60% of the frame width.
func GuideRect(width, height int) Rect {
	// Integer forms of floor(0.6*width) and floor(w / (63/88)).
	w := width * guideWidthNum / guideWidthDen
	h := w * cardHeightMM / cardWidthMM
	return Rect{
		X: (width - w) / 2,
		Y: (height - h) / 2,
		W: w,
		H: h,
	}
}
