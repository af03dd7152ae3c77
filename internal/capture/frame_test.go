package capture

import "testing"

func TestGuideRectProportions(t *testing.T) {
	sizes := [][2]int{
		{400, 700}, {720, 1280}, {1080, 1920}, {640, 480}, {63, 88}, {1, 1}, {315, 500}, {1001, 333},
	}

	for _, sz := range sizes {
		w, h := sz[0], sz[1]
		g := GuideRect(w, h)

		wantW := w * 6 / 10
		if g.W != wantW {
			t.Errorf("%dx%d: guide width = %d, want %d", w, h, g.W, wantW)
		}
		if wantH := wantW * 88 / 63; g.H != wantH {
			t.Errorf("%dx%d: guide height = %d, want %d", w, h, g.H, wantH)
		}
		// Centered within integer rounding.
		if d := 2*g.X + g.W - w; d < -1 || d > 1 {
			t.Errorf("%dx%d: guide not centered horizontally: x=%d w=%d", w, h, g.X, g.W)
		}
		if d := 2*g.Y + g.H - h; d < -1 || d > 1 {
			t.Errorf("%dx%d: guide not centered vertically: y=%d h=%d", w, h, g.Y, g.H)
		}
	}
}

func TestGuideRectPortrait(t *testing.T) {
	g := GuideRect(720, 1280)
	if g.H <= g.W {
		t.Fatalf("guide %+v is not portrait", g)
	}
}

func TestRectInset(t *testing.T) {
	r := Rect{X: 10, Y: 20, W: 100, H: 200}.Inset(0.2, 0.2)
	want := Rect{X: 30, Y: 60, W: 60, H: 120}
	if r != want {
		t.Fatalf("inset = %+v, want %+v", r, want)
	}
}
