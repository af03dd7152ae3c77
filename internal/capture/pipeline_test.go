package capture

import (
	"bytes"
	"image"
	"image/jpeg"
	"strings"
	"testing"

	"cardscan/internal/entity"
	"golang.org/x/net/context"
)

func TestCropMatchesGuide(t *testing.T) {
	f := cardFrame()
	g := GuideRect(testWidth, testHeight)
	out := Crop(f, g)

	if out.Bounds().Dx() != g.W || out.Bounds().Dy() != g.H {
		t.Fatalf("crop %v, want %dx%d", out.Bounds(), g.W, g.H)
	}
	if out.RGBAAt(0, 0) != f.RGBAAt(g.X, g.Y) {
		t.Fatal("crop origin does not match guide origin")
	}
	if out.RGBAAt(g.W-1, g.H-1) != f.RGBAAt(g.X+g.W-1, g.Y+g.H-1) {
		t.Fatal("crop corner does not match guide corner")
	}
}

func TestCaptureEncodesJPEG(t *testing.T) {
	p := NewPipeline(&fakeUploader{}, 0, 0)
	img, err := p.Capture(cardFrame(), entity.CardSideFront)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	g := GuideRect(testWidth, testHeight)
	if img.Width != g.W || img.Height != g.H {
		t.Fatalf("size %dx%d, want %dx%d", img.Width, img.Height, g.W, g.H)
	}
	if img.ContentType != "image/jpeg" {
		t.Fatalf("content type %q", img.ContentType)
	}
	if !strings.HasPrefix(img.Filename, "card-front-") || !strings.HasSuffix(img.Filename, ".jpg") {
		t.Fatalf("filename %q", img.Filename)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds().Dx() != g.W || decoded.Bounds().Dy() != g.H {
		t.Fatalf("decoded %v", decoded.Bounds())
	}
}

func TestCaptureDownscales(t *testing.T) {
	p := NewPipeline(&fakeUploader{}, 80, 120)
	img, err := p.Capture(cardFrame(), entity.CardSideBack)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	g := GuideRect(testWidth, testHeight)
	if img.Width != 120 || img.Height != g.H*120/g.W {
		t.Fatalf("size %dx%d", img.Width, img.Height)
	}
	if !strings.HasPrefix(img.Filename, "card-back-") {
		t.Fatalf("filename %q", img.Filename)
	}
}

func TestCaptureEmptyFrame(t *testing.T) {
	p := NewPipeline(&fakeUploader{}, 0, 0)
	if _, err := p.Capture(image.NewRGBA(image.Rect(0, 0, 1, 1)), entity.CardSideFront); err != ErrEmptyCapture {
		t.Fatalf("err = %v, want ErrEmptyCapture", err)
	}
}

func TestUploadPairReferencesBack(t *testing.T) {
	up := &fakeUploader{}
	p := NewPipeline(up, 0, 0)
	card, backID, err := p.UploadPair(context.Background(), entity.FrontUpload{GameID: "g"}, entity.CardImage{})
	if err != nil {
		t.Fatalf("upload pair: %v", err)
	}
	if card.ID != "card-1" || backID != "back-1" {
		t.Fatalf("card id %q, back id %q", card.ID, backID)
	}
	if len(up.calls) != 2 || up.calls[0].kind != entity.CardSideBack || up.calls[1].kind != entity.CardSideFront {
		t.Fatalf("calls %+v", up.calls)
	}
	if up.calls[1].front.CardBackID != "back-1" {
		t.Fatalf("front card back id %q", up.calls[1].front.CardBackID)
	}
}

func TestUploadPairStopsOnBackFailure(t *testing.T) {
	up := &fakeUploader{backErr: errNetwork}
	p := NewPipeline(up, 0, 0)
	if _, _, err := p.UploadPair(context.Background(), entity.FrontUpload{GameID: "g"}, entity.CardImage{}); err == nil {
		t.Fatal("expected error")
	}
	if up.count(entity.CardSideFront) != 0 {
		t.Fatal("front uploaded after back failed")
	}
}

func TestUploadPairReusesStoredBack(t *testing.T) {
	tests := []struct {
		name       string
		frontErr   error
		cardBackID string
		wantBacks  int
		wantBackID string
	}{
		{name: "front fails after back", frontErr: errNetwork, wantBacks: 1, wantBackID: "back-1"},
		{name: "stored back", cardBackID: "back-9", wantBacks: 0, wantBackID: "back-9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUploader{frontErr: tt.frontErr}
			p := NewPipeline(up, 0, 0)
			_, backID, err := p.UploadPair(context.Background(),
				entity.FrontUpload{GameID: "g", CardBackID: tt.cardBackID}, entity.CardImage{})
			if (err != nil) != (tt.frontErr != nil) {
				t.Fatalf("err = %v", err)
			}
			if backID != tt.wantBackID {
				t.Fatalf("back id %q, want %q", backID, tt.wantBackID)
			}
			if got := up.count(entity.CardSideBack); got != tt.wantBacks {
				t.Fatalf("back uploads = %d, want %d", got, tt.wantBacks)
			}
			if up.calls[len(up.calls)-1].front.CardBackID != tt.wantBackID {
				t.Fatalf("front referenced %q", up.calls[len(up.calls)-1].front.CardBackID)
			}
		})
	}
}
