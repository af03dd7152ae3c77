package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"cardscan/internal/entity"
	"github.com/oklog/ulid/v2"
	"golang.org/x/image/draw"
	"golang.org/x/net/context"
)

// Uploader is the external card service.
type Uploader interface {
	UploadCardBack(ctx context.Context, gameID string, img entity.CardImage) (entity.UploadedCard, error)
	UploadCardFront(ctx context.Context, req entity.FrontUpload) (entity.UploadedCard, error)
}

// CaptureResult is produced once per stabilizer trigger.
type CaptureResult struct {
	Image entity.CardImage
	Phase Phase
}

const DefaultJPEGQuality = 92

type Pipeline struct {
	uploader Uploader
	quality  int
	maxWidth int
}

// NewPipeline builds a pipeline encoding at quality. Captures wider than
// maxWidth are scaled down first; zero keeps the native crop size.
func NewPipeline(uploader Uploader, quality, maxWidth int) *Pipeline {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Pipeline{uploader: uploader, quality: quality, maxWidth: maxWidth}
}

// Crop copies exactly the guide rectangle of frame into a new image.
func Crop(frame *image.RGBA, r Rect) *image.RGBA {
	b := r.Bounds().Intersect(frame.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), frame, b.Min, draw.Src)
	return out
}

// Capture crops the guide out of frame and encodes it. It copies the pixels,
// so frame may be reused as soon as it returns.
func (p *Pipeline) Capture(frame *image.RGBA, side entity.CardSide) (entity.CardImage, error) {
	g := GuideRect(frame.Bounds().Dx(), frame.Bounds().Dy())
	g.X += frame.Bounds().Min.X
	g.Y += frame.Bounds().Min.Y

	var img image.Image = Crop(frame, g)
	if img.Bounds().Empty() {
		return entity.CardImage{}, ErrEmptyCapture
	}
	if p.maxWidth > 0 && img.Bounds().Dx() > p.maxWidth {
		img = scale(img, p.maxWidth)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
		return entity.CardImage{}, fmt.Errorf("encode capture: %w", err)
	}

	return entity.CardImage{
		Data:        buf.Bytes(),
		ContentType: "image/jpeg",
		Filename:    fmt.Sprintf("card-%s-%s.jpg", side, ulid.Make().String()),
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
	}, nil
}

func scale(src image.Image, width int) image.Image {
	b := src.Bounds()
	height := b.Dy() * width / b.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func (p *Pipeline) UploadBack(ctx context.Context, gameID string, img entity.CardImage) (entity.UploadedCard, error) {
	card, err := p.uploader.UploadCardBack(ctx, gameID, img)
	if err != nil {
		return entity.UploadedCard{}, fmt.Errorf("upload card back: %w", err)
	}
	return card, nil
}

func (p *Pipeline) UploadFront(ctx context.Context, req entity.FrontUpload) (entity.UploadedCard, error) {
	card, err := p.uploader.UploadCardFront(ctx, req)
	if err != nil {
		return entity.UploadedCard{}, fmt.Errorf("upload card front: %w", err)
	}
	return card, nil
}

// UploadPair uploads back first and then front referencing it. A front that
// already carries a CardBackID reuses that back. The back id is returned
// even when the front upload fails.
func (p *Pipeline) UploadPair(ctx context.Context, front entity.FrontUpload, back entity.CardImage) (entity.UploadedCard, string, error) {
	if front.CardBackID == "" {
		backCard, err := p.UploadBack(ctx, front.GameID, back)
		if err != nil {
			return entity.UploadedCard{}, "", err
		}
		front.CardBackID = backCard.ID
	}
	card, err := p.UploadFront(ctx, front)
	return card, front.CardBackID, err
}
