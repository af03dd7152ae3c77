package utils

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmptyFrame    = errors.New("empty frame")
	ErrFrameTooLarge = errors.New("frame size exceeds limit")
	ErrNotAnImage    = errors.New("frame is not an image")
)

type IUtils interface {
	NewULIDFromTimestamp(t time.Time) (string, error)
	ValidateFrame(data []byte) error
	DecodeFrame(data []byte) (*image.RGBA, error)
}

type utils struct {
	maxFrameSize int
}

func New() IUtils {
	return &utils{
		maxFrameSize: 5 * 1024 * 1024,
	}
}

func (u *utils) NewULIDFromTimestamp(t time.Time) (string, error) {
	ms := ulid.Timestamp(t)
	entropy := ulid.Monotonic(rand.Reader, 0)

	id, err := ulid.New(ms, entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// ValidateFrame checks size and sniffs the content type of one video frame.
func (u *utils) ValidateFrame(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyFrame
	}

	if len(data) > u.maxFrameSize {
		return ErrFrameTooLarge
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return ErrNotAnImage
	}

	return nil
}

// DecodeFrame decodes a JPEG, PNG or WebP frame into an RGBA buffer.
func (u *utils) DecodeFrame(data []byte) (*image.RGBA, error) {
	if err := u.ValidateFrame(data); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba, nil
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}
