package scannerService

import (
	"fmt"
	"image"
	"sync"
	"time"

	"cardscan/internal/api/scanner"
	"cardscan/internal/capture"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/net/context"
)

const DefaultCameraStartTimeout = 15 * time.Second

// remoteCamera is a camera living on the host screen. Opening it asks the
// client to start streaming and waits for camera_ready or camera_error;
// frames then arrive as binary websocket messages.
type remoteCamera struct {
	sender  Sender
	timeout time.Duration
	log     *logrus.Entry

	mu      sync.Mutex
	pending *pendingOpen
	active  *remoteTrack
	nextID  uint64
	closed  bool
}

type pendingOpen struct {
	track  *remoteTrack
	result chan error
}

func newRemoteCamera(sender Sender, timeout time.Duration, log *logrus.Entry) *remoteCamera {
	if timeout <= 0 {
		timeout = DefaultCameraStartTimeout
	}
	return &remoteCamera{sender: sender, timeout: timeout, log: log}
}

func (c *remoteCamera) Open(ctx context.Context) (capture.Stream, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, scanner.ErrSessionClosed
	}
	if c.pending != nil {
		c.pending.result <- context.Canceled
	}
	c.nextID++
	p := &pendingOpen{
		track:  &remoteTrack{id: c.nextID, camera: c},
		result: make(chan error, 1),
	}
	c.pending = p
	c.mu.Unlock()

	if err := c.sender.Send(scanner.OutboundMessage{Type: scanner.MessageCameraStart}); err != nil {
		c.clearPending(p)
		return nil, fmt.Errorf("%w: %w", scanner.ErrCameraUnavailable, err)
	}
	c.log.WithField("track", p.track.id).Debug("Camera start requested")

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case err := <-p.result:
		if err != nil {
			return nil, err
		}
		return p.track, nil
	case <-timer.C:
		if c.clearPending(p) {
			return nil, scanner.ErrCameraTimeout
		}
		if err := <-p.result; err != nil {
			return nil, err
		}
		return p.track, nil
	case <-ctx.Done():
		if !c.clearPending(p) {
			if err := <-p.result; err == nil {
				p.track.Stop()
			}
		}
		return nil, ctx.Err()
	}
}

// clearPending abandons p and reports whether it was still unresolved.
func (c *remoteCamera) clearPending(p *pendingOpen) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == p {
		c.pending = nil
		return true
	}
	return false
}

// resolve completes the pending open. Callers hold c.mu.
func (c *remoteCamera) resolve(err error) bool {
	p := c.pending
	if p == nil {
		return false
	}
	c.pending = nil
	if err == nil {
		c.active = p.track
	}
	p.result <- err
	return true
}

// Ready answers camera_ready. Width and height are advisory until the first
// frame arrives.
func (c *remoteCamera) Ready(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	track := c.active
	if p := c.pending; p != nil {
		track = p.track
	}
	if track != nil {
		track.setDimensions(width, height)
	}
	c.resolve(nil)
}

func (c *remoteCamera) Failed(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reason == "" {
		reason = "camera error reported by client"
	}
	if !c.resolve(fmt.Errorf("%w: %s", scanner.ErrCameraUnavailable, reason)) {
		c.log.WithField("reason", reason).Debug("Camera error without pending open")
	}
}

// PushFrame hands the newest decoded frame to the active track. A frame
// arriving while an open is pending implies the camera is ready.
func (c *remoteCamera) PushFrame(frame *image.RGBA) bool {
	c.mu.Lock()
	if c.pending != nil {
		c.resolve(nil)
	}
	track := c.active
	c.mu.Unlock()

	if track == nil {
		return false
	}
	track.push(frame)
	return true
}

func (c *remoteCamera) release(t *remoteTrack) {
	c.mu.Lock()
	if c.active != t {
		c.mu.Unlock()
		return
	}
	c.active = nil
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	if err := c.sender.Send(scanner.OutboundMessage{Type: scanner.MessageCameraStop}); err != nil {
		c.log.WithError(err).Debug("Failed to send camera_stop")
	}
}

// Shutdown fails any pending open and drops the active track.
func (c *remoteCamera) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.resolve(scanner.ErrSessionClosed)
	c.active = nil
}

// remoteTrack is one successful open. A superseded track keeps working as a
// frame provider but its Stop no longer affects the camera.
type remoteTrack struct {
	id     uint64
	camera *remoteCamera

	mu      sync.Mutex
	frame   *image.RGBA
	width   int
	height  int
	stopped bool
}

func (t *remoteTrack) setDimensions(w, h int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frame == nil && w > 0 && h > 0 {
		t.width, t.height = w, h
	}
}

func (t *remoteTrack) push(frame *image.RGBA) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.frame = frame
	t.width = frame.Bounds().Dx()
	t.height = frame.Bounds().Dy()
}

func (t *remoteTrack) ReadyState() capture.ReadyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.stopped:
		return capture.HaveNothing
	case t.frame != nil:
		return capture.HaveEnoughData
	case t.width > 0:
		return capture.HaveMetadata
	}
	return capture.HaveNothing
}

func (t *remoteTrack) Width() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.width
}

func (t *remoteTrack) Height() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.height
}

// DrawInto copies the latest frame into dst, scaling when a frame of a new
// size arrived after dst was allocated.
func (t *remoteTrack) DrawInto(dst *image.RGBA) error {
	t.mu.Lock()
	frame := t.frame
	t.mu.Unlock()

	if frame == nil {
		return capture.ErrFrameUnavailable
	}
	if frame.Bounds().Size() == dst.Bounds().Size() {
		draw.Copy(dst, dst.Bounds().Min, frame, frame.Bounds(), draw.Src, nil)
		return nil
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, frame.Bounds(), draw.Src, nil)
	return nil
}

func (t *remoteTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.frame = nil
	t.mu.Unlock()

	t.camera.release(t)
}
