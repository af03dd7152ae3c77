package capture

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"sort"
	"strconv"
	"testing"

	"cardscan/internal/entity"
	"golang.org/x/net/context"
)

const (
	testWidth  = 400
	testHeight = 700
	background = 40
)

// manualLoop is a deterministic stand-in for EventLoop.
type manualLoop struct {
	next    FrameHandle
	pending map[FrameHandle]func()
	tasks   []func()
}

func newManualLoop() *manualLoop {
	return &manualLoop{pending: make(map[FrameHandle]func())}
}

func (m *manualLoop) RequestFrame(fn func()) FrameHandle {
	m.next++
	m.pending[m.next] = fn
	return m.next
}

func (m *manualLoop) CancelFrame(h FrameHandle) {
	delete(m.pending, h)
}

func (m *manualLoop) Dispatch(fn func()) {
	m.tasks = append(m.tasks, fn)
}

func (m *manualLoop) Drain() {
	for len(m.tasks) > 0 {
		fn := m.tasks[0]
		m.tasks = m.tasks[1:]
		fn()
	}
}

func (m *manualLoop) Tick() {
	handles := make([]FrameHandle, 0, len(m.pending))
	for h := range m.pending {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	due := m.pending
	m.pending = make(map[FrameHandle]func())
	for _, h := range handles {
		due[h]()
	}
}

func (m *manualLoop) Pending() int {
	return len(m.pending)
}

func uniformFrame(w, h int, v uint8) *image.RGBA {
	f := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(f, f.Bounds(), &image.Uniform{C: color.RGBA{R: v, G: v, B: v, A: 255}}, image.Point{}, draw.Src)
	return f
}

// paintCard fills r with grey noise in [140,220].
func paintCard(f *image.RGBA, r Rect, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			v := uint8(140 + rng.Intn(81))
			f.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
}

func cardFrame() *image.RGBA {
	f := uniformFrame(testWidth, testHeight, background)
	paintCard(f, GuideRect(testWidth, testHeight), 1)
	return f
}

func emptyFrame() *image.RGBA {
	return uniformFrame(testWidth, testHeight, background)
}

// fakeStream serves whatever frame next returns.
type fakeStream struct {
	ready   ReadyState
	next    func() *image.RGBA
	drawErr error
	draws   int
	stopped bool
}

func (f *fakeStream) ReadyState() ReadyState { return f.ready }
func (f *fakeStream) Width() int             { return testWidth }
func (f *fakeStream) Height() int            { return testHeight }
func (f *fakeStream) Stop()                  { f.stopped = true }

func (f *fakeStream) DrawInto(dst *image.RGBA) error {
	f.draws++
	if f.drawErr != nil {
		return f.drawErr
	}
	src := f.next()
	draw.Draw(dst, dst.Bounds(), src, image.Point{}, draw.Src)
	return nil
}

type fakeCamera struct {
	err     error
	opens   int
	frame   *image.RGBA
	streams []*fakeStream
}

func (c *fakeCamera) Open(ctx context.Context) (Stream, error) {
	c.opens++
	if c.err != nil {
		return nil, c.err
	}
	s := &fakeStream{ready: HaveEnoughData, next: func() *image.RGBA { return c.frame }}
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *fakeCamera) active() *fakeStream {
	for _, s := range c.streams {
		if !s.stopped {
			return s
		}
	}
	return nil
}

type uploadCall struct {
	kind   entity.CardSide
	gameID string
	front  entity.FrontUpload
	back   entity.CardImage
}

type fakeUploader struct {
	calls    []uploadCall
	backErr  error
	frontErr error
	backs    int
	fronts   int
}

func (u *fakeUploader) UploadCardBack(ctx context.Context, gameID string, img entity.CardImage) (entity.UploadedCard, error) {
	u.calls = append(u.calls, uploadCall{kind: entity.CardSideBack, gameID: gameID, back: img})
	if u.backErr != nil {
		return entity.UploadedCard{}, u.backErr
	}
	u.backs++
	return entity.UploadedCard{ID: "back-" + strconv.Itoa(u.backs)}, nil
}

func (u *fakeUploader) UploadCardFront(ctx context.Context, req entity.FrontUpload) (entity.UploadedCard, error) {
	u.calls = append(u.calls, uploadCall{kind: entity.CardSideFront, gameID: req.GameID, front: req})
	if u.frontErr != nil {
		return entity.UploadedCard{}, u.frontErr
	}
	u.fronts++
	return entity.UploadedCard{ID: "card-" + strconv.Itoa(u.fronts), Name: req.SuggestedName}, nil
}

func (u *fakeUploader) count(kind entity.CardSide) int {
	n := 0
	for _, c := range u.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

type recordingObserver struct {
	statuses  []Status
	completed []int
}

func (o *recordingObserver) StatusChanged(s Status) { o.statuses = append(o.statuses, s) }
func (o *recordingObserver) Completed(n int)        { o.completed = append(o.completed, n) }

func (o *recordingObserver) last() Status {
	return o.statuses[len(o.statuses)-1]
}

type harness struct {
	t        *testing.T
	loop     *manualLoop
	cam      *fakeCamera
	up       *fakeUploader
	obs      *recordingObserver
	s        *Session
	deferred []func()
	hold     bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:    t,
		loop: newManualLoop(),
		cam:  &fakeCamera{frame: cardFrame()},
		up:   &fakeUploader{},
		obs:  &recordingObserver{},
	}
	s, err := NewSession(context.Background(), "sess-1", "game-1", "cat-1",
		WithCamera(h.cam),
		WithUploader(h.up),
		WithEventLoop(h.loop, h.loop),
		WithObserver(h.obs),
		WithAsync(h.run),
	)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	h.s = s
	s.Start()
	return h
}

func (h *harness) run(fn func()) {
	if h.hold {
		h.deferred = append(h.deferred, fn)
		return
	}
	fn()
}

func (h *harness) releaseDeferred() {
	pending := h.deferred
	h.deferred = nil
	for _, fn := range pending {
		fn()
	}
}

// trigger lets the camera open and feeds a full stable window.
func (h *harness) trigger() {
	h.t.Helper()
	h.loop.Drain()
	if !h.s.loop.Running() {
		h.t.Fatalf("acquisition loop not running in %s (camera %s)", h.s.Phase(), h.s.CameraState())
	}
	for i := 0; i < StableFramesNeeded; i++ {
		h.loop.Tick()
	}
}

// capture triggers and then applies the upload outcome.
func (h *harness) capture() {
	h.t.Helper()
	h.trigger()
	h.loop.Drain()
}

func (h *harness) must(err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
}

var errNetwork = errors.New("connection reset")
