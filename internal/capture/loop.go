package capture

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Signal is the per-frame feedback rendered on the guide overlay.
type Signal struct {
	Detected bool
	Progress float64
	Positive int
}

// AcquisitionLoop pulls one frame per tick, runs the detector and feeds the
// stabilizer. When the window is stable it locks, stops itself and hands the
// frame to the trigger callback exactly once.
type AcquisitionLoop struct {
	detector   *Detector
	stabilizer *Stabilizer
	scheduler  FrameScheduler

	source  FrameProvider
	buf     *image.RGBA
	handle  FrameHandle
	running bool
	locked  bool
	inTick  bool

	onSignal  func(Signal)
	onTrigger func(frame *image.RGBA)
}

func NewAcquisitionLoop(detector *Detector, stabilizer *Stabilizer, scheduler FrameScheduler) *AcquisitionLoop {
	return &AcquisitionLoop{
		detector:   detector,
		stabilizer: stabilizer,
		scheduler:  scheduler,
		onSignal:   func(Signal) {},
		onTrigger:  func(*image.RGBA) {},
	}
}

func (l *AcquisitionLoop) OnSignal(fn func(Signal)) {
	l.onSignal = fn
}

// OnTrigger registers the capture callback. The frame is only valid for the
// duration of the call.
func (l *AcquisitionLoop) OnTrigger(fn func(frame *image.RGBA)) {
	l.onTrigger = fn
}

// Start resets the detection history and the capture lock and schedules the
// first iteration against src.
func (l *AcquisitionLoop) Start(src FrameProvider) {
	l.Stop()
	l.source = src
	l.stabilizer.Reset()
	l.locked = false
	l.running = true
	l.schedule()
}

// Stop cancels any pending iteration. The capture lock is left as is.
func (l *AcquisitionLoop) Stop() {
	if l.handle != 0 {
		l.scheduler.CancelFrame(l.handle)
		l.handle = 0
	}
	l.running = false
	l.source = nil
}

func (l *AcquisitionLoop) ReleaseLock() {
	l.locked = false
}

func (l *AcquisitionLoop) Running() bool {
	return l.running
}

func (l *AcquisitionLoop) Locked() bool {
	return l.locked
}

func (l *AcquisitionLoop) Stability() Stability {
	return l.stabilizer.Stability()
}

func (l *AcquisitionLoop) schedule() {
	l.handle = l.scheduler.RequestFrame(l.tick)
}

func (l *AcquisitionLoop) tick() {
	l.handle = 0
	if !l.running || l.inTick {
		return
	}
	l.inTick = true
	defer func() { l.inTick = false }()

	src := l.source
	if src.ReadyState() < HaveCurrentData || l.locked {
		l.schedule()
		return
	}

	frame, err := l.grab(src)
	detected := err == nil && l.detector.Detect(frame)
	st := l.stabilizer.Push(detected)
	l.onSignal(Signal{Detected: detected, Progress: st.Progress(), Positive: st.Positive})

	if !l.running {
		return
	}
	if st.StableAll && !l.locked {
		l.locked = true
		l.running = false
		l.source = nil
		l.onTrigger(frame)
		return
	}
	l.schedule()
}

// grab draws the current source frame into the off-screen buffer, resizing
// the buffer when the source dimensions change.
func (l *AcquisitionLoop) grab(src FrameProvider) (frame *image.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("draw frame: %v", r)
		}
	}()

	w, h := src.Width(), src.Height()
	if w <= 0 || h <= 0 {
		return nil, ErrFrameUnavailable
	}
	if l.buf == nil || l.buf.Bounds().Dx() != w || l.buf.Bounds().Dy() != h {
		l.buf = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		draw.Draw(l.buf, l.buf.Bounds(), image.Transparent, image.Point{}, draw.Src)
	}
	if err := src.DrawInto(l.buf); err != nil {
		return nil, err
	}
	return l.buf, nil
}
