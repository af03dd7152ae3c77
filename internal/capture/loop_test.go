package capture

import (
	"errors"
	"image"
	"testing"
)

type loopFixture struct {
	sched    *manualLoop
	loop     *AcquisitionLoop
	signals  []Signal
	triggers int
	frame    *image.RGBA
}

func newLoopFixture() *loopFixture {
	f := &loopFixture{sched: newManualLoop()}
	f.loop = NewAcquisitionLoop(NewDetector(DefaultDetectorConfig()), NewStabilizer(StableFramesNeeded), f.sched)
	f.loop.OnSignal(func(s Signal) { f.signals = append(f.signals, s) })
	f.loop.OnTrigger(func(frame *image.RGBA) {
		f.triggers++
		f.frame = frame
	})
	return f
}

func (f *loopFixture) ticks(n int) {
	for i := 0; i < n; i++ {
		f.sched.Tick()
	}
}

func streamOf(frame *image.RGBA) *fakeStream {
	return &fakeStream{ready: HaveEnoughData, next: func() *image.RGBA { return frame }}
}

func TestLoopWaitsForReadySource(t *testing.T) {
	f := newLoopFixture()
	src := streamOf(cardFrame())
	src.ready = HaveMetadata

	f.loop.Start(src)
	f.ticks(5)

	if src.draws != 0 {
		t.Fatalf("drew %d frames from a source without data", src.draws)
	}
	if f.sched.Pending() != 1 {
		t.Fatalf("pending = %d, want the next iteration scheduled", f.sched.Pending())
	}
	if len(f.signals) != 0 {
		t.Fatalf("signals emitted before any frame: %v", f.signals)
	}

	src.ready = HaveCurrentData
	f.ticks(1)
	if src.draws != 1 {
		t.Fatalf("draws = %d, want 1", src.draws)
	}
}

func TestLoopDrawErrorIsNoCard(t *testing.T) {
	f := newLoopFixture()
	src := streamOf(cardFrame())
	src.drawErr = errors.New("stream ended")

	f.loop.Start(src)
	f.ticks(StableFramesNeeded * 2)

	if f.triggers != 0 {
		t.Fatal("triggered on undrawable frames")
	}
	for _, s := range f.signals {
		if s.Detected {
			t.Fatal("undrawable frame reported as detected")
		}
	}
	if !f.loop.Running() {
		t.Fatal("loop stopped on draw error")
	}
}

func TestLoopTriggersOnce(t *testing.T) {
	f := newLoopFixture()
	f.loop.Start(streamOf(cardFrame()))

	f.ticks(StableFramesNeeded - 1)
	if f.triggers != 0 {
		t.Fatalf("triggered after %d frames", StableFramesNeeded-1)
	}

	f.ticks(1)
	if f.triggers != 1 {
		t.Fatalf("triggers = %d, want 1", f.triggers)
	}
	if !f.loop.Locked() || f.loop.Running() {
		t.Fatalf("locked = %v running = %v after trigger", f.loop.Locked(), f.loop.Running())
	}
	if f.sched.Pending() != 0 {
		t.Fatalf("pending = %d after trigger", f.sched.Pending())
	}
	if b := f.frame.Bounds(); b.Dx() != testWidth || b.Dy() != testHeight {
		t.Fatalf("trigger frame %v", b)
	}

	f.ticks(StableFramesNeeded * 2)
	if f.triggers != 1 {
		t.Fatalf("triggers = %d after further ticks, want 1", f.triggers)
	}

	last := f.signals[len(f.signals)-1]
	if !last.Detected || last.Progress != 1 || last.Positive != StableFramesNeeded {
		t.Fatalf("final signal %+v", last)
	}
}

func TestLoopLockSurvivesStop(t *testing.T) {
	f := newLoopFixture()
	f.loop.Start(streamOf(cardFrame()))
	f.ticks(StableFramesNeeded)

	f.loop.Stop()
	if !f.loop.Locked() {
		t.Fatal("stop cleared the capture lock")
	}
	f.loop.ReleaseLock()
	if f.loop.Locked() {
		t.Fatal("lock not released")
	}
}

func TestLoopStopCancelsPending(t *testing.T) {
	f := newLoopFixture()
	src := streamOf(cardFrame())
	f.loop.Start(src)
	f.ticks(3)
	f.loop.Stop()

	if f.sched.Pending() != 0 {
		t.Fatalf("pending = %d after stop", f.sched.Pending())
	}
	draws := src.draws
	f.ticks(5)
	if src.draws != draws {
		t.Fatal("stopped loop kept drawing")
	}
}

func TestLoopStartResetsHistory(t *testing.T) {
	f := newLoopFixture()
	f.loop.Start(streamOf(cardFrame()))
	f.ticks(StableFramesNeeded)
	if f.triggers != 1 {
		t.Fatalf("triggers = %d", f.triggers)
	}

	f.loop.Start(streamOf(cardFrame()))
	if f.loop.Locked() {
		t.Fatal("start kept the lock")
	}
	if st := f.loop.Stability(); st.Len != 0 {
		t.Fatalf("history len = %d after start", st.Len)
	}
	f.ticks(StableFramesNeeded - 1)
	if f.triggers != 1 {
		t.Fatal("restarted loop triggered from stale history")
	}
	f.ticks(1)
	if f.triggers != 2 {
		t.Fatalf("triggers = %d, want 2", f.triggers)
	}
}

func TestLoopEmptyFrameNeverTriggers(t *testing.T) {
	f := newLoopFixture()
	f.loop.Start(streamOf(emptyFrame()))
	f.ticks(StableFramesNeeded * 3)
	if f.triggers != 0 {
		t.Fatal("triggered with no card in the guide")
	}
	if p := f.signals[len(f.signals)-1].Progress; p != 0 {
		t.Fatalf("progress = %v", p)
	}
}
