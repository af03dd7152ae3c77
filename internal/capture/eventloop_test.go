package capture

import (
	"testing"
	"time"

	"golang.org/x/net/context"
)

func TestEventLoopRunsDispatchAndFrames(t *testing.T) {
	loop := NewEventLoop(100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	frames := make(chan int, 4)
	loop.Dispatch(func() {
		loop.RequestFrame(func() { frames <- 1 })
		cancelled := loop.RequestFrame(func() { frames <- 2 })
		loop.CancelFrame(cancelled)
		loop.RequestFrame(func() { frames <- 3 })
	})

	var got []int
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case v := <-frames:
			got = append(got, v)
		case <-timeout:
			t.Fatalf("frames = %v", got)
		}
	}
	if got[0] != 1 || got[1] != 3 {
		t.Fatalf("frames = %v, want [1 3]", got)
	}

	select {
	case v := <-frames:
		t.Fatalf("cancelled frame %d ran", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventLoopCancelDuringTick(t *testing.T) {
	loop := NewEventLoop(DefaultFPS)
	ran := false
	var second FrameHandle
	loop.RequestFrame(func() { loop.CancelFrame(second) })
	second = loop.RequestFrame(func() { ran = true })

	loop.tick()
	if ran {
		t.Fatal("frame cancelled by an earlier callback still ran")
	}
}

func TestEventLoopCloseDropsTasks(t *testing.T) {
	loop := NewEventLoop(DefaultFPS)
	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()

	loop.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not return after close")
	}

	ran := false
	loop.Dispatch(func() { ran = true })
	if ran {
		t.Fatal("task ran after close")
	}
	loop.Close()
}

func TestEventLoopStopsWithContext(t *testing.T) {
	loop := NewEventLoop(DefaultFPS)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	cancel()

	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("loop not closed by context")
	}
}
