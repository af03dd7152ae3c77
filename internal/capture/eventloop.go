package capture

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/net/context"
)

// FrameHandle identifies one pending frame callback. Zero is never issued.
type FrameHandle uint64

// FrameScheduler runs a callback once on the next display tick. Both methods
// are called from the owning loop goroutine only.
type FrameScheduler interface {
	RequestFrame(fn func()) FrameHandle
	CancelFrame(h FrameHandle)
}

// Dispatcher hands a continuation to the owning loop goroutine. It is safe to
// call from any goroutine.
type Dispatcher interface {
	Dispatch(fn func())
}

const DefaultFPS = 30

// EventLoop is the single goroutine a scan session lives on. Continuations
// posted with Dispatch and frame callbacks both run on it, one at a time.
type EventLoop struct {
	tasks    chan func()
	interval time.Duration

	next    FrameHandle
	pending map[FrameHandle]func()
	firing  map[FrameHandle]func()

	done      chan struct{}
	closeOnce sync.Once
}

func NewEventLoop(fps int) *EventLoop {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &EventLoop{
		tasks:    make(chan func(), 64),
		interval: time.Second / time.Duration(fps),
		pending:  make(map[FrameHandle]func()),
		done:     make(chan struct{}),
	}
}

func (l *EventLoop) RequestFrame(fn func()) FrameHandle {
	l.next++
	l.pending[l.next] = fn
	return l.next
}

func (l *EventLoop) CancelFrame(h FrameHandle) {
	delete(l.pending, h)
	delete(l.firing, h)
}

// Dispatch queues fn for the loop. Tasks posted after Close are dropped.
func (l *EventLoop) Dispatch(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}

// Run processes tasks and frame ticks until ctx ends or Close is called.
func (l *EventLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Close()
			return
		case <-l.done:
			return
		case fn := <-l.tasks:
			fn()
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *EventLoop) tick() {
	if len(l.pending) == 0 {
		return
	}
	handles := make([]FrameHandle, 0, len(l.pending))
	for h := range l.pending {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	l.firing = l.pending
	l.pending = make(map[FrameHandle]func(), 1)
	for _, h := range handles {
		fn, ok := l.firing[h]
		if !ok {
			continue
		}
		delete(l.firing, h)
		fn()
	}
	l.firing = nil
}

func (l *EventLoop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}

func (l *EventLoop) Done() <-chan struct{} {
	return l.done
}
