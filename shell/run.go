package shell

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFrameRate is the frame rate of a new Headless host.
const DefaultFrameRate = 60

// Headless is a Host without a window, driving frames from a ticker.
type Headless struct {
	mu     sync.Mutex
	fps    float64
	width  int
	height int

	frames   atomic.Uint64
	quit     chan struct{}
	quitOnce sync.Once
	rate     chan struct{}
}

// NewHeadless returns a host reporting the given window size.
func NewHeadless(width, height int) *Headless {
	return &Headless{
		fps:    DefaultFrameRate,
		width:  width,
		height: height,
		quit:   make(chan struct{}),
		rate:   make(chan struct{}, 1),
	}
}

var _ Host = (*Headless)(nil)

func (h *Headless) Quit() {
	h.quitOnce.Do(func() { close(h.quit) })
}

// Done is closed once Quit was called.
func (h *Headless) Done() <-chan struct{} {
	return h.quit
}

func (h *Headless) FrameRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fps
}

func (h *Headless) SetFrameRate(fps float64) {
	if fps <= 0 {
		return
	}
	h.mu.Lock()
	h.fps = fps
	h.mu.Unlock()
	select {
	case h.rate <- struct{}{}:
	default:
	}
}

func (h *Headless) WindowSize() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

// SetWindowSize changes the reported size; Run forwards it as a Resize.
func (h *Headless) SetWindowSize(width, height int) {
	h.mu.Lock()
	h.width, h.height = width, height
	h.mu.Unlock()
}

func (h *Headless) ElapsedFrames() uint64 {
	return h.frames.Load()
}

func (h *Headless) frameInterval() time.Duration {
	return time.Duration(float64(time.Second) / h.FrameRate())
}

// Run calls Setup, then Update and Draw once per frame until ctx is done or
// the application quits. Window size changes are forwarded as Resize before
// the next frame.
func Run(ctx context.Context, app Lifecycle, host *Headless) {
	width, height := host.WindowSize()
	app.Setup()
	app.Resize(width, height)

	ticker := time.NewTicker(host.frameInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-host.Done():
			return
		case <-host.rate:
			ticker.Reset(host.frameInterval())
		case <-ticker.C:
			if w, h := host.WindowSize(); w != width || h != height {
				width, height = w, h
				app.Resize(width, height)
			}
			app.Update()
			app.Draw()
			host.frames.Add(1)
		}
	}
}
