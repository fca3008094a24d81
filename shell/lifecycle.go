package shell

import "github.com/chenyanchen/hotswap"

// MouseEvent describes a pointer event in window coordinates.
type MouseEvent struct {
	X, Y   float64
	Button int
	// WheelX and WheelY are set for wheel events only.
	WheelX, WheelY float64
}

// Touch is one contact point of a multi-touch event.
type Touch struct {
	ID   int64
	X, Y float64
}

// TouchEvent lists the touches that changed.
type TouchEvent struct {
	Touches []Touch
}

// KeyEvent describes a key press or release.
type KeyEvent struct {
	Code   int
	Char   rune
	Repeat bool
}

// FileDropEvent lists files dropped onto the window.
type FileDropEvent struct {
	X, Y  float64
	Files []string
}

// Lifecycle is the host surface forwarded to the running application.
type Lifecycle interface {
	Setup()
	Update()
	Draw()
	MouseDown(e MouseEvent)
	MouseUp(e MouseEvent)
	MouseMove(e MouseEvent)
	MouseDrag(e MouseEvent)
	MouseWheel(e MouseEvent)
	TouchesBegan(e TouchEvent)
	TouchesMoved(e TouchEvent)
	TouchesEnded(e TouchEvent)
	KeyDown(e KeyEvent)
	KeyUp(e KeyEvent)
	Resize(width, height int)
	FileDrop(e FileDropEvent)
	Cleanup()
}

// Host is what a running application may ask of the process hosting it.
type Host interface {
	Quit()
	FrameRate() float64
	SetFrameRate(fps float64)
	WindowSize() (width, height int)
	ElapsedFrames() uint64
}

// Delegate is a reloadable application. Embedding Base satisfies it.
type Delegate interface {
	Lifecycle
	AttachHost(h Host)
}

// StatefulDelegate is a Delegate that carries its state to the next
// generation.
type StatefulDelegate interface {
	Delegate
	hotswap.Stateful
}

// Base gives a delegate no-op lifecycle methods and access to its host.
// Application sources embed it in place of the host framework's own base.
type Base struct {
	host Host
}

// AttachHost is called by the shell before Setup.
func (b *Base) AttachHost(h Host) { b.host = h }

// Host returns the attached host, nil before the first install.
func (b *Base) Host() Host { return b.host }

func (b *Base) Setup()                   {}
func (b *Base) Update()                  {}
func (b *Base) Draw()                    {}
func (b *Base) MouseDown(MouseEvent)     {}
func (b *Base) MouseUp(MouseEvent)       {}
func (b *Base) MouseMove(MouseEvent)     {}
func (b *Base) MouseDrag(MouseEvent)     {}
func (b *Base) MouseWheel(MouseEvent)    {}
func (b *Base) TouchesBegan(TouchEvent)  {}
func (b *Base) TouchesMoved(TouchEvent)  {}
func (b *Base) TouchesEnded(TouchEvent)  {}
func (b *Base) KeyDown(KeyEvent)         {}
func (b *Base) KeyUp(KeyEvent)           {}
func (b *Base) Resize(width, height int) {}
func (b *Base) FileDrop(FileDropEvent)   {}
func (b *Base) Cleanup()                 {}

var _ Delegate = (*Base)(nil)
