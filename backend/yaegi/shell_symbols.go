package yaegi

import (
	"reflect"

	"github.com/traefik/yaegi/interp"

	"github.com/chenyanchen/hotswap"
	"github.com/chenyanchen/hotswap/shell"
)

// ShellLibrary is the library name under which ShellSymbols are registered
// by the hotswap command.
const ShellLibrary = "shell"

// AppBase is an interpreted counterpart of shell.Base. Application sources
// embed AppBaseType in place of the host framework's base, after declaring
// AppBaseSource on the backend. Its methods are interpreted, so embedding
// types get them promoted inside the interpreter.
const (
	AppBasePackage = "appbase"
	AppBaseType    = AppBasePackage + ".Base"
	AppBaseImport  = `"` + AppBasePackage + `"`
)

// AppBaseSource declares package appbase. It needs the shell library.
const AppBaseSource = `package appbase

import "github.com/chenyanchen/hotswap/shell"

type Base struct {
	host shell.Host
}

func (b *Base) AttachHost(h shell.Host)         { b.host = h }
func (b *Base) Host() shell.Host                { return b.host }
func (b *Base) Setup()                          {}
func (b *Base) Update()                         {}
func (b *Base) Draw()                           {}
func (b *Base) MouseDown(e shell.MouseEvent)    {}
func (b *Base) MouseUp(e shell.MouseEvent)      {}
func (b *Base) MouseMove(e shell.MouseEvent)    {}
func (b *Base) MouseDrag(e shell.MouseEvent)    {}
func (b *Base) MouseWheel(e shell.MouseEvent)   {}
func (b *Base) TouchesBegan(e shell.TouchEvent) {}
func (b *Base) TouchesMoved(e shell.TouchEvent) {}
func (b *Base) TouchesEnded(e shell.TouchEvent) {}
func (b *Base) KeyDown(e shell.KeyEvent)        {}
func (b *Base) KeyUp(e shell.KeyEvent)          {}
func (b *Base) Resize(width, height int)        {}
func (b *Base) FileDrop(e shell.FileDropEvent)  {}
func (b *Base) Cleanup()                        {}
`

// ShellSymbols exports package shell to interpreted application sources.
var ShellSymbols = interp.Exports{
	"github.com/chenyanchen/hotswap/shell/shell": map[string]reflect.Value{
		// function, constant and variable definitions
		"DefaultFrameRate": reflect.ValueOf(shell.DefaultFrameRate),
		"NewHeadless":      reflect.ValueOf(shell.NewHeadless),

		// type definitions
		"Base":             reflect.ValueOf((*shell.Base)(nil)),
		"Delegate":         reflect.ValueOf((*shell.Delegate)(nil)),
		"FileDropEvent":    reflect.ValueOf((*shell.FileDropEvent)(nil)),
		"Headless":         reflect.ValueOf((*shell.Headless)(nil)),
		"Host":             reflect.ValueOf((*shell.Host)(nil)),
		"KeyEvent":         reflect.ValueOf((*shell.KeyEvent)(nil)),
		"Lifecycle":        reflect.ValueOf((*shell.Lifecycle)(nil)),
		"MouseEvent":       reflect.ValueOf((*shell.MouseEvent)(nil)),
		"StatefulDelegate": reflect.ValueOf((*shell.StatefulDelegate)(nil)),
		"Touch":            reflect.ValueOf((*shell.Touch)(nil)),
		"TouchEvent":       reflect.ValueOf((*shell.TouchEvent)(nil)),

		// interface wrapper definitions
		"_Delegate":         reflect.ValueOf((*_shell_Delegate)(nil)),
		"_Host":             reflect.ValueOf((*_shell_Host)(nil)),
		"_Lifecycle":        reflect.ValueOf((*_shell_Lifecycle)(nil)),
		"_StatefulDelegate": reflect.ValueOf((*_shell_StatefulDelegate)(nil)),
	},
}

// _shell_Delegate is an interface wrapper for Delegate type
type _shell_Delegate struct {
	IValue        interface{}
	WAttachHost   func(h shell.Host)
	WCleanup      func()
	WDraw         func()
	WFileDrop     func(e shell.FileDropEvent)
	WKeyDown      func(e shell.KeyEvent)
	WKeyUp        func(e shell.KeyEvent)
	WMouseDown    func(e shell.MouseEvent)
	WMouseDrag    func(e shell.MouseEvent)
	WMouseMove    func(e shell.MouseEvent)
	WMouseUp      func(e shell.MouseEvent)
	WMouseWheel   func(e shell.MouseEvent)
	WResize       func(width int, height int)
	WSetup        func()
	WTouchesBegan func(e shell.TouchEvent)
	WTouchesEnded func(e shell.TouchEvent)
	WTouchesMoved func(e shell.TouchEvent)
	WUpdate       func()
}

func (W _shell_Delegate) AttachHost(h shell.Host)         { W.WAttachHost(h) }
func (W _shell_Delegate) Cleanup()                        { W.WCleanup() }
func (W _shell_Delegate) Draw()                           { W.WDraw() }
func (W _shell_Delegate) FileDrop(e shell.FileDropEvent)  { W.WFileDrop(e) }
func (W _shell_Delegate) KeyDown(e shell.KeyEvent)        { W.WKeyDown(e) }
func (W _shell_Delegate) KeyUp(e shell.KeyEvent)          { W.WKeyUp(e) }
func (W _shell_Delegate) MouseDown(e shell.MouseEvent)    { W.WMouseDown(e) }
func (W _shell_Delegate) MouseDrag(e shell.MouseEvent)    { W.WMouseDrag(e) }
func (W _shell_Delegate) MouseMove(e shell.MouseEvent)    { W.WMouseMove(e) }
func (W _shell_Delegate) MouseUp(e shell.MouseEvent)      { W.WMouseUp(e) }
func (W _shell_Delegate) MouseWheel(e shell.MouseEvent)   { W.WMouseWheel(e) }
func (W _shell_Delegate) Resize(width int, height int)    { W.WResize(width, height) }
func (W _shell_Delegate) Setup()                          { W.WSetup() }
func (W _shell_Delegate) TouchesBegan(e shell.TouchEvent) { W.WTouchesBegan(e) }
func (W _shell_Delegate) TouchesEnded(e shell.TouchEvent) { W.WTouchesEnded(e) }
func (W _shell_Delegate) TouchesMoved(e shell.TouchEvent) { W.WTouchesMoved(e) }
func (W _shell_Delegate) Update()                         { W.WUpdate() }

// _shell_Host is an interface wrapper for Host type
type _shell_Host struct {
	IValue         interface{}
	WElapsedFrames func() uint64
	WFrameRate     func() float64
	WQuit          func()
	WSetFrameRate  func(fps float64)
	WWindowSize    func() (width int, height int)
}

func (W _shell_Host) ElapsedFrames() uint64               { return W.WElapsedFrames() }
func (W _shell_Host) FrameRate() float64                  { return W.WFrameRate() }
func (W _shell_Host) Quit()                               { W.WQuit() }
func (W _shell_Host) SetFrameRate(fps float64)            { W.WSetFrameRate(fps) }
func (W _shell_Host) WindowSize() (width int, height int) { return W.WWindowSize() }

// _shell_Lifecycle is an interface wrapper for Lifecycle type
type _shell_Lifecycle struct {
	IValue        interface{}
	WCleanup      func()
	WDraw         func()
	WFileDrop     func(e shell.FileDropEvent)
	WKeyDown      func(e shell.KeyEvent)
	WKeyUp        func(e shell.KeyEvent)
	WMouseDown    func(e shell.MouseEvent)
	WMouseDrag    func(e shell.MouseEvent)
	WMouseMove    func(e shell.MouseEvent)
	WMouseUp      func(e shell.MouseEvent)
	WMouseWheel   func(e shell.MouseEvent)
	WResize       func(width int, height int)
	WSetup        func()
	WTouchesBegan func(e shell.TouchEvent)
	WTouchesEnded func(e shell.TouchEvent)
	WTouchesMoved func(e shell.TouchEvent)
	WUpdate       func()
}

func (W _shell_Lifecycle) Cleanup()                        { W.WCleanup() }
func (W _shell_Lifecycle) Draw()                           { W.WDraw() }
func (W _shell_Lifecycle) FileDrop(e shell.FileDropEvent)  { W.WFileDrop(e) }
func (W _shell_Lifecycle) KeyDown(e shell.KeyEvent)        { W.WKeyDown(e) }
func (W _shell_Lifecycle) KeyUp(e shell.KeyEvent)          { W.WKeyUp(e) }
func (W _shell_Lifecycle) MouseDown(e shell.MouseEvent)    { W.WMouseDown(e) }
func (W _shell_Lifecycle) MouseDrag(e shell.MouseEvent)    { W.WMouseDrag(e) }
func (W _shell_Lifecycle) MouseMove(e shell.MouseEvent)    { W.WMouseMove(e) }
func (W _shell_Lifecycle) MouseUp(e shell.MouseEvent)      { W.WMouseUp(e) }
func (W _shell_Lifecycle) MouseWheel(e shell.MouseEvent)   { W.WMouseWheel(e) }
func (W _shell_Lifecycle) Resize(width int, height int)    { W.WResize(width, height) }
func (W _shell_Lifecycle) Setup()                          { W.WSetup() }
func (W _shell_Lifecycle) TouchesBegan(e shell.TouchEvent) { W.WTouchesBegan(e) }
func (W _shell_Lifecycle) TouchesEnded(e shell.TouchEvent) { W.WTouchesEnded(e) }
func (W _shell_Lifecycle) TouchesMoved(e shell.TouchEvent) { W.WTouchesMoved(e) }
func (W _shell_Lifecycle) Update()                         { W.WUpdate() }

// _shell_StatefulDelegate is an interface wrapper for StatefulDelegate type
type _shell_StatefulDelegate struct {
	IValue        interface{}
	WAttachHost   func(h shell.Host)
	WCleanup      func()
	WDraw         func()
	WFileDrop     func(e shell.FileDropEvent)
	WKeyDown      func(e shell.KeyEvent)
	WKeyUp        func(e shell.KeyEvent)
	WLoad         func(dec hotswap.Decoder) error
	WMouseDown    func(e shell.MouseEvent)
	WMouseDrag    func(e shell.MouseEvent)
	WMouseMove    func(e shell.MouseEvent)
	WMouseUp      func(e shell.MouseEvent)
	WMouseWheel   func(e shell.MouseEvent)
	WResize       func(width int, height int)
	WSave         func(enc hotswap.Encoder) error
	WSetup        func()
	WTouchesBegan func(e shell.TouchEvent)
	WTouchesEnded func(e shell.TouchEvent)
	WTouchesMoved func(e shell.TouchEvent)
	WUpdate       func()
}

func (W _shell_StatefulDelegate) AttachHost(h shell.Host)         { W.WAttachHost(h) }
func (W _shell_StatefulDelegate) Cleanup()                        { W.WCleanup() }
func (W _shell_StatefulDelegate) Draw()                           { W.WDraw() }
func (W _shell_StatefulDelegate) FileDrop(e shell.FileDropEvent)  { W.WFileDrop(e) }
func (W _shell_StatefulDelegate) KeyDown(e shell.KeyEvent)        { W.WKeyDown(e) }
func (W _shell_StatefulDelegate) KeyUp(e shell.KeyEvent)          { W.WKeyUp(e) }
func (W _shell_StatefulDelegate) Load(dec hotswap.Decoder) error  { return W.WLoad(dec) }
func (W _shell_StatefulDelegate) MouseDown(e shell.MouseEvent)    { W.WMouseDown(e) }
func (W _shell_StatefulDelegate) MouseDrag(e shell.MouseEvent)    { W.WMouseDrag(e) }
func (W _shell_StatefulDelegate) MouseMove(e shell.MouseEvent)    { W.WMouseMove(e) }
func (W _shell_StatefulDelegate) MouseUp(e shell.MouseEvent)      { W.WMouseUp(e) }
func (W _shell_StatefulDelegate) MouseWheel(e shell.MouseEvent)   { W.WMouseWheel(e) }
func (W _shell_StatefulDelegate) Resize(width int, height int)    { W.WResize(width, height) }
func (W _shell_StatefulDelegate) Save(enc hotswap.Encoder) error  { return W.WSave(enc) }
func (W _shell_StatefulDelegate) Setup()                          { W.WSetup() }
func (W _shell_StatefulDelegate) TouchesBegan(e shell.TouchEvent) { W.WTouchesBegan(e) }
func (W _shell_StatefulDelegate) TouchesEnded(e shell.TouchEvent) { W.WTouchesEnded(e) }
func (W _shell_StatefulDelegate) TouchesMoved(e shell.TouchEvent) { W.WTouchesMoved(e) }
func (W _shell_StatefulDelegate) Update()                         { W.WUpdate() }
