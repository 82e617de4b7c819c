// Package capturetest provides in-memory frames, handles and openers for tests
// that must not depend on a real capture engine.
package capturetest

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"platestation/internal/models"
	"platestation/internal/services/capture"
)

// Frame is a fake raster. Drawing fakes append to Ops so tests can tell whether
// a frame was annotated.
type Frame struct {
	Label  string
	Width  int
	Height int
	Blank  bool
	Ops    []string

	closed *int
}

// NewFrame returns a 640x480 frame tagged with label.
func NewFrame(label string) *Frame {
	return &Frame{Label: label, Width: 640, Height: 480, closed: new(int)}
}

func (f *Frame) Clone() models.Frame {
	clone := *f
	clone.Ops = append([]string(nil), f.Ops...)
	clone.closed = new(int)
	return &clone
}

func (f *Frame) Empty() bool { return f.Blank || f.Width == 0 || f.Height == 0 }

func (f *Frame) Bounds() image.Rectangle { return image.Rect(0, 0, f.Width, f.Height) }

func (f *Frame) Close() error {
	if f.closed == nil {
		f.closed = new(int)
	}
	*f.closed++
	return nil
}

// Closed reports how many times Close was called on this frame.
func (f *Frame) Closed() int {
	if f.closed == nil {
		return 0
	}
	return *f.closed
}

// Handle replays Script on each Read. A nil entry is a failed read. When the
// script runs out, Read keeps returning a fresh frame if Repeat is set, or
// fails otherwise.
type Handle struct {
	mu      sync.Mutex
	Script  []models.Frame
	Repeat  bool
	Closed  bool
	NotOpen bool
	Reads   int
	Closes  int
	OnRead  func()
}

func (h *Handle) IsOpened() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.NotOpen && !h.Closed
}

func (h *Handle) Read() (models.Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.OnRead != nil {
		h.OnRead()
	}
	h.Reads++
	if len(h.Script) > 0 {
		next := h.Script[0]
		h.Script = h.Script[1:]
		if next == nil {
			return nil, false
		}
		return next, true
	}
	if h.Repeat {
		return NewFrame(fmt.Sprintf("repeat-%d", h.Reads)), true
	}
	return nil, false
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Closed = true
	h.Closes++
	return nil
}

// CloseCount returns how many times Close was called.
func (h *Handle) CloseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Closes
}

// ErrNoDevice is returned for devices and URLs the Opener does not know.
var ErrNoDevice = errors.New("capturetest: no such source")

// Opener hands out preconfigured handles. Handles are built on demand by the
// factories so each open gets a fresh one.
type Opener struct {
	mu      sync.Mutex
	Devices map[int]func() capture.Handle
	URLs    map[string]func() capture.Handle
	Panics  map[string]bool
	Opened  []string
}

// NewOpener returns an Opener with no sources.
func NewOpener() *Opener {
	return &Opener{
		Devices: make(map[int]func() capture.Handle),
		URLs:    make(map[string]func() capture.Handle),
		Panics:  make(map[string]bool),
	}
}

// Working returns a factory for a handle that always yields frames.
func Working() func() capture.Handle {
	return func() capture.Handle { return &Handle{Repeat: true} }
}

// Silent returns a factory for a handle that opens but never yields a frame.
func Silent() func() capture.Handle {
	return func() capture.Handle { return &Handle{} }
}

func (o *Opener) OpenDevice(index int) (capture.Handle, error) {
	return o.open(fmt.Sprintf("device:%d", index), func() (func() capture.Handle, bool) {
		f, ok := o.Devices[index]
		return f, ok
	})
}

func (o *Opener) OpenURL(url string) (capture.Handle, error) {
	return o.open(url, func() (func() capture.Handle, bool) {
		f, ok := o.URLs[url]
		return f, ok
	})
}

func (o *Opener) open(key string, lookup func() (func() capture.Handle, bool)) (capture.Handle, error) {
	o.mu.Lock()
	o.Opened = append(o.Opened, key)
	factory, ok := lookup()
	panics := o.Panics[key]
	o.mu.Unlock()

	if panics {
		panic("capturetest: engine crashed on " + key)
	}
	if !ok {
		return nil, ErrNoDevice
	}
	return factory(), nil
}

// OpenedKeys returns every key passed to the opener, in call order.
func (o *Opener) OpenedKeys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.Opened...)
}
