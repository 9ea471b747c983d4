package engine

import (
	"sync"
	"time"
)

type (
	// Transport keeps the playhead. While playing, the position is derived
	// from a wall clock anchor, position = anchorPos + (now - anchorTime), so
	// that it never drifts from repeated small increments. Transport is safe
	// for concurrent use: the presentation layer polls Position while the
	// engine issues commands.
	Transport struct {
		mu         sync.Mutex
		clock      Clock
		state      TransportState
		anchorPos  float64
		anchorTime time.Time

		listeners []func(TransportEvent)
	}

	TransportState int
)

const (
	Stopped TransportState = iota
	Playing
	Paused
)

func (s TransportState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "unknown"
}

func NewTransport(clock Clock) *Transport {
	if clock == nil {
		clock = SystemClock()
	}
	return &Transport{clock: clock}
}

// OnChange registers a function called after every start, pause, seek and
// stop, outside of the transport lock. Schedulers use it to resynchronize.
func (t *Transport) OnChange(f func(TransportEvent)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, f)
	t.mu.Unlock()
}

// Start starts playing from the given position.
func (t *Transport) Start(from float64) {
	t.mu.Lock()
	t.anchorPos = max(from, 0)
	t.anchorTime = t.clock.Now()
	t.state = Playing
	t.notify()
}

// Pause freezes the playhead and returns where it stopped.
func (t *Transport) Pause() float64 {
	t.mu.Lock()
	pos := t.position()
	t.anchorPos = pos
	if t.state == Playing {
		t.state = Paused
	}
	t.notify()
	return pos
}

// Seek moves the playhead. While playing, motion continues seamlessly from
// the new position.
func (t *Transport) Seek(sec float64) {
	t.mu.Lock()
	t.anchorPos = max(sec, 0)
	t.anchorTime = t.clock.Now()
	if t.state == Stopped {
		t.state = Paused
	}
	t.notify()
}

// Stop stops playback and rewinds to zero.
func (t *Transport) Stop() {
	t.mu.Lock()
	t.anchorPos = 0
	t.state = Stopped
	t.notify()
}

func (t *Transport) Position() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position()
}

func (t *Transport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Running() bool { return t.State() == Playing }

func (t *Transport) position() float64 {
	if t.state != Playing {
		return t.anchorPos
	}
	return t.anchorPos + t.clock.Now().Sub(t.anchorTime).Seconds()
}

// notify must be called with the lock held; it releases it.
func (t *Transport) notify() {
	e := TransportEvent{State: t.state, Position: t.position()}
	listeners := t.listeners
	t.mu.Unlock()
	for _, f := range listeners {
		f(e)
	}
}
