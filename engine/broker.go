package engine

import (
	"sync"
	"time"
)

type (
	// Broker is the message hub of the engine. Results of asynchronous work
	// (finished captures, conversion responses, meter levels) are sent to the
	// engine goroutine via ToEngine, and everything the presentation layer
	// may want to know about goes out via Events. Additionally, the broker
	// has a sync.Pool for capture blocks, so the recorder can pass blocks to
	// the detector without allocating new memory every time.
	//
	// All sends to the broker are non-blocking: if a receiver falls behind,
	// messages are dropped rather than stalling the audio or capture
	// goroutines.
	Broker struct {
		ToEngine   chan any
		ToDetector chan MsgToDetector
		Events     chan Event

		CloseDetector    chan struct{}
		FinishedDetector chan struct{}

		blockPool sync.Pool
	}

	// MsgToDetector carries one capture block to the level detector. Reset
	// clears the running peak, used when a new capture starts.
	MsgToDetector struct {
		Reset bool
		Block *[]float32
	}
)

func NewBroker() *Broker {
	return &Broker{
		ToEngine:         make(chan any, 1024),
		ToDetector:       make(chan MsgToDetector, 1024),
		Events:           make(chan Event, 1024),
		CloseDetector:    make(chan struct{}, 1),
		FinishedDetector: make(chan struct{}, 1),
		blockPool:        sync.Pool{New: func() any { return &[]float32{} }},
	}
}

// GetBlock returns an empty block from the pool. After use, the block should
// be returned with PutBlock.
func (b *Broker) GetBlock() *[]float32 {
	return b.blockPool.Get().(*[]float32)
}

// PutBlock returns a block to the pool, resetting its length but keeping its
// capacity.
func (b *Broker) PutBlock(block *[]float32) {
	if len(*block) > 0 {
		*block = (*block)[:0]
	}
	b.blockPool.Put(block)
}

// Emit publishes an event without blocking.
func (b *Broker) Emit(e Event) bool {
	return TrySend(b.Events, e)
}

// TrySend is a helper function to send a value to a channel if it is not full.
// It is guaranteed to be non-blocking. Return true if the value was sent, false
// otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive is a helper function to block until a value is received from a
// channel, or timing out after t. ok will be false if the timeout occurred or
// if the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
