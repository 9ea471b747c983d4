package engine

import (
	"time"

	"github.com/viterin/vek/vek32"
)

type (
	// Detector computes the live input level while recording. It runs in
	// its own goroutine, receiving capture blocks from the recorder via the
	// broker, and emits MeterEvents. The captured audio is only read.
	Detector struct {
		broker *Broker
		peaks  RingBuffer[float32] // peaks of the most recent blocks
		tmp    []float32
	}

	RingBuffer[T any] struct {
		Buffer []T
		Cursor int
	}
)

// meterWindow is the number of blocks the displayed peak is held over.
const meterWindow = 8

func NewDetector(b *Broker) *Detector {
	return &Detector{
		broker: b,
		peaks:  RingBuffer[float32]{Buffer: make([]float32, meterWindow)},
	}
}

func (r *RingBuffer[T]) WriteWrapSingle(value T) {
	r.Cursor = (r.Cursor + 1) % len(r.Buffer)
	r.Buffer[r.Cursor] = value
}

func (r *RingBuffer[T]) Reset() {
	clear(r.Buffer)
	r.Cursor = 0
}

func (d *Detector) Run() {
	for {
		select {
		case <-d.broker.CloseDetector:
			d.broker.FinishedDetector <- struct{}{}
			return
		case msg := <-d.broker.ToDetector:
			if msg.Reset {
				d.peaks.Reset()
			}
			if msg.Block == nil {
				continue
			}
			if e, ok := d.update(*msg.Block); ok {
				d.broker.Emit(e)
			}
			d.broker.PutBlock(msg.Block)
		}
	}
}

// Close asks the detector goroutine to quit and waits up to timeout for it to
// finish. It reports whether the detector finished in time.
func (d *Detector) Close(timeout time.Duration) bool {
	TrySend(d.broker.CloseDetector, struct{}{})
	_, ok := TimeoutReceive(d.broker.FinishedDetector, timeout)
	return ok
}

func (d *Detector) update(block []float32) (MeterEvent, bool) {
	if len(block) == 0 {
		return MeterEvent{}, false
	}
	setSliceLength(&d.tmp, len(block))
	abs := vek32.Abs_Into(d.tmp, block)
	d.peaks.WriteWrapSingle(vek32.Max(abs))
	return MeterEvent{
		Peak:    vek32.Max(d.peaks.Buffer),
		Average: vek32.Mean(abs),
	}, true
}

func setSliceLength[T any](slice *[]T, length int) {
	if len(*slice) < length {
		*slice = append(*slice, make([]T, length-len(*slice))...)
	}
	*slice = (*slice)[:length]
}
