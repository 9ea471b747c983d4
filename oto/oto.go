package oto

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/sinatra-studio/sinatra"
)

type (
	// Context is the system audio output, backed by an oto context. Only one
	// oto context can exist per process.
	Context struct {
		ctx        *oto.Context
		sampleRate int
	}

	// Output pulls frames from a fill callback and feeds them to an oto
	// player.
	Output struct {
		player    *oto.Player
		fill      func(sinatra.AudioBuffer) error
		buffer    sinatra.AudioBuffer
		done      chan struct{}
		closeOnce sync.Once
		err       error
	}
)

const bufferDuration = 50 * time.Millisecond

var errOutputClosed = errors.New("audio output closed")

// NewContext opens the default output device at the given sample rate and
// waits until it is ready.
func NewContext(sampleRate int) (*Context, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx, sampleRate: sampleRate}, nil
}

func (c *Context) SampleRate() int { return c.sampleRate }

// Play starts pulling audio from fill until the returned output is closed or
// fill returns an error.
func (c *Context) Play(fill func(sinatra.AudioBuffer) error) sinatra.CloserWaiter {
	o := &Output{fill: fill, done: make(chan struct{})}
	o.player = c.ctx.NewPlayer(o)
	o.player.Play()
	return o
}

// Close suspends the device; oto contexts cannot be disposed of.
func (c *Context) Close() error {
	if err := c.ctx.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

// Read implements io.Reader for the oto player: it renders len(p)/4 stereo
// frames and converts them to 16-bit little-endian.
func (o *Output) Read(p []byte) (int, error) {
	select {
	case <-o.done:
		return 0, io.EOF
	default:
	}
	frames := len(p) / 4
	if cap(o.buffer) < frames {
		o.buffer = make(sinatra.AudioBuffer, frames)
	}
	o.buffer = o.buffer[:frames]
	if err := o.fill(o.buffer); err != nil {
		o.finish(err)
		return 0, err
	}
	return FloatBufferTo16BitLE(o.buffer, p[:0]), nil
}

// Close stops the player and releases it.
func (o *Output) Close() error {
	o.finish(errOutputClosed)
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

// Wait blocks until the output has been closed or the fill callback failed.
func (o *Output) Wait() {
	<-o.done
}

// Err returns the error that ended the output, if any.
func (o *Output) Err() error {
	select {
	case <-o.done:
	default:
		return nil
	}
	if errors.Is(o.err, errOutputClosed) {
		return nil
	}
	return o.err
}

func (o *Output) finish(err error) {
	o.closeOnce.Do(func() {
		o.err = err
		close(o.done)
	})
}
