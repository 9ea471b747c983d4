package sinatra

import "context"

type (
	// AudioBuffer is a buffer of stereo frames, rendered by the player and
	// handed to the audio output.
	AudioBuffer [][2]float32

	// AudioContext is the system audio output. Play starts pulling audio: fill
	// is called from the audio goroutine whenever the device needs more frames
	// and should fill the whole buffer.
	AudioContext interface {
		Play(fill func(buf AudioBuffer) error) CloserWaiter
		SampleRate() int
		Close() error
	}

	// CloserWaiter is a handle to something running in the background, which
	// can be closed and waited for.
	CloserWaiter interface {
		Close() error
		Wait()
	}

	// Microphone acquires exclusive capture sessions from an input device.
	// Open fails with an error wrapping ErrPermission when the device is
	// unavailable or access is denied.
	Microphone interface {
		Open(ctx context.Context, blockSize int) (InputStream, error)
	}

	// InputStream is an open capture session. Read blocks until a block of
	// mono samples is available and returns the number of samples read; it
	// returns io.EOF when the input has ended. Close releases the device and
	// must be safe to call once Read has returned.
	InputStream interface {
		SampleRate() int
		Read(block []float32) (int, error)
		Close() error
	}
)

// Fill clears the buffer.
func (b AudioBuffer) Fill(v [2]float32) {
	for i := range b {
		b[i] = v
	}
}
