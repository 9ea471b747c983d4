//go:build cgo

package mic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/sinatra-studio/sinatra"
)

type (
	// Device captures mono audio from the default input device. A zero
	// SampleRate uses the device's default rate.
	Device struct {
		SampleRate float64
	}

	deviceStream struct {
		stream    *portaudio.Stream
		buffer    []float32
		rate      int
		closeOnce sync.Once
		closeErr  error
	}
)

// Default returns the system's default capture device.
func Default() sinatra.Microphone {
	return Device{}
}

func (d Device) Open(ctx context.Context, blockSize int) (sinatra.InputStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: cannot initialize portaudio: %v", sinatra.ErrPermission, err)
	}
	rate := d.SampleRate
	if rate <= 0 {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			portaudio.Terminate()
			return nil, fmt.Errorf("%w: no default input device: %v", sinatra.ErrPermission, err)
		}
		rate = dev.DefaultSampleRate
	}
	buffer := make([]float32, blockSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, rate, blockSize, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: cannot open input stream: %v", sinatra.ErrPermission, err)
	}
	if err := ctx.Err(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: cannot start input stream: %v", sinatra.ErrPermission, err)
	}
	return &deviceStream{stream: stream, buffer: buffer, rate: int(rate)}, nil
}

func (s *deviceStream) SampleRate() int {
	return s.rate
}

func (s *deviceStream) Read(block []float32) (int, error) {
	if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return 0, fmt.Errorf("cannot read input stream: %w", err)
	}
	return copy(block, s.buffer), nil
}

func (s *deviceStream) Close() error {
	s.closeOnce.Do(func() {
		if err := s.stream.Stop(); err != nil {
			s.closeErr = fmt.Errorf("cannot stop input stream: %w", err)
		}
		if err := s.stream.Close(); err != nil && s.closeErr == nil {
			s.closeErr = fmt.Errorf("cannot close input stream: %w", err)
		}
		portaudio.Terminate()
	})
	return s.closeErr
}
