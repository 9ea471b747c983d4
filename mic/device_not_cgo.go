//go:build !cgo

package mic

import (
	"context"
	"fmt"

	"github.com/sinatra-studio/sinatra"
)

// Device is unavailable without cgo; Open always fails with ErrPermission.
type Device struct {
	SampleRate float64
}

// Default returns the system's default capture device.
func Default() sinatra.Microphone {
	return Device{}
}

func (d Device) Open(ctx context.Context, blockSize int) (sinatra.InputStream, error) {
	return nil, fmt.Errorf("%w: audio capture requires a cgo build", sinatra.ErrPermission)
}
