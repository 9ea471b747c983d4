// Package mic provides Microphone implementations: the default capture device
// (PortAudio, cgo builds only) and a WAV file played back as if it was being
// captured.
package mic

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sinatra-studio/sinatra"
)

type (
	// File is a Microphone that captures the contents of a WAV file,
	// downmixed to mono. With Realtime set, Read is paced to the file's sample
	// rate so that captures line up with the transport.
	File struct {
		Path     string
		Realtime bool
	}

	fileStream struct {
		ctx      context.Context
		file     *os.File
		decoder  *wav.Decoder
		ints     *audio.IntBuffer
		channels int
		neg, pos float32
		realtime bool
		next     time.Time
	}
)

func (f File) Open(ctx context.Context, blockSize int) (sinatra.InputStream, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("invalid block size %d", blockSize)
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sinatra.ErrPermission, err)
	}
	d := wav.NewDecoder(fh)
	if !d.IsValidFile() {
		fh.Close()
		return nil, fmt.Errorf("%w: %w: %s", sinatra.ErrPermission, sinatra.ErrInvalidWav, f.Path)
	}
	if err := d.FwdToPCM(); err != nil {
		fh.Close()
		return nil, fmt.Errorf("%w: %w: %v", sinatra.ErrPermission, sinatra.ErrInvalidWav, err)
	}
	channels := int(d.NumChans)
	if channels < 1 {
		channels = 1
	}
	depth := int(d.BitDepth)
	if depth <= 0 || depth > 32 {
		fh.Close()
		return nil, fmt.Errorf("%w: %w: unsupported bit depth %d", sinatra.ErrPermission, sinatra.ErrInvalidWav, depth)
	}
	neg := float32(uint64(1) << (depth - 1))
	return &fileStream{
		ctx:     ctx,
		file:    fh,
		decoder: d,
		ints: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: int(d.SampleRate)},
			Data:           make([]int, blockSize*channels),
			SourceBitDepth: depth,
		},
		channels: channels,
		neg:      neg,
		pos:      neg - 1,
		realtime: f.Realtime,
		next:     time.Now(),
	}, nil
}

func (s *fileStream) SampleRate() int {
	return int(s.decoder.SampleRate)
}

func (s *fileStream) Read(block []float32) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	if want := len(block) * s.channels; len(s.ints.Data) != want {
		s.ints.Data = make([]int, want)
	}
	n, err := s.decoder.PCMBuffer(s.ints)
	if n == 0 {
		if err != nil {
			return 0, fmt.Errorf("cannot decode %s: %w", s.file.Name(), err)
		}
		return 0, io.EOF
	}
	frames := n / s.channels
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < s.channels; c++ {
			v := s.ints.Data[i*s.channels+c]
			if v < 0 {
				sum += float32(v) / s.neg
			} else {
				sum += float32(v) / s.pos
			}
		}
		block[i] = sum / float32(s.channels)
	}
	if s.realtime {
		s.next = s.next.Add(time.Duration(frames) * time.Second / time.Duration(s.SampleRate()))
		select {
		case <-time.After(time.Until(s.next)):
		case <-s.ctx.Done():
			return 0, s.ctx.Err()
		}
	}
	return frames, nil
}

func (s *fileStream) Close() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("cannot close %s: %w", s.file.Name(), err)
	}
	return nil
}
