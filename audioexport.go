package sinatra

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
)

// WavFormat describes the fmt chunk of a WAV file.
type WavFormat struct {
	AudioFormat   uint16 // 1 = PCM
	NumChannels   uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// Wav encodes the mono buffer as a 16-bit PCM RIFF/WAVE file at the given
// sample rate. Samples outside [-1,1] are clamped.
func Wav(buffer []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("Wav failed: invalid sample rate %d", sampleRate)
	}
	buf := new(bytes.Buffer)
	buf.Grow(44 + 2*len(buffer))
	wavHeader(len(buffer), sampleRate, buf)
	if err := rawToBuffer(buffer, buf); err != nil {
		return nil, fmt.Errorf("Wav failed: %v", err)
	}
	return buf.Bytes(), nil
}

func rawToBuffer(data []float32, buf *bytes.Buffer) error {
	int16data := make([]int16, len(data))
	for i, v := range data {
		int16data[i] = PCM16(v)
	}
	if err := binary.Write(buf, binary.LittleEndian, int16data); err != nil {
		return fmt.Errorf("could not binary write data to binary buffer: %v", err)
	}
	return nil
}

// PCM16 converts a float sample to a signed 16-bit value, scaling negative
// values by 32768 and positive values by 32767.
func PCM16(v float32) int16 {
	if v < -1 {
		v = -1
	} else if v > 1 {
		v = 1
	}
	if v < 0 {
		return int16(v * -math.MinInt16)
	}
	return int16(v * math.MaxInt16)
}

// wavHeader writes the RIFF, fmt and data chunk headers of a mono 16-bit PCM
// file holding numSamples samples.
func wavHeader(numSamples, sampleRate int, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	const (
		numChannels    = 1
		bytesPerSample = 2
		fmtChunkSize   = 16
		waveFormat     = 1 // PCM
	)
	dataSize := bytesPerSample * numChannels * numSamples
	buf.Write([]byte("RIFF"))
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.Write([]byte("WAVE"))
	buf.Write([]byte("fmt "))
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(waveFormat))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, binary.LittleEndian, uint16(numChannels*bytesPerSample))            // blockAlign
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))                      // bits per sample
	buf.Write([]byte("data"))
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
}

// ReadWav decodes a PCM WAV file into a mono Sample, averaging channels.
// Integer samples are scaled to [-1,1] the inverse way PCM16 scales them.
func ReadWav(r io.ReadSeeker, name string) (*Sample, WavFormat, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, WavFormat{}, fmt.Errorf("%w: %s", ErrInvalidWav, name)
	}
	format := WavFormat{
		AudioFormat:   d.WavAudioFormat,
		NumChannels:   d.NumChans,
		SampleRate:    d.SampleRate,
		BitsPerSample: d.BitDepth,
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, format, fmt.Errorf("%w: %s: %v", ErrInvalidWav, name, err)
	}
	channels := 1
	if pcm.Format != nil && pcm.Format.NumChannels > 0 {
		channels = pcm.Format.NumChannels
	}
	depth := pcm.SourceBitDepth
	if depth == 0 {
		depth = int(format.BitsPerSample)
	}
	if depth <= 0 || depth > 32 {
		return nil, format, fmt.Errorf("%w: %s: unsupported bit depth %d", ErrInvalidWav, name, depth)
	}
	neg := float32(uint64(1) << (depth - 1))
	pos := neg - 1
	frames := len(pcm.Data) / channels
	data := make([]float32, frames)
	for i := range data {
		var sum float32
		for c := 0; c < channels; c++ {
			v := pcm.Data[i*channels+c]
			if v < 0 {
				sum += float32(v) / neg
			} else {
				sum += float32(v) / pos
			}
		}
		data[i] = sum / float32(channels)
	}
	return NewSample(name, int(format.SampleRate), data), format, nil
}

// ReadWavBytes is ReadWav for an in-memory file.
func ReadWavBytes(data []byte, name string) (*Sample, WavFormat, error) {
	return ReadWav(bytes.NewReader(data), name)
}
