package sinatra_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/sinatra-studio/sinatra"
)

func sine(n, rate int, freq, amp float64) []float32 {
	ret := make([]float32, n)
	for i := range ret {
		ret[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return ret
}

func TestWavHeaderFields(t *testing.T) {
	data, err := sinatra.Wav(sine(100, 48000, 440, 0.5), 48000)
	if err != nil {
		t.Fatalf("Wav failed: %v", err)
	}
	if len(data) != 44+200 {
		t.Fatalf("expected %d bytes, got %d", 44+200, len(data))
	}
	le := binary.LittleEndian
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"riff size", le.Uint32(data[4:8]), 36 + 200},
		{"fmt size", le.Uint32(data[16:20]), 16},
		{"format tag", uint32(le.Uint16(data[20:22])), 1},
		{"channels", uint32(le.Uint16(data[22:24])), 1},
		{"sample rate", le.Uint32(data[24:28]), 48000},
		{"byte rate", le.Uint32(data[28:32]), 96000},
		{"block align", uint32(le.Uint16(data[32:34])), 2},
		{"bits", uint32(le.Uint16(data[34:36])), 16},
		{"data size", le.Uint32(data[40:44]), 200},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, c.got, c.want)
		}
	}
	for _, tag := range []struct {
		at  int
		tag string
	}{{0, "RIFF"}, {8, "WAVE"}, {12, "fmt "}, {36, "data"}} {
		if string(data[tag.at:tag.at+4]) != tag.tag {
			t.Errorf("expected %q at %d, got %q", tag.tag, tag.at, data[tag.at:tag.at+4])
		}
	}
}

func TestPCM16Scaling(t *testing.T) {
	cases := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{0.5, 16383},
		{-0.5, -16384},
		{2, 32767},
		{-3, -32768},
	}
	for _, c := range cases {
		if got := sinatra.PCM16(c.in); got != c.want {
			t.Errorf("PCM16(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestWavRoundTripHeader(t *testing.T) {
	for _, rate := range []int{22050, 44100, 48000} {
		original, err := sinatra.Wav(sine(rate/10, rate, 220, 0.8), rate)
		if err != nil {
			t.Fatalf("Wav failed: %v", err)
		}
		sample, format, err := sinatra.ReadWavBytes(original, "roundtrip.wav")
		if err != nil {
			t.Fatalf("ReadWav failed: %v", err)
		}
		if format.AudioFormat != 1 || format.NumChannels != 1 || format.BitsPerSample != 16 || int(format.SampleRate) != rate {
			t.Fatalf("unexpected format %+v", format)
		}
		reencoded, err := sinatra.Wav(sample.Data, int(format.SampleRate))
		if err != nil {
			t.Fatalf("Wav failed: %v", err)
		}
		if !bytes.Equal(original[:44], reencoded[:44]) {
			t.Errorf("rate %d: header changed after round trip\n%x\n%x", rate, original[:44], reencoded[:44])
		}
	}
}

func TestReadWavRejectsGarbage(t *testing.T) {
	if _, _, err := sinatra.ReadWavBytes([]byte("definitely not a wav file at all......"), "junk"); err == nil {
		t.Fatal("expected an error for invalid data")
	}
}
