package sinatra

import "math"

// Sample is a decoded, immutable mono audio buffer. It is the playable handle
// behind every clip and the loop track, and what the presentation layer
// draws waveforms from. Once created, Data must not be modified; edits
// create new Samples.
type Sample struct {
	Name string
	Rate int
	Data []float32
}

// NewSample wraps the given mono data.
func NewSample(name string, rate int, data []float32) *Sample {
	return &Sample{Name: name, Rate: rate, Data: data}
}

// Valid reports whether the sample can be played.
func (s *Sample) Valid() bool {
	return s != nil && s.Rate > 0 && len(s.Data) > 0
}

// Duration returns the length of the sample in seconds.
func (s *Sample) Duration() float64 {
	if s == nil || s.Rate <= 0 {
		return 0
	}
	return float64(len(s.Data)) / float64(s.Rate)
}

// At returns the sample value at the given source position, using linear
// interpolation. Positions outside the sample are silent.
func (s *Sample) At(sec float64) float32 {
	pos := sec * float64(s.Rate)
	if pos < 0 {
		return 0
	}
	i := int(pos)
	if i >= len(s.Data) {
		return 0
	}
	if i+1 >= len(s.Data) {
		return s.Data[i]
	}
	frac := float32(pos - float64(i))
	return s.Data[i]*(1-frac) + s.Data[i+1]*frac
}

// Peaks summarises the sample in n buckets, each holding the maximum
// absolute amplitude of its part of the sample.
func (s *Sample) Peaks(n int) []float32 {
	if n <= 0 || !s.Valid() {
		return nil
	}
	ret := make([]float32, n)
	per := float64(len(s.Data)) / float64(n)
	for b := range ret {
		from := int(math.Floor(float64(b) * per))
		to := int(math.Floor(float64(b+1) * per))
		if to <= from {
			to = from + 1
		}
		if to > len(s.Data) {
			to = len(s.Data)
		}
		var peak float32
		for _, v := range s.Data[from:to] {
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
		ret[b] = peak
	}
	return ret
}
