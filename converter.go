package sinatra

import (
	"context"
	"fmt"
)

type (
	// Converter is the conversion collaborator: it turns a captured take
	// into a note transcription and a render of those notes on an
	// instrument, and detects the tempo of uploaded loops. Calls may take
	// seconds; the engine never calls it from the audio or scheduling path.
	Converter interface {
		// Convert uploads a WAV take and returns its transcription and render.
		Convert(ctx context.Context, wav []byte, opts ConvertOptions) (Conversion, error)
		// Render renders the most recently converted take again with another
		// instrument.
		Render(ctx context.Context, instrument string) (Conversion, error)
		// DetectBPM uploads a loop and returns its tempo and the name the
		// collaborator stored it under.
		DetectBPM(ctx context.Context, filename string, wav []byte) (bpm float64, stored string, err error)
	}

	// ConvertOptions are the hints passed along with a take.
	ConvertOptions struct {
		Instrument string `yaml:"instrument"`
		Key        string `yaml:"key"`
		Scale      string `yaml:"scale"`
		Quantize   string `yaml:"quantize"`
		RawAudio   bool   `yaml:"rawAudio"` // keep the take as audio, no transcription
	}

	// Conversion is the result of a conversion: the rendered audio and the
	// transcribed notes. Notes is empty in raw audio mode.
	Conversion struct {
		Render     *Sample
		Notes      []Note
		Instrument string
	}

	// ChordGenerator renders chord progressions to audio.
	ChordGenerator interface {
		GenerateChords(ctx context.Context, p ChordProgression) (*Sample, error)
	}

	// ChordProgression is a sequence of chord symbols ("C", "Am", "G7"), each
	// held for BeatsPerChord beats at BPM. Pattern is BlockPattern or
	// ArpeggiatedPattern.
	ChordProgression struct {
		Chords        []string `yaml:"chords"`
		BPM           float64  `yaml:"bpm"`
		BeatsPerChord int      `yaml:"beatsPerChord"`
		Instrument    string   `yaml:"instrument"`
		OctaveShift   int      `yaml:"octaveShift"`
		Velocity      int      `yaml:"velocity"`
		Pattern       string   `yaml:"pattern"`
	}
)

const (
	BlockPattern       = "block"
	ArpeggiatedPattern = "arpeggiated"

	MaxChords = 64
)

// WithDefaults fills in the zero fields: 120 bpm, 4 beats per chord,
// velocity 80, block chords.
func (p ChordProgression) WithDefaults() ChordProgression {
	if p.BPM == 0 {
		p.BPM = 120
	}
	if p.BeatsPerChord == 0 {
		p.BeatsPerChord = 4
	}
	if p.Velocity == 0 {
		p.Velocity = 80
	}
	if p.Pattern == "" {
		p.Pattern = BlockPattern
	}
	return p
}

// Validate checks the progression against the limits the renderer accepts.
func (p ChordProgression) Validate() error {
	switch {
	case len(p.Chords) == 0:
		return fmt.Errorf("%w: no chords", ErrInvalidChords)
	case len(p.Chords) > MaxChords:
		return fmt.Errorf("%w: %d chords, at most %d allowed", ErrInvalidChords, len(p.Chords), MaxChords)
	case p.BPM < 40 || p.BPM > 300:
		return fmt.Errorf("%w: bpm %v outside [40, 300]", ErrInvalidChords, p.BPM)
	case p.BeatsPerChord < 1 || p.BeatsPerChord > 16:
		return fmt.Errorf("%w: %d beats per chord outside [1, 16]", ErrInvalidChords, p.BeatsPerChord)
	case p.OctaveShift < -2 || p.OctaveShift > 2:
		return fmt.Errorf("%w: octave shift %d outside [-2, 2]", ErrInvalidChords, p.OctaveShift)
	case p.Velocity < 1 || p.Velocity > 127:
		return fmt.Errorf("%w: velocity %d outside [1, 127]", ErrInvalidChords, p.Velocity)
	case p.Pattern != BlockPattern && p.Pattern != ArpeggiatedPattern:
		return fmt.Errorf("%w: unknown pattern %q", ErrInvalidChords, p.Pattern)
	}
	for i, c := range p.Chords {
		if c == "" {
			return fmt.Errorf("%w: chord %d is empty", ErrInvalidChords, i)
		}
	}
	return nil
}

// Duration is the length of the progression in seconds.
func (p ChordProgression) Duration() float64 {
	return float64(len(p.Chords)*p.BeatsPerChord) * 60 / p.BPM
}
