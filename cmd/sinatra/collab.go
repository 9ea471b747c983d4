package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/sinatra-studio/sinatra"
	"github.com/sinatra-studio/sinatra/collab"
	"github.com/spf13/cobra"
)

var bpmCmd = &cobra.Command{
	Use:   "bpm <loop.wav>...",
	Short: "Detect the tempo of loops with the conversion service",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		for _, path := range args {
			wav, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("could not read %v: %w", path, err)
			}
			bpm, _, err := client.DetectBPM(cmd.Context(), filepath.Base(path), wav)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.2f\n", path, bpm)
		}
		return nil
	},
}

var renderFlags struct {
	instrument string
	sample     string
	out        string
	status     bool
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the latest transcription on another instrument",
	Long: `Render the take converted last by the conversion service on another
instrument. With --sample, the WAV file is uploaded as a one-shot and the
transcription is played on it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newClient()
		if renderFlags.status {
			h, err := client.Health(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", h.Status)
			for k, v := range h.Session {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", k, v)
			}
			return nil
		}
		instrument := collab.Instrument(renderFlags.instrument)
		if renderFlags.sample != "" {
			wav, err := os.ReadFile(renderFlags.sample)
			if err != nil {
				return fmt.Errorf("could not read sample: %w", err)
			}
			info, err := client.UploadSample(ctx, filepath.Base(renderFlags.sample), wav)
			if err != nil {
				return err
			}
			log.WithField("pitch", info.NoteName).Info("sample uploaded")
			instrument = collab.CustomSample
		}
		conv, err := client.Render(ctx, instrument)
		if err != nil {
			return err
		}
		wav, err := sinatra.Wav(conv.Render.Data, conv.Render.Rate)
		if err != nil {
			return err
		}
		if err := os.WriteFile(renderFlags.out, wav, 0644); err != nil {
			return fmt.Errorf("could not write %v: %w", renderFlags.out, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %d notes, %.2fs\n",
			renderFlags.out, strings.ToLower(conv.Instrument), len(conv.Notes), conv.Render.Duration())
		return nil
	},
}

var chordsFlags struct {
	bpm        float64
	beats      int
	instrument string
	octave     int
	velocity   int
	pattern    string
	out        string
}

var chordsCmd = &cobra.Command{
	Use:   "chords <progression>",
	Short: "Render a chord progression with the conversion service",
	Long: `Render a chord progression such as "C, Am, F, G7" to a WAV file. Chords are
separated by commas or spaces and each lasts --beats beats.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := sinatra.ChordProgression{
			Chords:        parseChords(args[0]),
			BPM:           chordsFlags.bpm,
			BeatsPerChord: chordsFlags.beats,
			Instrument:    chordsFlags.instrument,
			OctaveShift:   chordsFlags.octave,
			Velocity:      chordsFlags.velocity,
			Pattern:       chordsFlags.pattern,
		}
		sample, err := newClient().GenerateChords(cmd.Context(), p)
		if err != nil {
			return err
		}
		wav, err := sinatra.Wav(sample.Data, sample.Rate)
		if err != nil {
			return err
		}
		if err := os.WriteFile(chordsFlags.out, wav, 0644); err != nil {
			return fmt.Errorf("could not write %v: %w", chordsFlags.out, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chords, %.2fs\n", chordsFlags.out, len(p.Chords), sample.Duration())
		return nil
	},
}

// parseChords splits a progression on commas and whitespace.
func parseChords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

func init() {
	f := chordsCmd.Flags()
	f.Float64Var(&chordsFlags.bpm, "bpm", 120, "tempo of the progression")
	f.IntVar(&chordsFlags.beats, "beats", 4, "beats per chord")
	f.StringVar(&chordsFlags.instrument, "instrument", "Piano", "instrument to render on")
	f.IntVar(&chordsFlags.octave, "octave", 0, "octave shift (-2 to 2)")
	f.IntVar(&chordsFlags.velocity, "velocity", 80, "note velocity (1 to 127)")
	f.StringVar(&chordsFlags.pattern, "pattern", sinatra.BlockPattern, "block or arpeggiated")
	f.StringVarP(&chordsFlags.out, "out", "o", "chords.wav", "output WAV `file`")
}

func init() {
	f := renderCmd.Flags()
	f.StringVar(&renderFlags.instrument, "instrument", "Piano", "instrument to render on")
	f.StringVar(&renderFlags.sample, "sample", "", "render on this one-shot WAV `file`")
	f.StringVarP(&renderFlags.out, "out", "o", "render.wav", "output WAV `file`")
	f.BoolVar(&renderFlags.status, "status", false, "only print the service status")
}
