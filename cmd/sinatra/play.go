package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sinatra-studio/sinatra"
	"github.com/sinatra-studio/sinatra/engine"
	"github.com/spf13/cobra"
)

var playFlags struct {
	duration    time.Duration
	bpm         float64
	detect      bool
	noMetronome bool
	chords      string
	pattern     string
	instrument  string
}

var playCmd = &cobra.Command{
	Use:   "play <loop.wav>",
	Short: "Play a loop against the metronome",
	Long: `Play a WAV loop continuously with the metronome clicking on the beat. With
--detect, the loop is sent to the conversion service and its tempo becomes the
project tempo. With --chords, the progression is rendered by the service at
the project tempo and placed on its own track. Playback runs until interrupted or until --duration passes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wav, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("could not read loop: %w", err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		backend := playFlags.detect || playFlags.chords != ""
		return runSession(ctx, nil, backend, func(ctx context.Context, s *session) error {
			e := s.engine
			bpm, err := e.LoadLoop(ctx, filepath.Base(args[0]), wav)
			if err != nil {
				return fmt.Errorf("could not load loop: %w", err)
			}
			if playFlags.bpm > 0 {
				if err := e.SetBPM(playFlags.bpm); err != nil {
					return err
				}
				bpm = playFlags.bpm
			}
			if playFlags.chords != "" {
				if err := addChords(ctx, e); err != nil {
					return err
				}
			}
			if playFlags.noMetronome {
				e.SetMetronome(false)
			}
			log.WithField("bpm", bpm).Info("playing")
			e.Play()
			waitFor(ctx, playFlags.duration)
			pos := e.Position()
			e.Stop()
			log.WithField("position", pos).Info("stopped")
			return nil
		})
	},
}

func init() {
	f := playCmd.Flags()
	f.DurationVarP(&playFlags.duration, "duration", "d", 0, "stop after this long (0 plays until interrupted)")
	f.Float64Var(&playFlags.bpm, "bpm", 0, "project tempo (overrides detection)")
	f.BoolVar(&playFlags.detect, "detect", false, "detect the loop tempo with the conversion service")
	f.BoolVar(&playFlags.noMetronome, "no-metronome", false, "disable the metronome")
	f.StringVar(&playFlags.chords, "chords", "", "play this chord progression along, e.g. \"C,Am,F,G\"")
	f.StringVar(&playFlags.pattern, "chord-pattern", sinatra.BlockPattern, "block or arpeggiated")
	f.StringVar(&playFlags.instrument, "chord-instrument", "Piano", "instrument for the chords")
}

func addChords(ctx context.Context, e *engine.Engine) error {
	tr, err := e.AddTrack("Chords")
	if err != nil {
		return err
	}
	_, err = e.AddChords(ctx, tr, 0, sinatra.ChordProgression{
		Chords:     parseChords(playFlags.chords),
		Instrument: playFlags.instrument,
		Pattern:    playFlags.pattern,
	})
	if err != nil {
		return fmt.Errorf("could not add chords: %w", err)
	}
	return nil
}

// waitFor blocks until ctx is done or d passes; a zero d waits for ctx only.
func waitFor(ctx context.Context, d time.Duration) {
	if d <= 0 {
		<-ctx.Done()
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
