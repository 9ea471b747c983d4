package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sinatra-studio/sinatra"
	"github.com/sinatra-studio/sinatra/engine"
	"github.com/sinatra-studio/sinatra/mic"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var recordFlags struct {
	input      string
	loop       string
	duration   time.Duration
	out        string
	midi       string
	convert    bool
	instrument string
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a take, optionally over a loop",
	Long: `Record a take from the default input device (or from a WAV file with
--input), optionally while a loop plays. The take is gated, normalized and
written to --out. With --convert, it is sent to the conversion service first
and the render is written instead; --midi also saves the transcription.
Recording runs until interrupted or until --duration passes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var m sinatra.Microphone = mic.Default()
		if recordFlags.input != "" {
			m = mic.File{Path: recordFlags.input, Realtime: true}
		}
		if cmd.Flags().Changed("convert") {
			cfg.Convert.Enabled = recordFlags.convert
		}
		if recordFlags.instrument != "" {
			cfg.Convert.Instrument = recordFlags.instrument
		}
		return runSession(cmd.Context(), m, cfg.Convert.Enabled, record)
	},
}

func init() {
	f := recordCmd.Flags()
	f.StringVarP(&recordFlags.input, "input", "i", "", "capture from a WAV `file` instead of the input device")
	f.StringVar(&recordFlags.loop, "loop", "", "play this WAV `file` as the loop while recording")
	f.DurationVarP(&recordFlags.duration, "duration", "d", 0, "stop after this long (0 records until interrupted)")
	f.StringVarP(&recordFlags.out, "out", "o", "take.wav", "output WAV `file`")
	f.StringVar(&recordFlags.midi, "midi", "", "also write the transcription to this MIDI `file`")
	f.BoolVar(&recordFlags.convert, "convert", false, "convert the take with the conversion service")
	f.StringVar(&recordFlags.instrument, "instrument", "", "instrument to render the take on")
}

func record(ctx context.Context, s *session) error {
	e := s.engine
	if recordFlags.loop != "" {
		wav, err := os.ReadFile(recordFlags.loop)
		if err != nil {
			return fmt.Errorf("could not read loop: %w", err)
		}
		if _, err := e.LoadLoop(ctx, filepath.Base(recordFlags.loop), wav); err != nil {
			return fmt.Errorf("could not load loop: %w", err)
		}
	}
	trackID, err := e.AddTrack("Take")
	if err != nil {
		return err
	}
	if err := e.SetInstrument(trackID, cfg.Convert.Instrument); err != nil {
		return err
	}
	// the conversion may finish before StopRecording returns the clip id
	converted := make(chan engine.Event, 8)
	s.listen(func(ev engine.Event) {
		switch ev := ev.(type) {
		case engine.ClipEvent:
			if ev.Kind == engine.ClipUpdated && ev.TrackID == trackID {
				engine.TrySend(converted, engine.Event(ev))
			}
		case engine.Alert:
			if ev.Name == "ConversionFailed" {
				engine.TrySend(converted, engine.Event(ev))
			}
		}
	})

	if err := e.StartRecording(ctx, trackID); err != nil {
		return err
	}
	log.Info("recording, interrupt to stop")
	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	waitFor(stopCtx, recordFlags.duration)
	stop()
	clipID, err := e.StopRecording()
	e.Stop()
	if err != nil {
		if errors.Is(err, sinatra.ErrSilentRecording) || errors.Is(err, sinatra.ErrEmptyCapture) {
			return fmt.Errorf("nothing recorded: %w", err)
		}
		return err
	}

	if cfg.Convert.Enabled {
		timeout := cfg.Backend.Timeout + 5*time.Second
		select {
		case ev := <-converted:
			if a, ok := ev.(engine.Alert); ok {
				log.WithField("alert", a.Name).Warn("writing the raw take")
			} else if recordFlags.midi != "" {
				if err := writeMIDI(ctx, s, recordFlags.midi); err != nil {
					return err
				}
			}
		case <-time.After(timeout):
			log.Warn("conversion timed out, writing the raw take")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return writeClip(e.Project(), clipID, recordFlags.out)
}

// writeClip writes the audible window of a clip as a WAV file.
func writeClip(p *sinatra.Project, clipID, path string) error {
	ti, ci, ok := p.Clip(clipID)
	if !ok {
		return fmt.Errorf("%w: %s", sinatra.ErrUnknownClip, clipID)
	}
	c := p.Tracks[ti].Clips[ci]
	rate := float64(c.Source.Rate)
	from := min(int(c.OffsetSec*rate), len(c.Source.Data))
	to := min(from+int(c.DurationSec*rate), len(c.Source.Data))
	wav, err := sinatra.Wav(c.Source.Data[from:to], c.Source.Rate)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, wav, 0644); err != nil {
		return fmt.Errorf("could not write %v: %w", path, err)
	}
	log.WithFields(logrus.Fields{"clip": clipID, "file": path, "notes": len(c.Notes)}).Info("take written")
	return nil
}

func writeMIDI(ctx context.Context, s *session, path string) error {
	midi, err := s.client.DownloadMIDI(ctx)
	if err != nil {
		return fmt.Errorf("could not download transcription: %w", err)
	}
	if err := os.WriteFile(path, midi, 0644); err != nil {
		return fmt.Errorf("could not write %v: %w", path, err)
	}
	return nil
}
