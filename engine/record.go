package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/sinatra-studio/sinatra"
	"github.com/sirupsen/logrus"
)

// StartRecording starts capturing a take for the given track. If the
// transport is not running, it is started from the current position once
// the microphone is open, so the take is captured against the accompaniment
// that is sounding; if it is running, the take starts where the playhead is
// when capturing begins.
func (e *Engine) StartRecording(ctx context.Context, trackID string) error {
	p := e.Project()
	i, err := track(p, trackID)
	if err != nil {
		return err
	}
	if p.Tracks[i].IsLoop() {
		return sinatra.ErrLoopTrack
	}
	err = e.recorder.Start(ctx, trackID, func() float64 {
		if e.transport.Running() {
			return e.transport.Position()
		}
		pos := e.transport.Position()
		e.transport.Start(pos)
		return pos
	})
	switch {
	case errors.Is(err, context.Canceled):
		e.log.WithField("track", trackID).Info("recording cancelled before capture began")
		return err
	case err != nil:
		e.alert("RecordingFailed", Error, "Could not start recording: %v", err)
		return err
	}
	e.log.WithField("track", trackID).Info("recording started")
	return nil
}

// StopRecording finishes the take and punches it in on its track at the
// position recording started: the parts of existing clips it covers are
// trimmed away. Playback keeps running. It returns the id of the new clip.
// If conversion is enabled, the take is then sent to the converter and the
// clip's audio is swapped for the render when it arrives.
func (e *Engine) StopRecording() (string, error) {
	take, err := e.recorder.Stop()
	if err != nil {
		switch {
		case errors.Is(err, sinatra.ErrSilentRecording):
			e.alert("SilentRecording", Warning, "Recording was silent, nothing was added")
		case errors.Is(err, sinatra.ErrEmptyCapture):
			e.alert("EmptyRecording", Warning, "No audio was captured")
		case errors.Is(err, sinatra.ErrNotRecording):
		default:
			e.alert("RecordingFailed", Error, "Recording failed: %v", err)
		}
		return "", err
	}
	c := sinatra.Clip{
		ID:                  e.newID(),
		StartSec:            take.StartSec,
		DurationSec:         take.Sample.Duration(),
		OffsetSec:           0,
		OriginalDurationSec: take.Sample.Duration(),
		Source:              take.Sample,
	}
	err = e.edit(true, func(p *sinatra.Project) error {
		i, err := track(p, take.TrackID)
		if err != nil {
			return err
		}
		return p.Tracks[i].PunchIn(c, e.newID)
	})
	if err != nil {
		e.alert("RecordingFailed", Error, "Take could not be added: %v", err)
		return "", fmt.Errorf("inserting take: %w", err)
	}
	e.log.WithFields(logrus.Fields{"track": take.TrackID, "clip": c.ID, "from": c.StartSec, "peak": take.Peak}).Info("take added")
	e.broker.Emit(ClipEvent{Kind: ClipAdded, TrackID: take.TrackID, Clip: c})
	if e.cfg.Convert && e.converter != nil {
		go e.convert(c.ID, take.Wav, e.cfg.ConvertOptions)
	}
	return c.ID, nil
}

// convert runs on its own goroutine; the result is applied by the engine
// goroutine.
func (e *Engine) convert(clipID string, wav []byte, opts sinatra.ConvertOptions) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ConvertTimeout)
	defer cancel()
	conv, err := e.converter.Convert(ctx, wav, opts)
	msg := conversionResult{clipID: clipID, conversion: conv, err: err}
	if !TrySend[any](e.broker.ToEngine, msg) {
		e.log.WithField("clip", clipID).Warn("engine busy, conversion result dropped")
	}
}

// applyConversion swaps the clip's audio for the converter's render. The
// clip keeps its place and length on the timeline. The change completes the
// take rather than being an edit of its own, so it amends the current
// history entry. A failed conversion leaves the raw take in place.
func (e *Engine) applyConversion(r conversionResult) {
	log := e.log.WithField("clip", r.clipID)
	if r.err == nil && !r.conversion.Render.Valid() {
		r.err = &sinatra.CollaboratorError{Endpoint: "/render", Detail: "empty render"}
	}
	if r.err != nil {
		log.WithField("err", r.err).Warn("conversion failed, keeping raw take")
		e.alert("ConversionFailed", Warning, "Conversion failed, the raw recording was kept: %v", r.err)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.Project().Copy()
	c, trackID, ok := swapSource(&p, r.clipID, r.conversion)
	if !ok {
		log.Debug("converted clip no longer exists")
		return
	}
	if err := e.publish(&p, false, true); err != nil {
		log.WithField("err", err).Warn("could not apply conversion")
		return
	}
	e.lastConverted = r.clipID
	e.broker.Emit(ClipEvent{Kind: ClipUpdated, TrackID: trackID, Clip: c})
	log.WithField("notes", len(c.Notes)).Info("conversion applied")
}

// Rerender renders the transcription of the latest converted take with
// another instrument and swaps it in.
func (e *Engine) Rerender(ctx context.Context, clipID, instrument string) error {
	if e.converter == nil {
		return &sinatra.CollaboratorError{Endpoint: "/render", Detail: "no conversion service configured"}
	}
	e.mu.Lock()
	latest := e.lastConverted
	e.mu.Unlock()
	if clipID != latest {
		return &sinatra.CollaboratorError{Endpoint: "/render", Detail: "only the latest converted take can be rendered again"}
	}
	conv, err := e.converter.Render(ctx, instrument)
	if err == nil && !conv.Render.Valid() {
		err = &sinatra.CollaboratorError{Endpoint: "/render", Detail: "empty render"}
	}
	if err != nil {
		e.alert("RenderFailed", Warning, "Render failed: %v", err)
		return err
	}
	var c sinatra.Clip
	var trackID string
	err = e.edit(true, func(p *sinatra.Project) error {
		var ok bool
		if c, trackID, ok = swapSource(p, clipID, conv); !ok {
			return fmt.Errorf("%w: %s", sinatra.ErrUnknownClip, clipID)
		}
		return nil
	})
	if err == nil {
		e.broker.Emit(ClipEvent{Kind: ClipUpdated, TrackID: trackID, Clip: c})
	}
	return err
}

func swapSource(p *sinatra.Project, clipID string, conv sinatra.Conversion) (sinatra.Clip, string, bool) {
	ti, ci, ok := p.Clip(clipID)
	if !ok || !conv.Render.Valid() {
		return sinatra.Clip{}, "", false
	}
	c := &p.Tracks[ti].Clips[ci]
	c.Source = conv.Render
	c.Notes = conv.Notes
	c.Instrument = conv.Instrument
	c.OriginalDurationSec = max(conv.Render.Duration(), c.OffsetSec+c.DurationSec)
	return *c, p.Tracks[ti].ID, true
}

// LoadLoop decodes a WAV loop and makes it the source of the loop track. If
// a converter is configured, the loop's tempo is detected and becomes the
// project tempo; a failed detection keeps the current tempo.
func (e *Engine) LoadLoop(ctx context.Context, name string, wav []byte) (float64, error) {
	sample, _, err := sinatra.ReadWavBytes(wav, name)
	if err != nil {
		return 0, err
	}
	bpm := e.Project().BPM
	if e.converter != nil {
		detected, stored, err := e.converter.DetectBPM(ctx, name, wav)
		switch {
		case err != nil:
			e.log.WithField("err", err).Warn("tempo detection failed")
			e.alert("TempoDetectionFailed", Warning, "Could not detect the loop tempo: %v", err)
		case detected > 0:
			bpm = detected
			e.log.WithFields(logrus.Fields{"bpm": bpm, "stored": stored}).Info("loop tempo detected")
		}
	}
	err = e.edit(true, func(p *sinatra.Project) error {
		p.BPM = bpm
		p.LoopTrack().Loop = sample
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.broker.Emit(TempoEvent{BPM: bpm})
	return bpm, nil
}
