package engine

import (
	"context"
	"fmt"

	"github.com/sinatra-studio/sinatra"
)

// ImportClip places the whole of a decoded sample on a track at the given
// start and returns the id of the new clip.
func (e *Engine) ImportClip(trackID string, sample *sinatra.Sample, start float64) (string, error) {
	if !sample.Valid() {
		return "", fmt.Errorf("%w: empty sample", sinatra.ErrInvalidClip)
	}
	c := sinatra.Clip{
		ID:                  e.newID(),
		StartSec:            start,
		DurationSec:         sample.Duration(),
		OriginalDurationSec: sample.Duration(),
		Source:              sample,
	}
	err := e.edit(true, func(p *sinatra.Project) error {
		i, err := track(p, trackID)
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		return p.Tracks[i].Insert(c)
	})
	if err != nil {
		return "", err
	}
	e.broker.Emit(ClipEvent{Kind: ClipAdded, TrackID: trackID, Clip: c})
	return c.ID, nil
}

// AddChords renders a chord progression with the chord service and places it
// on a track starting at the given beat. A progression without a tempo
// follows the project.
func (e *Engine) AddChords(ctx context.Context, trackID string, startBeat float64, p sinatra.ChordProgression) (string, error) {
	if e.chords == nil {
		return "", &sinatra.CollaboratorError{Endpoint: "/generate-chords", Detail: "no chord service configured"}
	}
	if startBeat < 0 {
		return "", fmt.Errorf("%w: negative start beat", sinatra.ErrInvalidClip)
	}
	bpm := e.tempo()
	if p.BPM == 0 {
		p.BPM = bpm
	}
	sample, err := e.chords.GenerateChords(ctx, p)
	if err == nil && !sample.Valid() {
		err = &sinatra.CollaboratorError{Endpoint: "/generate-chords", Detail: "empty render"}
	}
	if err != nil {
		e.alert("ChordsFailed", Warning, "Chord generation failed: %v", err)
		return "", err
	}
	return e.ImportClip(trackID, sample, startBeat*60/bpm)
}

// MoveClip moves a clip to the given start on the given track, possibly the
// one it is on. Moves that would overlap another clip fail with
// ErrClipOverlap and leave the project unchanged.
func (e *Engine) MoveClip(clipID, toTrack string, start float64) error {
	var moved sinatra.Clip
	err := e.edit(true, func(p *sinatra.Project) error {
		ti, _, err := clip(p, clipID)
		if err != nil {
			return err
		}
		to, err := track(p, toTrack)
		if err != nil {
			return err
		}
		moved, _ = p.Tracks[ti].Remove(clipID)
		moved.StartSec = start
		if err := moved.Validate(); err != nil {
			return err
		}
		return p.Tracks[to].Insert(moved)
	})
	if err == nil {
		e.broker.Emit(ClipEvent{Kind: ClipUpdated, TrackID: toTrack, Clip: moved})
	}
	return err
}

// TrimClip sets the audible window of a clip to [start, start+duration) on
// the timeline, keeping the audio under the window in place: moving the
// start moves the source offset by the same amount.
func (e *Engine) TrimClip(clipID string, start, duration float64) error {
	var trimmed sinatra.Clip
	var trackID string
	err := e.edit(true, func(p *sinatra.Project) error {
		ti, ci, err := clip(p, clipID)
		if err != nil {
			return err
		}
		t := &p.Tracks[ti]
		c := t.Clips[ci]
		c.OffsetSec += start - c.StartSec
		c.StartSec = start
		c.DurationSec = duration
		if err := c.Validate(); err != nil {
			return err
		}
		if t.Overlaps(start, duration, clipID) {
			return fmt.Errorf("%w: trimming clip %s", sinatra.ErrClipOverlap, clipID)
		}
		t.Clips[ci] = c
		trimmed, trackID = c, t.ID
		return nil
	})
	if err == nil {
		e.broker.Emit(ClipEvent{Kind: ClipUpdated, TrackID: trackID, Clip: trimmed})
	}
	return err
}

// SplitClip cuts a clip in two at the timeline position at, which must lie
// strictly inside it. It returns the id of the right half.
func (e *Engine) SplitClip(clipID string, at float64) (string, error) {
	var left, right sinatra.Clip
	var trackID string
	id := e.newID()
	err := e.edit(true, func(p *sinatra.Project) error {
		ti, ci, err := clip(p, clipID)
		if err != nil {
			return err
		}
		t := &p.Tracks[ti]
		left = t.Clips[ci]
		if at <= left.StartSec || at >= left.End() {
			return fmt.Errorf("%w: split point %v outside clip %s", sinatra.ErrInvalidClip, at, clipID)
		}
		right = left.Copy()
		cut := at - left.StartSec
		right.ID = id
		right.StartSec = at
		right.OffsetSec += cut
		right.DurationSec -= cut
		left.DurationSec = cut
		t.Clips[ci] = left
		trackID = t.ID
		return t.Insert(right)
	})
	if err != nil {
		return "", err
	}
	e.broker.Emit(ClipEvent{Kind: ClipUpdated, TrackID: trackID, Clip: left})
	e.broker.Emit(ClipEvent{Kind: ClipAdded, TrackID: trackID, Clip: right})
	return id, nil
}

func (e *Engine) DeleteClip(clipID string) error {
	var removed sinatra.Clip
	var trackID string
	err := e.edit(true, func(p *sinatra.Project) error {
		ti, _, err := clip(p, clipID)
		if err != nil {
			return err
		}
		removed, _ = p.Tracks[ti].Remove(clipID)
		trackID = p.Tracks[ti].ID
		return nil
	})
	if err == nil {
		e.broker.Emit(ClipEvent{Kind: ClipRemoved, TrackID: trackID, Clip: removed})
	}
	return err
}

func clip(p *sinatra.Project, id string) (track, clip int, err error) {
	ti, ci, ok := p.Clip(id)
	if !ok {
		return -1, -1, fmt.Errorf("%w: %s", sinatra.ErrUnknownClip, id)
	}
	return ti, ci, nil
}
