package engine

import (
	"fmt"
	"slices"

	"github.com/sinatra-studio/sinatra"
)

// DefaultInstrument is the instrument new tracks are created with.
const DefaultInstrument = "Piano"

// AddTrack appends a new empty track and returns its id.
func (e *Engine) AddTrack(name string) (string, error) {
	id := e.newID()
	err := e.edit(false, func(p *sinatra.Project) error {
		if name == "" {
			name = fmt.Sprintf("Track %d", len(p.Tracks))
		}
		p.Tracks = append(p.Tracks, sinatra.Track{
			ID:            id,
			Name:          name,
			Volume:        sinatra.DefaultUnmutedVolume,
			UnmutedVolume: sinatra.DefaultUnmutedVolume,
			Instrument:    DefaultInstrument,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// DeleteTrack removes a track and its clips. The loop track and the target
// of a recording in progress cannot be deleted.
func (e *Engine) DeleteTrack(id string) error {
	if rec, ok := e.recorder.TrackID(); ok && rec == id {
		return fmt.Errorf("track %s: %w", id, sinatra.ErrRecordingActive)
	}
	return e.edit(true, func(p *sinatra.Project) error {
		i, err := track(p, id)
		if err != nil {
			return err
		}
		if p.Tracks[i].IsLoop() {
			return sinatra.ErrLoopTrack
		}
		p.Tracks = slices.Delete(p.Tracks, i, i+1)
		return nil
	})
}

func (e *Engine) RenameTrack(id, name string) error {
	return e.editTrack(id, false, func(t *sinatra.Track) error {
		t.Name = name
		return nil
	})
}

func (e *Engine) SetInstrument(id, instrument string) error {
	return e.editTrack(id, false, func(t *sinatra.Track) error {
		t.Instrument = instrument
		return nil
	})
}

// SetVolume sets the volume of a track, clamped to [0, 1]. The change is
// heard on the next rendered buffer.
func (e *Engine) SetVolume(id string, v float64) error {
	return e.editTrack(id, false, func(t *sinatra.Track) error {
		setVolume(t, v)
		return nil
	})
}

// ToggleMute mutes or unmutes a track, rescheduling playback.
func (e *Engine) ToggleMute(id string) error {
	return e.editTrack(id, true, func(t *sinatra.Track) error {
		toggleMute(t)
		return nil
	})
}

// SetSolo solos or unsolos a track, rescheduling playback.
func (e *Engine) SetSolo(id string, solo bool) error {
	return e.editTrack(id, true, func(t *sinatra.Track) error {
		t.Solo = solo
		return nil
	})
}

func (e *Engine) SetMasterVolume(v float64) error {
	return e.edit(false, func(p *sinatra.Project) error {
		p.MasterVolume = min(max(v, 0), 1)
		return nil
	})
}

// SetBPM changes the tempo. A running metronome picks it up at the next
// beat it schedules.
func (e *Engine) SetBPM(bpm float64) error {
	if bpm <= 0 {
		return fmt.Errorf("invalid tempo %v", bpm)
	}
	err := e.edit(false, func(p *sinatra.Project) error {
		p.BPM = bpm
		return nil
	})
	if err == nil {
		e.broker.Emit(TempoEvent{BPM: bpm})
	}
	return err
}

func (e *Engine) editTrack(id string, reschedule bool, f func(t *sinatra.Track) error) error {
	return e.edit(reschedule, func(p *sinatra.Project) error {
		i, err := track(p, id)
		if err != nil {
			return err
		}
		return f(&p.Tracks[i])
	})
}

func track(p *sinatra.Project, id string) (int, error) {
	i, ok := p.Track(id)
	if !ok {
		return -1, fmt.Errorf("%w: %s", sinatra.ErrUnknownTrack, id)
	}
	return i, nil
}
