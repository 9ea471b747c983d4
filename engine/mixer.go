package engine

import "github.com/sinatra-studio/sinatra"

// Mixer resolves the live gain of every track from the published project.
// It holds no state of its own: gain changes are project edits, and the
// player reads the result on its next buffer, so they apply immediately
// without touching the playhead or the scheduled voices.
type Mixer struct {
	project func() *sinatra.Project
}

func NewMixer(project func() *sinatra.Project) *Mixer {
	return &Mixer{project: project}
}

// EffectiveGain returns the gain of the track with the given id, or 0 if
// there is no such track.
func (m *Mixer) EffectiveGain(trackID string) float64 {
	p := m.project()
	i, ok := p.Track(trackID)
	if !ok {
		return 0
	}
	return EffectiveGain(p, &p.Tracks[i])
}

// EffectiveGain is muted ? 0 : volume * master. When any track is soloed,
// every other track except the loop track is silent.
func EffectiveGain(p *sinatra.Project, t *sinatra.Track) float64 {
	if t.Muted {
		return 0
	}
	if !t.IsLoop() && !t.Solo && p.SoloActive() {
		return 0
	}
	return t.Volume * p.MasterVolume
}

// audible reports whether the scheduler should start voices for the track.
func audible(t *sinatra.Track, soloActive bool) bool {
	if t.Muted {
		return false
	}
	return t.IsLoop() || t.Solo || !soloActive
}

// toggleMute mutes the track, remembering its volume, or unmutes it,
// restoring the remembered volume.
func toggleMute(t *sinatra.Track) {
	if t.Muted {
		t.Muted = false
		t.Volume = t.UnmutedVolume
		if t.Volume <= 0 {
			t.Volume = sinatra.DefaultUnmutedVolume
		}
		return
	}
	if t.Volume > 0 {
		t.UnmutedVolume = t.Volume
	} else if t.UnmutedVolume <= 0 {
		t.UnmutedVolume = sinatra.DefaultUnmutedVolume
	}
	t.Volume = 0
	t.Muted = true
}

// setVolume clamps v to [0,1]. Raising the volume of a muted track unmutes
// it.
func setVolume(t *sinatra.Track, v float64) {
	v = min(max(v, 0), 1)
	t.Volume = v
	if v > 0 {
		t.UnmutedVolume = v
		t.Muted = false
	}
}
