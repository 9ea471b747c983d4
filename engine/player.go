package engine

import (
	"math"
	"sync"

	"github.com/sinatra-studio/sinatra"
)

type (
	// Graph is the audio graph the schedulers drive. Its clock is the audio
	// device clock: CurrentTime advances only as frames are actually
	// rendered, so events scheduled against it are sample accurate.
	Graph interface {
		CurrentTime() float64
		// Start schedules a voice to sound from audio time v.At.
		Start(v Voice) VoiceID
		// Stop silences a voice, whether it has started or not.
		Stop(id VoiceID)
		// Click schedules a metronome click at the given audio time.
		Click(at float64, accent bool)
		// CancelClicks drops clicks that have not yet finished sounding.
		CancelClicks()
	}

	// Voice is one playback of a clip window (or of the loop) on the graph.
	// At is in audio clock seconds; Offset and Duration are in source
	// seconds. A zero Duration plays until stopped.
	Voice struct {
		TrackID  string
		ClipID   string
		Source   *sinatra.Sample
		At       float64
		Offset   float64
		Duration float64
		Loop     bool
	}

	VoiceID uint64

	// GainFunc returns the live gain of a track.
	GainFunc func(trackID string) float64

	// Player is the Graph rendering to the audio output. Process is called
	// from the audio goroutine; the other methods from the engine.
	Player struct {
		mu         sync.Mutex
		sampleRate int
		frame      int64
		nextID     VoiceID
		voices     []playerVoice
		clicks     []click
		gain       GainFunc
	}

	playerVoice struct {
		id VoiceID
		Voice
	}

	click struct {
		at     float64
		accent bool
	}
)

const (
	clickLength     = 0.05 // seconds
	clickDecay      = 0.012
	clickFreq       = 1000.0
	clickAccentFreq = 1500.0
	clickLevel      = 0.5
	clickAccentLvl  = 0.9
)

func NewPlayer(sampleRate int, gain GainFunc) *Player {
	if gain == nil {
		gain = func(string) float64 { return 1 }
	}
	return &Player{sampleRate: sampleRate, gain: gain}
}

func (p *Player) SampleRate() int { return p.sampleRate }

// SetGain replaces the function the player reads live track gains from.
func (p *Player) SetGain(gain GainFunc) {
	p.mu.Lock()
	p.gain = gain
	p.mu.Unlock()
}

func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.frame) / float64(p.sampleRate)
}

func (p *Player) Start(v Voice) VoiceID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.voices = append(p.voices, playerVoice{id: p.nextID, Voice: v})
	return p.nextID
}

func (p *Player) Stop(id VoiceID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.voices {
		if p.voices[i].id == id {
			p.voices = append(p.voices[:i], p.voices[i+1:]...)
			return
		}
	}
}

func (p *Player) Click(at float64, accent bool) {
	p.mu.Lock()
	p.clicks = append(p.clicks, click{at: at, accent: accent})
	p.mu.Unlock()
}

func (p *Player) CancelClicks() {
	p.mu.Lock()
	p.clicks = p.clicks[:0]
	p.mu.Unlock()
}

// Voices returns the number of voices that are scheduled or sounding.
func (p *Player) Voices() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.voices)
}

// Process renders the next buffer. Voices that have played their whole
// window and clicks that have decayed are dropped afterwards.
func (p *Player) Process(buffer sinatra.AudioBuffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	buffer.Fill([2]float32{})
	rate := float64(p.sampleRate)
	start := float64(p.frame) / rate
	end := float64(p.frame+int64(len(buffer))) / rate
	for i := range p.voices {
		v := &p.voices[i]
		if v.At >= end || !v.Source.Valid() {
			continue
		}
		g := float32(p.gain(v.TrackID))
		if g == 0 {
			continue // still advances; position is derived from the clock
		}
		srcLen := v.Source.Duration()
		for j := range buffer {
			t := float64(p.frame+int64(j))/rate - v.At
			if t < 0 {
				continue
			}
			if v.Duration > 0 && t >= v.Duration {
				break
			}
			pos := v.Offset + t
			if v.Loop {
				pos = math.Mod(pos, srcLen)
			}
			s := v.Source.At(pos) * g
			buffer[j][0] += s
			buffer[j][1] += s
		}
	}
	for _, c := range p.clicks {
		if c.at >= end || c.at+clickLength < start {
			continue
		}
		freq, level := clickFreq, clickLevel
		if c.accent {
			freq, level = clickAccentFreq, clickAccentLvl
		}
		for j := range buffer {
			t := float64(p.frame+int64(j))/rate - c.at
			if t < 0 || t >= clickLength {
				continue
			}
			s := float32(level * math.Sin(2*math.Pi*freq*t) * math.Exp(-t/clickDecay))
			buffer[j][0] += s
			buffer[j][1] += s
		}
	}
	for j := range buffer {
		buffer[j][0] = clamp(buffer[j][0])
		buffer[j][1] = clamp(buffer[j][1])
	}
	p.frame += int64(len(buffer))
	p.voices = dropFinished(p.voices, end)
	clicks := p.clicks[:0]
	for _, c := range p.clicks {
		if c.at+clickLength >= end {
			clicks = append(clicks, c)
		}
	}
	p.clicks = clicks
	return nil
}

func dropFinished(voices []playerVoice, now float64) []playerVoice {
	ret := voices[:0]
	for _, v := range voices {
		if v.Duration > 0 && v.At+v.Duration <= now {
			continue
		}
		ret = append(ret, v)
	}
	return ret
}

func clamp(v float32) float32 {
	return min(max(v, -1), 1)
}
