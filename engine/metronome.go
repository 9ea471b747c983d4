package engine

import (
	"math"
	"sync"
)

// Metronome schedules clicks on the audio clock with a look-ahead window.
// Check is called periodically (far more often than the look-ahead is long)
// and schedules every beat that falls inside [now, now+lookahead).
//
// The beat interval is 60/bpm read from the tempo function on every check,
// and each new beat is placed one current interval after the previous
// scheduled beat. Beats already handed to the graph keep their times, so a
// tempo change takes effect at the first beat not yet scheduled.
type Metronome struct {
	mu        sync.Mutex
	graph     Graph
	tempo     func() float64
	lookahead float64
	enabled   bool
	running   bool

	first   float64 // audio time of the first beat after a resync
	last    float64 // audio time of the last scheduled beat
	hasLast bool
	beat    int // index of the next beat, 0 is a downbeat
}

const beatsPerBar = 4

func NewMetronome(graph Graph, tempo func() float64, lookahead float64) *Metronome {
	return &Metronome{graph: graph, tempo: tempo, lookahead: lookahead}
}

func (m *Metronome) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *Metronome) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	if !enabled {
		m.graph.CancelClicks()
	}
}

// Resync aligns the beat grid to the timeline: beat k sounds when the
// playhead is at k*60/bpm. It is called whenever the transport starts or
// seeks.
func (m *Metronome) Resync(pos float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graph.CancelClicks()
	now := m.graph.CurrentTime()
	iv := m.interval()
	if iv <= 0 {
		m.running = false
		return
	}
	beat := math.Ceil(pos/iv - 1e-9)
	m.beat = int(beat)
	m.first = now + beat*iv - pos
	m.hasLast = false
	m.running = true
	m.check(now)
}

// Stop stops clicking and resets the beat counter.
func (m *Metronome) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.hasLast = false
	m.beat = 0
	m.graph.CancelClicks()
}

// Check schedules the clicks inside the look-ahead window.
func (m *Metronome) Check() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.check(m.graph.CurrentTime())
}

// Beat returns the index of the next beat to be scheduled.
func (m *Metronome) Beat() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beat
}

func (m *Metronome) check(now float64) {
	if !m.running {
		return
	}
	iv := m.interval()
	if iv <= 0 {
		return
	}
	for {
		next := m.first
		if m.hasLast {
			next = m.last + iv
		}
		if next >= now+m.lookahead {
			return
		}
		if m.enabled {
			m.graph.Click(next, m.beat%beatsPerBar == 0)
		}
		m.last = next
		m.hasLast = true
		m.beat++
	}
}

func (m *Metronome) interval() float64 {
	bpm := m.tempo()
	if bpm <= 0 {
		return 0
	}
	return 60 / bpm
}
