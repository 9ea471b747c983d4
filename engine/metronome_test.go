package engine_test

import (
	"math"
	"testing"

	"github.com/sinatra-studio/sinatra/engine"
)

const checkInterval = 0.025

// runMetronome advances the audio clock in check-sized steps until until,
// calling Check after every step, and calls at(now) before each step.
func runMetronome(g *fakeGraph, m *engine.Metronome, until float64, at func(now float64)) {
	for g.CurrentTime() < until {
		if at != nil {
			at(g.CurrentTime())
		}
		g.Advance(checkInterval)
		m.Check()
	}
}

func TestMetronomeSchedulesOnBeats(t *testing.T) {
	g := newFakeGraph()
	bpm := 120.0
	m := engine.NewMetronome(g, func() float64 { return bpm }, 0.1)
	m.SetEnabled(true)
	m.Resync(0)
	runMetronome(g, m, 2.0, nil)
	clicks := g.Clicks()
	want := []float64{0, 0.5, 1, 1.5, 2}
	if len(clicks) != len(want) {
		t.Fatalf("got %d clicks, want %d: %v", len(clicks), len(want), clicks)
	}
	for i, c := range clicks {
		if math.Abs(c.at-want[i]) > tolerance {
			t.Fatalf("click %d at %v, want %v", i, c.at, want[i])
		}
		if c.accent != (i%4 == 0) {
			t.Fatalf("click %d accent %v", i, c.accent)
		}
	}
}

func TestMetronomeTempoChange(t *testing.T) {
	for _, tc := range []struct {
		from, to float64
		at       float64
	}{
		{120, 60, 1.3},
		{60, 180, 2.1},
		{100, 101, 0.61},
		{90, 240, 4.0},
	} {
		g := newFakeGraph()
		bpm := tc.from
		m := engine.NewMetronome(g, func() float64 { return bpm }, 0.1)
		m.SetEnabled(true)
		m.Resync(0)
		changed := false
		var scheduledBefore int
		runMetronome(g, m, 8, func(now float64) {
			if !changed && now >= tc.at {
				scheduledBefore = len(g.Clicks())
				bpm = tc.to
				changed = true
			}
		})
		clicks := g.Clicks()
		oldIv, newIv := 60/tc.from, 60/tc.to
		for i := 1; i < len(clicks); i++ {
			d := clicks[i].at - clicks[i-1].at
			want := oldIv
			if i >= scheduledBefore {
				want = newIv
			}
			if math.Abs(d-want) > 1e-6 {
				t.Fatalf("%v→%v bpm: beat %d follows its predecessor by %v, want %v", tc.from, tc.to, i, d, want)
			}
		}
		if scheduledBefore >= len(clicks) {
			t.Fatalf("%v→%v bpm: no beats after the change", tc.from, tc.to)
		}
	}
}

func TestMetronomeResyncAlignsToTimeline(t *testing.T) {
	g := newFakeGraph()
	g.Advance(10)
	m := engine.NewMetronome(g, func() float64 { return 120 }, 0.1)
	m.SetEnabled(true)
	m.Resync(0.75) // between beats 1 and 2
	runMetronome(g, m, 10.3, nil)
	clicks := g.Clicks()
	if len(clicks) != 1 {
		t.Fatalf("got %d clicks, want 1", len(clicks))
	}
	if math.Abs(clicks[0].at-10.25) > tolerance || clicks[0].accent {
		t.Fatalf("first click %+v, want unaccented at 10.25", clicks[0])
	}
	m.Resync(2) // beat 4 is a downbeat
	c := g.Clicks()
	last := c[len(c)-1]
	if math.Abs(last.at-10.3) > 1e-6 || !last.accent {
		t.Fatalf("click after resync %+v, want accented at 10.3", last)
	}
}

func TestMetronomeStopResetsBeat(t *testing.T) {
	g := newFakeGraph()
	m := engine.NewMetronome(g, func() float64 { return 120 }, 0.1)
	m.SetEnabled(true)
	m.Resync(0)
	runMetronome(g, m, 1.2, nil)
	if m.Beat() == 0 {
		t.Fatalf("no beats were scheduled")
	}
	m.Stop()
	if m.Beat() != 0 {
		t.Fatalf("beat counter %d after stop", m.Beat())
	}
	n := len(g.Clicks())
	runMetronome(g, m, 3, nil)
	if len(g.Clicks()) != n {
		t.Fatalf("clicks scheduled after stop")
	}
}

func TestMetronomeDisabledIsSilent(t *testing.T) {
	g := newFakeGraph()
	m := engine.NewMetronome(g, func() float64 { return 120 }, 0.1)
	m.Resync(0)
	runMetronome(g, m, 2, nil)
	if n := len(g.Clicks()); n != 0 {
		t.Fatalf("disabled metronome scheduled %d clicks", n)
	}
}
