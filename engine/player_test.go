package engine_test

import (
	"math"
	"testing"

	"github.com/sinatra-studio/sinatra"
	"github.com/sinatra-studio/sinatra/engine"
)

func TestPlayerRendersVoiceWindow(t *testing.T) {
	data := make([]float32, 100)
	for i := range data {
		data[i] = float32(i) / 100
	}
	src := sinatra.NewSample("ramp", 100, data)
	p := engine.NewPlayer(100, func(string) float64 { return 0.5 })
	p.Start(engine.Voice{TrackID: "a", Source: src, At: 0.1, Offset: 0.2, Duration: 0.3})
	buf := make(sinatra.AudioBuffer, 100)
	if err := p.Process(buf); err != nil {
		t.Fatal(err)
	}
	for i, f := range buf {
		var want float32
		if i >= 10 && i < 40 {
			want = 0.5 * float32(i-10+20) / 100
		}
		if math.Abs(float64(f[0]-want)) > 1e-5 || f[0] != f[1] {
			t.Fatalf("frame %d: %v, want %v", i, f, want)
		}
	}
	if p.Voices() != 0 {
		t.Fatalf("finished voice was kept")
	}
	if got := p.CurrentTime(); math.Abs(got-1) > tolerance {
		t.Fatalf("audio clock at %v after one second of frames", got)
	}
}

func TestPlayerLoopsAndStops(t *testing.T) {
	src := sinatra.NewSample("loop", 10, []float32{1, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	p := engine.NewPlayer(10, nil)
	id := p.Start(engine.Voice{Source: src, Offset: 0.5, Loop: true})
	buf := make(sinatra.AudioBuffer, 30)
	p.Process(buf)
	for _, i := range []int{5, 15, 25} {
		if buf[i][0] != 1 {
			t.Fatalf("loop did not wrap at frame %d: %v", i, buf[i])
		}
	}
	p.Stop(id)
	p.Process(buf)
	for i, f := range buf {
		if f != [2]float32{} {
			t.Fatalf("frame %d not silent after stop: %v", i, f)
		}
	}
}

func TestPlayerClicks(t *testing.T) {
	p := engine.NewPlayer(8000, nil)
	p.Click(0.01, true)
	buf := make(sinatra.AudioBuffer, 800)
	p.Process(buf)
	var before, during float32
	for i, f := range buf {
		if i < 80 {
			before = max(before, abs(f[0]))
		} else {
			during = max(during, abs(f[0]))
		}
	}
	if before != 0 || during == 0 {
		t.Fatalf("click level before %v, during %v", before, during)
	}
	p.Click(1, false)
	p.CancelClicks()
	p.Process(buf)
	for i, f := range buf {
		if f != [2]float32{} {
			t.Fatalf("frame %d not silent after cancel: %v", i, f)
		}
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
