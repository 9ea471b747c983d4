package sinatra_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/sinatra-studio/sinatra"
)

func clip(id string, start, dur float64) sinatra.Clip {
	return sinatra.Clip{ID: id, StartSec: start, DurationSec: dur, OriginalDurationSec: dur}
}

func TestProjectCopyIsDeep(t *testing.T) {
	p := sinatra.NewProject(120)
	p.Tracks = append(p.Tracks, sinatra.Track{ID: "a", Clips: []sinatra.Clip{clip("c1", 0, 1)}})
	p.Tracks[1].Clips[0].Notes = []sinatra.Note{{Key: 60}}
	c := p.Copy()
	c.Tracks[1].Clips[0].StartSec = 5
	c.Tracks[1].Clips[0].Notes[0].Key = 61
	c.Tracks[1].Name = "changed"
	if p.Tracks[1].Clips[0].StartSec != 0 || p.Tracks[1].Clips[0].Notes[0].Key != 60 || p.Tracks[1].Name != "" {
		t.Fatal("mutating the copy changed the original")
	}
}

func TestClipValidate(t *testing.T) {
	cases := []struct {
		name string
		clip sinatra.Clip
		ok   bool
	}{
		{"valid", sinatra.Clip{ID: "a", DurationSec: 1, OriginalDurationSec: 2, OffsetSec: 1}, true},
		{"negative start", sinatra.Clip{ID: "a", StartSec: -1, DurationSec: 1, OriginalDurationSec: 1}, false},
		{"zero duration", sinatra.Clip{ID: "a", OriginalDurationSec: 1}, false},
		{"trim past source", sinatra.Clip{ID: "a", DurationSec: 1, OffsetSec: 0.5, OriginalDurationSec: 1}, false},
	}
	for _, c := range cases {
		err := c.clip.Validate()
		if (err == nil) != c.ok {
			t.Errorf("%s: got %v", c.name, err)
		}
		if err != nil && !errors.Is(err, sinatra.ErrInvalidClip) {
			t.Errorf("%s: expected ErrInvalidClip, got %v", c.name, err)
		}
	}
}

func TestInsertRejectsOverlap(t *testing.T) {
	tr := sinatra.Track{ID: "a"}
	if err := tr.Insert(clip("c1", 2, 2)); err != nil {
		t.Fatal(err)
	}
	if err := tr.Insert(clip("c2", 0, 2)); err != nil {
		t.Fatalf("adjacent clip should be accepted: %v", err)
	}
	if err := tr.Insert(clip("c3", 3, 2)); !errors.Is(err, sinatra.ErrClipOverlap) {
		t.Fatalf("expected overlap error, got %v", err)
	}
	if tr.Clips[0].ID != "c2" || tr.Clips[1].ID != "c1" {
		t.Fatalf("clips not sorted: %+v", tr.Clips)
	}
	loop := sinatra.Track{ID: sinatra.LoopTrackID}
	if err := loop.Insert(clip("c4", 0, 1)); !errors.Is(err, sinatra.ErrLoopTrack) {
		t.Fatalf("expected loop track error, got %v", err)
	}
}

func TestPunchIn(t *testing.T) {
	n := 0
	newID := func() string { n++; return fmt.Sprintf("split%d", n) }
	tr := sinatra.Track{ID: "a", Clips: []sinatra.Clip{
		clip("before", 0, 1),
		clip("spans", 1, 6),
		clip("covered", 8, 1),
		clip("tail", 9.5, 2),
	}}
	if err := tr.PunchIn(clip("take", 2, 1), newID); err != nil {
		t.Fatal(err)
	}
	want := []sinatra.Clip{
		clip("before", 0, 1),
		{ID: "spans", StartSec: 1, DurationSec: 1, OriginalDurationSec: 6},
		clip("take", 2, 1),
		{ID: "split1", StartSec: 3, DurationSec: 4, OffsetSec: 2, OriginalDurationSec: 6},
		clip("covered", 8, 1),
		clip("tail", 9.5, 2),
	}
	if !reflect.DeepEqual(tr.Clips, want) {
		t.Fatalf("unexpected clips after punch-in:\n%+v\nwant\n%+v", tr.Clips, want)
	}
	if err := tr.PunchIn(clip("take2", 7.5, 2.5), newID); err != nil {
		t.Fatal(err)
	}
	last := tr.Clips[len(tr.Clips)-1]
	if last.ID != "tail" || last.StartSec != 10 || last.OffsetSec != 0.5 || last.DurationSec != 1.5 {
		t.Fatalf("tail not trimmed correctly: %+v", last)
	}
	for _, c := range tr.Clips {
		if c.ID == "covered" {
			t.Fatal("covered clip should have been removed")
		}
	}
	p := sinatra.NewProject(120)
	p.Tracks = append(p.Tracks, tr)
	if err := p.Validate(); err != nil {
		t.Fatalf("project invalid after punch-in: %v", err)
	}
}

func TestSamplePeaks(t *testing.T) {
	s := sinatra.NewSample("s", 4, []float32{0.1, -0.5, 0.2, 0.3, -0.9, 0.0, 0.4, 0.1})
	if d := s.Duration(); d != 2 {
		t.Fatalf("expected duration 2, got %v", d)
	}
	got := s.Peaks(4)
	want := []float32{0.5, 0.3, 0.9, 0.4}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Peaks = %v, want %v", got, want)
	}
	if v := s.At(10); v != 0 {
		t.Fatalf("expected silence past the end, got %v", v)
	}
}
