package sinatra

import (
	"fmt"
	"slices"
)

// LoopTrackID identifies the reserved loop track. Every Project has exactly
// one loop track and it is always the first track.
const LoopTrackID = "loop"

// DefaultUnmutedVolume is the volume a track returns to when it is unmuted and
// no earlier non-zero volume is known.
const DefaultUnmutedVolume = 0.8

// clipEpsilon absorbs floating point error when comparing clip boundaries.
const clipEpsilon = 1e-9

type (
	// Project is the whole timeline: the tempo, the master volume and an
	// ordered list of tracks. A Project value is never mutated after it has
	// been published by the engine; every edit works on a Copy and replaces
	// the published project atomically, so readers never see a half-edited
	// track or clip. Decoded audio (Sample) is shared between copies, as it is
	// immutable.
	Project struct {
		BPM          float64
		MasterVolume float64
		Tracks       []Track
	}

	// Track is a named lane with its own gain state and clips. The clips are
	// kept sorted by StartSec and never overlap. The loop track has no clips;
	// it plays Loop continuously instead.
	Track struct {
		ID            string
		Name          string
		Volume        float64 // 0..1
		Muted         bool
		Solo          bool
		UnmutedVolume float64 // last non-zero volume, restored on unmute
		Instrument    string
		Clips         []Clip
		Loop          *Sample `yaml:"-"`
	}

	// Clip is a time-positioned, trimmable window into a Sample. The audible
	// part of the source is [OffsetSec, OffsetSec+DurationSec), placed on the
	// timeline at StartSec.
	Clip struct {
		ID                  string
		StartSec            float64
		DurationSec         float64
		OffsetSec           float64
		OriginalDurationSec float64
		Source              *Sample `yaml:"-"`

		// Notes holds the note transcription of the clip, when the conversion
		// collaborator has produced one.
		Notes      []Note `yaml:",omitempty"`
		Instrument string `yaml:",omitempty"`
	}

	// Note is one transcribed note, relative to the start of the source audio.
	Note struct {
		Key         uint8
		Velocity    uint8
		StartSec    float64
		DurationSec float64
	}
)

// NewProject returns an empty project containing only the loop track.
func NewProject(bpm float64) Project {
	return Project{
		BPM:          bpm,
		MasterVolume: 1,
		Tracks: []Track{{
			ID:            LoopTrackID,
			Name:          "Loop",
			Volume:        DefaultUnmutedVolume,
			UnmutedVolume: DefaultUnmutedVolume,
			Instrument:    "Drums",
		}},
	}
}

// Copy makes a deep copy of the project metadata. Samples are shared.
func (p *Project) Copy() Project {
	tracks := make([]Track, len(p.Tracks))
	for i := range p.Tracks {
		tracks[i] = p.Tracks[i].Copy()
	}
	return Project{BPM: p.BPM, MasterVolume: p.MasterVolume, Tracks: tracks}
}

// Copy makes a deep copy of the track and its clips.
func (t *Track) Copy() Track {
	ret := *t
	ret.Clips = make([]Clip, len(t.Clips))
	for i := range t.Clips {
		ret.Clips[i] = t.Clips[i].Copy()
	}
	return ret
}

// Copy makes a deep copy of the clip. The Source is shared.
func (c *Clip) Copy() Clip {
	ret := *c
	if c.Notes != nil {
		ret.Notes = slices.Clone(c.Notes)
	}
	return ret
}

// IsLoop reports whether the track is the reserved loop track.
func (t *Track) IsLoop() bool { return t.ID == LoopTrackID }

// End returns the timeline position where the clip stops sounding.
func (c *Clip) End() float64 { return c.StartSec + c.DurationSec }

// Validate checks the clip invariants: non-negative start and offset,
// positive duration and offset+duration within the source length.
func (c *Clip) Validate() error {
	switch {
	case c.StartSec < 0:
		return fmt.Errorf("%w: clip %s starts at %v", ErrInvalidClip, c.ID, c.StartSec)
	case c.DurationSec <= 0:
		return fmt.Errorf("%w: clip %s has duration %v", ErrInvalidClip, c.ID, c.DurationSec)
	case c.OffsetSec < 0:
		return fmt.Errorf("%w: clip %s has offset %v", ErrInvalidClip, c.ID, c.OffsetSec)
	case c.OffsetSec+c.DurationSec > c.OriginalDurationSec+clipEpsilon:
		return fmt.Errorf("%w: clip %s trims past its source (%v+%v > %v)", ErrInvalidClip, c.ID, c.OffsetSec, c.DurationSec, c.OriginalDurationSec)
	}
	return nil
}

// Track returns the index of the track with the given id.
func (p *Project) Track(id string) (int, bool) {
	for i := range p.Tracks {
		if p.Tracks[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// Clip returns the track and clip indices of the clip with the given id.
func (p *Project) Clip(id string) (track, clip int, ok bool) {
	for i := range p.Tracks {
		for j := range p.Tracks[i].Clips {
			if p.Tracks[i].Clips[j].ID == id {
				return i, j, true
			}
		}
	}
	return -1, -1, false
}

// LoopTrack returns the reserved loop track.
func (p *Project) LoopTrack() *Track {
	if i, ok := p.Track(LoopTrackID); ok {
		return &p.Tracks[i]
	}
	return nil
}

// SoloActive reports whether any track is soloed.
func (p *Project) SoloActive() bool {
	for i := range p.Tracks {
		if p.Tracks[i].Solo {
			return true
		}
	}
	return false
}

// Validate checks the project wide invariants: unique ids, a single loop
// track, valid clips and no overlapping clips within a track.
func (p *Project) Validate() error {
	trackIDs := map[string]bool{}
	clipIDs := map[string]bool{}
	loops := 0
	for i := range p.Tracks {
		t := &p.Tracks[i]
		if trackIDs[t.ID] {
			return fmt.Errorf("duplicate track id %q", t.ID)
		}
		trackIDs[t.ID] = true
		if t.IsLoop() {
			loops++
			if len(t.Clips) > 0 {
				return fmt.Errorf("%w: loop track cannot hold clips", ErrLoopTrack)
			}
		}
		for j := range t.Clips {
			c := &t.Clips[j]
			if clipIDs[c.ID] {
				return fmt.Errorf("duplicate clip id %q", c.ID)
			}
			clipIDs[c.ID] = true
			if err := c.Validate(); err != nil {
				return err
			}
			if j > 0 && t.Clips[j-1].End() > c.StartSec+clipEpsilon {
				return fmt.Errorf("%w: clips %s and %s on track %s", ErrClipOverlap, t.Clips[j-1].ID, c.ID, t.ID)
			}
		}
	}
	if loops != 1 {
		return fmt.Errorf("%w: project has %d loop tracks", ErrLoopTrack, loops)
	}
	return nil
}

// Overlaps reports whether [start, start+duration) intersects any clip of
// the track other than the one with id ignore.
func (t *Track) Overlaps(start, duration float64, ignore string) bool {
	end := start + duration
	for i := range t.Clips {
		c := &t.Clips[i]
		if c.ID == ignore {
			continue
		}
		if start < c.End()-clipEpsilon && c.StartSec < end-clipEpsilon {
			return true
		}
	}
	return false
}

// Insert adds the clip to the track keeping the clips sorted. It fails if the
// clip would overlap an existing one.
func (t *Track) Insert(c Clip) error {
	if t.IsLoop() {
		return ErrLoopTrack
	}
	if t.Overlaps(c.StartSec, c.DurationSec, c.ID) {
		return fmt.Errorf("%w: clip %s at %.3fs on track %s", ErrClipOverlap, c.ID, c.StartSec, t.ID)
	}
	t.Clips = append(t.Clips, c)
	t.sortClips()
	return nil
}

// PunchIn inserts the clip, making room for it: existing clips that are
// fully covered are removed, partially covered ones are trimmed and a clip
// that spans the whole range is split in two. newID is called to name the
// right half of a split clip.
func (t *Track) PunchIn(c Clip, newID func() string) error {
	if t.IsLoop() {
		return ErrLoopTrack
	}
	start, end := c.StartSec, c.End()
	clips := make([]Clip, 0, len(t.Clips)+2)
	for _, o := range t.Clips {
		switch {
		case o.End() <= start+clipEpsilon || o.StartSec >= end-clipEpsilon:
			clips = append(clips, o) // untouched
		case o.StartSec >= start-clipEpsilon && o.End() <= end+clipEpsilon:
			// fully covered, drop
		case o.StartSec < start && o.End() > end:
			right := o.Copy()
			right.ID = newID()
			cut := end - o.StartSec
			right.StartSec = end
			right.OffsetSec += cut
			right.DurationSec -= cut
			o.DurationSec = start - o.StartSec
			clips = append(clips, o, right)
		case o.StartSec < start:
			o.DurationSec = start - o.StartSec
			clips = append(clips, o)
		default:
			cut := end - o.StartSec
			o.StartSec = end
			o.OffsetSec += cut
			o.DurationSec -= cut
			clips = append(clips, o)
		}
	}
	t.Clips = append(clips, c)
	t.sortClips()
	return nil
}

// Remove deletes the clip with the given id, returning it.
func (t *Track) Remove(id string) (Clip, bool) {
	for i := range t.Clips {
		if t.Clips[i].ID == id {
			c := t.Clips[i]
			t.Clips = slices.Delete(t.Clips, i, i+1)
			return c, true
		}
	}
	return Clip{}, false
}

func (t *Track) sortClips() {
	slices.SortStableFunc(t.Clips, func(a, b Clip) int {
		switch {
		case a.StartSec < b.StartSec:
			return -1
		case a.StartSec > b.StartSec:
			return 1
		}
		return 0
	})
}
