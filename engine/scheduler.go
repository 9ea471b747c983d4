package engine

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/sinatra-studio/sinatra"
	"github.com/sirupsen/logrus"
)

// ClipScheduler plays the clips of the timeline. A reschedule cancels
// everything and derives a fresh plan from the playhead position: one voice
// per clip that is sounding now or will sound later, plus the loop. Voices
// due within the look-ahead window are handed to the graph at once; the
// rest wait in the plan until Check finds them inside the window.
type ClipScheduler struct {
	mu        sync.Mutex
	graph     Graph
	project   func() *sinatra.Project
	lookahead float64
	broker    *Broker
	log       logrus.FieldLogger

	pending []Voice                // sorted by At
	active  map[string]activeVoice // keyed by clip id, or track id for the loop
}

type activeVoice struct {
	id VoiceID
	Voice
}

func NewClipScheduler(graph Graph, project func() *sinatra.Project, lookahead float64, broker *Broker, log logrus.FieldLogger) *ClipScheduler {
	return &ClipScheduler{
		graph:     graph,
		project:   project,
		lookahead: lookahead,
		broker:    broker,
		log:       log,
		active:    map[string]activeVoice{},
	}
}

// Reschedule cancels every pending and sounding voice and plans playback
// from the timeline position from. Calling it twice at the same position
// leaves the same set of voices.
func (s *ClipScheduler) Reschedule(from float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
	p := s.project()
	now := s.graph.CurrentTime()
	solo := p.SoloActive()
	for i := range p.Tracks {
		t := &p.Tracks[i]
		if !audible(t, solo) {
			continue
		}
		if t.IsLoop() {
			if t.Loop == nil {
				continue // nothing loaded
			}
			if !t.Loop.Valid() {
				s.fault(t.ID, "", fmt.Errorf("%w: loop source is empty", sinatra.ErrSchedulingFault))
				continue
			}
			s.pending = append(s.pending, Voice{
				TrackID: t.ID,
				Source:  t.Loop,
				At:      now,
				Offset:  math.Mod(from, t.Loop.Duration()),
				Loop:    true,
			})
			continue
		}
		for j := range t.Clips {
			c := &t.Clips[j]
			if c.End() <= from {
				continue // in the past
			}
			if !c.Source.Valid() {
				s.fault(t.ID, c.ID, fmt.Errorf("%w: clip %s", sinatra.ErrSchedulingFault, c.ID))
				continue
			}
			v := Voice{TrackID: t.ID, ClipID: c.ID, Source: c.Source}
			if c.StartSec <= from {
				elapsed := from - c.StartSec
				v.At = now
				v.Offset = c.OffsetSec + elapsed
				v.Duration = c.DurationSec - elapsed
			} else {
				v.At = now + c.StartSec - from
				v.Offset = c.OffsetSec
				v.Duration = c.DurationSec
			}
			s.pending = append(s.pending, v)
		}
	}
	slices.SortStableFunc(s.pending, func(a, b Voice) int {
		switch {
		case a.At < b.At:
			return -1
		case a.At > b.At:
			return 1
		}
		return 0
	})
	s.log.WithFields(logrus.Fields{"from": from, "planned": len(s.pending)}).Debug("clips rescheduled")
	s.check(now)
}

// Check starts the planned voices that fall inside the look-ahead window
// and forgets voices that have finished.
func (s *ClipScheduler) Check() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.check(s.graph.CurrentTime())
}

// Cancel stops every voice and drops the plan.
func (s *ClipScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
}

// Pending returns the voices planned but not yet handed to the graph.
func (s *ClipScheduler) Pending() []Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.pending)
}

// Active returns the voices handed to the graph that have not finished yet,
// ordered by start time.
func (s *ClipScheduler) Active() []Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]Voice, 0, len(s.active))
	for _, a := range s.active {
		ret = append(ret, a.Voice)
	}
	slices.SortFunc(ret, func(a, b Voice) int {
		switch {
		case a.At < b.At:
			return -1
		case a.At > b.At:
			return 1
		case a.ClipID < b.ClipID:
			return -1
		case a.ClipID > b.ClipID:
			return 1
		}
		return 0
	})
	return ret
}

func (s *ClipScheduler) check(now float64) {
	for key, a := range s.active {
		if a.Duration > 0 && a.At+a.Duration <= now {
			delete(s.active, key)
		}
	}
	n := 0
	for _, v := range s.pending {
		if v.At >= now+s.lookahead {
			break
		}
		key := v.ClipID
		if key == "" {
			key = v.TrackID
		}
		if old, ok := s.active[key]; ok {
			s.graph.Stop(old.id)
		}
		s.active[key] = activeVoice{id: s.graph.Start(v), Voice: v}
		n++
	}
	s.pending = s.pending[n:]
}

func (s *ClipScheduler) cancel() {
	for key, a := range s.active {
		s.graph.Stop(a.id)
		delete(s.active, key)
	}
	s.pending = s.pending[:0]
}

func (s *ClipScheduler) fault(trackID, clipID string, err error) {
	s.log.WithFields(logrus.Fields{"track": trackID, "clip": clipID, "err": err}).Warn("skipping clip")
	s.broker.Emit(Alert{
		Name:     "SchedulingFault",
		Priority: Warning,
		Message:  err.Error(),
		Duration: defaultAlertDuration,
	})
}
