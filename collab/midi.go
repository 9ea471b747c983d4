package collab

import (
	"fmt"
	"io"
	"slices"

	"github.com/sinatra-studio/sinatra"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ParseNotes reads a Standard MIDI File and returns its notes, timed in
// seconds from the start of the file and sorted by start. Notes still held at
// the end of the file end with the last event.
func ParseNotes(r io.Reader) ([]sinatra.Note, error) {
	type held struct {
		start int64
		vel   uint8
	}
	var (
		notes []sinatra.Note
		open  = map[[2]uint8]held{} // channel, key
		last  int64
	)
	end := func(k [2]uint8, at int64) {
		h, ok := open[k]
		if !ok {
			return
		}
		delete(open, k)
		notes = append(notes, sinatra.Note{
			Key:         k[1],
			Velocity:    h.vel,
			StartSec:    float64(h.start) / 1e6,
			DurationSec: float64(at-h.start) / 1e6,
		})
	}
	rd := smf.ReadTracksFrom(r)
	rd.Do(func(ev smf.TrackEvent) {
		var ch, key, vel uint8
		msg := midi.Message(ev.Message)
		at := ev.AbsMicroSeconds
		last = max(last, at)
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			k := [2]uint8{ch, key}
			end(k, at) // retrigger ends the previous note
			open[k] = held{start: at, vel: vel}
		case msg.GetNoteEnd(&ch, &key):
			end([2]uint8{ch, key}, at)
		}
	})
	if err := rd.Error(); err != nil {
		return nil, fmt.Errorf("reading MIDI: %w", err)
	}
	for k := range open {
		end(k, last)
	}
	slices.SortFunc(notes, func(a, b sinatra.Note) int {
		switch {
		case a.StartSec < b.StartSec:
			return -1
		case a.StartSec > b.StartSec:
			return 1
		}
		return int(a.Key) - int(b.Key)
	})
	return notes, nil
}
