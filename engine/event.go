package engine

import "github.com/sinatra-studio/sinatra"

type (
	// Event is anything the engine reports to the presentation layer. The
	// concrete types are TransportEvent, TempoEvent, MeterEvent, ClipEvent,
	// RecordingEvent, HistoryEvent and Alert.
	Event interface {
		event()
	}

	TransportEvent struct {
		State    TransportState
		Position float64
	}

	TempoEvent struct {
		BPM float64
	}

	// MeterEvent carries live input levels while capturing. It is cosmetic;
	// the captured audio is never affected by metering.
	MeterEvent struct {
		Peak    float32
		Average float32
	}

	ClipEvent struct {
		Kind    ClipEventKind
		TrackID string
		Clip    sinatra.Clip
	}

	ClipEventKind int

	RecordingEvent struct {
		State   RecordState
		TrackID string
	}

	HistoryEvent struct {
		Index   int
		Len     int
		CanUndo bool
		CanRedo bool
	}
)

const (
	ClipAdded ClipEventKind = iota
	ClipUpdated
	ClipRemoved
)

func (TransportEvent) event() {}
func (TempoEvent) event()     {}
func (MeterEvent) event()     {}
func (ClipEvent) event()      {}
func (RecordingEvent) event() {}
func (HistoryEvent) event()   {}
func (Alert) event()          {}

func (k ClipEventKind) String() string {
	switch k {
	case ClipAdded:
		return "added"
	case ClipUpdated:
		return "updated"
	case ClipRemoved:
		return "removed"
	}
	return "unknown"
}
