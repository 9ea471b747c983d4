// Package remote exposes the engine over OSC: engine events are broadcast to a
// presentation layer and transport commands are accepted from it.
package remote

import (
	"context"
	"fmt"
	"io"

	"github.com/hypebeast/go-osc/osc"
	"github.com/sinatra-studio/sinatra/engine"
	"github.com/sirupsen/logrus"
)

// Broadcaster sends engine events as OSC messages to a single peer.
type Broadcaster struct {
	client *osc.Client
	log    logrus.FieldLogger
}

func NewBroadcaster(host string, port int, log logrus.FieldLogger) *Broadcaster {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Broadcaster{
		client: osc.NewClient(host, port),
		log:    log.WithField("osc", fmt.Sprintf("%s:%d", host, port)),
	}
}

// Send broadcasts a single event. Events with no OSC mapping are ignored.
func (b *Broadcaster) Send(ev engine.Event) error {
	msg := Message(ev)
	if msg == nil {
		return nil
	}
	if err := b.client.Send(msg); err != nil {
		return fmt.Errorf("cannot send %s: %w", msg.Address, err)
	}
	return nil
}

// Run broadcasts events until the channel is closed or ctx is done. Send
// failures are logged and do not stop the loop.
func (b *Broadcaster) Run(ctx context.Context, events <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := b.Send(ev); err != nil {
				b.log.WithError(err).Debug("osc broadcast failed")
			}
		}
	}
}

// Message converts an engine event to its OSC message, or nil if the event has
// no mapping. Times and levels are sent as float32.
func Message(ev engine.Event) *osc.Message {
	switch e := ev.(type) {
	case engine.TransportEvent:
		return osc.NewMessage("/transport", e.State.String(), float32(e.Position))
	case engine.TempoEvent:
		return osc.NewMessage("/tempo", float32(e.BPM))
	case engine.MeterEvent:
		return osc.NewMessage("/meter", e.Peak, e.Average)
	case engine.ClipEvent:
		return osc.NewMessage("/clip/"+e.Kind.String(), e.TrackID, e.Clip.ID,
			float32(e.Clip.StartSec), float32(e.Clip.DurationSec))
	case engine.RecordingEvent:
		return osc.NewMessage("/recording", e.State.String(), e.TrackID)
	case engine.HistoryEvent:
		return osc.NewMessage("/history", int32(e.Index), int32(e.Len), e.CanUndo, e.CanRedo)
	case engine.Alert:
		return osc.NewMessage("/alert", e.Name, e.Priority.String(), e.Message)
	}
	return nil
}
