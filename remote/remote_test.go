package remote_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/sinatra-studio/sinatra"
	"github.com/sinatra-studio/sinatra/engine"
	"github.com/sinatra-studio/sinatra/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage(t *testing.T) {
	cases := []struct {
		ev   engine.Event
		addr string
		args []any
	}{
		{engine.TransportEvent{State: engine.Playing, Position: 1.5}, "/transport", []any{"playing", float32(1.5)}},
		{engine.TempoEvent{BPM: 90}, "/tempo", []any{float32(90)}},
		{engine.MeterEvent{Peak: 0.5, Average: 0.25}, "/meter", []any{float32(0.5), float32(0.25)}},
		{engine.ClipEvent{Kind: engine.ClipRemoved, TrackID: "t1", Clip: sinatra.Clip{ID: "c1", StartSec: 2, DurationSec: 3}},
			"/clip/removed", []any{"t1", "c1", float32(2), float32(3)}},
		{engine.RecordingEvent{State: engine.RecordCapturing, TrackID: "t1"}, "/recording", []any{"capturing", "t1"}},
		{engine.HistoryEvent{Index: 2, Len: 3, CanUndo: true}, "/history", []any{int32(2), int32(3), true, false}},
		{engine.Alert{Name: "SilentRecording", Priority: engine.Warning, Message: "silent"}, "/alert", []any{"SilentRecording", "warning", "silent"}},
	}
	for _, c := range cases {
		msg := remote.Message(c.ev)
		require.NotNil(t, msg, c.addr)
		assert.Equal(t, c.addr, msg.Address)
		assert.Equal(t, c.args, msg.Arguments, c.addr)
	}
}

type commander struct {
	calls   []string
	seek    float64
	metro   bool
	canUndo bool
}

func (c *commander) Play()                { c.calls = append(c.calls, "play") }
func (c *commander) Pause() float64       { c.calls = append(c.calls, "pause"); return 0 }
func (c *commander) Seek(sec float64)     { c.calls = append(c.calls, "seek"); c.seek = sec }
func (c *commander) SetMetronome(on bool) { c.calls = append(c.calls, "metronome"); c.metro = on }

func (c *commander) PlayToggle() engine.Action { return c.action("toggle", nil) }
func (c *commander) StopAction() engine.Action { return c.action("stop", nil) }
func (c *commander) UndoAction() engine.Action { return c.action("undo", &c.canUndo) }
func (c *commander) RedoAction() engine.Action { return c.action("redo", new(bool)) }

func (c *commander) action(name string, enabled *bool) engine.Action {
	return engine.MakeAction(&doer{c: c, name: name, enabled: enabled})
}

// doer records its name when done; with enabled set, it is only enabled
// while *enabled is true.
type doer struct {
	c       *commander
	name    string
	enabled *bool
}

func (d *doer) Do() { d.c.calls = append(d.c.calls, d.name) }

func (d *doer) Enabled() bool { return d.enabled == nil || *d.enabled }

func TestDispatcher(t *testing.T) {
	c := &commander{}
	var queued []func()
	post := func(f func()) bool {
		queued = append(queued, f)
		return true
	}
	d := remote.NewDispatcher(c, post)
	d.Dispatch(osc.NewMessage("/play"))
	d.Dispatch(osc.NewMessage("/seek", float32(4.5)))
	d.Dispatch(osc.NewMessage("/seek", "nonsense"))
	d.Dispatch(osc.NewMessage("/metronome", int32(1)))
	d.Dispatch(osc.NewMessage("/undo"))
	assert.Empty(t, c.calls, "commands must only run on the engine goroutine")
	c.canUndo = true
	for _, f := range queued {
		f()
	}
	assert.Equal(t, []string{"play", "seek", "metronome", "undo"}, c.calls)
	assert.Equal(t, 4.5, c.seek)
	assert.True(t, c.metro)
}

func TestDispatcherSkipsDisabledActions(t *testing.T) {
	c := &commander{}
	post := func(f func()) bool {
		f()
		return true
	}
	d := remote.NewDispatcher(c, post)
	for _, addr := range []string{"/undo", "/redo", "/toggle", "/stop", "/undo"} {
		d.Dispatch(osc.NewMessage(addr))
	}
	assert.Equal(t, []string{"toggle", "stop"}, c.calls)
	c.canUndo = true
	d.Dispatch(osc.NewMessage("/undo"))
	assert.Equal(t, []string{"toggle", "stop", "undo"}, c.calls)
}

func TestBroadcasterRun(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	received := make(chan *osc.Message, 4)
	d := osc.NewStandardDispatcher()
	d.AddMsgHandler("/tempo", func(msg *osc.Message) { received <- msg })
	server := &osc.Server{Dispatcher: d}
	go server.Serve(conn)

	port := conn.LocalAddr().(*net.UDPAddr).Port
	b := remote.NewBroadcaster("127.0.0.1", port, nil)
	events := make(chan engine.Event, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx, events)
	events <- engine.TempoEvent{BPM: 128}

	select {
	case msg := <-received:
		assert.Equal(t, []any{float32(128)}, msg.Arguments)
	case <-time.After(2 * time.Second):
		t.Fatal("no OSC message received")
	}
}
