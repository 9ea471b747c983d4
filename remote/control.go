package remote

import (
	"github.com/hypebeast/go-osc/osc"
	"github.com/sinatra-studio/sinatra/engine"
)

// Commander is the part of the engine that can be driven remotely.
type Commander interface {
	Play()
	Pause() float64
	Seek(sec float64)
	SetMetronome(enabled bool)
	PlayToggle() engine.Action
	StopAction() engine.Action
	UndoAction() engine.Action
	RedoAction() engine.Action
}

// NewDispatcher returns an OSC dispatcher that forwards transport and history
// commands to the engine goroutine through post. Malformed messages are
// dropped, and so are actions that are not enabled when they run.
//
//	/play  /pause  /toggle  /stop  /undo  /redo
//	/seek <seconds>
//	/metronome <on>
func NewDispatcher(c Commander, post func(func()) bool) *osc.StandardDispatcher {
	d := osc.NewStandardDispatcher()
	simple := map[string]func(){
		"/play":  c.Play,
		"/pause": func() { c.Pause() },
	}
	for addr, a := range map[string]engine.Action{
		"/toggle": c.PlayToggle(),
		"/stop":   c.StopAction(),
		"/undo":   c.UndoAction(),
		"/redo":   c.RedoAction(),
	} {
		simple[addr] = a.Do
	}
	for addr, f := range simple {
		f := f
		d.AddMsgHandler(addr, func(*osc.Message) { post(f) })
	}
	d.AddMsgHandler("/seek", func(msg *osc.Message) {
		if sec, ok := number(msg, 0); ok {
			post(func() { c.Seek(sec) })
		}
	})
	d.AddMsgHandler("/metronome", func(msg *osc.Message) {
		if len(msg.Arguments) == 0 {
			return
		}
		var on bool
		switch v := msg.Arguments[0].(type) {
		case bool:
			on = v
		default:
			n, ok := number(msg, 0)
			if !ok {
				return
			}
			on = n != 0
		}
		post(func() { c.SetMetronome(on) })
	})
	return d
}

// EnginePoster posts commands to the engine's message channel without
// blocking; commands are dropped when the engine is lagging.
func EnginePoster(e *engine.Engine) func(func()) bool {
	return func(f func()) bool {
		return engine.TrySend(e.Broker().ToEngine, any(f))
	}
}

func number(msg *osc.Message, i int) (float64, bool) {
	if i >= len(msg.Arguments) {
		return 0, false
	}
	switch v := msg.Arguments[i].(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
