package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sinatra-studio/sinatra"
	"github.com/sirupsen/logrus"
)

type (
	// Engine is the timeline engine. All user commands enter through its
	// methods; each command is applied by copying the published project,
	// editing the copy and publishing it atomically, so the scheduler, the
	// mixer and the player never observe a half-edited track or clip.
	// Asynchronous results (conversions) are applied on the goroutine
	// running Run.
	Engine struct {
		mu      sync.Mutex // serializes writers of project and history
		project atomic.Pointer[sinatra.Project]
		history *History

		cfg       Config
		broker    *Broker
		log       logrus.FieldLogger
		graph     Graph
		transport *Transport
		metronome *Metronome
		mixer     *Mixer
		scheduler *ClipScheduler
		recorder  *Recorder
		converter sinatra.Converter
		chords    sinatra.ChordGenerator
		newID     func() string

		lastConverted string // clip holding the collaborator's latest transcription
	}

	Config struct {
		Lookahead       time.Duration
		Interval        time.Duration
		Record          RecordParams
		HistoryCapacity int
		BPM             float64
		MasterVolume    float64
		Metronome       bool
		// Convert sends every take to the converter after it is inserted.
		Convert        bool
		ConvertOptions sinatra.ConvertOptions
		ConvertTimeout time.Duration
	}

	// Options carries the collaborators of the engine. Everything is
	// optional: a nil Clock is the system clock, a nil Microphone makes
	// recording fail with ErrPermission, a nil Converter disables
	// conversion and BPM detection, a nil Chords makes AddChords fail.
	Options struct {
		Clock      Clock
		Microphone sinatra.Microphone
		Converter  sinatra.Converter
		Chords     sinatra.ChordGenerator
		Logger     logrus.FieldLogger
		NewID      func() string
	}

	// conversionResult is posted to the engine goroutine when a conversion
	// finishes.
	conversionResult struct {
		clipID     string
		conversion sinatra.Conversion
		err        error
	}
)

func DefaultConfig() Config {
	return Config{
		Lookahead:       100 * time.Millisecond,
		Interval:        25 * time.Millisecond,
		Record:          DefaultRecordParams(),
		HistoryCapacity: DefaultHistoryCapacity,
		BPM:             120,
		MasterVolume:    1,
		Metronome:       true,
		ConvertOptions:  sinatra.ConvertOptions{Instrument: "Piano", Key: "C", Scale: "chromatic", Quantize: "off"},
		ConvertTimeout:  2 * time.Minute,
	}
}

func New(cfg Config, graph Graph, broker *Broker, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	mic := opts.Microphone
	if mic == nil {
		mic = noMicrophone{}
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	e := &Engine{
		cfg:       cfg,
		broker:    broker,
		log:       log,
		graph:     graph,
		transport: NewTransport(opts.Clock),
		converter: opts.Converter,
		chords:    opts.Chords,
		newID:     newID,
	}
	p := sinatra.NewProject(cfg.BPM)
	if cfg.MasterVolume > 0 {
		p.MasterVolume = cfg.MasterVolume
	}
	e.project.Store(&p)
	e.history = NewHistory(cfg.HistoryCapacity, &p)
	lookahead := cfg.Lookahead.Seconds()
	e.mixer = NewMixer(e.Project)
	e.metronome = NewMetronome(graph, e.tempo, lookahead)
	e.metronome.SetEnabled(cfg.Metronome)
	e.scheduler = NewClipScheduler(graph, e.Project, lookahead, broker, log.WithField("component", "scheduler"))
	e.recorder = NewRecorder(mic, cfg.Record, broker, log.WithField("component", "recorder"))
	if p, ok := graph.(*Player); ok {
		p.SetGain(e.mixer.EffectiveGain)
	}
	e.transport.OnChange(e.transportChanged)
	return e
}

// Project returns the published project. It must not be modified.
func (e *Engine) Project() *sinatra.Project { return e.project.Load() }

func (e *Engine) Transport() *Transport     { return e.transport }
func (e *Engine) Metronome() *Metronome     { return e.metronome }
func (e *Engine) Mixer() *Mixer             { return e.mixer }
func (e *Engine) Scheduler() *ClipScheduler { return e.scheduler }
func (e *Engine) Recorder() *Recorder       { return e.recorder }
func (e *Engine) Broker() *Broker           { return e.broker }
func (e *Engine) Position() float64         { return e.transport.Position() }
func (e *Engine) SetMetronome(enabled bool) { e.metronome.SetEnabled(enabled) }
func (e *Engine) tempo() float64            { return e.Project().BPM }

func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanRedo()
}

func (e *Engine) HistoryState() HistoryEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.event()
}

// Run drives the look-ahead schedulers every Interval and applies
// asynchronous results, until ctx is done. On return, any recording is
// stopped and playback is halted, releasing the device and all voices.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		case <-ticker.C:
			e.Tick()
		case msg := <-e.broker.ToEngine:
			e.handle(msg)
		}
	}
}

// Tick runs one scheduling pass and applies pending asynchronous results.
func (e *Engine) Tick() {
	e.metronome.Check()
	e.scheduler.Check()
	for {
		select {
		case msg := <-e.broker.ToEngine:
			e.handle(msg)
		default:
			return
		}
	}
}

func (e *Engine) handle(msg any) {
	switch m := msg.(type) {
	case conversionResult:
		e.applyConversion(m)
	case func():
		m()
	default:
		// ignore unknown messages
	}
}

func (e *Engine) shutdown() {
	if e.recorder.State() != RecordIdle {
		if _, err := e.StopRecording(); err != nil {
			e.log.WithField("err", err).Debug("recording discarded on shutdown")
		}
	}
	e.transport.Stop()
}

func (e *Engine) transportChanged(ev TransportEvent) {
	if ev.State == Playing {
		e.scheduler.Reschedule(ev.Position)
		e.metronome.Resync(ev.Position)
	} else {
		e.scheduler.Cancel()
		e.metronome.Stop()
	}
	e.log.WithFields(logrus.Fields{"state": ev.State, "from": ev.Position}).Debug("transport")
	e.broker.Emit(ev)
}

// Transport commands

func (e *Engine) Play()                { e.transport.Start(e.transport.Position()) }
func (e *Engine) PlayFrom(sec float64) { e.transport.Start(sec) }
func (e *Engine) Pause() float64       { return e.transport.Pause() }
func (e *Engine) Seek(sec float64)     { e.transport.Seek(sec) }

// Stop stops playback, rewinding to zero. A recording in progress is
// finished first, so its take is kept; a recording still waiting for the
// device is cancelled and never starts capturing.
func (e *Engine) Stop() {
	if e.recorder.State() != RecordIdle {
		if _, err := e.StopRecording(); err != nil {
			e.log.WithField("err", err).Info("recording stopped with playback")
		}
	}
	e.transport.Stop()
}

func (e *Engine) alert(name string, priority AlertPriority, format string, args ...any) {
	e.broker.Emit(Alert{
		Name:     name,
		Priority: priority,
		Message:  fmt.Sprintf(format, args...),
		Duration: defaultAlertDuration,
	})
}

// edit applies f to a copy of the project and publishes the result with a
// history snapshot. When the timeline changes while playing, the clips are
// rescheduled from the current position.
func (e *Engine) edit(reschedule bool, f func(p *sinatra.Project) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.Project().Copy()
	if err := f(&p); err != nil {
		return err
	}
	return e.publish(&p, true, reschedule)
}

// publish must be called with mu held.
func (e *Engine) publish(p *sinatra.Project, snapshot, reschedule bool) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.project.Store(p)
	if snapshot {
		e.history.Snapshot(p)
	} else {
		e.history.Amend(p)
	}
	e.broker.Emit(e.history.event())
	if reschedule && e.transport.Running() {
		e.scheduler.Reschedule(e.transport.Position())
	}
	return nil
}

// Undo restores the state before the last change.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Undo(e.restore)
}

// Redo restores the state undone last.
func (e *Engine) Redo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Redo(e.restore)
}

func (e *Engine) restore(p *sinatra.Project) {
	e.project.Store(p)
	e.broker.Emit(e.history.event())
	e.broker.Emit(TempoEvent{BPM: p.BPM})
	if e.transport.Running() {
		e.scheduler.Reschedule(e.transport.Position())
	}
}

type noMicrophone struct{}

func (noMicrophone) Open(context.Context, int) (sinatra.InputStream, error) {
	return nil, errors.New("no input device configured")
}
