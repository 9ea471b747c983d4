package engine_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sinatra-studio/sinatra"
	"github.com/sinatra-studio/sinatra/engine"
	"github.com/sirupsen/logrus"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(sec float64) {
	c.mu.Lock()
	c.now = c.now.Add(time.Duration(sec * float64(time.Second)))
	c.mu.Unlock()
}

type fakeClick struct {
	at     float64
	accent bool
}

// fakeGraph records what the schedulers ask of it. Its audio clock only
// moves when the test advances it.
type fakeGraph struct {
	mu     sync.Mutex
	now    float64
	nextID engine.VoiceID
	voices map[engine.VoiceID]engine.Voice
	clicks []fakeClick
	starts int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{voices: map[engine.VoiceID]engine.Voice{}}
}

func (g *fakeGraph) CurrentTime() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now
}

func (g *fakeGraph) Advance(sec float64) {
	g.mu.Lock()
	g.now += sec
	g.mu.Unlock()
}

func (g *fakeGraph) Start(v engine.Voice) engine.VoiceID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	g.voices[g.nextID] = v
	g.starts++
	return g.nextID
}

func (g *fakeGraph) Stop(id engine.VoiceID) {
	g.mu.Lock()
	delete(g.voices, id)
	g.mu.Unlock()
}

func (g *fakeGraph) Click(at float64, accent bool) {
	g.mu.Lock()
	g.clicks = append(g.clicks, fakeClick{at: at, accent: accent})
	g.mu.Unlock()
}

func (g *fakeGraph) CancelClicks() {
	g.mu.Lock()
	kept := g.clicks[:0]
	for _, c := range g.clicks {
		if c.at < g.now {
			kept = append(kept, c) // already sounded
		}
	}
	g.clicks = kept
	g.mu.Unlock()
}

func (g *fakeGraph) Clicks() []fakeClick {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]fakeClick(nil), g.clicks...)
}

func (g *fakeGraph) Voices() map[engine.VoiceID]engine.Voice {
	g.mu.Lock()
	defer g.mu.Unlock()
	ret := map[engine.VoiceID]engine.Voice{}
	for k, v := range g.voices {
		ret[k] = v
	}
	return ret
}

// fakeMic hands out streams reading data in blocks, then io.EOF. With
// endless set the streams never end. With gate set, Open blocks until the
// gate is closed, whatever the context says.
type fakeMic struct {
	mu       sync.Mutex
	rate     int
	data     []float32
	endless  bool
	gate     chan struct{}
	openErr  error
	closeErr error
	opened   []*fakeStream
}

func (m *fakeMic) Open(ctx context.Context, blockSize int) (sinatra.InputStream, error) {
	if m.gate != nil {
		<-m.gate
	}
	if m.openErr != nil {
		return nil, m.openErr
	}
	s := &fakeStream{rate: m.rate, data: m.data, endless: m.endless, closeErr: m.closeErr, drained: make(chan struct{}), read: make(chan struct{})}
	m.mu.Lock()
	m.opened = append(m.opened, s)
	m.mu.Unlock()
	return s, nil
}

func (m *fakeMic) Opened() []*fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*fakeStream(nil), m.opened...)
}

type fakeStream struct {
	mu       sync.Mutex
	rate     int
	data     []float32
	endless  bool
	pos      int
	closed   int
	closeErr error
	drained  chan struct{}
	read     chan struct{} // closed on the first Read
}

func (s *fakeStream) SampleRate() int { return s.rate }

func (s *fakeStream) Read(block []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.read:
	default:
		close(s.read)
	}
	if s.endless {
		time.Sleep(time.Millisecond)
		copy(block, constant(len(block), 0.5))
		return len(block), nil
	}
	if s.pos >= len(s.data) {
		select {
		case <-s.drained:
		default:
			close(s.drained)
		}
		return 0, io.EOF
	}
	n := copy(block, s.data[s.pos:])
	s.pos += n
	return n, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return s.closeErr
}

func (s *fakeStream) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// waitDrained blocks until the capture goroutine has read all the data.
func (s *fakeStream) waitDrained() error {
	select {
	case <-s.drained:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("stream was never drained")
	}
}

type fakeConverter struct {
	render *sinatra.Sample
	notes  []sinatra.Note
	bpm    float64
	err    error
	calls  int
	mu     sync.Mutex
}

func (c *fakeConverter) Convert(ctx context.Context, wav []byte, opts sinatra.ConvertOptions) (sinatra.Conversion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return sinatra.Conversion{}, c.err
	}
	return sinatra.Conversion{Render: c.render, Notes: c.notes, Instrument: opts.Instrument}, nil
}

func (c *fakeConverter) Render(ctx context.Context, instrument string) (sinatra.Conversion, error) {
	return c.Convert(ctx, nil, sinatra.ConvertOptions{Instrument: instrument})
}

func (c *fakeConverter) DetectBPM(ctx context.Context, filename string, wav []byte) (float64, string, error) {
	if c.err != nil {
		return 0, "", c.err
	}
	return c.bpm, filename, nil
}

// constant returns n samples alternating between v and -v.
func constant(n int, v float32) []float32 {
	ret := make([]float32, n)
	for i := range ret {
		if i%2 == 0 {
			ret[i] = v
		} else {
			ret[i] = -v
		}
	}
	return ret
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
}

type harness struct {
	engine *engine.Engine
	clock  *fakeClock
	graph  *fakeGraph
	mic    *fakeMic
	conv   *fakeConverter
}

func newHarness(cfg engine.Config, conv *fakeConverter) *harness {
	h := &harness{
		clock: newFakeClock(),
		graph: newFakeGraph(),
		mic:   &fakeMic{rate: 1000},
		conv:  conv,
	}
	opts := engine.Options{Clock: h.clock, Microphone: h.mic, NewID: sequentialIDs()}
	if conv != nil {
		opts.Converter = conv
	}
	h.engine = engine.New(cfg, h.graph, engine.NewBroker(), opts)
	return h
}

func testConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Record.BlockSize = 100
	cfg.Metronome = false
	return cfg
}

// drainEvents returns every event emitted so far.
func drainEvents(b *engine.Broker) []engine.Event {
	var ret []engine.Event
	for {
		select {
		case e := <-b.Events:
			ret = append(ret, e)
		default:
			return ret
		}
	}
}

func findAlert(events []engine.Event, name string) (engine.Alert, bool) {
	for _, e := range events {
		if a, ok := e.(engine.Alert); ok && a.Name == name {
			return a, true
		}
	}
	return engine.Alert{}, false
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeChords struct {
	sample *sinatra.Sample
	err    error
	got    []sinatra.ChordProgression
}

func (c *fakeChords) GenerateChords(ctx context.Context, p sinatra.ChordProgression) (*sinatra.Sample, error) {
	c.got = append(c.got, p)
	return c.sample, c.err
}
