package main

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/sinatra-studio/sinatra"
	"github.com/sinatra-studio/sinatra/collab"
	"github.com/sinatra-studio/sinatra/engine"
	"github.com/sinatra-studio/sinatra/oto"
	"github.com/sinatra-studio/sinatra/remote"
	"github.com/sirupsen/logrus"
)

// session is a running engine with its audio output, meter, collaborator
// client and optional OSC bridge.
type session struct {
	engine *engine.Engine
	client *collab.Client

	mu        sync.Mutex
	listeners []func(engine.Event)
}

// runSession starts an engine and calls f with it. With backend set, the
// conversion service converts takes, detects loop tempos and renders chords. The engine is
// stopped and every goroutine joined before runSession returns.
func runSession(ctx context.Context, mic sinatra.Microphone, backend bool, f func(ctx context.Context, s *session) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	broker := engine.NewBroker()
	player := engine.NewPlayer(cfg.SampleRate, nil)
	s := &session{client: newClient()}
	eo := engine.Options{Microphone: mic, Logger: log.WithField("component", "engine")}
	ec := cfg.Engine()
	if backend {
		eo.Converter = s.client
		eo.Chords = s.client
	} else {
		ec.Convert = false
	}
	s.engine = engine.New(ec, player, broker, eo)

	output, closeAudio := openOutput(ctx, player)
	defer closeAudio()
	defer output.Close()

	detector := engine.NewDetector(broker)
	go detector.Run()
	defer func() {
		if !detector.Close(time.Second) {
			log.Warn("level detector did not stop")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.engine.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("engine stopped")
		}
	}()
	go func() {
		defer wg.Done()
		s.dispatch(ctx, broker.Events)
	}()
	if err := s.startRemote(ctx, &wg); err != nil {
		cancel()
		wg.Wait()
		return err
	}

	err := f(ctx, s)
	cancel()
	wg.Wait()
	return err
}

func newClient() *collab.Client {
	return collab.New(cfg.Backend.URL, cfg.Backend.Timeout, log.WithField("component", "collab"))
}

// openOutput plays the player on the system audio output. Without an output
// device, a timer drives the player so that its clock keeps running.
func openOutput(ctx context.Context, player *engine.Player) (sinatra.CloserWaiter, func()) {
	audio, err := oto.NewContext(player.SampleRate())
	if err != nil {
		log.WithError(err).Warn("no audio output, rendering silently")
		return newNullOutput(ctx, player), func() {}
	}
	return audio.Play(player.Process), func() {
		if err := audio.Close(); err != nil {
			log.WithError(err).Debug("audio close failed")
		}
	}
}

func (s *session) startRemote(ctx context.Context, wg *sync.WaitGroup) error {
	if cfg.OSC.Port > 0 {
		b := remote.NewBroadcaster(cfg.OSC.Host, cfg.OSC.Port, log.WithField("component", "osc"))
		events := make(chan engine.Event, 256)
		s.listen(func(ev engine.Event) { engine.TrySend(events, ev) })
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Run(ctx, events)
		}()
	}
	if cfg.OSC.Listen > 0 {
		conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", cfg.OSC.Listen))
		if err != nil {
			return fmt.Errorf("could not listen for OSC commands: %w", err)
		}
		server := &osc.Server{Dispatcher: remote.NewDispatcher(s.engine, remote.EnginePoster(s.engine))}
		wg.Add(2)
		go func() {
			defer wg.Done()
			server.Serve(conn)
		}()
		go func() {
			defer wg.Done()
			<-ctx.Done()
			conn.Close()
		}()
		log.WithField("port", cfg.OSC.Listen).Info("listening for OSC commands")
	}
	return nil
}

func (s *session) listen(f func(engine.Event)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, f)
	s.mu.Unlock()
}

func (s *session) dispatch(ctx context.Context, events <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			logEvent(ev)
			s.mu.Lock()
			listeners := s.listeners
			s.mu.Unlock()
			for _, f := range listeners {
				f(ev)
			}
		}
	}
}

// await blocks until match accepts an event or the timeout passes.
func (s *session) await(ctx context.Context, timeout time.Duration, match func(engine.Event) bool) bool {
	found := make(chan struct{})
	var once sync.Once
	s.listen(func(ev engine.Event) {
		if match(ev) {
			once.Do(func() { close(found) })
		}
	})
	select {
	case <-found:
		return true
	case <-ctx.Done():
	case <-time.After(timeout):
	}
	return false
}

func logEvent(ev engine.Event) {
	switch e := ev.(type) {
	case engine.Alert:
		entry := log.WithField("alert", e.Name)
		switch e.Priority {
		case engine.Error:
			entry.Error(e.Message)
		case engine.Warning:
			entry.Warn(e.Message)
		default:
			entry.Info(e.Message)
		}
	case engine.TransportEvent:
		log.WithFields(logrus.Fields{"state": e.State, "position": e.Position}).Debug("transport")
	case engine.TempoEvent:
		log.WithField("bpm", e.BPM).Info("tempo")
	case engine.RecordingEvent:
		log.WithFields(logrus.Fields{"state": e.State, "track": e.TrackID}).Debug("recording")
	case engine.ClipEvent:
		log.WithFields(logrus.Fields{"clip": e.Clip.ID, "track": e.TrackID, "kind": e.Kind}).Debug("clip")
	case engine.MeterEvent:
		log.WithFields(logrus.Fields{"peak": e.Peak, "average": e.Average}).Trace("meter")
	}
}

// nullOutput renders the player in real time without a device.
type nullOutput struct {
	cancel context.CancelFunc
	done   chan struct{}
}

const nullBufferFrames = 512

func newNullOutput(ctx context.Context, player *engine.Player) *nullOutput {
	ctx, cancel := context.WithCancel(ctx)
	o := &nullOutput{cancel: cancel, done: make(chan struct{})}
	interval := time.Duration(nullBufferFrames) * time.Second / time.Duration(player.SampleRate())
	go func() {
		defer close(o.done)
		buf := make(sinatra.AudioBuffer, nullBufferFrames)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := player.Process(buf); err != nil {
					log.WithError(err).Error("render failed")
					return
				}
			}
		}
	}()
	return o
}

func (o *nullOutput) Close() error {
	o.cancel()
	<-o.done
	return nil
}

func (o *nullOutput) Wait() { <-o.done }
