package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sinatra-studio/sinatra"
	"github.com/sirupsen/logrus"
	"github.com/viterin/vek/vek32"
)

type (
	// Recorder captures one take at a time from the microphone. The state
	// machine is Idle → Requesting → Capturing → Finalizing → Idle; opening
	// the device or reading from it may fail into Error, which immediately
	// returns to Idle. Starting while a take is in progress is rejected
	// with ErrRecordingActive.
	Recorder struct {
		mu      sync.Mutex
		mic     sinatra.Microphone
		params  RecordParams
		broker  *Broker
		log     logrus.FieldLogger
		state   RecordState
		session *recordingSession
	}

	RecordState int

	// RecordParams are the capture and finalization constants.
	RecordParams struct {
		BlockSize int
		// NoiseGate: blocks whose peak is at or below this are replaced with
		// silence.
		NoiseGate float32
		// Silence: takes whose peak is below this are discarded.
		Silence float32
		// Target is the peak a take is normalized to.
		Target float32
	}

	// Take is a finalized recording, normalized and encoded.
	Take struct {
		TrackID  string
		StartSec float64
		Sample   *sinatra.Sample
		Wav      []byte
		Peak     float32 // peak before normalization
	}

	// recordingSession owns the input stream for the duration of one
	// capture. The stream is closed exactly once, by Stop or by a failed
	// Start.
	recordingSession struct {
		trackID  string
		startPos float64
		cancel   context.CancelFunc
		stream   sinatra.InputStream
		stop     chan struct{}
		done     chan struct{}
		buf      []float32
		err      error
	}
)

const (
	RecordIdle RecordState = iota
	RecordRequesting
	RecordCapturing
	RecordFinalizing
	RecordError
)

func (s RecordState) String() string {
	switch s {
	case RecordIdle:
		return "idle"
	case RecordRequesting:
		return "requesting"
	case RecordCapturing:
		return "capturing"
	case RecordFinalizing:
		return "finalizing"
	case RecordError:
		return "error"
	}
	return "unknown"
}

func DefaultRecordParams() RecordParams {
	return RecordParams{BlockSize: 4096, NoiseGate: 0.005, Silence: 0.001, Target: 0.8}
}

func NewRecorder(mic sinatra.Microphone, params RecordParams, broker *Broker, log logrus.FieldLogger) *Recorder {
	return &Recorder{mic: mic, params: params, broker: broker, log: log}
}

func (r *Recorder) State() RecordState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// TrackID returns the target track of the take in progress.
func (r *Recorder) TrackID() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return "", false
	}
	return r.session.trackID, true
}

// Start opens the microphone and starts capturing a take for the given
// track. begin is called once the device is open, right before capturing
// starts, and returns the timeline position the take starts at. It returns
// once capturing has begun. Errors from opening the device wrap
// ErrPermission.
func (r *Recorder) Start(ctx context.Context, trackID string, begin func() float64) error {
	r.mu.Lock()
	if r.state != RecordIdle {
		r.mu.Unlock()
		return sinatra.ErrRecordingActive
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &recordingSession{
		trackID: trackID,
		cancel:  cancel,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	r.session = s
	r.setState(RecordRequesting)
	r.mu.Unlock()

	stream, err := r.mic.Open(ctx, r.params.BlockSize)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil && ctx.Err() != nil {
		// stopped while the device was being opened
		if cerr := stream.Close(); cerr != nil {
			r.log.WithFields(logrus.Fields{"track": trackID, "err": cerr}).Warn("could not close microphone")
		}
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		if !errors.Is(err, sinatra.ErrPermission) && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %w", sinatra.ErrPermission, err)
		}
		r.log.WithFields(logrus.Fields{"track": trackID, "err": err}).Warn("could not open microphone")
		r.fail()
		return err
	}
	s.stream = stream
	s.startPos = begin()
	r.setState(RecordCapturing)
	TrySend(r.broker.ToDetector, MsgToDetector{Reset: true})
	go r.capture(s)
	return nil
}

// Stop ends the take in progress, releases the device and finalizes the
// audio. The returned take is normalized to the target peak. Takes with no
// audio fail with ErrEmptyCapture, takes below the silence threshold with
// ErrSilentRecording; both are discarded. Only one caller finalizes a take;
// others get ErrNotRecording.
func (r *Recorder) Stop() (Take, error) {
	r.mu.Lock()
	s := r.session
	switch {
	case s == nil:
		r.mu.Unlock()
		return Take{}, sinatra.ErrNotRecording
	case r.state == RecordRequesting:
		s.cancel()
		r.mu.Unlock()
		return Take{}, sinatra.ErrEmptyCapture
	case r.state == RecordFinalizing:
		r.mu.Unlock()
		return Take{}, sinatra.ErrNotRecording
	}
	r.setState(RecordFinalizing)
	r.mu.Unlock()

	close(s.stop)
	<-s.done
	s.cancel()
	closeErr := s.stream.Close()
	rate := s.stream.SampleRate()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := errors.Join(s.err, closeErr); err != nil {
		r.log.WithFields(logrus.Fields{"track": s.trackID, "err": err}).Warn("capture failed")
		r.fail()
		return Take{}, fmt.Errorf("capture: %w", err)
	}
	peak, err := Normalize(s.buf, r.params.Target, r.params.Silence)
	r.session = nil
	r.setState(RecordIdle)
	if err != nil {
		r.log.WithFields(logrus.Fields{"track": s.trackID, "peak": peak}).Info(err.Error())
		return Take{}, err
	}
	wav, err := sinatra.Wav(s.buf, rate)
	if err != nil {
		return Take{}, fmt.Errorf("encoding take: %w", err)
	}
	return Take{
		TrackID:  s.trackID,
		StartSec: s.startPos,
		Sample:   sinatra.NewSample("take", rate, s.buf),
		Wav:      wav,
		Peak:     peak,
	}, nil
}

// capture reads blocks until stopped or the input ends. Quiet blocks are
// gated to silence; every block is also sent to the detector for metering.
func (r *Recorder) capture(s *recordingSession) {
	defer close(s.done)
	block := make([]float32, r.params.BlockSize)
	tmp := make([]float32, r.params.BlockSize)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		n, err := s.stream.Read(block)
		if n > 0 {
			data := block[:n]
			r.meter(data)
			if vek32.Max(vek32.Abs_Into(tmp[:n], data)) <= r.params.NoiseGate {
				clear(data)
			}
			s.buf = append(s.buf, data...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			return
		}
	}
}

func (r *Recorder) meter(data []float32) {
	b := r.broker.GetBlock()
	*b = append(*b, data...)
	if !TrySend(r.broker.ToDetector, MsgToDetector{Block: b}) {
		r.broker.PutBlock(b)
	}
}

// fail passes through the Error state back to Idle and drops the session.
// Must be called with the lock held.
func (r *Recorder) fail() {
	r.setState(RecordError)
	r.session = nil
	r.setState(RecordIdle)
}

func (r *Recorder) setState(state RecordState) {
	r.state = state
	var track string
	if r.session != nil {
		track = r.session.trackID
	}
	r.broker.Emit(RecordingEvent{State: state, TrackID: track})
}

// Normalize scales buf in place so that its peak equals target, clamping to
// [-1, 1]. It returns the peak before scaling.
func Normalize(buf []float32, target, silence float32) (float32, error) {
	if len(buf) == 0 {
		return 0, sinatra.ErrEmptyCapture
	}
	peak := Peak(buf)
	if peak < silence {
		return peak, sinatra.ErrSilentRecording
	}
	vek32.MulNumber_Inplace(buf, target/peak)
	for i, v := range buf {
		buf[i] = clamp(v)
	}
	return peak, nil
}

// Peak returns the largest absolute amplitude in buf.
func Peak(buf []float32) float32 {
	if len(buf) == 0 {
		return 0
	}
	return vek32.Max(vek32.Abs(buf))
}
