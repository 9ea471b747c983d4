// Package collab talks to the conversion service: the backend that
// transcribes recorded takes to MIDI, renders MIDI on an instrument and
// detects the tempo of drum loops.
package collab

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sinatra-studio/sinatra"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CustomSample is the instrument that plays the uploaded one-shot sample.
const CustomSample = "Custom Sample"

type (
	// Client is a client for the conversion service. The service keeps the
	// latest take, MIDI and sample per session, so Render always applies to
	// the take converted last. Calls are serialized.
	Client struct {
		baseURL string
		http    *http.Client
		log     logrus.FieldLogger
		mu      sync.Mutex
	}

	// Health is the service status.
	Health struct {
		Status  string          `json:"status"`
		Session map[string]bool `json:"session"`
	}

	// SampleInfo describes an uploaded one-shot sample.
	SampleInfo struct {
		Filename  string  `json:"filename"`
		BasePitch float64 `json:"base_pitch"`
		NoteName  string  `json:"note_name"`
	}

	vocalResponse struct {
		Status       string  `json:"status"`
		MidiFilename *string `json:"midi_filename"`
		RawAudio     bool    `json:"raw_audio"`
	}

	drumResponse struct {
		Status   string  `json:"status"`
		BPM      float64 `json:"bpm"`
		Filename string  `json:"filename"`
	}

	chordRequest struct {
		Chords        []string `json:"chords"`
		BPM           float64  `json:"bpm"`
		BeatsPerChord int      `json:"beats_per_chord"`
		Instrument    string   `json:"instrument"`
		OctaveShift   int      `json:"octave_shift"`
		Velocity      int      `json:"velocity"`
		Pattern       string   `json:"pattern"`
	}

	errorResponse struct {
		Detail string `json:"detail"`
	}

	formFile struct {
		field, name string
		data        []byte
	}
)

func New(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Instrument returns the canonical spelling of an instrument name, as the
// service expects it: "electric piano" becomes "Electric Piano".
func Instrument(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "Piano"
	}
	return cases.Title(language.English).String(name)
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var h Health
	body, err := c.do(ctx, http.MethodGet, "/health", nil, "")
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(body, &h); err != nil {
		return h, &sinatra.CollaboratorError{Endpoint: "/health", Err: err}
	}
	return h, nil
}

// Convert uploads a take, has it transcribed (unless opts.RawAudio is set)
// and returns the render of the transcription on opts.Instrument together
// with the notes.
func (c *Client) Convert(ctx context.Context, wav []byte, opts sinatra.ConvertOptions) (sinatra.Conversion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fields := map[string]string{
		"raw_audio": strconv.FormatBool(opts.RawAudio),
		"key":       opts.Key,
		"scale":     opts.Scale,
		"quantize":  opts.Quantize,
	}
	body, err := c.postForm(ctx, "/upload-vocal", fields, &formFile{"file", "take.wav", wav})
	if err != nil {
		return sinatra.Conversion{}, err
	}
	var resp vocalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return sinatra.Conversion{}, &sinatra.CollaboratorError{Endpoint: "/upload-vocal", Err: err}
	}
	c.log.WithFields(logrus.Fields{"raw": resp.RawAudio, "midi": resp.MidiFilename != nil}).Debug("take uploaded")
	return c.render(ctx, opts.Instrument, !resp.RawAudio)
}

// Render renders the latest transcription again on another instrument.
func (c *Client) Render(ctx context.Context, instrument string) (sinatra.Conversion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.render(ctx, instrument, true)
}

func (c *Client) render(ctx context.Context, instrument string, withNotes bool) (sinatra.Conversion, error) {
	instrument = Instrument(instrument)
	body, err := c.postForm(ctx, "/render", map[string]string{"instrument": instrument}, nil)
	if err != nil {
		return sinatra.Conversion{}, err
	}
	sample, _, err := sinatra.ReadWavBytes(body, instrument)
	if err != nil {
		return sinatra.Conversion{}, &sinatra.CollaboratorError{Endpoint: "/render", Err: err}
	}
	conv := sinatra.Conversion{Render: sample, Instrument: instrument}
	if !withNotes {
		return conv, nil
	}
	midi, err := c.do(ctx, http.MethodGet, "/download-midi", nil, "")
	if err != nil {
		if ce, ok := err.(*sinatra.CollaboratorError); ok && ce.Status == http.StatusNotFound {
			return conv, nil // raw audio take, nothing transcribed
		}
		return sinatra.Conversion{}, err
	}
	if conv.Notes, err = ParseNotes(bytes.NewReader(midi)); err != nil {
		return sinatra.Conversion{}, &sinatra.CollaboratorError{Endpoint: "/download-midi", Err: err}
	}
	return conv, nil
}

// DownloadMIDI returns the latest transcription as a Standard MIDI File.
func (c *Client) DownloadMIDI(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.do(ctx, http.MethodGet, "/download-midi", nil, "")
}

// DetectBPM uploads a drum loop and returns its detected tempo.
func (c *Client) DetectBPM(ctx context.Context, filename string, wav []byte) (float64, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, err := c.postForm(ctx, "/upload-drum", nil, &formFile{"file", wavName(filename), wav})
	if err != nil {
		return 0, "", err
	}
	var resp drumResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, "", &sinatra.CollaboratorError{Endpoint: "/upload-drum", Err: err}
	}
	if resp.BPM <= 0 {
		return 0, "", &sinatra.CollaboratorError{Endpoint: "/upload-drum", Detail: fmt.Sprintf("invalid tempo %v", resp.BPM)}
	}
	return resp.BPM, resp.Filename, nil
}

// UploadSample uploads a one-shot sample for the CustomSample instrument.
func (c *Client) UploadSample(ctx context.Context, filename string, wav []byte) (SampleInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var info SampleInfo
	body, err := c.postForm(ctx, "/upload-sample", nil, &formFile{"file", wavName(filename), wav})
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return info, &sinatra.CollaboratorError{Endpoint: "/upload-sample", Err: err}
	}
	return info, nil
}

// GenerateChords renders a chord progression on an instrument. Zero fields
// take the defaults of ChordProgression.WithDefaults; invalid progressions
// are rejected before anything is sent.
func (c *Client) GenerateChords(ctx context.Context, p sinatra.ChordProgression) (*sinatra.Sample, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(chordRequest{
		Chords:        p.Chords,
		BPM:           p.BPM,
		BeatsPerChord: p.BeatsPerChord,
		Instrument:    Instrument(p.Instrument),
		OctaveShift:   p.OctaveShift,
		Velocity:      p.Velocity,
		Pattern:       p.Pattern,
	})
	if err != nil {
		return nil, &sinatra.CollaboratorError{Endpoint: "/generate-chords", Err: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := c.do(ctx, http.MethodPost, "/generate-chords", bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	sample, _, err := sinatra.ReadWavBytes(data, "chords")
	if err != nil {
		return nil, &sinatra.CollaboratorError{Endpoint: "/generate-chords", Err: err}
	}
	return sample, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, fields map[string]string, file *formFile) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if file != nil {
		fw, err := w.CreateFormFile(file.field, file.name)
		if err != nil {
			return nil, &sinatra.CollaboratorError{Endpoint: endpoint, Err: err}
		}
		if _, err := fw.Write(file.data); err != nil {
			return nil, &sinatra.CollaboratorError{Endpoint: endpoint, Err: err}
		}
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, &sinatra.CollaboratorError{Endpoint: endpoint, Err: err}
		}
	}
	if err := w.Close(); err != nil {
		return nil, &sinatra.CollaboratorError{Endpoint: endpoint, Err: err}
	}
	return c.do(ctx, http.MethodPost, endpoint, &buf, w.FormDataContentType())
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string) ([]byte, error) {
	u, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return nil, &sinatra.CollaboratorError{Endpoint: endpoint, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &sinatra.CollaboratorError{Endpoint: endpoint, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &sinatra.CollaboratorError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &sinatra.CollaboratorError{Endpoint: endpoint, Status: resp.StatusCode, Err: err}
	}
	log := c.log.WithFields(logrus.Fields{"endpoint": endpoint, "status": resp.StatusCode, "took": time.Since(start)})
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResponse
		if json.Unmarshal(data, &e) != nil || e.Detail == "" {
			e.Detail = strings.TrimSpace(string(data))
		}
		log.WithField("detail", e.Detail).Warn("conversion service request failed")
		return nil, &sinatra.CollaboratorError{Endpoint: endpoint, Status: resp.StatusCode, Detail: e.Detail}
	}
	log.Debug("conversion service request")
	return data, nil
}

// wavName makes sure the upload is named like a WAV file; the service
// rejects anything else.
func wavName(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".wav") {
		return name
	}
	return name + ".wav"
}
