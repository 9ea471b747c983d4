package mic_test

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sinatra-studio/sinatra"
	"github.com/sinatra-studio/sinatra/mic"
)

func writeWav(t *testing.T, data []float32, rate int) string {
	t.Helper()
	wav, err := sinatra.Wav(data, rate)
	if err != nil {
		t.Fatalf("Wav failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "take.wav")
	if err := os.WriteFile(path, wav, 0644); err != nil {
		t.Fatalf("could not write %v: %v", path, err)
	}
	return path
}

func TestFileCapturesBlocks(t *testing.T) {
	data := make([]float32, 250)
	for i := range data {
		data[i] = float32(math.Sin(float64(i) / 10))
	}
	path := writeWav(t, data, 8000)
	stream, err := mic.File{Path: path}.Open(context.Background(), 100)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()
	if stream.SampleRate() != 8000 {
		t.Fatalf("expected sample rate 8000, got %v", stream.SampleRate())
	}
	var captured []float32
	block := make([]float32, 100)
	for {
		n, err := stream.Read(block)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		captured = append(captured, block[:n]...)
	}
	if len(captured) != len(data) {
		t.Fatalf("expected %d samples, got %d", len(data), len(captured))
	}
	for i := range data {
		if math.Abs(float64(captured[i]-data[i])) > 1e-4 {
			t.Fatalf("sample %d: expected %v, got %v", i, data[i], captured[i])
		}
	}
}

func TestFileMissing(t *testing.T) {
	_, err := mic.File{Path: filepath.Join(t.TempDir(), "nope.wav")}.Open(context.Background(), 100)
	if !errors.Is(err, sinatra.ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
}

func TestFileNotWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := mic.File{Path: path}.Open(context.Background(), 100)
	if !errors.Is(err, sinatra.ErrPermission) || !errors.Is(err, sinatra.ErrInvalidWav) {
		t.Fatalf("expected ErrPermission and ErrInvalidWav, got %v", err)
	}
}

func TestFileCancelled(t *testing.T) {
	path := writeWav(t, make([]float32, 1000), 8000)
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := mic.File{Path: path, Realtime: true}.Open(ctx, 100)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()
	cancel()
	if _, err := stream.Read(make([]float32, 100)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
