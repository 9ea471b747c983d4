package sinatra

import (
	"errors"
	"fmt"
)

var (
	ErrPermission      = errors.New("microphone unavailable or permission denied")
	ErrEmptyCapture    = errors.New("no audio was captured")
	ErrSilentRecording = errors.New("recording is silent")
	ErrSchedulingFault = errors.New("clip has no playable audio source")
	ErrCollaborator    = errors.New("conversion service failed")

	ErrRecordingActive = errors.New("a recording is already in progress")
	ErrNotRecording    = errors.New("no recording in progress")
	ErrClipOverlap     = errors.New("clips would overlap")
	ErrLoopTrack       = errors.New("operation not allowed on the loop track")
	ErrUnknownTrack    = errors.New("unknown track")
	ErrUnknownClip     = errors.New("unknown clip")
	ErrInvalidClip     = errors.New("invalid clip")
	ErrInvalidWav      = errors.New("invalid WAV data")
	ErrInvalidChords   = errors.New("invalid chord progression")
)

// CollaboratorError is returned when the conversion or BPM detection service
// fails. It unwraps to ErrCollaborator and to the underlying cause.
type CollaboratorError struct {
	Endpoint string
	Status   int // HTTP status, 0 if no response was received
	Detail   string
	Err      error
}

func (e *CollaboratorError) Error() string {
	msg := e.Endpoint
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "conversion service: " + msg
}

func (e *CollaboratorError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCollaborator}
	}
	return []error{ErrCollaborator, e.Err}
}
