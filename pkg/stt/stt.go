// Package stt defines the Recognizer interface for speech-to-text backends.
//
// Recognition here is batch: the caller hands over one complete WAV file
// (typically a user upload already normalised to 16 kHz mono) and receives
// the full transcription in one call. There is no streaming session state.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrUnintelligible is returned when the engine processed the audio but could
// not extract any speech from it. Callers should surface this as a user-facing
// condition, not an operational failure.
var ErrUnintelligible = errors.New("stt: could not understand the audio")

// ErrService is returned when the recognition engine itself failed or was
// unreachable. Errors wrapping ErrService indicate an operational problem.
var ErrService = errors.New("stt: recognition service unavailable")

// Result is one completed transcription.
type Result struct {
	// Text is the transcribed speech content, whitespace-trimmed.
	Text string

	// Language is the language the engine detected or was told to use.
	// May be empty when the engine does not report it.
	Language string
}

// Recognizer is the abstraction over any batch speech-to-text backend.
type Recognizer interface {
	// Recognize transcribes one complete WAV file. Audio the engine cannot
	// extract speech from yields an error wrapping ErrUnintelligible; an
	// unreachable or failing engine yields an error wrapping ErrService.
	Recognize(ctx context.Context, wav []byte) (Result, error)
}
