// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/audioalchemy/audioalchemy/pkg/audio"
	"github.com/audioalchemy/audioalchemy/pkg/stt"
)

// Compile-time assertion that NativeProvider implements stt.Recognizer.
var _ stt.Recognizer = (*NativeProvider)(nil)

// NativeProvider implements stt.Recognizer using the whisper.cpp Go bindings,
// with the model loaded once in-process and shared across requests. Whisper
// contexts are not reusable across goroutines, so each Recognize call creates
// its own context from the shared model.
type NativeProvider struct {
	model    whisperlib.Model
	language string

	// The bindings serialise context creation internally, but closing the
	// model while a request is running is not safe; closed guards that.
	mu     sync.Mutex
	closed bool
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription (e.g. "en",
// "de"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// modelPath. The caller must call Close when the provider is no longer
// needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Recognize calls after Close fail with
// stt.ErrService.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.model.Close()
}

// Recognize decodes wav, down-mixes to mono float32, and runs whisper.cpp
// inference. Audio that decodes but yields no segments maps to
// stt.ErrUnintelligible.
func (p *NativeProvider) Recognize(ctx context.Context, wav []byte) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("%w: %v", stt.ErrService, err)
	}

	info, err := audio.ParseWAV(wav)
	if err != nil {
		return stt.Result{}, fmt.Errorf("%w: %v", stt.ErrUnintelligible, err)
	}
	pcm := wav[info.DataOffset : info.DataOffset+info.DataLen]
	samples := pcmToFloat32Mono(pcm, info.Channels)
	if len(samples) == 0 {
		return stt.Result{}, stt.ErrUnintelligible
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return stt.Result{}, fmt.Errorf("%w: provider is closed", stt.ErrService)
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("%w: create context: %v", stt.ErrService, err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using model default",
			"language", p.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("%w: process audio: %v", stt.ErrService, err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("%w: read segment: %v", stt.ErrService, err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return stt.Result{}, stt.ErrUnintelligible
	}
	return stt.Result{Text: strings.Join(parts, " "), Language: p.language}, nil
}
