// Package mock provides a configurable in-memory synth.Provider and
// synth.Cloner for tests.
package mock

import (
	"context"
	"sync"

	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

// Compile-time interface assertions.
var (
	_ synth.Provider = (*Provider)(nil)
	_ synth.Cloner   = (*Provider)(nil)
)

// Provider is a test double for a synthesis backend. Zero value is usable:
// every call succeeds with canned output. Set the Err fields to simulate
// failure, or the Fn fields for full control. Safe for concurrent use.
type Provider struct {
	// Backend is the name reported by Name. Defaults to "mock" cast to a
	// Backend, which is fine for tests that never check validity.
	Backend synth.Backend

	// SynthesizeErr, when non-nil, is returned by every Synthesize call.
	SynthesizeErr error

	// SynthesizeFn, when non-nil, fully replaces Synthesize.
	SynthesizeFn func(ctx context.Context, req synth.Request) (*synth.Audio, error)

	// CloneErr, when non-nil, is returned by every CloneVoice call.
	CloneErr error

	// CloneID is the id returned by a successful CloneVoice. Defaults to
	// "mock-voice".
	CloneID string

	// DeleteErr, when non-nil, is returned by every DeleteVoice call.
	DeleteErr error

	// Voices is returned by ListVoices.
	Voices []synth.Voice

	mu       sync.Mutex
	requests []synth.Request
	cloned   []string
	deleted  []string
}

// Name returns the configured backend name, defaulting to "mock".
func (p *Provider) Name() synth.Backend {
	if p.Backend == "" {
		return synth.Backend("mock")
	}
	return p.Backend
}

// Synthesize records the request and returns canned audio or the configured
// error.
func (p *Provider) Synthesize(ctx context.Context, req synth.Request) (*synth.Audio, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.SynthesizeFn != nil {
		return p.SynthesizeFn(ctx, req)
	}
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	return &synth.Audio{Data: []byte("mock audio"), Format: "wav"}, nil
}

// ListVoices returns the configured voice list.
func (p *Provider) ListVoices(_ context.Context) ([]synth.Voice, error) {
	return p.Voices, nil
}

// CloneVoice records the name and returns the configured id or error.
func (p *Provider) CloneVoice(_ context.Context, name string, sample []byte) (string, error) {
	p.mu.Lock()
	p.cloned = append(p.cloned, name)
	p.mu.Unlock()

	if p.CloneErr != nil {
		return "", p.CloneErr
	}
	if p.CloneID != "" {
		return p.CloneID, nil
	}
	return "mock-voice", nil
}

// DeleteVoice records the deleted id and returns the configured error.
func (p *Provider) DeleteVoice(_ context.Context, id string) error {
	p.mu.Lock()
	p.deleted = append(p.deleted, id)
	p.mu.Unlock()
	return p.DeleteErr
}

// Requests returns a copy of all Synthesize requests seen so far.
func (p *Provider) Requests() []synth.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]synth.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// Cloned returns a copy of all names passed to CloneVoice.
func (p *Provider) Cloned() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.cloned))
	copy(out, p.cloned)
	return out
}

// Deleted returns a copy of all ids passed to DeleteVoice.
func (p *Provider) Deleted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.deleted))
	copy(out, p.deleted)
	return out
}
