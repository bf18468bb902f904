package translate

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeCompleter records the prompt it received and returns canned output.
type fakeCompleter struct {
	system string
	user   string
	out    string
	err    error
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.system = system
	f.user = user
	return f.out, f.err
}

func TestTranslate(t *testing.T) {
	fc := &fakeCompleter{out: "  Guten Morgen!  "}
	tr := New(fc)

	got, err := tr.Translate(context.Background(), "Good morning!", "German")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Guten Morgen!" {
		t.Errorf("translated = %q", got)
	}
	if fc.user != "Good morning!" {
		t.Errorf("user message = %q", fc.user)
	}
	if !strings.Contains(fc.system, "German") {
		t.Errorf("system prompt %q should name the target language", fc.system)
	}
	if !strings.Contains(fc.system, "ONLY the translated") {
		t.Errorf("system prompt %q should forbid commentary", fc.system)
	}
}

func TestTranslateEmptyText(t *testing.T) {
	tr := New(&fakeCompleter{out: "x"})
	if _, err := tr.Translate(context.Background(), "   ", "German"); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

func TestTranslateMissingTargetLanguage(t *testing.T) {
	tr := New(&fakeCompleter{out: "x"})
	if _, err := tr.Translate(context.Background(), "hello", ""); err == nil {
		t.Fatal("Translate without a target language should fail")
	}
}

func TestTranslateCompleterFailure(t *testing.T) {
	wantErr := errors.New("rate limited")
	tr := New(&fakeCompleter{err: wantErr})
	if _, err := tr.Translate(context.Background(), "hello", "French"); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestTranslateEmptyModelOutput(t *testing.T) {
	tr := New(&fakeCompleter{out: "   "})
	if _, err := tr.Translate(context.Background(), "hello", "French"); err == nil {
		t.Fatal("Translate should fail when the model returns no text")
	}
}
