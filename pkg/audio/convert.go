package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Converter normalises uploaded audio into mono 16 kHz 16-bit PCM WAV. It is
// a thin wrapper around the ffmpeg binary; the signal processing itself is an
// external capability invoked through this narrow contract.
type Converter struct {
	bin string
}

// NewConverter returns a Converter using the given ffmpeg binary. An empty
// bin defaults to "ffmpeg" resolved via PATH.
func NewConverter(bin string) *Converter {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Converter{bin: bin}
}

// Available reports whether the ffmpeg binary can be resolved. Checked once
// at startup by the capability registry; no subprocess is spawned.
func (c *Converter) Available() bool {
	_, err := exec.LookPath(c.bin)
	return err == nil
}

// ToPCMWAV converts the file at inPath into a mono 16 kHz s16 WAV at outPath,
// overwriting outPath if it exists. A non-zero ffmpeg exit is returned as a
// descriptive conversion error including the tail of stderr.
func (c *Converter) ToPCMWAV(ctx context.Context, inPath, outPath string) error {
	cmd := exec.CommandContext(ctx, c.bin,
		"-y",
		"-i", inPath,
		"-ac", "1",
		"-ar", "16000",
		"-sample_fmt", "s16",
		outPath,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("audio: ffmpeg conversion of %q failed: %w (%s)", inPath, err, lastLine(stderr.String()))
	}
	return nil
}

// lastLine returns the final non-empty line of s, which for ffmpeg is almost
// always the actual error.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
