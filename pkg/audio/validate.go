package audio

import (
	"fmt"
	"os"
)

// Validation bounds for voice cloning samples.
const (
	// MinSampleDuration is the inclusive lower bound for a usable sample.
	MinSampleDuration = 10.0

	// MaxSampleDuration is the exclusive upper bound for a usable sample.
	MaxSampleDuration = 300.0

	// MinSampleRate is the minimum sample rate for a usable sample.
	MinSampleRate = 16000

	// MinRMSLevel is the silence threshold: samples whose normalised RMS
	// amplitude is at or below this are rejected as mostly silent.
	MinRMSLevel = 0.01
)

// Report carries the measured properties of a validated sample.
type Report struct {
	// OK is true when every check passed.
	OK bool `json:"ok"`

	// Reason describes the first failed check; "sample validated" on success.
	Reason string `json:"reason"`

	// Duration is the audio length in seconds, measured from the decoded
	// sample count. When Estimated is true this is a file-size approximation.
	Duration float64 `json:"duration"`

	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	RMSLevel   float64 `json:"rms_level"`
	FileSize   int64   `json:"file_size"`

	// Estimated marks a degraded check: the sample could not be decoded and
	// the duration was estimated from file size instead of sample counts.
	// Only set when the validator was explicitly allowed to degrade.
	Estimated bool `json:"estimated,omitempty"`
}

// ValidateSample checks the WAV file at path against the voice cloning
// quality bar. Checks run in order and short-circuit on the first failure:
// decodability, duration in [MinSampleDuration, MaxSampleDuration), sample
// rate >= MinSampleRate, and a non-silent RMS level. A decode failure is
// reported as a failed validation with a descriptive reason, never as an
// error; the error return is reserved for I/O problems reading the file.
func ValidateSample(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("audio: read sample %q: %w", path, err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes runs the same checks as [ValidateSample] against an
// in-memory WAV file.
func ValidateBytes(data []byte) Report {
	info, err := ParseWAV(data)
	if err != nil {
		return Report{
			Reason:   fmt.Sprintf("could not decode audio: %v", err),
			FileSize: int64(len(data)),
		}
	}

	rep := Report{
		Duration:   info.Duration(),
		SampleRate: info.SampleRate,
		Channels:   info.Channels,
		FileSize:   int64(len(data)),
	}

	if rep.Duration < MinSampleDuration {
		rep.Reason = fmt.Sprintf("audio too short: %.1fs (minimum %.0fs required)", rep.Duration, MinSampleDuration)
		return rep
	}
	if rep.Duration >= MaxSampleDuration {
		rep.Reason = fmt.Sprintf("audio too long: %.1fs (maximum %.0fs allowed)", rep.Duration, MaxSampleDuration)
		return rep
	}
	if rep.SampleRate < MinSampleRate {
		rep.Reason = fmt.Sprintf("sample rate too low: %dHz (minimum %dHz required)", rep.SampleRate, MinSampleRate)
		return rep
	}

	rep.RMSLevel = RMS(data[info.DataOffset : info.DataOffset+info.DataLen])
	if rep.RMSLevel <= MinRMSLevel {
		rep.Reason = "audio appears to be mostly silent"
		return rep
	}

	rep.OK = true
	rep.Reason = "sample validated"
	return rep
}

// EstimateSampleDuration approximates a sample's duration from file size,
// assuming mono 16 kHz 16-bit PCM. This is the degraded fallback used only
// when decoding is unavailable; callers must surface the Estimated flag so
// the approximation is never mistaken for a measurement.
func EstimateSampleDuration(fileSize int64) float64 {
	const bytesPerSecond = 16000 * 2
	if fileSize <= 44 {
		return 0
	}
	return float64(fileSize-44) / bytesPerSecond
}
