// Package audio provides the audio-handling primitives shared by the
// synthesis backends and the voice sample validator: RIFF/WAVE decoding,
// signal measurements, WAV encoding of raw PCM, and conversion of arbitrary
// uploads to the canonical mono 16 kHz 16-bit PCM WAV via ffmpeg.
package audio

import (
	"encoding/binary"
	"errors"
	"math"
)

// Common decode errors. All of them mean "this is not usable PCM audio", not
// "the process should stop".
var (
	ErrNotRIFF      = errors.New("audio: missing RIFF header")
	ErrNotWAVE      = errors.New("audio: missing WAVE identifier")
	ErrNoDataChunk  = errors.New("audio: missing data chunk")
	ErrShortFile    = errors.New("audio: file too short to be a valid RIFF container")
	ErrUnsupported  = errors.New("audio: unsupported sample format")
	ErrEmptyPayload = errors.New("audio: data chunk is empty")
)

// WAVInfo holds the format metadata and payload location of a decoded
// RIFF/WAVE container.
type WAVInfo struct {
	SampleRate    int // samples per second per channel
	Channels      int // 1 = mono, 2 = stereo
	BitsPerSample int // 16 for s16le PCM
	DataOffset    int // byte offset of the first PCM sample
	DataLen       int // byte length of the data chunk payload
}

// Duration returns the audio length in seconds, computed from the decoded
// sample count and sample rate (never from file size).
func (w WAVInfo) Duration() float64 {
	if w.SampleRate <= 0 || w.Channels <= 0 || w.BitsPerSample <= 0 {
		return 0
	}
	bytesPerFrame := w.Channels * w.BitsPerSample / 8
	if bytesPerFrame == 0 {
		return 0
	}
	frames := w.DataLen / bytesPerFrame
	return float64(frames) / float64(w.SampleRate)
}

// ParseWAV walks the RIFF chunks in wav and returns the format described by
// the "fmt " sub-chunk together with the location of the "data" payload.
// Walking the chunk list is more robust than assuming a fixed 44-byte header
// because encoders emit variable-length fmt chunks and extra metadata chunks.
func ParseWAV(wav []byte) (WAVInfo, error) {
	if len(wav) < 12 {
		return WAVInfo{}, ErrShortFile
	}
	if string(wav[0:4]) != "RIFF" {
		return WAVInfo{}, ErrNotRIFF
	}
	if string(wav[8:12]) != "WAVE" {
		return WAVInfo{}, ErrNotWAVE
	}

	var info WAVInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				f := wav[offset+8:]
				format := binary.LittleEndian.Uint16(f[0:2])
				if format != 1 { // PCM only
					return WAVInfo{}, ErrUnsupported
				}
				info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return WAVInfo{}, errors.New("audio: data chunk before fmt chunk")
			}
			info.DataOffset = offset + 8
			info.DataLen = chunkSize
			if info.DataOffset+info.DataLen > len(wav) {
				// Truncated file; trust what is actually present.
				info.DataLen = len(wav) - info.DataOffset
			}
			if info.DataLen <= 0 {
				return WAVInfo{}, ErrEmptyPayload
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by one byte when the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return WAVInfo{}, ErrNoDataChunk
}

// RMS computes the root-mean-square amplitude of 16-bit little-endian PCM,
// normalised so that a full-scale sample contributes 1.0. All channels are
// folded into the measurement.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// EncodeWAV wraps raw 16-bit little-endian PCM in a minimal RIFF/WAVE header.
// Used by subprocess backends (Piper) that emit headerless PCM on stdout.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	out := make([]byte, 44+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}
