package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrDecode is returned when an encoded audio payload cannot be decoded.
var ErrDecode = errors.New("audio: decode failed")

// DecodeBase64 decodes standard base64 text into raw bytes. Malformed input
// yields an error wrapping [ErrDecode].
func DecodeBase64(text string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return b, nil
}

// EncodeBase64 is the inverse of [DecodeBase64].
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// BytesToChunk interprets pcm as signed 16-bit little-endian interleaved PCM
// and de-interleaves it into a [Chunk]. Each sample is divided by 32768.
// A trailing partial frame is dropped.
func BytesToChunk(pcm []byte, sampleRate, channels int) Chunk {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / 2 / channels
	samples := make([][]float32, channels)
	for ch := range samples {
		samples[ch] = make([]float32, frames)
	}
	for i := range frames {
		for ch := range channels {
			off := (i*channels + ch) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[off:]))
			samples[ch][i] = float32(s) / 32768
		}
	}
	return Chunk{SampleRate: sampleRate, Channels: channels, Samples: samples}
}

// FloatToPCM16 converts float samples to signed 16-bit little-endian PCM.
// Samples are clamped to [-1, 1]; negative values scale by 32768 and
// non-negative values by 32767 so both ends stay representable.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s != s { // NaN
			s = 0
		}
		s = max(-1, min(1, s))
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
