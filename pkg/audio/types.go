package audio

import "time"

// Chunk is one immutable decoded block of audio. Samples holds one slice per
// channel, each normalised to [-1.0, 1.0]. A chunk is owned by whichever
// component scheduled it until playback ends.
type Chunk struct {
	// SampleRate in Hz (16000 for microphone input, 24000 for model speech).
	SampleRate int

	// Channels is the number of de-interleaved channels in Samples.
	Channels int

	// Samples holds the per-channel sample data.
	Samples [][]float32
}

// Frames returns the number of sample frames in the chunk.
func (c Chunk) Frames() int {
	if len(c.Samples) == 0 {
		return 0
	}
	return len(c.Samples[0])
}

// Duration returns the playback length of the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Blob is an encoded block of audio tagged with its MIME type, ready to be
// sent to a remote engine.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}
