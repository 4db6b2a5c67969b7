package device

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/eimkon/eimkon/pkg/audio"
)

// DefaultOutputRate is the rate of speech returned by the remote engines.
const DefaultOutputRate = 24000

// Speaker is an [audio.Output] backed by the default playback device. Its
// clock counts frames actually pulled by the device, so scheduled start
// times line up with what the listener hears.
type Speaker struct {
	*timeline

	mu     sync.Mutex
	device *malgo.Device
	buf    []float32
}

var _ audio.Output = (*Speaker)(nil)

// NewSpeaker opens and starts a mono playback device at rate on ctx.
func NewSpeaker(ctx *Context, rate int) (*Speaker, error) {
	if rate <= 0 {
		rate = DefaultOutputRate
	}
	backend, err := ctx.backend()
	if err != nil {
		return nil, err
	}

	s := &Speaker{timeline: newTimeline(rate)}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(rate)
	cfg.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frames uint32) {
			s.fill(pOutput, int(frames))
		},
	}

	device, err := malgo.InitDevice(backend, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("device: init speaker: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("device: start speaker: %w", err)
	}
	s.device = device
	return s, nil
}

// fill renders frames of audio into the device buffer as PCM16.
func (s *Speaker) fill(pOutput []byte, frames int) {
	if cap(s.buf) < frames {
		s.buf = make([]float32, frames)
	}
	buf := s.buf[:frames]
	s.render(buf)
	copy(pOutput, audio.FloatToPCM16(buf))
}

// Close stops the device. Scheduled chunks are dropped without firing their
// completion callbacks. Safe to call more than once.
func (s *Speaker) Close() error {
	s.mu.Lock()
	device := s.device
	s.device = nil
	s.mu.Unlock()

	if device == nil {
		return nil
	}
	defer device.Uninit()
	if err := device.Stop(); err != nil {
		return fmt.Errorf("device: stop speaker: %w", err)
	}
	return nil
}
