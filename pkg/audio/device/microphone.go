package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/eimkon/eimkon/pkg/audio"
)

// MicrophoneConfig configures a capture device.
//
// Capture is raw: echo cancellation, noise suppression and automatic gain
// control are not applied here. Platforms that offer them do so at the OS
// or driver level.
type MicrophoneConfig struct {
	// SampleRate requested from the device. miniaudio converts from the
	// hardware rate when needed. Defaults to [audio.CaptureSampleRate].
	SampleRate int

	// PeriodFrames is the device callback period in frames. Zero lets
	// miniaudio choose.
	PeriodFrames int
}

// Microphone is an [audio.Microphone] backed by the default capture device.
// It captures mono signed 16-bit PCM and hands float samples to the callback.
type Microphone struct {
	ctx *Context
	cfg MicrophoneConfig

	mu     sync.Mutex
	device *malgo.Device
}

var _ audio.Microphone = (*Microphone)(nil)

// NewMicrophone returns a Microphone on ctx. The device is not opened until
// [Microphone.Start].
func NewMicrophone(ctx *Context, cfg MicrophoneConfig) *Microphone {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.CaptureSampleRate
	}
	return &Microphone{ctx: ctx, cfg: cfg}
}

// SampleRate implements [audio.Microphone].
func (m *Microphone) SampleRate() int { return m.cfg.SampleRate }

// Start implements [audio.Microphone].
func (m *Microphone) Start(_ context.Context, fn func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return nil
	}

	backend, err := m.ctx.backend()
	if err != nil {
		return &audio.MicAccessError{Reason: "audio backend unavailable", Err: err}
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(m.cfg.SampleRate)
	if m.cfg.PeriodFrames > 0 {
		cfg.PeriodSizeInFrames = uint32(m.cfg.PeriodFrames)
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, _ uint32) {
			chunk := audio.BytesToChunk(pInput, m.cfg.SampleRate, 1)
			if chunk.Frames() > 0 {
				fn(chunk.Samples[0])
			}
		},
	}

	device, err := malgo.InitDevice(backend, cfg, callbacks)
	if err != nil {
		return &audio.MicAccessError{Reason: "no capture device", Err: err}
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return &audio.MicAccessError{Reason: "capture device refused to start", Err: err}
	}
	m.device = device
	return nil
}

// Stop implements [audio.Microphone].
func (m *Microphone) Stop() error {
	m.mu.Lock()
	device := m.device
	m.device = nil
	m.mu.Unlock()

	if device == nil {
		return nil
	}
	defer device.Uninit()
	if err := device.Stop(); err != nil {
		return fmt.Errorf("device: stop microphone: %w", err)
	}
	return nil
}
