// Package device implements [audio.Microphone] and [audio.Output] on top of
// miniaudio through the malgo bindings.
//
// A single [Context] owns the miniaudio backend. Microphones and speakers
// created from it share that backend and must be closed before the context.
package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// Context owns the process-wide miniaudio context.
type Context struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// Open initialises the default miniaudio backend.
func Open() (*Context, error) {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime
	ctx, err := malgo.InitContext(nil, cfg, func(msg string) {
		slog.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("device: init context: %w", err)
	}
	return &Context{ctx: ctx}, nil
}

// CaptureDevices returns the names of the available capture devices.
func (c *Context) CaptureDevices() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return nil, fmt.Errorf("device: context closed")
	}
	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("device: enumerate capture devices: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

// Close releases the miniaudio context. Safe to call more than once.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return nil
	}
	err := c.ctx.Uninit()
	c.ctx.Free()
	c.ctx = nil
	if err != nil {
		return fmt.Errorf("device: uninit context: %w", err)
	}
	return nil
}

func (c *Context) backend() (malgo.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		var zero malgo.Context
		return zero, fmt.Errorf("device: context closed")
	}
	return c.ctx.Context, nil
}
