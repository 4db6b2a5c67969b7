// Package input binds global keyboard shortcuts to tutor and shell actions,
// so the tutor can be started and stopped without focusing the browser.
package input

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.design/x/hotkey"
)

// Binding ties a key combination such as "ctrl+shift+m" to an action.
type Binding struct {
	Name   string
	Keys   string
	Action func()
}

// Manager owns a set of registered global hotkeys.
type Manager struct {
	bindings []Binding

	mu     sync.Mutex
	hks    []*hotkey.Hotkey
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager returns a manager for bindings. Bindings with empty Keys are
// skipped.
func NewManager(bindings ...Binding) *Manager {
	return &Manager{bindings: bindings}
}

// Start registers every binding and dispatches key presses until ctx ends or
// Stop is called. Registration stops at the first failure, and the hotkeys
// registered so far are released.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, m.cancel = context.WithCancel(ctx)
	for _, b := range m.bindings {
		if b.Keys == "" {
			continue
		}
		mods, key, err := parseHotkey(b.Keys)
		if err != nil {
			m.releaseLocked()
			return fmt.Errorf("input: hotkey %s: %w", b.Name, err)
		}
		hk := hotkey.New(mods, key)
		if err := hk.Register(); err != nil {
			m.releaseLocked()
			return fmt.Errorf("input: register %s (%s): %w", b.Name, b.Keys, err)
		}
		m.hks = append(m.hks, hk)

		m.wg.Add(1)
		go m.listen(ctx, hk, b)
		slog.Info("input: hotkey registered", "action", b.Name, "keys", b.Keys)
	}
	return nil
}

func (m *Manager) listen(ctx context.Context, hk *hotkey.Hotkey, b Binding) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-hk.Keydown():
			if !ok {
				return
			}
			slog.Debug("input: hotkey pressed", "action", b.Name)
			b.Action()
		}
	}
}

// Stop unregisters every hotkey and waits for the listeners to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.releaseLocked()
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) releaseLocked() {
	if m.cancel != nil {
		m.cancel()
	}
	for _, hk := range m.hks {
		if err := hk.Unregister(); err != nil {
			slog.Debug("input: unregister hotkey", "err", err)
		}
	}
	m.hks = nil
}

// parseHotkey parses a combination like "ctrl+shift+m" into modifiers and a
// key.
func parseHotkey(s string) ([]hotkey.Modifier, hotkey.Key, error) {
	var (
		mods     []hotkey.Modifier
		key      hotkey.Key
		keyFound bool
	)
	for part := range strings.SplitSeq(strings.ToLower(s), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			return nil, 0, fmt.Errorf("empty component in %q", s)
		case "ctrl", "control":
			mods = append(mods, hotkey.ModCtrl)
		case "shift":
			mods = append(mods, hotkey.ModShift)
		case "alt", "option":
			mods = append(mods, modAlt())
		case "cmd", "command", "super", "win":
			mods = append(mods, modSuper())
		default:
			if keyFound {
				return nil, 0, fmt.Errorf("more than one key in %q", s)
			}
			k, ok := lookupKey(part)
			if !ok {
				return nil, 0, fmt.Errorf("unknown key %q", part)
			}
			key, keyFound = k, true
		}
	}
	if !keyFound {
		return nil, 0, fmt.Errorf("no key in %q", s)
	}
	return mods, key, nil
}

var namedKeys = map[string]hotkey.Key{
	"space": hotkey.KeySpace, "return": hotkey.KeyReturn, "enter": hotkey.KeyReturn,
	"tab": hotkey.KeyTab, "escape": hotkey.KeyEscape, "esc": hotkey.KeyEscape,
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

var letterKeys = [...]hotkey.Key{
	hotkey.KeyA, hotkey.KeyB, hotkey.KeyC, hotkey.KeyD, hotkey.KeyE, hotkey.KeyF,
	hotkey.KeyG, hotkey.KeyH, hotkey.KeyI, hotkey.KeyJ, hotkey.KeyK, hotkey.KeyL,
	hotkey.KeyM, hotkey.KeyN, hotkey.KeyO, hotkey.KeyP, hotkey.KeyQ, hotkey.KeyR,
	hotkey.KeyS, hotkey.KeyT, hotkey.KeyU, hotkey.KeyV, hotkey.KeyW, hotkey.KeyX,
	hotkey.KeyY, hotkey.KeyZ,
}

var digitKeys = [...]hotkey.Key{
	hotkey.Key0, hotkey.Key1, hotkey.Key2, hotkey.Key3, hotkey.Key4,
	hotkey.Key5, hotkey.Key6, hotkey.Key7, hotkey.Key8, hotkey.Key9,
}

func lookupKey(s string) (hotkey.Key, bool) {
	if k, ok := namedKeys[s]; ok {
		return k, true
	}
	if len(s) == 1 {
		switch c := s[0]; {
		case c >= 'a' && c <= 'z':
			return letterKeys[c-'a'], true
		case c >= '0' && c <= '9':
			return digitKeys[c-'0'], true
		}
	}
	return 0, false
}
