package input

import (
	"testing"

	"golang.design/x/hotkey"
)

func TestParseHotkey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		mods    int
		key     hotkey.Key
		wantErr bool
	}{
		{in: "ctrl+shift+m", mods: 2, key: hotkey.KeyM},
		{in: "Ctrl + Shift + H", mods: 2, key: hotkey.KeyH},
		{in: "alt+t", mods: 1, key: hotkey.KeyT},
		{in: "ctrl+f5", mods: 1, key: hotkey.KeyF5},
		{in: "escape", mods: 0, key: hotkey.KeyEscape},
		{in: "ctrl+7", mods: 1, key: hotkey.Key7},
		{in: "ctrl+shift", wantErr: true},
		{in: "ctrl+a+b", wantErr: true},
		{in: "ctrl++a", wantErr: true},
		{in: "ctrl+pagedown", wantErr: true},
	}
	for _, tt := range tests {
		mods, key, err := parseHotkey(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseHotkey(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseHotkey(%q): %v", tt.in, err)
			continue
		}
		if len(mods) != tt.mods || key != tt.key {
			t.Errorf("parseHotkey(%q) = %d mods, key %v; want %d, %v", tt.in, len(mods), key, tt.mods, tt.key)
		}
	}
}
