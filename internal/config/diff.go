package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked; everything
// else takes effect on the next start.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TutorChanged is set when voice, instructions or the live model
	// changed. New values apply to the next tutor session.
	TutorChanged bool

	// VoiceSupportChanged is set when narration.voice_support changed.
	VoiceSupportChanged bool
	NewVoiceSupport     bool
}

// Empty reports whether nothing hot-reloadable changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.TutorChanged && !d.VoiceSupportChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Gemini.Voice != new.Gemini.Voice ||
		old.Gemini.LiveModel != new.Gemini.LiveModel ||
		old.Tutor.Instructions != new.Tutor.Instructions ||
		!slices.Equal(old.Gemini.TTSModels, new.Gemini.TTSModels) {
		d.TutorChanged = true
	}

	if ov, nv := old.Narration.VoiceSupportOn(), new.Narration.VoiceSupportOn(); ov != nv {
		d.VoiceSupportChanged = true
		d.NewVoiceSupport = nv
	}
	return d
}
