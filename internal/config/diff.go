package config

import "slices"

// ConfigDiff describes what changed between two configs. Only the fields that
// can be applied without restarting the server are tracked individually;
// everything else is summarised in RestartRequired.
type ConfigDiff struct {
	// LogLevelChanged indicates the server log level changed. Hot-reloadable.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LanguageChanged indicates the backend language hint changed.
	// Hot-reloadable; applies to the next dispatched chunk.
	LanguageChanged bool
	NewLanguage     string

	// RestartRequired indicates that something outside the hot-reloadable
	// set changed (backend selection, chunking, addresses, persistence).
	RestartRequired bool
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.LanguageChanged || d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Backend.Language != new.Backend.Language {
		d.LanguageChanged = true
		d.NewLanguage = new.Backend.Language
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) ||
		old.Audio != new.Audio ||
		!backendEqual(&old.Backend, &new.Backend) ||
		old.Store != new.Store {
		d.RestartRequired = true
	}

	return d
}

// backendEqual compares backend configs ignoring the hot-reloadable Language
// field.
func backendEqual(old, new *BackendConfig) bool {
	if old.Workers != new.Workers ||
		old.CallTimeout != new.CallTimeout ||
		old.DrainTimeout != new.DrainTimeout {
		return false
	}
	if !entryEqual(old.Primary, new.Primary) {
		return false
	}
	return slices.EqualFunc(old.Fallbacks, new.Fallbacks, entryEqual)
}

// entryEqual compares provider entries ignoring the free-form Options map,
// which cannot be compared cheaply. A change confined to Options therefore
// goes unnoticed until restart.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL && a.Model == b.Model
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
