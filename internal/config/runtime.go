package config

// RuntimeConfig holds the hot-updatable settings persisted in the settings
// table. A snapshot is replaced wholesale after every admin write.
type RuntimeConfig struct {
	RedirectModeEnabled bool `json:"is_redirect_mode_enabled"`
}

// Setting keys as stored in the settings table.
const (
	SettingRedirectMode = "is_redirect_mode_enabled"
)

// NewDefaultRuntimeConfig returns the settings used before the store is read
// and whenever it cannot be read.
func NewDefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		RedirectModeEnabled: false,
	}
}

// DefaultSettings returns the rows inserted (insert-or-ignore) on bootstrap.
func DefaultSettings() map[string]bool {
	return map[string]bool{
		SettingRedirectMode: false,
	}
}

// RuntimeConfigFromSettings builds a snapshot from persisted rows, falling
// back to defaults for missing keys.
func RuntimeConfigFromSettings(values map[string]bool) *RuntimeConfig {
	cfg := NewDefaultRuntimeConfig()
	if v, ok := values[SettingRedirectMode]; ok {
		cfg.RedirectModeEnabled = v
	}
	return cfg
}
