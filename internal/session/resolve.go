package session

import "github.com/tocata/tocata/internal/config"

// Resolve determines the active identity using precedence:
// 1. flagOverride (--identity flag)
// 2. config.toml default_identity
// Returns "" if neither is set; callers must treat that as an error.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultIdentity != "" {
		return cfg.DefaultIdentity
	}
	return ""
}
