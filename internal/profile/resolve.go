package profile

import "github.com/matheus3301/pmsync/internal/config"

const DefaultName = "main"

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. config.toml default_profile
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}

// LoadConfig reads the global config, falling back to defaults when the file
// does not exist yet.
func LoadConfig() *config.Config {
	cfg, err := config.Load(ConfigPath())
	if err != nil {
		return config.Default()
	}
	return cfg
}
