package auth

import (
	"github.com/upb/tenant-gateway/config"
)

// Mode selects between strict verification and the local development bypass.
// It is resolved once at startup and injected into every component that needs it.
type Mode int

const (
	ModeStrict Mode = iota
	ModeDevelopment
)

// ModeFromConfig resolves the auth mode. Development mode in production is an error.
func ModeFromConfig(cfg *config.Config) (Mode, error) {
	if !cfg.Auth.DevMode {
		return ModeStrict, nil
	}
	if cfg.IsProduction() {
		return ModeStrict, config.ErrDevModeInProduction
	}
	return ModeDevelopment, nil
}

// Development reports whether the development bypass is enabled
func (m Mode) Development() bool {
	return m == ModeDevelopment
}

func (m Mode) String() string {
	if m == ModeDevelopment {
		return "development"
	}
	return "strict"
}
