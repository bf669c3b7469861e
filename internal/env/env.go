package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/lerobot-preview/internal/envvar"
)

// Environment represents the runtime environment of the application.
type Environment string

const (
	// Development is the default environment.
	Development Environment = "development"

	// Production enables machine-oriented log output.
	Production Environment = "production"
)

// FromEnv determines the environment from LEROBOT_PREVIEW_ENV.
func FromEnv() Environment {
	switch strings.ToLower(os.Getenv(envvar.Env)) {
	case "production", "prod":
		return Production
	default:
		return Development
	}
}

// IsProduction reports whether the environment is production.
func (e Environment) IsProduction() bool {
	return e == Production
}
