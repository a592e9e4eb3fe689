package server

import (
	"go.uber.org/zap"

	"github.com/ogulcanaydogan/attestview/internal/inspect"
)

// Config holds the inspection server settings.
type Config struct {
	Addr            string
	CacheTTLSeconds int
	// Inspect is the base option set; requests can turn on schema and
	// certificate checks per call.
	Inspect inspect.Options
	Logger  *zap.Logger
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		CacheTTLSeconds: 300,
	}
}
