package docker

import (
	"time"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/config"
)

// Config holds configuration for the Docker runtime.
type Config struct {
	Host              string        // Daemon address; empty uses DOCKER_HOST or the default socket
	Network           string        // Network joined by job containers
	PullMissingImages bool          // Pull absent images instead of failing with ImageNotFound
	BuildContext      string        // Build context shown in the ImageNotFound hint
	RunTimeout        time.Duration // Upper bound on a run's wait, 0 for none
	ReapMinAge        time.Duration // Stopped job containers younger than this survive startup reaping
}

// LoadConfigFromEnv loads runtime configuration from environment variables.
func LoadConfigFromEnv() Config {
	return Config{
		Host:              config.GetEnv("INGESTA_DOCKER_HOST", ""),
		Network:           config.GetEnv("DOCKER_NETWORK", "bridge"),
		PullMissingImages: config.GetBoolEnv("INGESTA_PULL_MISSING_IMAGES", false),
		BuildContext:      config.GetEnv("INGESTA_BUILD_CONTEXT", "."),
		RunTimeout:        config.GetDurationEnv("INGESTA_RUN_TIMEOUT", 0),
		ReapMinAge:        config.GetDurationEnv("INGESTA_REAP_MIN_AGE", 10*time.Minute),
	}
}
