// Package extract implements the extraction jobs run inside the ephemeral
// containers: read every dataset of one source, encode it, and upload it to S3.
package extract

import (
	"time"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/config"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/job"
)

// Config holds everything one extraction run needs. It is read from the
// variables the gateway passes to the container.
type Config struct {
	Kind            job.Kind
	Source          config.DataStore
	Storage         config.ObjectStorage
	CredentialsFile string        // Shared credentials file mounted by the gateway
	Endpoint        string        // S3 endpoint, overridable for S3-compatible stores
	Secure          bool          // Use TLS towards Endpoint
	Timeout         time.Duration // Upper bound for the whole run
}

// LoadConfig reads the configuration for kind and checks the required settings.
func LoadConfig(kind job.Kind) (Config, error) {
	settings := config.FromEnv()
	if err := settings.Validate(string(kind)); err != nil {
		return Config{}, err
	}
	source, _, _ := settings.DataStore(string(kind))

	return Config{
		Kind:            kind,
		Source:          source,
		Storage:         settings.Storage,
		CredentialsFile: config.GetEnv("AWS_SHARED_CREDENTIALS_FILE", ""),
		Endpoint:        config.GetEnv("S3_ENDPOINT", "s3.amazonaws.com"),
		Secure:          config.GetBoolEnv("S3_USE_SSL", true),
		Timeout:         config.GetDurationEnv("INGESTA_EXTRACT_TIMEOUT", 15*time.Minute),
	}, nil
}
