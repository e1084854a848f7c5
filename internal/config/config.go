// Package config provides configuration loading from environment variables.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/apperrors"
	"github.com/joho/godotenv"
)

// DataStore holds the connection parameters of one source database.
type DataStore struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// ObjectStorage holds the S3 settings shared by every extraction job.
type ObjectStorage struct {
	Bucket          string
	Region          string
	Profile         string
	AccessKeyID     string // Optional; the mounted credentials file is preferred
	SecretAccessKey string
	SessionToken    string
	CredentialsDir  string // Preferred host directory holding the credentials bundle
	MountTarget     string // Where the bundle appears inside job containers
}

// Credentials controls how the credentials bundle is located on the host.
type Credentials struct {
	Candidates    []string // Fallback directories, probed in order after CredentialsDir
	ContainerPath string   // Bundle path as seen from inside the gateway container
	HostPath      string   // Same bundle as seen from the Docker host
}

// ServiceConfig holds configuration for the gateway HTTP service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
}

// CallbackConfig holds the optional run notification webhook.
type CallbackConfig struct {
	URL string
	Key string
}

// Settings is the process-wide configuration, built once in main and passed down explicitly.
type Settings struct {
	Mongo       DataStore
	MySQL       DataStore
	Postgres    DataStore
	Storage     ObjectStorage
	Credentials Credentials
	Images      map[string]string // job kind -> image override
	Service     ServiceConfig
	Callback    CallbackConfig
}

// Load reads an optional .env file and builds Settings from the environment.
// Variables already present in the process environment take precedence over the file.
func Load() (*Settings, error) {
	path := GetEnv("INGESTA_ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Configuration("INGESTA_ENV_FILE", err.Error())
	}
	return FromEnv(), nil
}

// FromEnv builds Settings from the current process environment.
func FromEnv() *Settings {
	home, _ := os.UserHomeDir()

	candidates := GetListEnv("AWS_CREDENTIALS_CANDIDATES", nil)
	if len(candidates) == 0 {
		candidates = DefaultCredentialCandidates(home)
	}

	return &Settings{
		Mongo:    loadDataStore("MONGO_", "27017"),
		MySQL:    loadDataStore("MYSQL_", "3306"),
		Postgres: loadDataStore("POSTGRES_", "5432"),
		Storage: ObjectStorage{
			Bucket:          GetEnv("AWS_BUCKET_NAME", ""),
			Region:          GetEnv("AWS_REGION", "us-east-1"),
			Profile:         GetEnv("AWS_PROFILE", "default"),
			AccessKeyID:     GetEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: GetEnv("AWS_SECRET_ACCESS_KEY", ""),
			SessionToken:    GetEnv("AWS_SESSION_TOKEN", ""),
			CredentialsDir:  GetEnv("AWS_CREDENTIALS_PATH", ""),
			MountTarget:     GetEnv("AWS_CREDENTIALS_TARGET", "/root/.aws"),
		},
		Credentials: Credentials{
			Candidates:    candidates,
			ContainerPath: GetEnv("INGESTA_CREDENTIALS_CONTAINER_PATH", ""),
			HostPath:      GetEnv("INGESTA_CREDENTIALS_HOST_PATH", ""),
		},
		Images: map[string]string{
			"mongodb":    GetEnv("INGESTA_IMAGE_MONGODB", ""),
			"mysql":      GetEnv("INGESTA_IMAGE_MYSQL", ""),
			"postgresql": GetEnv("INGESTA_IMAGE_POSTGRESQL", ""),
		},
		Service: ServiceConfig{
			Port:              GetEnv("PORT", "8000"),
			MetricsPort:       GetEnv("METRICS_PORT", "9090"),
			APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
			ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		},
		Callback: CallbackConfig{
			URL: GetEnv("INGESTA_CALLBACK_URL", ""),
			Key: GetSecretFile(GetEnv("INGESTA_CALLBACK_KEY_FILE", "")),
		},
	}
}

func loadDataStore(prefix, defaultPort string) DataStore {
	return DataStore{
		Host:     GetEnv(prefix+"HOST", ""),
		Port:     GetEnv(prefix+"PORT", defaultPort),
		User:     GetEnv(prefix+"USER", ""),
		Password: GetEnv(prefix+"PASSWORD", ""),
		Database: GetEnv(prefix+"DATABASE", ""),
	}
}

// DefaultCredentialCandidates returns the well-known credential directories in probe order.
func DefaultCredentialCandidates(home string) []string {
	var out []string
	if home != "" {
		out = append(out, filepath.Join(home, ".aws"))
	}
	return append(out, "/root/.aws", "/home/ubuntu/.aws")
}

// DataStore returns the connection block for a job kind.
func (s *Settings) DataStore(kind string) (DataStore, string, bool) {
	switch kind {
	case "mongodb":
		return s.Mongo, "MONGO_", true
	case "mysql":
		return s.MySQL, "MYSQL_", true
	case "postgresql":
		return s.Postgres, "POSTGRES_", true
	}
	return DataStore{}, "", false
}

// Validate reports the first required setting missing for kind.
func (s *Settings) Validate(kind string) error {
	if s.Storage.Bucket == "" {
		return apperrors.Configuration("AWS_BUCKET_NAME", "required setting is not set")
	}
	ds, prefix, ok := s.DataStore(kind)
	if !ok {
		return apperrors.Validation("kind", "unsupported job kind: "+kind)
	}
	required := []struct {
		key   string
		value string
	}{
		{"HOST", ds.Host},
		{"DATABASE", ds.Database},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return apperrors.Configuration(prefix+r.key, "required setting is not set")
		}
	}
	return nil
}
