// Package orchestrator runs ingestion jobs as ephemeral containers.
package orchestrator

import (
	"context"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/credentials"
)

// Runtime is the container engine capability the Runner depends on.
// Implementations classify their errors with the apperrors taxonomy.
type Runtime interface {
	// Ping checks that the engine is reachable.
	Ping(ctx context.Context) error

	// Run creates and starts a detached container and returns its handle.
	// If the image is absent no container is created.
	Run(ctx context.Context, spec ContainerSpec) (string, error)

	// Wait blocks until the container stops and returns its exit code.
	Wait(ctx context.Context, id string) (int, error)

	// Logs returns the combined stdout and stderr of a stopped container.
	Logs(ctx context.Context, id string) (string, error)

	// Remove force-removes a container. Removing a missing container is not an error.
	Remove(ctx context.Context, id string) error

	// Close releases the engine connection.
	Close() error
}

// ConnectFunc opens a Runtime. It fails fast with RuntimeUnavailable when the engine cannot be reached.
type ConnectFunc func(ctx context.Context) (Runtime, error)

// ContainerSpec is everything needed to launch one job container.
type ContainerSpec struct {
	Name    string
	Kind    string
	Image   string
	Cmd     []string // Overrides the image command when set
	Env     map[string]string
	Network string
	Mounts  []credentials.Mount
	Labels  map[string]string
}
