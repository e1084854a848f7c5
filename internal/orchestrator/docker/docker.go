// Package docker implements orchestrator.Runtime on top of the Docker Engine API.
// Job containers run directly on the daemon the gateway talks to.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/apperrors"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/orchestrator"
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Label keys set on every job container.
const (
	LabelManagedBy = "managed-by"
	ManagedByValue = "ingesta-gateway"
)

// Runtime is a Docker-backed orchestrator.Runtime.
type Runtime struct {
	client *client.Client
	config Config
	logger *slog.Logger
}

// Connect creates a Docker client and pings the daemon.
// Any failure is reported as RuntimeUnavailable.
func Connect(ctx context.Context, cfg Config) (*Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	dockerClient, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, apperrors.RuntimeUnavailable(err)
	}

	if _, err := dockerClient.Ping(ctx); err != nil {
		dockerClient.Close()
		return nil, apperrors.RuntimeUnavailable(err)
	}

	return &Runtime{
		client: dockerClient,
		config: cfg,
		logger: slog.With("component", "docker"),
	}, nil
}

// Dialer returns a ConnectFunc that opens a fresh Runtime per run.
func Dialer(cfg Config) orchestrator.ConnectFunc {
	return func(ctx context.Context) (orchestrator.Runtime, error) {
		rt, err := Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return rt, nil
	}
}

// Ping checks that the daemon is reachable.
func (r *Runtime) Ping(ctx context.Context) error {
	if _, err := r.client.Ping(ctx); err != nil {
		return apperrors.RuntimeUnavailable(err)
	}
	return nil
}

// Run creates and starts a detached job container.
func (r *Runtime) Run(ctx context.Context, spec orchestrator.ContainerSpec) (string, error) {
	if err := r.ensureImage(ctx, spec); err != nil {
		return "", err
	}

	resp, err := r.client.ContainerCreate(ctx, containerConfig(spec), hostConfig(spec), nil, nil, spec.Name)
	if err != nil {
		return "", r.classifyLaunch(err, spec, "docker.containerCreate")
	}
	for _, w := range resp.Warnings {
		r.logger.Warn("Container create warning", "container", spec.Name, "warning", w)
	}

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		r.remove(context.WithoutCancel(ctx), resp.ID)
		return "", r.classifyLaunch(err, spec, "docker.containerStart")
	}

	return resp.ID, nil
}

// ensureImage fails with ImageNotFound before any container exists, unless pulling is enabled.
func (r *Runtime) ensureImage(ctx context.Context, spec orchestrator.ContainerSpec) error {
	_, err := r.client.ImageInspect(ctx, spec.Image)
	if err == nil {
		return nil
	}
	if !cerrdefs.IsNotFound(err) {
		return apperrors.RuntimeAPI("docker.imageInspect", err)
	}
	if !r.config.PullMissingImages {
		return apperrors.ImageNotFound(spec.Image, r.buildHint(spec))
	}

	r.logger.Info("Pulling missing image", "image", spec.Image)
	reader, err := r.client.ImagePull(ctx, spec.Image, image.PullOptions{})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return apperrors.ImageNotFound(spec.Image, r.buildHint(spec))
		}
		return apperrors.RuntimeAPI("docker.imagePull", err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return apperrors.RuntimeAPI("docker.imagePull", err)
	}
	return nil
}

func (r *Runtime) classifyLaunch(err error, spec orchestrator.ContainerSpec, op string) error {
	switch {
	case cerrdefs.IsNotFound(err) && op == "docker.containerCreate":
		return apperrors.ImageNotFound(spec.Image, r.buildHint(spec))
	case cerrdefs.IsUnavailable(err):
		return apperrors.RuntimeUnavailable(err)
	default:
		return apperrors.RuntimeAPI(op, err)
	}
}

func (r *Runtime) buildHint(spec orchestrator.ContainerSpec) string {
	buildContext := r.config.BuildContext
	if buildContext == "" {
		buildContext = "."
	}
	if spec.Kind == "" {
		return fmt.Sprintf("docker build -t %s %s", spec.Image, buildContext)
	}
	return fmt.Sprintf("docker build --build-arg KIND=%s -t %s %s", spec.Kind, spec.Image, buildContext)
}

// Wait blocks until the container is no longer running and returns its exit code.
func (r *Runtime) Wait(ctx context.Context, id string) (int, error) {
	statusCh, errCh := r.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		return -1, apperrors.ContainerExecution(ctx.Err(), "")
	case err := <-errCh:
		return -1, apperrors.ContainerExecution(err, "")
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return int(status.StatusCode), apperrors.ContainerExecution(fmt.Errorf("%s", status.Error.Message), "")
		}
		return int(status.StatusCode), nil
	}
}

// Logs returns the container's stdout and stderr merged into one text.
func (r *Runtime) Logs(ctx context.Context, id string) (string, error) {
	reader, err := r.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", apperrors.RuntimeAPI("docker.containerLogs", err)
	}
	defer reader.Close()

	var combined bytes.Buffer
	if _, err := stdcopy.StdCopy(&combined, &combined, reader); err != nil {
		return combined.String(), apperrors.RuntimeAPI("docker.containerLogs", err)
	}
	return combined.String(), nil
}

// Remove force-removes a container and its anonymous volumes.
func (r *Runtime) Remove(ctx context.Context, id string) error {
	err := r.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err == nil || cerrdefs.IsNotFound(err) {
		return nil
	}
	return apperrors.RuntimeAPI("docker.containerRemove", err)
}

func (r *Runtime) remove(ctx context.Context, id string) {
	if err := r.Remove(ctx, id); err != nil {
		r.logger.Warn("Failed to remove container", "containerId", id, "error", err)
	}
}

// Close releases the Docker client.
func (r *Runtime) Close() error {
	return r.client.Close()
}

// ReapOrphans removes stopped job containers left behind by a previous gateway process.
// Running containers and containers created less than minAge ago are left alone, so a
// replica sharing the daemon can still collect the logs of a run that just exited.
// It returns the number removed.
func (r *Runtime) ReapOrphans(ctx context.Context, minAge time.Duration) (int, error) {
	logger := slog.With("component", "reaper")

	containers, err := r.client.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
		),
	})
	if err != nil {
		return 0, apperrors.RuntimeAPI("docker.containerList", err)
	}

	now := time.Now()
	removed := 0
	for _, c := range containers {
		if !reapable(string(c.State), c.Created, now, minAge) {
			continue
		}
		if err := r.Remove(ctx, c.ID); err != nil {
			logger.Warn("Failed to reap container", "containerId", c.ID, "error", err)
			continue
		}
		removed++
		logger.Info("Reaped orphaned container", "containerId", c.ID, "kind", c.Labels["ingesta.kind"], "runId", c.Labels["ingesta.run"])
	}
	return removed, nil
}

// reapable reports whether a listed container is stopped and at least minAge old.
// created is the engine's Unix timestamp in seconds.
func reapable(state string, created int64, now time.Time, minAge time.Duration) bool {
	if state == "running" || state == "restarting" {
		return false
	}
	return now.Sub(time.Unix(created, 0)) >= minAge
}

func containerConfig(spec orchestrator.ContainerSpec) *container.Config {
	labels := make(map[string]string, len(spec.Labels)+1)
	for k, v := range spec.Labels {
		labels[k] = v
	}
	labels[LabelManagedBy] = ManagedByValue

	return &container.Config{
		Image:  spec.Image,
		Cmd:    spec.Cmd,
		Env:    envList(spec.Env),
		Labels: labels,
	}
}

func hostConfig(spec orchestrator.ContainerSpec) *container.HostConfig {
	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	hc := &container.HostConfig{Mounts: mounts}
	if spec.Network != "" {
		hc.NetworkMode = container.NetworkMode(spec.Network)
	}
	return hc
}

// envList converts an environment map to KEY=VALUE pairs in a stable order.
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// Verify Runtime implements orchestrator.Runtime
var _ orchestrator.Runtime = (*Runtime)(nil)
