package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/apperrors"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/credentials"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/job"
	"github.com/distribution/reference"
	"github.com/google/uuid"
)

const cleanupTimeout = 30 * time.Second

// CredentialResolver finds the credentials mount for a run.
type CredentialResolver interface {
	Resolve(preferred string) (credentials.Mount, error)
}

// MetricsRecorder is an optional interface for recording run metrics.
type MetricsRecorder interface {
	RecordRunStarted(ctx context.Context, kind string)
	RecordRunCompleted(ctx context.Context, kind, status, errorKind string, durationSeconds float64)
}

// Config holds per-run container settings.
type Config struct {
	Network              string        // Docker network joined by job containers
	PreferredCredentials string        // Credentials directory tried before the resolver's candidates
	RunTimeout           time.Duration // 0 waits for as long as the container runs
}

// Runner launches one container per Spec, waits for it, and converts the result into an envelope.
// It holds no per-run state; concurrent calls are independent.
type Runner struct {
	connect     ConnectFunc
	credentials CredentialResolver
	config      Config
	metrics     MetricsRecorder
	logger      *slog.Logger
}

// NewRunner creates a Runner. metrics may be nil.
func NewRunner(connect ConnectFunc, resolver CredentialResolver, cfg Config, metrics MetricsRecorder) *Runner {
	return &Runner{
		connect:     connect,
		credentials: resolver,
		config:      cfg,
		metrics:     metrics,
		logger:      slog.With("component", "runner"),
	}
}

// run tracks the lifecycle of one invocation.
type run struct {
	id     string
	spec   job.Spec
	state  State
	logger *slog.Logger
}

func (r *run) transition(to State) {
	if !r.state.CanTransition(to) {
		r.logger.Error("Illegal run state transition", "from", r.state.String(), "to", to.String())
		return
	}
	r.logger.Debug("Run state changed", "from", r.state.String(), "to", to.String())
	r.state = to
}

// Run executes spec and always returns an envelope. No error or panic escapes.
func (r *Runner) Run(ctx context.Context, spec job.Spec) (env *job.Envelope) {
	start := time.Now()
	cur := &run{
		id:    uuid.NewString(),
		spec:  spec,
		state: StateNotStarted,
	}
	cur.logger = r.logger.With("runId", cur.id, "kind", spec.Kind)

	if r.metrics != nil {
		r.metrics.RecordRunStarted(ctx, string(spec.Kind))
	}

	defer func() {
		if p := recover(); p != nil {
			cur.logger.Error("Run panicked", "panic", p)
			env = job.Failure(spec.Kind, apperrors.Unclassified("runner.run", fmt.Errorf("panic: %v", p)))
			cur.transition(StateFinalizedError)
		}

		env.RunID = cur.id
		env.DurationSeconds = time.Since(start).Seconds()

		if r.metrics != nil {
			r.metrics.RecordRunCompleted(context.WithoutCancel(ctx), string(spec.Kind), env.Status, string(env.ErrorKind), env.DurationSeconds)
		}
		if env.OK() {
			cur.logger.Info("Run finished", "state", cur.state.String(), "duration", env.DurationSeconds)
		} else {
			cur.logger.Warn("Run failed", "state", cur.state.String(), "errorKind", env.ErrorKind, "error", env.Error)
		}
	}()

	outcome, err := r.execute(ctx, cur)
	if err != nil {
		cur.transition(StateFinalizedError)
		return job.Failure(spec.Kind, err)
	}

	if outcome.ExitCode != 0 {
		cur.transition(StateFinalizedError)
		return job.Failure(spec.Kind, apperrors.NonZeroExit(outcome.ExitCode, outcome.Logs))
	}

	cur.transition(StateFinalizedSuccess)
	return job.Success(spec.Kind, job.Interpret([]byte(outcome.Logs)))
}

// execute drives a run from NotStarted to Exited. Once a container exists it is removed on every path.
// A run is not tied to its caller: a disconnecting client does not stop the container, only
// Config.RunTimeout bounds the wait.
func (r *Runner) execute(ctx context.Context, cur *run) (*job.Outcome, error) {
	ctx = context.WithoutCancel(ctx)

	if err := validateImage(cur.spec.Image); err != nil {
		return nil, err
	}

	mount, err := r.credentials.Resolve(r.config.PreferredCredentials)
	if err != nil {
		return nil, apperrors.Classify(err, func(e error) error {
			return apperrors.Unclassified("credentials.resolve", e)
		})
	}

	rt, err := r.connect(ctx)
	if err != nil {
		return nil, apperrors.Classify(err, apperrors.RuntimeUnavailable)
	}
	defer rt.Close()

	cur.transition(StateLaunching)
	id, err := rt.Run(ctx, ContainerSpec{
		Name:    containerName(cur.spec.Kind, cur.id),
		Kind:    string(cur.spec.Kind),
		Image:   cur.spec.Image,
		Env:     cur.spec.Environment,
		Network: r.config.Network,
		Mounts:  []credentials.Mount{mount},
		Labels: map[string]string{
			"ingesta.kind": string(cur.spec.Kind),
			"ingesta.run":  cur.id,
		},
	})
	if err != nil {
		return nil, apperrors.Classify(err, func(e error) error {
			return apperrors.Unclassified("runtime.run", e)
		})
	}
	defer r.cleanup(ctx, rt, id, cur.logger)

	cur.transition(StateRunning)
	cur.logger.Info("Container started", "containerId", id, "image", cur.spec.Image)

	waitCtx := ctx
	if r.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.config.RunTimeout)
		defer cancel()
	}

	code, err := rt.Wait(waitCtx, id)
	if err != nil {
		logs, _ := rt.Logs(ctx, id)
		return nil, withLogs(apperrors.Classify(err, func(e error) error {
			return apperrors.ContainerExecution(e, logs)
		}), logs)
	}

	logs, err := rt.Logs(ctx, id)
	if err != nil {
		return nil, apperrors.Classify(err, func(e error) error {
			return apperrors.RuntimeAPI("runtime.logs", e)
		})
	}

	cur.transition(StateExited)
	return &job.Outcome{ExitCode: code, Logs: logs, FinishedAt: time.Now()}, nil
}

// cleanup removes the container even when the request context is already cancelled.
// A failed removal is logged and never changes the run result.
func (r *Runner) cleanup(ctx context.Context, rt Runtime, id string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := rt.Remove(ctx, id); err != nil {
		logger.Warn("Failed to remove container", "containerId", id, "error", err)
		return
	}
	logger.Debug("Container removed", "containerId", id)
}

func validateImage(image string) error {
	if image == "" {
		return apperrors.Validation("image", "image reference is required")
	}
	if _, err := reference.ParseNormalizedNamed(image); err != nil {
		return apperrors.Validation("image", fmt.Sprintf("invalid image reference %q: %v", image, err))
	}
	return nil
}

func containerName(kind job.Kind, runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("ingesta-%s-%s", kind, short)
}

// withLogs attaches captured output to a classified error that has none.
func withLogs(err error, logs string) error {
	var appErr *apperrors.Error
	if logs == "" || !errors.As(err, &appErr) || appErr.Logs != "" {
		return err
	}
	cp := *appErr
	cp.Logs = logs
	return &cp
}
