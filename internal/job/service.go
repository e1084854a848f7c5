package job

import (
	"context"
	"log/slog"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/config"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/pkg/cloudevent"
)

// Publisher delivers run events. Publishing never blocks a run.
type Publisher interface {
	Publish(event *cloudevent.CloudEvent) error
}

// Service exposes one operation per job kind. Each operation builds the job
// environment, picks the kind's image, and delegates to the Runner.
type Service struct {
	runner    Runner
	settings  *config.Settings
	publisher Publisher
	logger    *slog.Logger
}

// NewService creates a new job service. publisher may be nil.
func NewService(runner Runner, settings *config.Settings, publisher Publisher) *Service {
	return &Service{
		runner:    runner,
		settings:  settings,
		publisher: publisher,
		logger:    slog.With("component", "job-service"),
	}
}

// RunMongoDB extracts the MongoDB collections.
func (s *Service) RunMongoDB(ctx context.Context) *Envelope {
	return s.Run(ctx, KindMongoDB)
}

// RunMySQL extracts the MySQL tables.
func (s *Service) RunMySQL(ctx context.Context) *Envelope {
	return s.Run(ctx, KindMySQL)
}

// RunPostgreSQL extracts the PostgreSQL tables.
func (s *Service) RunPostgreSQL(ctx context.Context) *Envelope {
	return s.Run(ctx, KindPostgreSQL)
}

// Run executes the job for kind and returns the runner's envelope unchanged.
func (s *Service) Run(ctx context.Context, kind Kind) *Envelope {
	if _, err := ParseKind(string(kind)); err != nil {
		return Failure(kind, err)
	}

	var env *Envelope
	if err := s.settings.Validate(string(kind)); err != nil {
		s.logger.Warn("Job settings incomplete", "kind", kind, "error", err)
		env = Failure(kind, err)
	} else {
		env = s.runner.Run(ctx, s.Spec(kind))
	}

	s.publish(env)
	return env
}

// Spec builds the run description for kind from the current settings.
func (s *Service) Spec(kind Kind) Spec {
	ds, _, _ := s.settings.DataStore(string(kind))
	return Spec{
		Kind:        kind,
		Image:       s.Image(kind),
		Environment: BuildEnvironment(s.settings.Storage, ds, kind.EnvPrefix()),
	}
}

// Image returns the configured image for kind, or its default.
func (s *Service) Image(kind Kind) string {
	if img := s.settings.Images[string(kind)]; img != "" {
		return img
	}
	return kind.DefaultImage()
}

func (s *Service) publish(env *Envelope) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(BuildRunCompletedEvent(env)); err != nil {
		s.logger.Warn("Run event not published", "kind", env.Kind, "runId", env.RunID, "error", err)
	}
}
