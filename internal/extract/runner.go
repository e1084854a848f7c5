package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/job"
)

// Runner extracts every dataset of a source and uploads it. A failing dataset
// is recorded in the summary and does not stop the others.
type Runner struct {
	source Source
	store  ObjectStore
	kind   job.Kind
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// NewRunner creates a runner for kind; object keys use KeyPrefix(kind).
func NewRunner(kind job.Kind, source Source, store ObjectStore) *Runner {
	return &Runner{
		source: source,
		store:  store,
		kind:   kind,
		prefix: KeyPrefix(kind),
		now:    time.Now,
		logger: slog.With("component", "extract", "kind", kind),
	}
}

// Run processes the datasets in order and returns the summary.
func (r *Runner) Run(ctx context.Context) Summary {
	summary := make(Summary, len(r.source.Datasets()))
	for _, name := range r.source.Datasets() {
		result, err := r.runDataset(ctx, name)
		if err != nil {
			r.logger.Warn("Dataset failed", "dataset", name, "error", err)
			summary[name] = Result{Error: err.Error()}
			continue
		}
		r.logger.Info("Dataset uploaded", "dataset", name, "records", *result.Records, "url", result.URL)
		summary[name] = result
	}
	return summary
}

func (r *Runner) runDataset(ctx context.Context, name string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	ds, err := r.source.Extract(ctx, name)
	if err != nil {
		if errors.Is(err, ErrDatasetMissing) {
			return Result{}, fmt.Errorf("%s %q: %w", r.kind, name, err)
		}
		return Result{}, fmt.Errorf("extract %s: %w", name, err)
	}

	key := ObjectKey(r.prefix, ds.Name, ds.Format, r.now())
	url, err := r.store.Put(ctx, key, ds.Format.ContentType(), ds.Body)
	if err != nil {
		return Result{}, fmt.Errorf("upload %s: %w", key, err)
	}

	records := ds.Records
	return Result{URL: url, Records: &records, Format: ds.Format}, nil
}

// OpenSource connects to the data store of cfg.Kind.
func OpenSource(ctx context.Context, cfg Config) (Source, error) {
	var (
		src Source
		err error
	)
	switch cfg.Kind {
	case job.KindPostgreSQL:
		src, err = NewPostgresSource(ctx, cfg.Source)
	case job.KindMySQL:
		src, err = NewMySQLSource(ctx, cfg.Source)
	case job.KindMongoDB:
		src, err = NewMongoSource(ctx, cfg.Source)
	default:
		return nil, fmt.Errorf("unsupported job kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Execute runs one complete extraction. An error means nothing was attempted:
// the source or the store could not be opened.
func Execute(ctx context.Context, cfg Config) (Summary, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	store, err := NewS3Store(cfg)
	if err != nil {
		return nil, err
	}

	source, err := OpenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := source.Close(closeCtx); err != nil {
			slog.Warn("Source close failed", "kind", cfg.Kind, "error", err)
		}
	}()

	return NewRunner(cfg.Kind, source, store).Run(ctx), nil
}
