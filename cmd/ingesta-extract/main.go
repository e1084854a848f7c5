// ingesta-extract is the process run inside each ingestion container. It
// extracts one data store, uploads every dataset to S3, and prints a single
// JSON summary line on stdout for the gateway to capture.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/config"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/extract"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/job"
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/observability"
)

func main() {
	// stdout carries only the summary line; logs go to stderr.
	observability.SetupLogging(os.Stderr, config.GetEnv("LOG_LEVEL", "warn"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	name := config.GetEnv("INGESTA_JOB_KIND", "")
	if len(args) > 0 {
		name = args[0]
	}

	kind, err := job.ParseKind(name)
	if err != nil {
		return fail(stdout, err)
	}

	cfg, err := extract.LoadConfig(kind)
	if err != nil {
		return fail(stdout, err)
	}

	summary, err := extract.Execute(ctx, cfg)
	if err != nil {
		return fail(stdout, fmt.Errorf("%s extraction failed: %w", kind, err))
	}

	if err := json.NewEncoder(stdout).Encode(summary); err != nil {
		slog.Error("Failed to write summary", "error", err)
		return 1
	}
	return 0
}

func fail(stdout io.Writer, err error) int {
	slog.Error("Extraction aborted", "error", err)
	_ = json.NewEncoder(stdout).Encode(map[string]string{"error": err.Error()})
	return 1
}
