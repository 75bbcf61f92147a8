// Package analysis drives crash dump analysis through the external
// analyzer sidecar. One worker run handles one dump on a detached
// goroutine, with its own short-lived metadata transactions.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"fleethub/internal/config"
	"fleethub/internal/domain/crashdump"
	"fleethub/internal/domain/firmware"
	"fleethub/internal/domain/retry"
	"fleethub/internal/infrastructure/metrics"
	"fleethub/internal/infrastructure/objectstore"
	"fleethub/internal/utils/jobid"
)

// Staged file names the analyzer sidecar expects inside the shared
// staging directory.
const (
	stagedCoreName = "coredump.bin"
	stagedElfName  = "firmware.elf"
)

// ObjectStore is the read-only slice of object storage the worker needs.
type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// Client calls the external analyzer service.
type Client interface {
	// Parse submits the staged core and symbol files (paths relative to
	// the shared staging directory) and returns the analyzer's text output.
	Parse(ctx context.Context, corePath, elfPath, chip string) (string, error)
}

// Results writes terminal analysis outcomes, each through a dedicated
// short-lived metadata transaction locating the row strictly by id.
type Results interface {
	MarkAnalyzed(ctx context.Context, dumpID int64, output string) error
	MarkFailed(ctx context.Context, dumpID int64, message string) error
}

// Worker runs the analysis pipeline for scheduled dumps.
type Worker struct {
	store        ObjectStore
	client       Client
	results      Results
	stagingDir   string
	startupDelay time.Duration
	policy       retry.Policy
	log          zerolog.Logger
}

func NewWorker(cfg *config.Config, store ObjectStore, client Client, results Results, log zerolog.Logger) *Worker {
	attempts := cfg.AnalyzerAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Worker{
		store:        store,
		client:       client,
		results:      results,
		stagingDir:   cfg.StagingDir,
		startupDelay: cfg.AnalysisStartupDelay,
		policy: retry.Policy{
			MaxRetries:      attempts - 1,
			InitialDelay:    time.Second,
			BackoffStrategy: retry.BackoffFixed,
		},
		log: log.With().Str("component", "analysis-worker").Logger(),
	}
}

// Schedule runs the job on a detached goroutine. Nothing it does can
// propagate to the request that created the dump.
func (w *Worker) Schedule(job crashdump.AnalysisJob) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error().Int64("dump_id", job.DumpID).Interface("panic", r).Msg("analysis worker panicked")
			}
		}()
		w.Run(context.Background(), job)
	}()
}

// Run executes the pipeline for one dump. Every exit path writes a
// terminal status except a crash or cancellation, which leaves the dump
// PENDING; that state is visible and safe since the raw bytes remain
// retrievable.
func (w *Worker) Run(ctx context.Context, job crashdump.AnalysisJob) {
	log := w.log.With().Int64("dump_id", job.DumpID).Str("device", job.DeviceKey).Logger()

	// The request that created the row commits after scheduling us; wait
	// it out before the first metadata write from our own connection.
	if w.startupDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.startupDelay):
		}
	}

	jobDir := filepath.Join(w.stagingDir, jobid.New())
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		w.markFailed(ctx, log, job.DumpID, fmt.Sprintf("create staging directory: %v", err))
		return
	}
	defer func() {
		if err := os.RemoveAll(jobDir); err != nil {
			log.Warn().Err(err).Str("dir", jobDir).Msg("staging cleanup failed")
		}
	}()

	corePath := filepath.Join(jobDir, stagedCoreName)
	if err := w.stage(ctx, crashdump.ObjectKey(job.DeviceKey, job.DumpID), corePath); err != nil {
		w.markFailed(ctx, log, job.DumpID, fmt.Sprintf("stage crash dump: %v", err))
		return
	}

	symbolKey := firmware.ArtifactKey(job.ModelCode, job.FirmwareVersion, firmware.ArtifactSymbols)
	elfPath := filepath.Join(jobDir, stagedElfName)
	if err := w.stage(ctx, symbolKey, elfPath); err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			// The symbol file will not appear on its own; fail without
			// calling the analyzer.
			w.markFailed(ctx, log, job.DumpID,
				fmt.Sprintf("firmware symbols %s/%s not available", job.ModelCode, job.FirmwareVersion))
			return
		}
		w.markFailed(ctx, log, job.DumpID, fmt.Sprintf("stage firmware symbols: %v", err))
		return
	}

	jobName := filepath.Base(jobDir)
	coreRel := path.Join(jobName, stagedCoreName)
	elfRel := path.Join(jobName, stagedElfName)

	var output string
	err := retry.NewExecutor(w.policy).Execute(ctx, func(ctx context.Context, attempt int) error {
		out, err := w.client.Parse(ctx, coreRel, elfRel, job.Chip)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("analyzer call failed")
			return err
		}
		output = out
		return nil
	})
	if err != nil {
		w.markFailed(ctx, log, job.DumpID,
			fmt.Sprintf("analysis failed after %d attempts: %v", w.policy.MaxRetries+1, err))
		return
	}

	if err := w.results.MarkAnalyzed(ctx, job.DumpID, output); err != nil {
		log.Error().Err(err).Msg("record analysis result")
		return
	}
	metrics.RecordAnalysis("analyzed")
	log.Info().Msg("crash dump analyzed")
}

func (w *Worker) stage(ctx context.Context, key, dest string) error {
	reader, _, err := w.store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer reader.Close()

	file, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}

func (w *Worker) markFailed(ctx context.Context, log zerolog.Logger, dumpID int64, message string) {
	if err := w.results.MarkFailed(ctx, dumpID, message); err != nil {
		log.Error().Err(err).Msg("record analysis failure")
		return
	}
	metrics.RecordAnalysis("failed")
	log.Warn().Str("reason", message).Msg("crash dump analysis failed")
}
