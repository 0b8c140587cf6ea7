package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gigaclaw/gigaclaw/internal/config"
	"github.com/gigaclaw/gigaclaw/internal/observability"
	"github.com/gigaclaw/gigaclaw/pkg/models"
)

// stderrTailBytes is how much stderr is attached to non-zero-exit errors.
const stderrTailBytes = 2048

// Runner executes one agent turn in an isolated container. Run never returns
// a Go error: every failure path resolves to a ContainerOutput with
// Status "error" so callers treat all error kinds identically.
type Runner struct {
	cfg      *config.Container
	mounts   *MountBuilder
	platform Platform
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// NewRunner creates a container runner.
func NewRunner(cfg *config.Container, mounts *MountBuilder, platform Platform, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Runner {
	return &Runner{
		cfg:      cfg,
		mounts:   mounts,
		platform: platform,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
	}
}

// Run spawns the container for one turn: builds mounts, writes the serialized
// input to the child's stdin and closes it, accumulates capped stdout/stderr,
// enforces the timeout, and extracts the sentinel-delimited result.
func (r *Runner) Run(ctx context.Context, group *models.Group, input *models.ContainerInput) *models.ContainerOutput {
	turnID := uuid.NewString()
	log := r.logger.With("group", group.Folder, "turn_id", turnID)

	ctx, span := r.tracer.Start(ctx, "container.run",
		attribute.String("group", group.Folder),
		attribute.Bool("scheduled", input.IsScheduledTask),
	)
	defer span.End()

	logDir := r.cfg.LogDir(group.Folder)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return r.fail(ctx, span, log, fmt.Errorf("create log dir: %w", err))
	}

	mounts, err := r.mounts.Build(group, input.IsMain)
	if err != nil {
		return r.fail(ctx, span, log, fmt.Errorf("build mounts: %w", err))
	}

	payload, err := input.Marshal()
	if err != nil {
		return r.fail(ctx, span, log, fmt.Errorf("encode input: %w", err))
	}

	args := r.platform.BuildArgs(RunSpec{
		Image:  r.cfg.Image,
		Mounts: mounts,
		UID:    os.Getuid(),
		GID:    os.Getgid(),
		Home:   CtrHomePath,
	})

	timeout := group.TurnTimeout(r.cfg.Timeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stderrLog, err := os.OpenFile(
		filepath.Join(logDir, turnID+".stderr.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644,
	)
	if err != nil {
		return r.fail(ctx, span, log, fmt.Errorf("open stderr log: %w", err))
	}
	defer stderrLog.Close()

	stdout := newCappedBuffer(r.cfg.MaxOutputBytes, nil)
	stderr := newCappedBuffer(r.cfg.MaxOutputBytes, func(p []byte) {
		// Forward diagnostics as they arrive, not only at the end.
		stderrLog.Write(p)
	})

	cmd := exec.CommandContext(runCtx, r.platform.Binary, args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	log.Info(ctx, "starting container turn",
		"image", r.cfg.Image,
		"mounts", len(mounts),
		"timeout", timeout.String(),
	)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if stdout.Truncated() {
		log.Warn(ctx, "stdout truncated at cap", "cap_bytes", r.cfg.MaxOutputBytes, "total_bytes", stdout.Total())
		if r.metrics != nil {
			r.metrics.OutputTruncations.WithLabelValues("stdout").Inc()
		}
	}
	if stderr.Truncated() {
		if r.metrics != nil {
			r.metrics.OutputTruncations.WithLabelValues("stderr").Inc()
		}
	}

	if runErr != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return r.fail(ctx, span, log, &TimeoutError{Timeout: timeout})
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return r.fail(ctx, span, log, &ExitError{
				Code:       exitErr.ExitCode(),
				StderrTail: tail(stderr.String(), stderrTailBytes),
			})
		}
		return r.fail(ctx, span, log, &SpawnError{Binary: r.platform.Binary, Err: runErr})
	}

	out, err := ParseOutput(stdout.String())
	if err != nil {
		log.Error(ctx, "failed to parse container output",
			"error", err,
			"stdout_tail", tail(stdout.String(), stderrTailBytes),
		)
		observability.RecordError(span, err)
		return models.ErrorOutput("failed to parse container output")
	}

	log.Info(ctx, "container turn finished",
		"status", string(out.Status),
		"duration", elapsed.String(),
		"new_session", out.NewSessionID != "",
	)
	return out
}

// fail logs the turn-fatal error and resolves it to the uniform error output.
func (r *Runner) fail(ctx context.Context, span trace.Span, log *observability.Logger, err error) *models.ContainerOutput {
	log.Error(ctx, "container turn failed", "error", err)
	observability.RecordError(span, err)
	return models.ErrorOutput(err.Error())
}
