package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/cmbworks/cmbworks/internal/jobs"
)

// DefaultRetentionDays applies when the payload does not set one.
const DefaultRetentionDays = 30

// ExportsPruneJob removes rendered bill files older than the retention.
type ExportsPruneJob struct {
	Dir     string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewExportsPruneJob wires dependencies for the prune handler.
func NewExportsPruneJob(dir string, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExportsPruneJob {
	return &ExportsPruneJob{
		Dir:     dir,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes prune tasks.
func (j *ExportsPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dir == "" {
		return errors.New("exports prune: handler not configured")
	}
	var payload ExportsPrunePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = DefaultRetentionDays
	}

	tracker := j.metrics().Track(TaskExportsPrune)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().AddDate(0, 0, -payload.RetentionDays)
	removed, err := j.Prune(ctx, cutoff)
	if err != nil {
		resultErr = err
		j.logger().Error("prune exports", slog.Any("error", err))
		return resultErr
	}
	j.logger().Info("exports pruned", slog.Int("removed", removed), slog.Time("cutoff", cutoff))
	return resultErr
}

// Prune deletes export files modified before cutoff.
func (j *ExportsPruneJob) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(j.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		j.metrics().AddFiles("pruned", strings.TrimPrefix(filepath.Ext(path), "."), 1)
		return nil
	})
	return removed, err
}

func (j *ExportsPruneJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskExportsPrune))
	}
	return slog.Default().With(slog.String("job", TaskExportsPrune))
}

func (j *ExportsPruneJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ExportsPruneJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
