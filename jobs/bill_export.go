package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/cmbworks/cmbworks/internal/billing"
	"github.com/cmbworks/cmbworks/internal/export"
	jobmetrics "github.com/cmbworks/cmbworks/internal/jobs"
	"github.com/cmbworks/cmbworks/internal/project"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// BillService is the part of project.Service the export job needs.
type BillService interface {
	Compute(ctx context.Context, id uuid.UUID, index int) (*project.Project, *billing.Bill, error)
	RecordExport(ctx context.Context, rec project.ExportRecord) error
}

// BillExportJob renders a bill into Dir/<project>/ in every requested format.
type BillExportJob struct {
	Service BillService
	Dir     string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBillExportJob wires dependencies for the export handler.
func NewBillExportJob(svc BillService, dir string, logger *slog.Logger, metrics *jobmetrics.Metrics) *BillExportJob {
	return &BillExportJob{
		Service: svc,
		Dir:     dir,
		Logger:  logger,
		Metrics: metrics,
	}
}

// Handle processes bill export tasks.
func (j *BillExportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("bill export: handler not configured")
	}
	var payload BillExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	formats := make([]export.Format, 0, len(payload.Formats))
	for _, name := range payload.Formats {
		f, err := export.ParseFormat(name)
		if err != nil {
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		formats = append(formats, f)
	}

	tracker := j.metrics().Track(TaskBillExport)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("project", payload.ProjectID.String()), slog.Int("bill", payload.BillIndex))
	paths, err := j.Export(ctx, payload.ProjectID, payload.BillIndex, formats)
	if err != nil {
		resultErr = err
		if errors.Is(err, project.ErrNotFound) || errors.Is(err, billing.ErrBillNotFound) || errors.Is(err, billing.ErrCircularBill) {
			logger.Warn("bill export skipped", slog.Any("error", err))
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		logger.Error("bill export", slog.Any("error", err))
		return resultErr
	}
	logger.Info("bill exported", slog.Any("files", paths))
	return resultErr
}

// Export renders bill index of project id and records each file written.
func (j *BillExportJob) Export(ctx context.Context, id uuid.UUID, index int, formats []export.Format) ([]string, error) {
	p, bill, err := j.Service.Compute(ctx, id, index)
	if err != nil {
		return nil, err
	}
	snap := bill.Snapshot(p.Schedule)

	dir := filepath.Join(j.Dir, id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	paths := make([]string, len(formats))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range formats {
		g.Go(func() error {
			path := filepath.Join(dir, export.FileName(snap, f))
			if err := writeFile(path, f, snap); err != nil {
				return fmt.Errorf("write %s: %w", f, err)
			}
			paths[i] = path
			j.metrics().AddFiles("written", string(f), 1)
			return j.Service.RecordExport(gctx, project.ExportRecord{
				ProjectID: id,
				BillIndex: index,
				Format:    string(f),
				Path:      path,
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func writeFile(path string, f export.Format, snap billing.Snapshot) error {
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := export.Write(out, f, snap); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (j *BillExportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBillExport))
	}
	return slog.Default().With(slog.String("job", TaskBillExport))
}

func (j *BillExportJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
