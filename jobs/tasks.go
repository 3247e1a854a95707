package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBillExport renders a computed bill to files.
	TaskBillExport = "bill:export"
	// TaskExportsPrune removes rendered bill files past their retention.
	TaskExportsPrune = "exports:prune"
)

// BillExportPayload names the bill to render and the formats wanted.
type BillExportPayload struct {
	ProjectID uuid.UUID `json:"project_id"`
	BillIndex int       `json:"bill_index"`
	Formats   []string  `json:"formats"`
}

// NewBillExportTask constructs an Asynq task.
func NewBillExportTask(payload BillExportPayload) (*asynq.Task, error) {
	if payload.ProjectID == uuid.Nil {
		return nil, fmt.Errorf("bill export: project id required")
	}
	if len(payload.Formats) == 0 {
		payload.Formats = []string{"csv"}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillExport, data, asynq.MaxRetry(3)), nil
}

// ExportsPrunePayload controls the retention sweep.
type ExportsPrunePayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewExportsPruneTask constructs an Asynq task.
func NewExportsPruneTask(payload ExportsPrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExportsPrune, data), nil
}
