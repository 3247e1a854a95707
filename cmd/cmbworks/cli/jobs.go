package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/cmbworks/cmbworks/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: redisAddr})
	return &JobsCLI{client: client, inspector: inspector}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Enqueue submits a prepared task.
func (c *JobsCLI) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueueContext(ctx, task, append([]asynq.Option{asynq.Queue(jobs.QueueDefault)}, opts...)...)
}

// Trigger enqueues a supported job by name. Bill exports need a project id
// and bill index; pruning takes an optional retention in days.
func (c *JobsCLI) Trigger(ctx context.Context, name string, args []string) (*asynq.TaskInfo, error) {
	var task *asynq.Task
	var err error
	switch name {
	case jobs.TaskBillExport, "export":
		task, err = exportTask(args)
	case jobs.TaskExportsPrune, "prune":
		payload := jobs.ExportsPrunePayload{}
		if len(args) > 0 {
			if payload.RetentionDays, err = strconv.Atoi(args[0]); err != nil {
				return nil, fmt.Errorf("jobs cli: retention days: %w", err)
			}
		}
		task, err = jobs.NewExportsPruneTask(payload)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.Enqueue(ctx, task, asynq.MaxRetry(3))
}

func exportTask(args []string) (*asynq.Task, error) {
	if len(args) < 2 {
		return nil, errors.New("jobs cli: export needs <project-id> <bill-index> [formats]")
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return nil, fmt.Errorf("jobs cli: project id: %w", err)
	}
	index, err := strconv.Atoi(args[1])
	if err != nil || index < 0 {
		return nil, fmt.Errorf("jobs cli: invalid bill index %q", args[1])
	}
	payload := jobs.BillExportPayload{ProjectID: id, BillIndex: index}
	if len(args) > 2 {
		payload.Formats = strings.Split(args[2], ",")
	}
	return jobs.NewBillExportTask(payload)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = int(info.Pending)
		stats.Active = int(info.Active)
		stats.Scheduled = int(info.Scheduled)
		stats.Retry = int(info.Retry)
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// JobsCommand runs `jobs trigger|stats|scheduled` and returns an exit code.
func (c *JobsCLI) JobsCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: jobs trigger <name> [args...] | jobs stats | jobs scheduled [size]")
		return 2
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			_, _ = fmt.Fprintln(stderr, "jobs trigger: job name required")
			return 2
		}
		info, err := c.Trigger(ctx, args[1], args[2:])
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s (%s) on %s\n", info.ID, info.Type, info.Queue)
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "scheduled":
		size := 10
		if len(args) > 1 {
			if n, err := strconv.Atoi(args[1]); err == nil {
				size = n
			}
		}
		tasks, err := c.ListScheduled(ctx, size)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		for _, t := range tasks {
			_, _ = fmt.Fprintf(stdout, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		_, _ = fmt.Fprintf(stderr, "jobs: unknown command %q\n", args[0])
		return 2
	}
	return 0
}
