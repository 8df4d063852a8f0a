package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTotalsIntegrity recomputes stored invoice totals from their lines.
	TaskTotalsIntegrity = "billing:totals_integrity"
	// TaskAuditRetention prunes audit entries past the retention window.
	TaskAuditRetention = "audit:retention"
)

// NewTotalsIntegrityTask constructs the totals sweep task. It carries no
// payload; the sweep always covers every invoice.
func NewTotalsIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskTotalsIntegrity, nil)
}

// NewAuditRetentionTask constructs the audit pruning task.
func NewAuditRetentionTask() *asynq.Task {
	return asynq.NewTask(TaskAuditRetention, nil)
}
