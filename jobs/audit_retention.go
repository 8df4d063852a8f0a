package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/tidebill/tidebill/internal/jobs"
)

// auditRetention bounds how long audit entries are kept.
const auditRetention = 180 * 24 * time.Hour

// AuditRetentionPruner deletes audit entries older than the retention window.
type AuditRetentionPruner struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewAuditRetentionPruner wires the pruner. metrics may be nil.
func NewAuditRetentionPruner(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRetentionPruner {
	return &AuditRetentionPruner{pool: pool, logger: logger, metrics: metrics}
}

// Handle processes TaskAuditRetention tasks.
func (p *AuditRetentionPruner) Handle(ctx context.Context, _ *asynq.Task) error {
	return p.metrics.Track("audit_retention").End(p.run(ctx))
}

func (p *AuditRetentionPruner) run(ctx context.Context) error {
	cutoff := time.Now().Add(-auditRetention)
	tag, err := p.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("audit retention: %w", err)
	}
	p.logger.Info("audit retention sweep finished",
		slog.Int64("deleted", tag.RowsAffected()),
		slog.Time("cutoff", cutoff),
	)
	return nil
}
