package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// AuditRepository is an append-only audit log.
type AuditRepository interface {
	Append(ctx context.Context, record domain.AuditRecord) error
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds a Postgres-backed audit log.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Append(ctx context.Context, record domain.AuditRecord) error {
	const query = `
        INSERT INTO audit_log (id, ticket_id, ticket_number, action, actor_id, actor_role, from_status, to_status, reason, metadata, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	var from *string
	if record.FromStatus != nil {
		s := string(*record.FromStatus)
		from = &s
	}
	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := r.pool.Exec(ctx, query,
		uuid.NewString(),
		record.TicketID,
		record.TicketNumber,
		record.Action,
		record.ActorID,
		record.ActorRole,
		from,
		record.ToStatus,
		record.Reason,
		metadata,
		record.OccurredAt,
	)
	return err
}
