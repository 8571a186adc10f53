package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// TicketRepository encapsulates ticket persistence. Create and
// CommitTransition write the ticket row and its history record in a single
// transaction.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	CommitTransition(ctx context.Context, ticket *domain.Ticket, record domain.TransitionRecord, expectedVersion int) error
	ListHistory(ctx context.Context, ticketID string) ([]domain.TransitionRecord, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, owner_id, assigned_handler_id, unit_id, title, description, category,
               status, priority, sla_deadline, sla_breached, resolution_hours, reopen_count,
               assigned_at, started_at, resolved_at, closed_at, cancelled_at, reopened_at,
               created_at, updated_at, version`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if len(ticket.History) != 1 {
		return fmt.Errorf("create ticket %s: expected exactly one creation record, got %d", ticket.ID, len(ticket.History))
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
        INSERT INTO tickets (id, ticket_number, owner_id, assigned_handler_id, unit_id, title, description, category,
            status, priority, sla_deadline, sla_breached, resolution_hours, reopen_count, created_at, updated_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`
	if _, err := tx.Exec(ctx, query,
		ticket.ID,
		ticket.TicketNumber,
		ticket.OwnerID,
		ticket.AssignedHandlerID,
		ticket.UnitID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Status,
		ticket.Priority,
		ticket.SLADeadline,
		ticket.SLABreached,
		ticket.ResolutionHours,
		ticket.ReopenCount,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.Version,
	); err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	if err := insertHistory(ctx, tx, ticket.History[0]); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) CommitTransition(ctx context.Context, ticket *domain.Ticket, record domain.TransitionRecord, expectedVersion int) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
        UPDATE tickets SET assigned_handler_id=$1, status=$2, sla_breached=$3, resolution_hours=$4, reopen_count=$5,
            assigned_at=$6, started_at=$7, resolved_at=$8, closed_at=$9, cancelled_at=$10, reopened_at=$11,
            updated_at=$12, version=$13
        WHERE id=$14 AND version=$15`
	cmd, err := tx.Exec(ctx, query,
		ticket.AssignedHandlerID,
		ticket.Status,
		ticket.SLABreached,
		ticket.ResolutionHours,
		ticket.ReopenCount,
		ticket.AssignedAt,
		ticket.StartedAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.CancelledAt,
		ticket.ReopenedAt,
		ticket.UpdatedAt,
		ticket.Version,
		ticket.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	if err := insertHistory(ctx, tx, record); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertHistory(ctx context.Context, tx pgx.Tx, record domain.TransitionRecord) error {
	const query = `
        INSERT INTO ticket_history (id, ticket_id, sequence, from_status, to_status, actor_id, actor_role, reason, metadata, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	var from *string
	if record.FromStatus != nil {
		s := string(*record.FromStatus)
		from = &s
	}
	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if _, err := tx.Exec(ctx, query,
		record.ID,
		record.TicketID,
		record.Sequence,
		from,
		record.ToStatus,
		record.ActorID,
		record.ActorRole,
		record.Reason,
		metadata,
		record.Timestamp,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrVersionConflict
		}
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapNotFound(err)
	}
	history, err := r.ListHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	ticket.History = history
	return ticket, nil
}

func (r *ticketRepository) ListHistory(ctx context.Context, ticketID string) ([]domain.TransitionRecord, error) {
	const query = `
        SELECT id, ticket_id, sequence, from_status, to_status, actor_id, actor_role, reason, metadata, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY sequence ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TransitionRecord
	for rows.Next() {
		var (
			record domain.TransitionRecord
			from   *string
		)
		if err := rows.Scan(
			&record.ID,
			&record.TicketID,
			&record.Sequence,
			&from,
			&record.ToStatus,
			&record.ActorID,
			&record.ActorRole,
			&record.Reason,
			&record.Metadata,
			&record.Timestamp,
		); err != nil {
			return nil, err
		}
		if from != nil {
			status := domain.TicketStatus(*from)
			record.FromStatus = &status
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func (r *ticketRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE status IN ('OPEN','ASSIGNED','IN_PROGRESS','REOPENED') AND sla_deadline < $1
        ORDER BY sla_deadline ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.OwnerID,
		&ticket.AssignedHandlerID,
		&ticket.UnitID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Status,
		&ticket.Priority,
		&ticket.SLADeadline,
		&ticket.SLABreached,
		&ticket.ResolutionHours,
		&ticket.ReopenCount,
		&ticket.AssignedAt,
		&ticket.StartedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.CancelledAt,
		&ticket.ReopenedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.Version,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
