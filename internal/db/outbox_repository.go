package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payment-service/internal/model"
)

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// GetUnpublished locks up to limit due messages. Rows locked by another
// producer instance are skipped.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]*model.OutboxMessage, error) {
	rows, err := tx.Query(ctx, `SELECT id, payment_id, event_type, payload, created_at, scheduled_at, published_at,
		publish_attempts, error
		FROM payment_outbox
		WHERE scheduled_at IS NOT NULL AND scheduled_at <= now()
		ORDER BY scheduled_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*model.OutboxMessage
	for rows.Next() {
		var m model.OutboxMessage
		if err := rows.Scan(&m.ID, &m.PaymentID, &m.EventType, &m.Payload, &m.CreatedAt, &m.ScheduledAt,
			&m.PublishedAt, &m.PublishAttempts, &m.Error); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func (r *OutboxRepository) Update(ctx context.Context, tx pgx.Tx, m *model.OutboxMessage) error {
	_, err := tx.Exec(ctx, `UPDATE payment_outbox
		SET scheduled_at = $2, published_at = $3, publish_attempts = $4, error = $5
		WHERE id = $1`, m.ID, m.ScheduledAt, m.PublishedAt, m.PublishAttempts, m.Error)
	return err
}

func (r *OutboxRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.OutboxMessage, error) {
	var m model.OutboxMessage
	err := r.pool.QueryRow(ctx, `SELECT id, payment_id, event_type, payload, created_at, scheduled_at, published_at,
		publish_attempts, error FROM payment_outbox WHERE id = $1`, id).
		Scan(&m.ID, &m.PaymentID, &m.EventType, &m.Payload, &m.CreatedAt, &m.ScheduledAt, &m.PublishedAt,
			&m.PublishAttempts, &m.Error)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}
