package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"payment-service/internal/model"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Insert(ctx context.Context, e *model.AuditEntry) error {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_log (id, user_id, action, resource, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.Action, e.Resource, e.ResourceID, details, e.CreatedAt)
	return err
}

func (r *AuditRepository) ListByResource(ctx context.Context, resource, resourceID string) ([]*model.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, action, resource, resource_id, details, created_at
		FROM audit_log WHERE resource = $1 AND resource_id = $2 ORDER BY created_at, id`, resource, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Resource, &e.ResourceID, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
