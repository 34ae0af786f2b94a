package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"payment-service/internal/model"
	"payment-service/internal/money"
	"payment-service/internal/store"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PaymentRepository is the PostgreSQL store.Store.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*PaymentRepository)(nil)

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&paymentTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const paymentColumns = `id, user_id, provider, provider_payment_id, amount::text, currency, status, payment_method,
	description, metadata, refunded_amount::text, captured_amount::text, captured_at, refunded_at, reconciled_at,
	created_at, updated_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p                          model.Payment
		provider, currency, status string
		amount, refunded, captured string
	)
	err := row.Scan(&p.ID, &p.UserID, &provider, &p.ProviderPaymentID, &amount, &currency, &status, &p.PaymentMethod,
		&p.Description, &p.Metadata, &refunded, &captured, &p.CapturedAt, &p.RefundedAt, &p.ReconciledAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	p.Provider = model.Provider(provider)
	p.Currency = money.Currency(currency)
	p.Status = model.PaymentStatus(status)
	if p.Amount, err = parseNumeric(amount); err != nil {
		return nil, err
	}
	if p.RefundedAmount, err = parseNumeric(refunded); err != nil {
		return nil, err
	}
	if p.CapturedAmount, err = parseNumeric(captured); err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPayments(rows pgx.Rows) ([]*model.Payment, error) {
	defer rows.Close()

	var payments []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	p.Refunds, err = listRefunds(ctx, r.pool, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func statusParam(s *model.PaymentStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func (r *PaymentRepository) ListPayments(ctx context.Context, filter model.PaymentFilter) ([]*model.Payment, int, error) {
	const where = ` WHERE ($1::uuid IS NULL OR user_id = $1) AND ($2::text IS NULL OR status = $2)`
	status := statusParam(filter.Status)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM payment`+where, filter.UserID, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payment`+where+
		` ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`, filter.UserID, status, filter.PageSize, filter.Offset())
	if err != nil {
		return nil, 0, err
	}
	payments, err := collectPayments(rows)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (r *PaymentRepository) ListStalePayments(ctx context.Context, before time.Time, limit int) ([]*model.Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payment
		WHERE status IN ('PENDING', 'PROCESSING') AND updated_at < $1
		  AND (reconciled_at IS NULL OR reconciled_at < $1)
		ORDER BY reconciled_at NULLS FIRST, updated_at LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

const refundColumns = `id, payment_id, provider, provider_refund_id, amount::text, reason, status, processed_at, created_at`

func listRefunds(ctx context.Context, q querier, paymentID uuid.UUID) ([]*model.Refund, error) {
	rows, err := q.Query(ctx, `SELECT `+refundColumns+` FROM refund WHERE payment_id = $1 ORDER BY created_at, id`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refunds []*model.Refund
	for rows.Next() {
		rf, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, rf)
	}
	return refunds, rows.Err()
}

func scanRefund(row pgx.Row) (*model.Refund, error) {
	var (
		rf                       model.Refund
		provider, status, amount string
	)
	if err := row.Scan(&rf.ID, &rf.PaymentID, &provider, &rf.ProviderRefundID, &amount, &rf.Reason, &status,
		&rf.ProcessedAt, &rf.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	rf.Provider = model.Provider(provider)
	rf.Status = model.RefundStatus(status)

	var err error
	if rf.Amount, err = parseNumeric(amount); err != nil {
		return nil, err
	}
	return &rf, nil
}

const webhookColumns = `id, provider, event_type, event_id, raw_payload, signature_verified, processed, error_message,
	created_at, processed_at`

func scanWebhookEvent(row pgx.Row) (*model.WebhookEvent, error) {
	var (
		e        model.WebhookEvent
		provider string
	)
	err := row.Scan(&e.ID, &provider, &e.EventType, &e.EventID, &e.RawPayload, &e.SignatureVerified, &e.Processed,
		&e.ErrorMessage, &e.CreatedAt, &e.ProcessedAt)
	if err != nil {
		return nil, notFound(err)
	}
	e.Provider = model.Provider(provider)
	return &e, nil
}

func (r *PaymentRepository) InsertWebhookEvent(ctx context.Context, e *model.WebhookEvent) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO webhook_event
		(id, provider, event_type, event_id, raw_payload, signature_verified, processed, error_message, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (provider, event_id) DO NOTHING`,
		e.ID, string(e.Provider), e.EventType, e.EventID, e.RawPayload, e.SignatureVerified, e.Processed,
		e.ErrorMessage, e.CreatedAt, e.ProcessedAt)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	existing, err := scanWebhookEvent(r.pool.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhook_event WHERE provider = $1 AND event_id = $2`, string(e.Provider), e.EventID))
	if err != nil {
		return false, err
	}
	*e = *existing
	return false, nil
}

func (r *PaymentRepository) MarkWebhookEventFailed(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.pool.Exec(ctx, `UPDATE webhook_event SET error_message = $2 WHERE id = $1`, id, message)
	return err
}

type paymentTx struct {
	tx pgx.Tx
}

func (t *paymentTx) InsertPayment(ctx context.Context, p *model.Payment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO payment
		(id, user_id, provider, provider_payment_id, amount, currency, status, payment_method, description, metadata,
		 refunded_amount, captured_amount, captured_at, refunded_at, reconciled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8, $9, $10, $11::text::numeric, $12::text::numeric,
		        $13, $14, $15, $16, $17)`,
		p.ID, p.UserID, string(p.Provider), p.ProviderPaymentID, numeric(p.Amount), string(p.Currency), string(p.Status),
		p.PaymentMethod, p.Description, metadata(p.Metadata), numeric(p.RefundedAmount), numeric(p.CapturedAmount),
		p.CapturedAt, p.RefundedAt, p.ReconciledAt, p.CreatedAt, p.UpdatedAt)
	return err
}

func metadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func (t *paymentTx) LockPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment WHERE id = $1 FOR UPDATE`, id))
}

func (t *paymentTx) LockPaymentByProviderID(ctx context.Context, provider model.Provider, providerPaymentID string) (*model.Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment
		WHERE provider = $1 AND provider_payment_id = $2 FOR UPDATE`, string(provider), providerPaymentID))
}

func (t *paymentTx) UpdatePayment(ctx context.Context, p *model.Payment) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payment SET status = $2, refunded_amount = $3::text::numeric, payment_method = $4,
		metadata = $5, captured_amount = $6::text::numeric, captured_at = $7, refunded_at = $8, reconciled_at = $9,
		updated_at = $10 WHERE id = $1`,
		p.ID, string(p.Status), numeric(p.RefundedAmount), p.PaymentMethod, metadata(p.Metadata),
		numeric(p.CapturedAmount), p.CapturedAt, p.RefundedAt, p.ReconciledAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *paymentTx) InsertRefund(ctx context.Context, rf *model.Refund) (bool, error) {
	tag, err := t.tx.Exec(ctx, `INSERT INTO refund
		(id, payment_id, provider, provider_refund_id, amount, reason, status, processed_at, created_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8, $9)
		ON CONFLICT (provider, provider_refund_id) DO NOTHING`,
		rf.ID, rf.PaymentID, string(rf.Provider), rf.ProviderRefundID, numeric(rf.Amount), rf.Reason, string(rf.Status),
		rf.ProcessedAt, rf.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *paymentTx) LockRefund(ctx context.Context, provider model.Provider, providerRefundID string) (*model.Refund, error) {
	return scanRefund(t.tx.QueryRow(ctx, `SELECT `+refundColumns+` FROM refund
		WHERE provider = $1 AND provider_refund_id = $2 FOR UPDATE`, string(provider), providerRefundID))
}

func (t *paymentTx) UpdateRefund(ctx context.Context, rf *model.Refund) error {
	tag, err := t.tx.Exec(ctx, `UPDATE refund SET status = $2, processed_at = $3 WHERE id = $1`,
		rf.ID, string(rf.Status), rf.ProcessedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *paymentTx) LockWebhookEvent(ctx context.Context, id uuid.UUID) (*model.WebhookEvent, error) {
	return scanWebhookEvent(t.tx.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhook_event WHERE id = $1 FOR UPDATE`, id))
}

func (t *paymentTx) MarkWebhookEventProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE webhook_event SET processed = TRUE, processed_at = $2, error_message = NULL
		WHERE id = $1`, id, at)
	return err
}

func (t *paymentTx) EnqueueOutbox(ctx context.Context, m *model.OutboxMessage) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO payment_outbox
		(id, payment_id, event_type, payload, created_at, scheduled_at, publish_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.PaymentID, m.EventType, m.Payload, m.CreatedAt, m.ScheduledAt, m.PublishAttempts)
	return err
}
