package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paygrid-dev/walletcore/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Store owns Payment persistence. All writes go through UpsertByCondition;
// the unique index on execution_condition is the sole concurrency control.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{db: pool}, nil
}

func NewStoreWithPool(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

func (s *Store) Close() {
	s.db.Close()
}

const paymentColumns = `
	id, COALESCE(source_user, ''), COALESCE(destination_account, ''),
	COALESCE(source_amount::text, ''), COALESCE(destination_amount::text, ''),
	COALESCE(transfer_reference, ''), execution_condition, COALESCE(message, ''),
	state, created_at, completed_at, updated_at`

// UpsertByCondition inserts or merges the payment row for a condition. The
// single statement is the correctness mechanism: a concurrent insert with the
// same condition lands on the ON CONFLICT arm instead of producing a second
// row. Empty candidate fields never clobber stored values, and rows in a
// terminal state keep it.
func (s *Store) UpsertByCondition(ctx context.Context, condition string, fields models.PaymentFields) (models.Payment, error) {
	if condition == "" {
		return models.Payment{}, fmt.Errorf("execution condition is required")
	}

	id := fields.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	state := fields.State
	if state == "" {
		state = models.StatePending
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO payments
			(id, source_user, destination_account, source_amount, destination_amount,
			 transfer_reference, execution_condition, message, state, completed_at)
		VALUES
			($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, '')::numeric, NULLIF($5, '')::numeric,
			 NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10)
		ON CONFLICT (execution_condition) DO UPDATE SET
			source_user         = COALESCE(EXCLUDED.source_user, payments.source_user),
			destination_account = COALESCE(EXCLUDED.destination_account, payments.destination_account),
			source_amount       = COALESCE(EXCLUDED.source_amount, payments.source_amount),
			destination_amount  = COALESCE(EXCLUDED.destination_amount, payments.destination_amount),
			transfer_reference  = COALESCE(EXCLUDED.transfer_reference, payments.transfer_reference),
			message             = COALESCE(EXCLUDED.message, payments.message),
			state               = CASE WHEN payments.state IN ('success', 'failed')
			                           THEN payments.state ELSE EXCLUDED.state END,
			completed_at        = COALESCE(payments.completed_at, EXCLUDED.completed_at),
			updated_at          = now()
		RETURNING `+paymentColumns,
		id, fields.SourceUser, fields.DestinationAccount, fields.SourceAmount,
		fields.DestinationAmount, fields.TransferReference, condition,
		fields.Message, state, fields.CompletedAt,
	)

	payment, err := scanPayment(row)
	if err != nil {
		return models.Payment{}, fmt.Errorf("upsert payment: %w", err)
	}
	return payment, nil
}

// GetByCondition returns the payment for a condition, or nil when none exists.
func (s *Store) GetByCondition(ctx context.Context, condition string) (*models.Payment, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE execution_condition = $1`, condition)

	payment, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment by condition: %w", err)
	}
	return &payment, nil
}

// ListByUser returns one page of payments the user sent or received.
// accountURI is the user's ledger account URI, matched against the
// destination side.
func (s *Store) ListByUser(ctx context.Context, username, accountURI string, page, limit int) (models.PaymentPage, error) {
	page, limit, offset := ClampPage(page, limit)

	// One statement for rows and total, so the count always agrees with the
	// page it accompanies.
	rows, err := s.db.Query(ctx, `
		SELECT `+paymentColumns+`, count(*) OVER ()
		FROM payments
		WHERE source_user = $1 OR destination_account = $2
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`,
		username, accountURI, limit, offset)
	if err != nil {
		return models.PaymentPage{}, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	result := models.PaymentPage{
		Rows: []models.Payment{},
		Page: page,
	}
	var total int
	for rows.Next() {
		var p models.Payment
		err := rows.Scan(
			&p.ID, &p.SourceUser, &p.DestinationAccount,
			&p.SourceAmount, &p.DestinationAmount,
			&p.TransferReference, &p.ExecutionCondition, &p.Message,
			&p.State, &p.CreatedAt, &p.CompletedAt, &p.UpdatedAt,
			&total,
		)
		if err != nil {
			return models.PaymentPage{}, fmt.Errorf("scan payment: %w", err)
		}
		result.Rows = append(result.Rows, p)
	}
	if err := rows.Err(); err != nil {
		return models.PaymentPage{}, fmt.Errorf("list payments: %w", err)
	}

	// A page past the end returns no rows and therefore no window count.
	if total == 0 && offset > 0 {
		err := s.db.QueryRow(ctx,
			`SELECT count(*) FROM payments WHERE source_user = $1 OR destination_account = $2`,
			username, accountURI).Scan(&total)
		if err != nil {
			return models.PaymentPage{}, fmt.Errorf("count payments: %w", err)
		}
	}

	result.TotalCount = total
	result.TotalPages = TotalPages(total, limit)
	return result, nil
}

func scanPayment(row pgx.Row) (models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID, &p.SourceUser, &p.DestinationAccount,
		&p.SourceAmount, &p.DestinationAmount,
		&p.TransferReference, &p.ExecutionCondition, &p.Message,
		&p.State, &p.CreatedAt, &p.CompletedAt, &p.UpdatedAt,
	)
	return p, err
}

// ClampPage normalizes page/limit and derives the offset.
func ClampPage(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit, (page - 1) * limit
}

// TotalPages is ceil(count/limit) with a floor of zero.
func TotalPages(count, limit int) int {
	if count <= 0 || limit <= 0 {
		return 0
	}
	return (count + limit - 1) / limit
}
