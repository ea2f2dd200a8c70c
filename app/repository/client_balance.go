package repository

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-payments-nicky/app/entity"
)

// insertFundsEntry appends one movement to the client credit ledger.
func insertFundsEntry(ctx context.Context, db DBTX, entry *entity.FundsEntry) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}

	query := `
		INSERT INTO client_balance (client_id, type, rel_id, amount, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.ExecContext(ctx, query,
		entry.ClientID,
		entry.Type,
		nullableUint64Value(entry.RelID),
		entity.RoundCents(entry.Amount),
		entry.Description,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = uint64(id)
	return nil
}

// lockedClientBalance sums the client's ledger rows and locks them until the
// surrounding transaction ends.
func lockedClientBalance(ctx context.Context, db DBTX, clientID uint64) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM client_balance
		WHERE client_id = ?
		FOR UPDATE
	`

	var balance float64
	if err := db.QueryRowContext(ctx, query, clientID).Scan(&balance); err != nil {
		return 0, err
	}
	return entity.RoundCents(balance), nil
}
