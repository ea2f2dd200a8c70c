package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-payments-nicky/app/entity"
)

var ErrTransactionNotFound = errors.New("transaction not found")

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) FindByID(ctx context.Context, id uint64) (*entity.Transaction, error) {
	query := `
		SELECT id, invoice_id, gateway_id, txn_id, txn_status, amount, currency,
			type, status, error, ip, created_at, updated_at
		FROM transaction
		WHERE id = ?
	`

	var (
		tx        entity.Transaction
		invoiceID sql.NullInt64
		gatewayID sql.NullInt64
		txnID     sql.NullString
		txnStatus sql.NullString
		amount    sql.NullFloat64
		currency  sql.NullString
		txType    sql.NullString
		status    sql.NullString
		txError   sql.NullString
		ip        sql.NullString
		createdAt sql.NullTime
		updatedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tx.ID,
		&invoiceID,
		&gatewayID,
		&txnID,
		&txnStatus,
		&amount,
		&currency,
		&txType,
		&status,
		&txError,
		&ip,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	tx.InvoiceID = uint64PtrFromNull(invoiceID)
	tx.GatewayID = uint64PtrFromNull(gatewayID)
	tx.TxnID = txnID.String
	tx.TxnStatus = txnStatus.String
	tx.Amount = amount.Float64
	tx.Currency = currency.String
	tx.Type = txType.String
	tx.Status = status.String
	tx.Error = stringPtrFromNull(txError)
	tx.IP = ip.String
	tx.CreatedAt = createdAt.Time
	tx.UpdatedAt = updatedAt.Time

	return &tx, nil
}

func (r *TransactionRepository) Update(ctx context.Context, tx *entity.Transaction) error {
	query := `
		UPDATE transaction SET
			invoice_id = ?,
			txn_id = ?,
			txn_status = ?,
			amount = ?,
			currency = ?,
			type = ?,
			status = ?,
			error = ?,
			ip = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableUint64Value(tx.InvoiceID),
		tx.TxnID,
		tx.TxnStatus,
		tx.Amount,
		tx.Currency,
		tx.Type,
		tx.Status,
		nullableStringValue(tx.Error),
		tx.IP,
		tx.UpdatedAt,
		tx.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}

	return nil
}
