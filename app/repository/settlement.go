package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-payments-nicky/app/entity"
)

var (
	ErrTransactionAlreadyProcessed   = errors.New("transaction already processed")
	ErrTransactionInvoiceMismatch    = errors.New("transaction belongs to another invoice")
	ErrProviderPaymentAlreadyApplied = errors.New("provider payment already applied to another transaction")
	ErrInvoiceWithoutClient          = errors.New("invoice has no client")
)

// SettlementRepository books finished provider payments. The credit, the
// invoice settlement and the transaction update share one database
// transaction, with the invoice row locked first and the transaction row second.
type SettlementRepository struct {
	db TxBeginner
}

func NewSettlementRepository(db TxBeginner) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// ApplyPayment credits the client once, settles from the balance and marks the
// transaction. A transaction without an invoice link settles every unpaid
// invoice of the client, oldest first.
func (r *SettlementRepository) ApplyPayment(ctx context.Context, payment *entity.PaymentApplication) error {
	return r.inTx(ctx, func(tx DBTX) error {
		invoice, err := scanInvoice(tx.QueryRowContext(ctx, `
			SELECT `+invoiceColumns+`
			FROM invoice
			WHERE id = ?
			FOR UPDATE
		`, payment.InvoiceID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvoiceNotFound
		} else if err != nil {
			return err
		}
		if invoice.ClientID == 0 {
			return ErrInvoiceWithoutClient
		}

		var (
			linkedInvoice sql.NullInt64
			status        sql.NullString
		)
		err = tx.QueryRowContext(ctx, `SELECT invoice_id, status FROM transaction WHERE id = ? FOR UPDATE`, payment.TransactionID).
			Scan(&linkedInvoice, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTransactionNotFound
		} else if err != nil {
			return err
		}

		current := entity.Transaction{Status: status.String}
		if current.AlreadyProcessed() {
			return ErrTransactionAlreadyProcessed
		}
		if linkedInvoice.Valid && uint64(linkedInvoice.Int64) != invoice.ID {
			return ErrTransactionInvoiceMismatch
		}

		var applied int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM transaction
			WHERE txn_id = ? AND status = ? AND id <> ?
		`, payment.ProviderPaymentID, entity.TransactionStatusSucceeded, payment.TransactionID).Scan(&applied)
		if err != nil {
			return err
		}
		if applied > 0 {
			return ErrProviderPaymentAlreadyApplied
		}

		transactionID := payment.TransactionID
		if err := insertFundsEntry(ctx, tx, &entity.FundsEntry{
			ClientID:    invoice.ClientID,
			Type:        entity.FundsTypeTransaction,
			RelID:       &transactionID,
			Amount:      payment.Amount,
			Description: payment.FundsDescription,
		}); err != nil {
			return err
		}

		if linkedInvoice.Valid {
			err = payInvoiceWithCredits(ctx, tx, invoice)
		} else {
			err = batchPayWithCredits(ctx, tx, invoice.ClientID)
		}
		if err != nil {
			return err
		}

		return markTransactionSucceeded(ctx, tx, payment)
	})
}

func (r *SettlementRepository) inTx(ctx context.Context, fn func(tx DBTX) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func markTransactionSucceeded(ctx context.Context, tx DBTX, payment *entity.PaymentApplication) error {
	query := `
		UPDATE transaction SET
			invoice_id = ?,
			txn_id = ?,
			txn_status = ?,
			amount = ?,
			currency = ?,
			type = ?,
			status = ?,
			error = NULL,
			ip = ?,
			updated_at = ?
		WHERE id = ?
	`

	_, err := tx.ExecContext(ctx, query,
		payment.InvoiceID,
		payment.ProviderPaymentID,
		payment.ProviderStatus,
		entity.RoundCents(payment.Amount),
		payment.Currency,
		entity.TransactionTypePayment,
		payment.Status,
		payment.IP,
		time.Now().UTC(),
		payment.TransactionID,
	)
	return err
}

// payInvoiceWithCredits expects the invoice row to be locked already.
func payInvoiceWithCredits(ctx context.Context, tx DBTX, invoice *entity.Invoice) error {
	if invoice.Status != entity.InvoiceStatusUnpaid {
		return nil
	}

	items, err := listInvoiceItems(ctx, tx, invoice.ID)
	if err != nil {
		return err
	}
	invoice.Items = items

	balance, err := lockedClientBalance(ctx, tx, invoice.ClientID)
	if err != nil {
		return err
	}

	_, err = payFromBalance(ctx, tx, invoice, balance)
	return err
}

// batchPayWithCredits settles the client's unpaid invoices oldest first for as
// long as the balance covers them.
func batchPayWithCredits(ctx context.Context, tx DBTX, clientID uint64) error {
	invoices, err := listUnpaidInvoices(ctx, tx, clientID)
	if err != nil {
		return err
	}
	if len(invoices) == 0 {
		return nil
	}

	balance, err := lockedClientBalance(ctx, tx, clientID)
	if err != nil {
		return err
	}

	for _, invoice := range invoices {
		items, err := listInvoiceItems(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		invoice.Items = items

		paid, err := payFromBalance(ctx, tx, invoice, balance)
		if err != nil {
			return err
		}
		balance = entity.RoundCents(balance - paid)
	}
	return nil
}

// payFromBalance returns the amount charged, zero when the balance is short.
func payFromBalance(ctx context.Context, tx DBTX, invoice *entity.Invoice, balance float64) (float64, error) {
	total := invoice.TotalWithTax()
	if total > balance {
		return 0, nil
	}

	invoiceID := invoice.ID
	if err := insertFundsEntry(ctx, tx, &entity.FundsEntry{
		ClientID:    invoice.ClientID,
		Type:        entity.FundsTypeInvoice,
		RelID:       &invoiceID,
		Amount:      -total,
		Description: fmt.Sprintf("Charged for invoice %s%s", invoice.Serie, invoice.Nr),
	}); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	query := `
		UPDATE invoice SET
			status = ?,
			paid_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	if _, err := tx.ExecContext(ctx, query, entity.InvoiceStatusPaid, now, now, invoice.ID); err != nil {
		return 0, err
	}

	invoice.Status = entity.InvoiceStatusPaid
	invoice.PaidAt = &now
	return total, nil
}

func listUnpaidInvoices(ctx context.Context, db DBTX, clientID uint64) ([]*entity.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoice
		WHERE client_id = ? AND status = ?
		ORDER BY id ASC
		FOR UPDATE
	`

	rows, err := db.QueryContext(ctx, query, clientID, entity.InvoiceStatusUnpaid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]*entity.Invoice, 0)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return invoices, nil
}
