package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-payments-nicky/app/entity"
)

var ErrInvoiceNotFound = errors.New("invoice not found")

const invoiceColumns = `id, client_id, serie, nr, hash, status, currency, taxrate,
			buyer_email, buyer_first_name, buyer_last_name, notes,
			paid_at, created_at, updated_at`

type InvoiceRepository struct {
	db DBTX
}

func NewInvoiceRepository(db DBTX) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// FindByID loads the invoice with its items. A missing invoice yields nil, nil.
func (r *InvoiceRepository) FindByID(ctx context.Context, id uint64) (*entity.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoice
		WHERE id = ?
	`

	invoice, err := scanInvoice(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	items, err := listInvoiceItems(ctx, r.db, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.Items = items

	return invoice, nil
}

func (r *InvoiceRepository) UpdateNotes(ctx context.Context, id uint64, notes string) error {
	query := `
		UPDATE invoice SET
			notes = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, notes, time.Now().UTC(), id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvoiceNotFound
	}

	return nil
}

func listInvoiceItems(ctx context.Context, db DBTX, invoiceID uint64) ([]entity.InvoiceItem, error) {
	query := `
		SELECT id, invoice_id, title, price, quantity, taxed
		FROM invoice_item
		WHERE invoice_id = ?
		ORDER BY id ASC
	`

	rows, err := db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]entity.InvoiceItem, 0)
	for rows.Next() {
		var (
			item     entity.InvoiceItem
			title    sql.NullString
			price    sql.NullFloat64
			quantity sql.NullFloat64
			taxed    sql.NullBool
		)
		if err := rows.Scan(&item.ID, &item.InvoiceID, &title, &price, &quantity, &taxed); err != nil {
			return nil, err
		}
		item.Title = title.String
		item.Price = price.Float64
		item.Quantity = quantity.Float64
		item.Taxed = taxed.Bool
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	var (
		invoice   entity.Invoice
		clientID  sql.NullInt64
		serie     sql.NullString
		nr        sql.NullString
		hash      sql.NullString
		status    sql.NullString
		currency  sql.NullString
		taxRate   sql.NullFloat64
		email     sql.NullString
		firstName sql.NullString
		lastName  sql.NullString
		notes     sql.NullString
		paidAt    sql.NullTime
		createdAt sql.NullTime
		updatedAt sql.NullTime
	)

	if err := row.Scan(
		&invoice.ID,
		&clientID,
		&serie,
		&nr,
		&hash,
		&status,
		&currency,
		&taxRate,
		&email,
		&firstName,
		&lastName,
		&notes,
		&paidAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if clientID.Valid && clientID.Int64 > 0 {
		invoice.ClientID = uint64(clientID.Int64)
	}
	invoice.Serie = serie.String
	invoice.Nr = nr.String
	invoice.Hash = hash.String
	invoice.Status = status.String
	invoice.Currency = currency.String
	invoice.TaxRate = taxRate.Float64
	invoice.BuyerEmail = email.String
	invoice.BuyerFirstName = firstName.String
	invoice.BuyerLastName = lastName.String
	invoice.Notes = notes.String
	invoice.PaidAt = timePtrFromNull(paidAt)
	invoice.CreatedAt = createdAt.Time
	invoice.UpdatedAt = updatedAt.Time

	return &invoice, nil
}
