package entity

import (
	"math"
	"time"
)

const (
	InvoiceStatusUnpaid = "unpaid"
	InvoiceStatusPaid   = "paid"
)

type Invoice struct {
	ID uint64

	ClientID uint64
	Serie    string
	Nr       string
	Hash     string
	Status   string

	Currency string
	TaxRate  float64

	BuyerEmail     string
	BuyerFirstName string
	BuyerLastName  string

	Notes string

	Items []InvoiceItem

	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type InvoiceItem struct {
	ID uint64

	InvoiceID uint64
	Title     string
	Price     float64
	Quantity  float64
	Taxed     bool
}

// TotalWithTax sums item prices and the per-item tax of taxed items, rounded to cents.
func (i *Invoice) TotalWithTax() float64 {
	var total, tax float64
	for _, item := range i.Items {
		total += item.Price * item.Quantity
		if item.Taxed && i.TaxRate > 0 {
			tax += RoundCents(item.Price*i.TaxRate/100) * item.Quantity
		}
	}
	return RoundCents(total + tax)
}

func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
