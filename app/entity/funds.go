package entity

import "time"

const (
	FundsTypeTransaction = "transaction"
	FundsTypeInvoice     = "invoice"
)

// FundsEntry is a single movement on a client's credit balance.
type FundsEntry struct {
	ID uint64

	ClientID    uint64
	Type        string
	RelID       *uint64
	Amount      float64
	Description string

	CreatedAt time.Time
	UpdatedAt time.Time
}
