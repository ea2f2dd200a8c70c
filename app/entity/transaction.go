package entity

import "time"

const (
	TransactionStatusProcessed = "processed"
	TransactionStatusSucceeded = "succeeded"
	TransactionTxnStatusError  = "error"
	TransactionTypePayment     = "Payment"
)

// Transaction is the host billing system's record of one gateway interaction.
type Transaction struct {
	ID uint64

	InvoiceID *uint64
	GatewayID *uint64

	TxnID     string
	TxnStatus string
	Amount    float64
	Currency  string
	Type      string
	Status    string
	Error     *string
	IP        string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AlreadyProcessed reports whether the transaction has been booked or closed.
func (t *Transaction) AlreadyProcessed() bool {
	return t.Status == TransactionStatusProcessed || t.Status == TransactionStatusSucceeded
}

// PaymentApplication is a finished provider payment to be booked against a
// host transaction and the invoice it was requested for.
type PaymentApplication struct {
	TransactionID uint64
	InvoiceID     uint64

	ProviderPaymentID string
	ProviderStatus    string
	Amount            float64
	Currency          string
	Status            string
	IP                string
	FundsDescription  string
}
