package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/vibast-solutions/ms-go-payments-nicky/app/httpclient"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/types"
)

var ErrUpstream = errors.New("upstream provider error")

type BillDetails struct {
	InvoiceReference string `json:"invoiceReference"`
	Description      string `json:"description"`
}

type Requester struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// PaymentRequest is the body of a Nicky "create payment request" call.
type PaymentRequest struct {
	BlockchainAssetID    string      `json:"blockchainAssetId"`
	AmountExpectedNative float64     `json:"amountExpectedNative"`
	BillDetails          BillDetails `json:"billDetails"`
	Requester            Requester   `json:"requester"`
	SendNotification     bool        `json:"sendNotification"`
	SuccessURL           string      `json:"successUrl"`
	CancelURL            string      `json:"cancelUrl"`
}

type Bill struct {
	ShortID          string `json:"shortId"`
	InvoiceReference string `json:"invoiceReference"`
	Description      string `json:"description"`
}

// StatusRecord is a payment request as returned by the Nicky API.
type StatusRecord struct {
	ID           string               `json:"id"`
	Bill         Bill                 `json:"bill"`
	CreatedDate  string               `json:"createdDate"`
	Status       types.ProviderStatus `json:"status"`
	CancelURL    string               `json:"cancelUrl"`
	AmountNative float64              `json:"amountNative"`
}

type CreateOutput struct {
	ShortID    string
	PaymentURL string
}

type StatusOutput struct {
	Record *StatusRecord
	Body   []byte
}

// UpstreamError describes a failed or malformed exchange with the provider.
type UpstreamError struct {
	Op         string
	StatusCode int
	Reason     string
	Body       string
	Trace      httpclient.Trace
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s (http status %d)", e.Op, e.Reason, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

type Provider interface {
	CreatePaymentRequest(ctx context.Context, req *PaymentRequest) (*CreateOutput, error)
	GetByShortID(ctx context.Context, shortID string) (*StatusOutput, error)
}
