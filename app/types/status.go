package types

import (
	"errors"
	"strings"
)

// ProviderStatus is the payment request status vocabulary of the Nicky API.
type ProviderStatus string

const (
	ProviderStatusNone                      ProviderStatus = "None"
	ProviderStatusPaymentPending            ProviderStatus = "PaymentPending"
	ProviderStatusPaymentValidationRequired ProviderStatus = "PaymentValidationRequired"
	ProviderStatusCanceled                  ProviderStatus = "Canceled"
	ProviderStatusFinished                  ProviderStatus = "Finished"
)

// TransactionStatus is the host billing system's canonical transaction status.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusSucceeded TransactionStatus = "succeeded"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// MapStatus maps a provider status to the host status. Unknown statuses fall
// back to pending.
func MapStatus(status ProviderStatus) TransactionStatus {
	switch status {
	case ProviderStatusNone, ProviderStatusPaymentPending, ProviderStatusPaymentValidationRequired:
		return TransactionStatusPending
	case ProviderStatusCanceled:
		return TransactionStatusFailed
	case ProviderStatusFinished:
		return TransactionStatusSucceeded
	default:
		return TransactionStatusPending
	}
}

// IsAwaitingPayment reports whether the payer should keep waiting on the status page.
func IsAwaitingPayment(status ProviderStatus) bool {
	switch status {
	case ProviderStatusNone, ProviderStatusPaymentPending, ProviderStatusPaymentValidationRequired:
		return true
	default:
		return false
	}
}

var blockchainAssets = map[string]string{
	"USD": "USD.USD",
	"EUR": "EUR.EUR",
}

// BlockchainAssetID returns the Nicky asset identifier for an invoice currency.
func BlockchainAssetID(currency string) (string, error) {
	asset, ok := blockchainAssets[strings.ToUpper(strings.TrimSpace(currency))]
	if !ok {
		return "", ErrUnsupportedCurrency
	}
	return asset, nil
}
