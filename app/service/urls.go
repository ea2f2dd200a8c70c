package service

import (
	"net/url"
	"strconv"
	"strings"
)

// PublicURLs builds payer-facing links into the billing host's client area
// and into this gateway.
type PublicURLs struct {
	baseURL        string
	gatewayBaseURL string
}

func NewPublicURLs(baseURL, gatewayBaseURL string) *PublicURLs {
	return &PublicURLs{
		baseURL:        trimBaseURL(baseURL),
		gatewayBaseURL: trimBaseURL(gatewayBaseURL),
	}
}

func (u *PublicURLs) InvoiceListURL() string {
	return u.baseURL + "/invoice/"
}

func (u *PublicURLs) InvoiceURL(hash string) string {
	return u.baseURL + "/invoice/" + url.PathEscape(hash)
}

// TransactionURL is the status check page the payer is sent back to while a
// payment is still pending.
func (u *PublicURLs) TransactionURL(transactionID, invoiceID uint64) string {
	query := url.Values{}
	query.Set("invoice_id", strconv.FormatUint(invoiceID, 10))
	return u.gatewayBaseURL + "/gateway/transactions/" + strconv.FormatUint(transactionID, 10) + "?" + query.Encode()
}

func trimBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
