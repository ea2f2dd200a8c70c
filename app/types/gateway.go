package types

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type PaymentLinkResponse struct {
	InvoiceID  uint64 `json:"invoice_id"`
	ShortID    string `json:"short_id"`
	PaymentURL string `json:"payment_url"`
}

type InvoiceRequest struct {
	InvoiceID uint64
}

func NewInvoiceRequestFromContext(ctx echo.Context) (*InvoiceRequest, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("id")), 10, 64)
	if err != nil {
		return nil, err
	}
	return &InvoiceRequest{InvoiceID: id}, nil
}

func (r *InvoiceRequest) Validate() error {
	if r.InvoiceID == 0 {
		return errors.New("invalid invoice id")
	}
	return nil
}

type ProcessTransactionRequest struct {
	TransactionID uint64
	InvoiceID     uint64
	RemoteIP      string
}

func (r *ProcessTransactionRequest) GetTransactionID() uint64 { return r.TransactionID }
func (r *ProcessTransactionRequest) GetInvoiceID() uint64     { return r.InvoiceID }
func (r *ProcessTransactionRequest) GetRemoteIP() string      { return r.RemoteIP }

func NewProcessTransactionRequestFromContext(ctx echo.Context) (*ProcessTransactionRequest, error) {
	txID, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("id")), 10, 64)
	if err != nil {
		return nil, err
	}

	req := &ProcessTransactionRequest{
		TransactionID: txID,
		RemoteIP:      strings.TrimSpace(ctx.RealIP()),
	}

	invoiceRaw := strings.TrimSpace(ctx.QueryParam("invoice_id"))
	if invoiceRaw == "" {
		invoiceRaw = strings.TrimSpace(ctx.FormValue("invoice_id"))
	}
	if invoiceRaw != "" {
		invoiceID, err := strconv.ParseUint(invoiceRaw, 10, 64)
		if err != nil {
			return nil, err
		}
		req.InvoiceID = invoiceID
	}

	return req, nil
}

func (r *ProcessTransactionRequest) Validate() error {
	if r.TransactionID == 0 {
		return errors.New("invalid transaction id")
	}
	if r.InvoiceID == 0 {
		return errors.New("invoice_id is required")
	}
	return nil
}
