package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-payments-nicky/app/entity"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/factory"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/provider"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/repository"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/types"
)

type OutcomeKind int

const (
	OutcomePending OutcomeKind = iota + 1
	OutcomeCanceled
	OutcomeSettled
)

// Outcome tells the caller what to show the payer after a status check.
type Outcome struct {
	Kind        OutcomeKind
	Record      *provider.StatusRecord
	RedirectURL string
	CheckURL    string
}

type processTransactionRequest interface {
	GetTransactionID() uint64
	GetInvoiceID() uint64
	GetRemoteIP() string
}

// ProcessTransaction polls the provider for the invoice's payment request and
// reconciles a finished payment into the host records.
func (s *GatewayService) ProcessTransaction(ctx context.Context, req processTransactionRequest) (*Outcome, error) {
	invoice, record, body, err := s.fetchStatus(ctx, req.GetInvoiceID())
	if err != nil {
		return nil, err
	}

	if types.IsAwaitingPayment(record.Status) {
		return &Outcome{
			Kind:     OutcomePending,
			Record:   record,
			CheckURL: s.urls.TransactionURL(req.GetTransactionID(), invoice.ID),
		}, nil
	}

	if record.Status == types.ProviderStatusCanceled {
		redirectURL := record.CancelURL
		if redirectURL == "" {
			redirectURL = s.urls.InvoiceURL(invoice.Hash)
		}
		return &Outcome{
			Kind:        OutcomeCanceled,
			Record:      record,
			RedirectURL: redirectURL,
		}, nil
	}

	tx, err := s.transactions.FindByID(ctx, req.GetTransactionID())
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	if tx.InvoiceID != nil && *tx.InvoiceID != invoice.ID {
		return nil, s.rejectPayment(ctx, tx.ID, repository.ErrTransactionInvoiceMismatch, body)
	}

	if record.Status != types.ProviderStatusFinished {
		return nil, s.failTransaction(ctx, tx, fmt.Sprintf("payment failed or status is missing (status %q)", record.Status), body)
	}
	if tx.AlreadyProcessed() {
		return nil, s.failTransaction(ctx, tx, "payment was already processed for this transaction", body)
	}

	err = s.ledger.ApplyPayment(ctx, &entity.PaymentApplication{
		TransactionID:     tx.ID,
		InvoiceID:         invoice.ID,
		ProviderPaymentID: record.ID,
		ProviderStatus:    string(record.Status),
		Amount:            record.AmountNative,
		Currency:          invoice.Currency,
		Status:            string(types.MapStatus(record.Status)),
		IP:                req.GetRemoteIP(),
		FundsDescription:  "Nicky transaction " + record.ID,
	})
	if err != nil {
		if errors.Is(translateStoreError(err), ErrReconciliation) {
			return nil, s.rejectPayment(ctx, tx.ID, err, body)
		}
		return nil, translateStoreError(err)
	}

	return &Outcome{
		Kind:        OutcomeSettled,
		Record:      record,
		RedirectURL: s.urls.InvoiceURL(invoice.Hash),
	}, nil
}

// failTransaction closes the transaction with an error so it is never booked later.
func (s *GatewayService) failTransaction(ctx context.Context, tx *entity.Transaction, message string, body []byte) error {
	tx.TxnStatus = entity.TransactionTxnStatusError
	tx.Error = &message
	tx.Status = entity.TransactionStatusProcessed
	tx.UpdatedAt = time.Now().UTC()

	if err := s.transactions.Update(ctx, tx); err != nil {
		return translateStoreError(err)
	}

	s.logRejection(ctx, tx.ID, message, body)
	return fmt.Errorf("%w: %s", ErrReconciliation, message)
}

// rejectPayment refuses to book a payment and leaves the stored records as they are.
func (s *GatewayService) rejectPayment(ctx context.Context, transactionID uint64, cause error, body []byte) error {
	s.logRejection(ctx, transactionID, cause.Error(), body)
	return translateStoreError(cause)
}

func (s *GatewayService) logRejection(ctx context.Context, transactionID uint64, message string, body []byte) {
	logger := factory.LoggerWithRequestContext(s.logger, ctx).WithField("transaction_id", transactionID)
	if s.cfg.Debug {
		logger.WithField("response_body", string(body)).Debug("Nicky transaction rejected")
	}
	logger.Warn(message)
}
