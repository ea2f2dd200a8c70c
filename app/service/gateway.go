package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/entity"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/factory"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/provider"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/repository"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/types"
)

// InvoiceStore loads host invoices and writes their note field.
type InvoiceStore interface {
	FindByID(ctx context.Context, id uint64) (*entity.Invoice, error)
	UpdateNotes(ctx context.Context, id uint64, notes string) error
}

type TransactionStore interface {
	FindByID(ctx context.Context, id uint64) (*entity.Transaction, error)
	Update(ctx context.Context, tx *entity.Transaction) error
}

// PaymentLedger books a finished payment. The credit, the settlement from the
// client balance and the transaction update either all happen or none do.
type PaymentLedger interface {
	ApplyPayment(ctx context.Context, payment *entity.PaymentApplication) error
}

type URLResolver interface {
	InvoiceListURL() string
	InvoiceURL(hash string) string
	TransactionURL(transactionID, invoiceID uint64) string
}

type GatewayConfig struct {
	NotifyURL string
	Debug     bool
}

type GatewayService struct {
	invoices     InvoiceStore
	transactions TransactionStore
	ledger       PaymentLedger
	urls         URLResolver
	provider     provider.Provider
	cfg          GatewayConfig
	logger       logrus.FieldLogger
}

func NewGatewayService(
	invoices InvoiceStore,
	transactions TransactionStore,
	ledger PaymentLedger,
	urls URLResolver,
	paymentProvider provider.Provider,
	cfg GatewayConfig,
) (*GatewayService, error) {
	cfg.NotifyURL = strings.TrimSpace(cfg.NotifyURL)
	if cfg.NotifyURL == "" {
		return nil, fmt.Errorf("%w: notify url is required", ErrConfiguration)
	}
	if paymentProvider == nil {
		return nil, fmt.Errorf("%w: payment provider is required", ErrConfiguration)
	}

	return &GatewayService{
		invoices:     invoices,
		transactions: transactions,
		ledger:       ledger,
		urls:         urls,
		provider:     paymentProvider,
		cfg:          cfg,
		logger:       factory.NewModuleLogger("gateway-service"),
	}, nil
}

type PaymentLink struct {
	InvoiceID  uint64
	ShortID    string
	PaymentURL string
}

// CreatePaymentLink registers a payment request for the invoice with the
// provider and stores the returned short id in the invoice note.
func (s *GatewayService) CreatePaymentLink(ctx context.Context, invoiceID uint64) (*PaymentLink, error) {
	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, ErrInvoiceNotFound
	}

	assetID, err := types.BlockchainAssetID(invoice.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrConfiguration, invoice.Currency)
	}

	req := &provider.PaymentRequest{
		BlockchainAssetID:    assetID,
		AmountExpectedNative: invoice.TotalWithTax(),
		BillDetails: provider.BillDetails{
			InvoiceReference: strconv.FormatUint(invoice.ID, 10),
			Description:      paymentDescription(invoice),
		},
		Requester: provider.Requester{
			Email: invoice.BuyerEmail,
			Name:  buyerName(invoice),
		},
		SendNotification: true,
		SuccessURL:       s.cfg.NotifyURL,
		CancelURL:        s.urls.InvoiceListURL(),
	}

	out, err := s.provider.CreatePaymentRequest(ctx, req)
	if err != nil {
		s.logUpstreamError(ctx, err, logrus.Fields{"invoice_id": invoice.ID})
		return nil, err
	}

	if err := s.invoices.UpdateNotes(ctx, invoice.ID, ShortIDNote(out.ShortID)); err != nil {
		return nil, translateStoreError(err)
	}

	return &PaymentLink{
		InvoiceID:  invoice.ID,
		ShortID:    out.ShortID,
		PaymentURL: out.PaymentURL,
	}, nil
}

// CheckStatus fetches the provider status for the invoice without touching host records.
func (s *GatewayService) CheckStatus(ctx context.Context, invoiceID uint64) (*provider.StatusRecord, error) {
	_, record, _, err := s.fetchStatus(ctx, invoiceID)
	return record, err
}

func (s *GatewayService) fetchStatus(ctx context.Context, invoiceID uint64) (*entity.Invoice, *provider.StatusRecord, []byte, error) {
	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, nil, nil, err
	}
	if invoice == nil || strings.TrimSpace(invoice.Notes) == "" {
		return nil, nil, nil, fmt.Errorf("%w: no shortId found for the given invoice", ErrInput)
	}

	shortID, err := ExtractShortID(invoice.Notes)
	if err != nil {
		return nil, nil, nil, err
	}

	out, err := s.provider.GetByShortID(ctx, shortID)
	if err != nil {
		s.logUpstreamError(ctx, err, logrus.Fields{"invoice_id": invoice.ID, "short_id": shortID})
		return nil, nil, nil, err
	}

	return invoice, out.Record, out.Body, nil
}

// translateStoreError maps storage not-found errors onto the service sentinels.
func translateStoreError(err error) error {
	switch {
	case errors.Is(err, repository.ErrInvoiceNotFound):
		return ErrInvoiceNotFound
	case errors.Is(err, repository.ErrTransactionNotFound):
		return ErrTransactionNotFound
	case errors.Is(err, repository.ErrTransactionAlreadyProcessed),
		errors.Is(err, repository.ErrTransactionInvoiceMismatch),
		errors.Is(err, repository.ErrProviderPaymentAlreadyApplied),
		errors.Is(err, repository.ErrInvoiceWithoutClient):
		return fmt.Errorf("%w: %w", ErrReconciliation, err)
	default:
		return err
	}
}

func (s *GatewayService) logUpstreamError(ctx context.Context, err error, fields logrus.Fields) {
	entry := factory.LoggerWithRequestContext(s.logger, ctx).WithFields(fields).WithError(err)

	var upstreamErr *provider.UpstreamError
	if errors.As(err, &upstreamErr) {
		entry = entry.WithField("http_status", upstreamErr.StatusCode)
		if s.cfg.Debug {
			entry = entry.
				WithField("response_body", upstreamErr.Body).
				WithField("debug", upstreamErr.Trace.Masked(provider.APIKeyHeader).String())
		}
	}
	entry.Error("Nicky API request failed")
}
