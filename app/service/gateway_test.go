package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-payments-nicky/app/entity"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/provider"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/repository"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/types"
)

type serviceInvoiceStore struct {
	invoices map[uint64]*entity.Invoice
	notes    map[uint64]string
}

func newServiceInvoiceStore(items ...*entity.Invoice) *serviceInvoiceStore {
	s := &serviceInvoiceStore{invoices: map[uint64]*entity.Invoice{}, notes: map[uint64]string{}}
	for _, item := range items {
		s.invoices[item.ID] = item
	}
	return s
}

func (s *serviceInvoiceStore) FindByID(_ context.Context, id uint64) (*entity.Invoice, error) {
	item, ok := s.invoices[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (s *serviceInvoiceStore) UpdateNotes(_ context.Context, id uint64, notes string) error {
	s.notes[id] = notes
	if item, ok := s.invoices[id]; ok {
		item.Notes = notes
	}
	return nil
}

type serviceTransactionStore struct {
	mu      sync.Mutex
	items   map[uint64]*entity.Transaction
	updates int
}

func (s *serviceTransactionStore) FindByID(_ context.Context, id uint64) (*entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (s *serviceTransactionStore) Update(_ context.Context, tx *entity.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	copyItem := *tx
	s.items[tx.ID] = &copyItem
	return nil
}

// serviceLedger books payments against the transaction store under its lock,
// the way the database transaction does.
type serviceLedger struct {
	transactions *serviceTransactionStore
	failNext     error
	applied      []entity.PaymentApplication
	paid         []uint64
	batches      []uint64
}

func (l *serviceLedger) ApplyPayment(_ context.Context, payment *entity.PaymentApplication) error {
	l.transactions.mu.Lock()
	defer l.transactions.mu.Unlock()

	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return err
	}

	tx, ok := l.transactions.items[payment.TransactionID]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	if tx.AlreadyProcessed() {
		return repository.ErrTransactionAlreadyProcessed
	}
	if tx.InvoiceID != nil && *tx.InvoiceID != payment.InvoiceID {
		return repository.ErrTransactionInvoiceMismatch
	}
	for id, other := range l.transactions.items {
		if id != tx.ID && other.TxnID == payment.ProviderPaymentID && other.Status == entity.TransactionStatusSucceeded {
			return repository.ErrProviderPaymentAlreadyApplied
		}
	}

	if tx.InvoiceID != nil {
		l.paid = append(l.paid, payment.InvoiceID)
	} else {
		l.batches = append(l.batches, payment.InvoiceID)
	}
	l.applied = append(l.applied, *payment)

	invoiceID := payment.InvoiceID
	l.transactions.items[tx.ID] = &entity.Transaction{
		ID:        tx.ID,
		InvoiceID: &invoiceID,
		TxnID:     payment.ProviderPaymentID,
		TxnStatus: payment.ProviderStatus,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Type:      entity.TransactionTypePayment,
		Status:    payment.Status,
		IP:        payment.IP,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (l *serviceLedger) credits() int {
	l.transactions.mu.Lock()
	defer l.transactions.mu.Unlock()
	return len(l.applied)
}

type serviceProvider struct {
	mu          sync.Mutex
	createCalls int
	createReq   *provider.PaymentRequest
	createOut   *provider.CreateOutput
	createErr   error
	record      *provider.StatusRecord
	statusErr   error
	shortIDs    []string
}

func (p *serviceProvider) CreatePaymentRequest(_ context.Context, req *provider.PaymentRequest) (*provider.CreateOutput, error) {
	p.createCalls++
	p.createReq = req
	if p.createErr != nil {
		return nil, p.createErr
	}
	return p.createOut, nil
}

func (p *serviceProvider) GetByShortID(_ context.Context, shortID string) (*provider.StatusOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shortIDs = append(p.shortIDs, shortID)
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	body, _ := json.Marshal(p.record)
	return &provider.StatusOutput{Record: p.record, Body: body}, nil
}

type serviceFixture struct {
	invoices     *serviceInvoiceStore
	transactions *serviceTransactionStore
	ledger       *serviceLedger
	svc          *GatewayService
}

func testInvoice() *entity.Invoice {
	return &entity.Invoice{
		ID:             42,
		ClientID:       7,
		Serie:          "INV",
		Nr:             "42",
		Hash:           "hash-42",
		Status:         entity.InvoiceStatusUnpaid,
		Currency:       "USD",
		BuyerEmail:     "buyer@example.com",
		BuyerFirstName: "Jane",
		BuyerLastName:  "Doe",
		Notes:          "shortId: xyz",
		Items:          []entity.InvoiceItem{{ID: 1, InvoiceID: 42, Title: "Hosting", Price: 10, Quantity: 1}},
	}
}

func newServiceFixture(t *testing.T, p provider.Provider, invoices ...*entity.Invoice) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		invoices: newServiceInvoiceStore(invoices...),
		transactions: &serviceTransactionStore{items: map[uint64]*entity.Transaction{
			5: {ID: 5, Status: "received"},
		}},
	}
	f.ledger = &serviceLedger{transactions: f.transactions}
	svc, err := NewGatewayService(
		f.invoices,
		f.transactions,
		f.ledger,
		NewPublicURLs("https://billing.example/", "https://gateway.example"),
		p,
		GatewayConfig{NotifyURL: "https://billing.example/ipn/nicky"},
	)
	if err != nil {
		t.Fatalf("new gateway service failed: %v", err)
	}
	f.svc = svc
	return f
}

func processRequest() *types.ProcessTransactionRequest {
	return &types.ProcessTransactionRequest{
		TransactionID: 5,
		InvoiceID:     42,
		RemoteIP:      "203.0.113.9",
	}
}

func TestNewGatewayServiceRequiresNotifyURL(t *testing.T) {
	_, err := NewGatewayService(nil, nil, nil, NewPublicURLs("", ""), &serviceProvider{}, GatewayConfig{})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestCreatePaymentLinkEndToEnd(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &captured); err != nil {
			t.Fatalf("invalid payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"bill":{"shortId":"xyz"}}`))
	}))
	defer srv.Close()

	p, err := provider.NewNickyProvider(provider.NickyConfig{AuthToken: "token", APIBaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("new provider failed: %v", err)
	}
	invoice := testInvoice()
	invoice.Notes = ""
	f := newServiceFixture(t, p, invoice)

	link, err := f.svc.CreatePaymentLink(context.Background(), 42)
	if err != nil {
		t.Fatalf("create payment link failed: %v", err)
	}

	if captured["blockchainAssetId"] != "USD.USD" {
		t.Fatalf("unexpected asset id: %v", captured["blockchainAssetId"])
	}
	if captured["amountExpectedNative"] != 10.0 {
		t.Fatalf("unexpected amount: %v", captured["amountExpectedNative"])
	}
	if captured["successUrl"] != "https://billing.example/ipn/nicky" || captured["cancelUrl"] != "https://billing.example/invoice/" {
		t.Fatalf("unexpected urls: success=%v cancel=%v", captured["successUrl"], captured["cancelUrl"])
	}
	bill := captured["billDetails"].(map[string]any)
	if bill["description"] != "Payment for invoice INV00042" {
		t.Fatalf("unexpected description: %v", bill["description"])
	}
	requester := captured["requester"].(map[string]any)
	if requester["name"] != "Jane Doe" || requester["email"] != "buyer@example.com" {
		t.Fatalf("unexpected requester: %v", requester)
	}

	if f.invoices.notes[42] != "shortId: xyz" {
		t.Fatalf("unexpected invoice note: %q", f.invoices.notes[42])
	}
	if link.PaymentURL != "https://pay.nicky.me/home?paymentId=xyz" {
		t.Fatalf("unexpected payment url: %s", link.PaymentURL)
	}
}

func TestCreatePaymentLinkUnsupportedCurrencyFailsBeforeNetwork(t *testing.T) {
	p := &serviceProvider{}
	invoice := testInvoice()
	invoice.Currency = "GBP"
	f := newServiceFixture(t, p, invoice)

	_, err := f.svc.CreatePaymentLink(context.Background(), 42)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if p.createCalls != 0 {
		t.Fatalf("expected no provider call, got %d", p.createCalls)
	}
}

func TestCreatePaymentLinkInvoiceNotFound(t *testing.T) {
	f := newServiceFixture(t, &serviceProvider{})
	if _, err := f.svc.CreatePaymentLink(context.Background(), 99); !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
}

func TestCreatePaymentLinkUpstreamFailureKeepsNote(t *testing.T) {
	p := &serviceProvider{createErr: &provider.UpstreamError{Op: "create payment request", StatusCode: 500, Reason: "unexpected response status"}}
	f := newServiceFixture(t, p, testInvoice())

	_, err := f.svc.CreatePaymentLink(context.Background(), 42)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	var upstreamErr *provider.UpstreamError
	if !errors.As(err, &upstreamErr) || upstreamErr.StatusCode != 500 {
		t.Fatalf("expected wrapped upstream error with status, got %v", err)
	}
	if _, ok := f.invoices.notes[42]; ok {
		t.Fatal("expected invoice note not to be written")
	}
}

func TestProcessTransactionPendingDoesNotMutate(t *testing.T) {
	for _, status := range []types.ProviderStatus{types.ProviderStatusNone, types.ProviderStatusPaymentPending, types.ProviderStatusPaymentValidationRequired} {
		p := &serviceProvider{record: &provider.StatusRecord{ID: "pr-1", Status: status, Bill: provider.Bill{ShortID: "xyz"}}}
		f := newServiceFixture(t, p, testInvoice())

		outcome, err := f.svc.ProcessTransaction(context.Background(), processRequest())
		if err != nil {
			t.Fatalf("process %s failed: %v", status, err)
		}
		if outcome.Kind != OutcomePending {
			t.Fatalf("expected pending outcome for %s, got %v", status, outcome.Kind)
		}
		if outcome.CheckURL != "https://gateway.example/gateway/transactions/5?invoice_id=42" {
			t.Fatalf("unexpected check url: %s", outcome.CheckURL)
		}
		if f.transactions.updates != 0 || f.ledger.credits() != 0 {
			t.Fatalf("expected no host mutation for %s", status)
		}
		if len(p.shortIDs) != 1 || p.shortIDs[0] != "xyz" {
			t.Fatalf("unexpected short id lookups: %v", p.shortIDs)
		}
	}
}

func TestProcessTransactionCanceledRedirectsToProviderCancelURL(t *testing.T) {
	p := &serviceProvider{record: &provider.StatusRecord{Status: types.ProviderStatusCanceled, CancelURL: "https://x/cancel"}}
	f := newServiceFixture(t, p, testInvoice())

	outcome, err := f.svc.ProcessTransaction(context.Background(), processRequest())
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if outcome.Kind != OutcomeCanceled || outcome.RedirectURL != "https://x/cancel" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if f.transactions.updates != 0 || f.ledger.credits() != 0 {
		t.Fatal("expected no host mutation on cancel")
	}
}

func TestProcessTransactionFinishedCreditsAndSettlesOnce(t *testing.T) {
	p := &serviceProvider{record: &provider.StatusRecord{ID: "pr-1", Status: types.ProviderStatusFinished, AmountNative: 10}}
	f := newServiceFixture(t, p, testInvoice())

	outcome, err := f.svc.ProcessTransaction(context.Background(), processRequest())
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if outcome.Kind != OutcomeSettled || outcome.RedirectURL != "https://billing.example/invoice/hash-42" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	if f.ledger.credits() != 1 {
		t.Fatalf("expected one booked payment, got %d", f.ledger.credits())
	}
	applied := f.ledger.applied[0]
	if applied.Amount != 10 || applied.TransactionID != 5 || applied.InvoiceID != 42 || applied.FundsDescription != "Nicky transaction pr-1" {
		t.Fatalf("unexpected payment application: %+v", applied)
	}
	if len(f.ledger.batches) != 1 || f.ledger.batches[0] != 42 {
		t.Fatalf("expected batch settlement for an unlinked transaction, got paid=%v batches=%v", f.ledger.paid, f.ledger.batches)
	}

	tx := f.transactions.items[5]
	if tx.Status != string(types.TransactionStatusSucceeded) {
		t.Fatalf("expected succeeded, got %s", tx.Status)
	}
	if tx.TxnID != "pr-1" || tx.TxnStatus != "Finished" || tx.Amount != 10 || tx.Currency != "USD" || tx.Type != entity.TransactionTypePayment {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if tx.IP != "203.0.113.9" || tx.UpdatedAt.IsZero() || tx.InvoiceID == nil || *tx.InvoiceID != 42 {
		t.Fatalf("unexpected transaction stamps: %+v", tx)
	}

	_, err = f.svc.ProcessTransaction(context.Background(), processRequest())
	if !errors.Is(err, ErrReconciliation) {
		t.Fatalf("expected ErrReconciliation on replay, got %v", err)
	}
	if f.ledger.credits() != 1 {
		t.Fatalf("expected no re-credit on replay, got %d", f.ledger.credits())
	}
	if f.transactions.items[5].Status != entity.TransactionStatusProcessed {
		t.Fatalf("expected processed after replay, got %s", f.transactions.items[5].Status)
	}
}

func TestProcessTransactionAlreadyProcessedIsReconciliationError(t *testing.T) {
	p := &serviceProvider{record: &provider.StatusRecord{ID: "pr-1", Status: types.ProviderStatusFinished, AmountNative: 10}}
	f := newServiceFixture(t, p, testInvoice())
	f.transactions.items[5].Status = entity.TransactionStatusProcessed

	_, err := f.svc.ProcessTransaction(context.Background(), processRequest())
	if !errors.Is(err, ErrReconciliation) {
		t.Fatalf("expected ErrReconciliation, got %v", err)
	}
	if f.ledger.credits() != 0 {
		t.Fatal("expected no funds credited")
	}
	tx := f.transactions.items[5]
	if tx.TxnStatus != entity.TransactionTxnStatusError || tx.Error == nil || *tx.Error == "" {
		t.Fatalf("expected error bookkeeping on transaction, got %+v", tx)
	}
}

func TestProcessTransactionUnknownStatusFails(t *testing.T) {
	p := &serviceProvider{record: &provider.StatusRecord{Status: "Refunded"}}
	f := newServiceFixture(t, p, testInvoice())

	_, err := f.svc.ProcessTransaction(context.Background(), processRequest())
	if !errors.Is(err, ErrReconciliation) {
		t.Fatalf("expected ErrReconciliation, got %v", err)
	}
	tx := f.transactions.items[5]
	if tx.Status != entity.TransactionStatusProcessed || tx.TxnStatus != entity.TransactionTxnStatusError {
		t.Fatalf("expected transaction marked error/processed, got %+v", tx)
	}
}

func TestProcessTransactionMissingTransaction(t *testing.T) {
	p := &serviceProvider{record: &provider.StatusRecord{Status: types.ProviderStatusFinished}}
	f := newServiceFixture(t, p, testInvoice())
	req := processRequest()
	req.TransactionID = 404

	if _, err := f.svc.ProcessTransaction(context.Background(), req); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestProcessTransactionInputErrors(t *testing.T) {
	noNote := testInvoice()
	noNote.Notes = ""
	badNote := testInvoice()
	badNote.ID = 43
	badNote.Notes = "paid by wire"

	p := &serviceProvider{}
	f := newServiceFixture(t, p, noNote, badNote)

	for _, invoiceID := range []uint64{42, 43, 99} {
		req := processRequest()
		req.InvoiceID = invoiceID
		if _, err := f.svc.ProcessTransaction(context.Background(), req); !errors.Is(err, ErrInput) {
			t.Fatalf("expected ErrInput for invoice %d, got %v", invoiceID, err)
		}
	}
	if len(p.shortIDs) != 0 {
		t.Fatal("expected no provider lookups on input errors")
	}
}

func TestProcessTransactionUpstreamError(t *testing.T) {
	p := &serviceProvider{statusErr: &provider.UpstreamError{Op: "get payment request", Reason: "unexpected response status", StatusCode: 503}}
	f := newServiceFixture(t, p, testInvoice())

	if _, err := f.svc.ProcessTransaction(context.Background(), processRequest()); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if f.transactions.updates != 0 {
		t.Fatal("expected no transaction update on upstream error")
	}
}

func TestProcessTransactionLinkedTransactionSettlesItsInvoice(t *testing.T) {
	p := &serviceProvider{record: &provider.StatusRecord{ID: "pr-1", Status: types.ProviderStatusFinished, AmountNative: 10}}
	f := newServiceFixture(t, p, testInvoice())
	invoiceID := uint64(42)
	f.transactions.items[5].InvoiceID = &invoiceID

	if _, err := f.svc.ProcessTransaction(context.Background(), processRequest()); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if len(f.ledger.paid) != 1 || f.ledger.paid[0] != 42 || len(f.ledger.batches) != 0 {
		t.Fatalf("expected single invoice settlement, got paid=%v batches=%v", f.ledger.paid, f.ledger.batches)
	}
}

func TestProcessTransactionLedgerFailureWritesNothingAndCanRetry(t *testing.T) {
	p := &serviceProvider{record: &provider.StatusRecord{ID: "pr-1", Status: types.ProviderStatusFinished, AmountNative: 10}}
	f := newServiceFixture(t, p, testInvoice())
	f.ledger.failNext = errors.New("deadlock found when trying to get lock")

	if _, err := f.svc.ProcessTransaction(context.Background(), processRequest()); err == nil {
		t.Fatal("expected ledger error")
	}
	if f.ledger.credits() != 0 || f.transactions.updates != 0 {
		t.Fatalf("expected nothing booked, credits=%d updates=%d", f.ledger.credits(), f.transactions.updates)
	}
	if f.transactions.items[5].Status != "received" {
		t.Fatalf("expected transaction untouched, got %+v", f.transactions.items[5])
	}

	if _, err := f.svc.ProcessTransaction(context.Background(), processRequest()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if f.ledger.credits() != 1 {
		t.Fatalf("expected exactly one credit after retry, got %d", f.ledger.credits())
	}
}

func TestProcessTransactionConcurrentPollsCreditOnce(t *testing.T) {
	p := &serviceProvider{record: &provider.StatusRecord{ID: "pr-1", Status: types.ProviderStatusFinished, AmountNative: 10}}
	f := newServiceFixture(t, p, testInvoice())

	const pollers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ProcessTransaction(context.Background(), processRequest())
			if err == nil {
				return
			}
			if !errors.Is(err, ErrReconciliation) {
				t.Errorf("expected ErrReconciliation, got %v", err)
			}
			mu.Lock()
			failed++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if f.ledger.credits() != 1 {
		t.Fatalf("expected one credit, got %d", f.ledger.credits())
	}
	if failed != pollers-1 {
		t.Fatalf("expected %d rejected polls, got %d", pollers-1, failed)
	}
}

func TestProcessTransactionRejectsProviderPaymentBookedOnAnotherTransaction(t *testing.T) {
	p := &serviceProvider{record: &provider.StatusRecord{ID: "pr-1", Status: types.ProviderStatusFinished, AmountNative: 10}}
	f := newServiceFixture(t, p, testInvoice())
	f.transactions.items[6] = &entity.Transaction{ID: 6, Status: "received"}

	if _, err := f.svc.ProcessTransaction(context.Background(), processRequest()); err != nil {
		t.Fatalf("first transaction failed: %v", err)
	}

	req := processRequest()
	req.TransactionID = 6
	_, err := f.svc.ProcessTransaction(context.Background(), req)
	if !errors.Is(err, ErrReconciliation) {
		t.Fatalf("expected ErrReconciliation, got %v", err)
	}
	if f.ledger.credits() != 1 {
		t.Fatalf("expected a single credit, got %d", f.ledger.credits())
	}
	if f.transactions.items[6].Status != "received" {
		t.Fatalf("expected second transaction untouched, got %+v", f.transactions.items[6])
	}
}

func TestProcessTransactionRejectsTransactionOfAnotherInvoice(t *testing.T) {
	p := &serviceProvider{record: &provider.StatusRecord{ID: "pr-1", Status: types.ProviderStatusFinished, AmountNative: 10}}
	f := newServiceFixture(t, p, testInvoice())
	otherInvoice := uint64(43)
	f.transactions.items[5].InvoiceID = &otherInvoice

	_, err := f.svc.ProcessTransaction(context.Background(), processRequest())
	if !errors.Is(err, ErrReconciliation) {
		t.Fatalf("expected ErrReconciliation, got %v", err)
	}
	tx := f.transactions.items[5]
	if f.ledger.credits() != 0 || f.transactions.updates != 0 {
		t.Fatal("expected no host mutation")
	}
	if tx.InvoiceID == nil || *tx.InvoiceID != 43 || tx.Status != "received" {
		t.Fatalf("expected stored link kept, got %+v", tx)
	}
}

func TestCheckStatusIsReadOnly(t *testing.T) {
	p := &serviceProvider{record: &provider.StatusRecord{Status: types.ProviderStatusFinished}}
	f := newServiceFixture(t, p, testInvoice())

	record, err := f.svc.CheckStatus(context.Background(), 42)
	if err != nil {
		t.Fatalf("check status failed: %v", err)
	}
	if record.Status != types.ProviderStatusFinished {
		t.Fatalf("unexpected status: %s", record.Status)
	}
	if f.transactions.updates != 0 || f.ledger.credits() != 0 {
		t.Fatal("expected no host mutation")
	}
}
