package mapper

import (
	"github.com/vibast-solutions/ms-go-payments-nicky/app/provider"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/render"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/service"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/types"
)

func StatusRecordToView(record *provider.StatusRecord, checkURL string) render.StatusPageView {
	if record == nil {
		return render.StatusPageView{CheckURL: checkURL}
	}

	return render.StatusPageView{
		ShortID:          record.Bill.ShortID,
		InvoiceReference: record.Bill.InvoiceReference,
		Description:      record.Bill.Description,
		CreatedDate:      record.CreatedDate,
		Status:           string(record.Status),
		CheckURL:         checkURL,
		AutoRefresh:      record.Status == types.ProviderStatusPaymentPending,
	}
}

func PaymentLinkToResponse(link *service.PaymentLink) *types.PaymentLinkResponse {
	if link == nil {
		return nil
	}

	return &types.PaymentLinkResponse{
		InvoiceID:  link.InvoiceID,
		ShortID:    link.ShortID,
		PaymentURL: link.PaymentURL,
	}
}
