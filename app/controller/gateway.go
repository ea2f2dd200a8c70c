package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/factory"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/mapper"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/render"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/service"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/types"
)

const processingErrorMessage = "There was an error when processing the transaction"

type GatewayController struct {
	gatewayService *service.GatewayService
	logger         logrus.FieldLogger
}

func NewGatewayController(gatewayService *service.GatewayService) *GatewayController {
	return &GatewayController{
		gatewayService: gatewayService,
		logger:         factory.NewModuleLogger("gateway-controller"),
	}
}

func (c *GatewayController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

// PaymentForm renders the "Proceed to Payment" button for the host invoice page.
func (c *GatewayController) PaymentForm(ctx echo.Context) error {
	link, err := c.createPaymentLink(ctx)
	if err != nil || link == nil {
		return err
	}

	form, err := render.RenderPaymentForm(link.PaymentURL)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Render payment form failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
	return ctx.HTML(http.StatusOK, form)
}

func (c *GatewayController) CreatePaymentLink(ctx echo.Context) error {
	link, err := c.createPaymentLink(ctx)
	if err != nil || link == nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, mapper.PaymentLinkToResponse(link))
}

func (c *GatewayController) createPaymentLink(ctx echo.Context) (*service.PaymentLink, error) {
	req, err := types.NewInvoiceRequestFromContext(ctx)
	if err != nil {
		return nil, c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return nil, c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	link, err := c.gatewayService.CreatePaymentLink(ctx.Request().Context(), req.InvoiceID)
	if err != nil {
		l := factory.LoggerWithContext(c.logger, ctx).WithError(err).WithField("invoice_id", req.InvoiceID)
		switch {
		case errors.Is(err, service.ErrInvoiceNotFound):
			return nil, c.writeError(ctx, http.StatusNotFound, "invoice not found")
		case errors.Is(err, service.ErrConfiguration):
			l.Error("Nicky gateway is not fully configured")
			return nil, c.writeError(ctx, http.StatusInternalServerError, "payment gateway is not configured")
		case errors.Is(err, service.ErrUpstream):
			return nil, c.writeError(ctx, http.StatusBadGateway, "payment provider request failed")
		default:
			l.Error("Create payment link failed")
			return nil, c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return link, nil
}

// ProcessTransaction is hit by the payer returning from the provider and by
// the status page re-checks.
func (c *GatewayController) ProcessTransaction(ctx echo.Context) error {
	req, err := types.NewProcessTransactionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	outcome, err := c.gatewayService.ProcessTransaction(ctx.Request().Context(), req)
	if err != nil {
		l := factory.LoggerWithContext(c.logger, ctx).WithError(err).
			WithField("transaction_id", req.TransactionID).
			WithField("invoice_id", req.InvoiceID)
		switch {
		case errors.Is(err, service.ErrInput):
			return c.writeError(ctx, http.StatusBadRequest, "no payment reference found for this invoice")
		case errors.Is(err, service.ErrTransactionNotFound):
			return c.writeError(ctx, http.StatusNotFound, "transaction not found")
		case errors.Is(err, service.ErrUpstream):
			return c.writeError(ctx, http.StatusBadGateway, "Error checking invoice status, please try again later")
		case errors.Is(err, service.ErrReconciliation):
			l.Warn("Transaction reconciliation failed")
			return c.writeError(ctx, http.StatusConflict, processingErrorMessage)
		default:
			l.Error("Process transaction failed")
			return c.writeError(ctx, http.StatusInternalServerError, processingErrorMessage)
		}
	}

	switch outcome.Kind {
	case service.OutcomePending:
		page, err := render.RenderStatusPage(mapper.StatusRecordToView(outcome.Record, outcome.CheckURL))
		if err != nil {
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Render status page failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
		return ctx.HTML(http.StatusOK, page)
	default:
		return ctx.Redirect(http.StatusFound, outcome.RedirectURL)
	}
}

func (c *GatewayController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
