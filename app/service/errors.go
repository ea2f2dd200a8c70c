package service

import (
	"errors"

	"github.com/vibast-solutions/ms-go-payments-nicky/app/provider"
)

var (
	ErrConfiguration       = errors.New("gateway is not fully configured")
	ErrInput               = errors.New("invalid input")
	ErrUpstream            = provider.ErrUpstream
	ErrReconciliation      = errors.New("transaction could not be reconciled")
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)
