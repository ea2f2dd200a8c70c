package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/httpclient"
)

const (
	DefaultAPIBaseURL = "https://api-public.pay.nicky.me/"
	DefaultPayBaseURL = "https://pay.nicky.me/home"

	APIKeyHeader = "x-api-key"

	createPath = "api/public/PaymentRequestPublicApi/create"
	statusPath = "api/public/PaymentRequestPublicApi/get-by-short-id"
)

var ErrAuthTokenMissing = errors.New("nicky auth token is not configured")

type doer interface {
	Do(ctx context.Context, req httpclient.Request) *httpclient.Response
}

type NickyConfig struct {
	AuthToken     string
	APIBaseURL    string
	PayBaseURL    string
	CreateTimeout time.Duration
	StatusTimeout time.Duration
}

type NickyProvider struct {
	cfg    NickyConfig
	client doer
}

func NewNickyProvider(cfg NickyConfig, client doer) (*NickyProvider, error) {
	cfg.AuthToken = strings.TrimSpace(cfg.AuthToken)
	if cfg.AuthToken == "" {
		return nil, ErrAuthTokenMissing
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if !strings.HasSuffix(cfg.APIBaseURL, "/") {
		cfg.APIBaseURL += "/"
	}
	if strings.TrimSpace(cfg.PayBaseURL) == "" {
		cfg.PayBaseURL = DefaultPayBaseURL
	}
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = 10 * time.Second
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = httpclient.DefaultTimeout
	}
	if client == nil {
		client = httpclient.New()
	}

	return &NickyProvider{cfg: cfg, client: client}, nil
}

func (p *NickyProvider) CreatePaymentRequest(ctx context.Context, req *PaymentRequest) (*CreateOutput, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp := p.client.Do(ctx, httpclient.Request{
		URL:     p.cfg.APIBaseURL + createPath,
		Body:    body,
		Headers: p.headers(),
		Timeout: p.cfg.CreateTimeout,
	})
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{
			Op:         "create payment request",
			StatusCode: resp.StatusCode,
			Reason:     "unexpected response status",
			Body:       string(resp.Body),
			Trace:      resp.Trace,
		}
	}

	var payload struct {
		Bill struct {
			ShortID string `json:"shortId"`
		} `json:"bill"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil || strings.TrimSpace(payload.Bill.ShortID) == "" {
		return nil, &UpstreamError{
			Op:         "create payment request",
			StatusCode: resp.StatusCode,
			Reason:     "shortId is missing",
			Body:       string(resp.Body),
			Trace:      resp.Trace,
		}
	}

	shortID := strings.TrimSpace(payload.Bill.ShortID)
	return &CreateOutput{
		ShortID:    shortID,
		PaymentURL: p.PaymentURL(shortID),
	}, nil
}

func (p *NickyProvider) GetByShortID(ctx context.Context, shortID string) (*StatusOutput, error) {
	resp := p.client.Do(ctx, httpclient.Request{
		URL:     p.cfg.APIBaseURL + statusPath + "?shortId=" + url.QueryEscape(shortID),
		Headers: p.headers(),
		Timeout: p.cfg.StatusTimeout,
	})
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{
			Op:         "get payment request",
			StatusCode: resp.StatusCode,
			Reason:     "unexpected response status",
			Body:       string(resp.Body),
			Trace:      resp.Trace,
		}
	}

	var record StatusRecord
	if err := json.Unmarshal(resp.Body, &record); err != nil {
		return nil, &UpstreamError{
			Op:         "get payment request",
			StatusCode: resp.StatusCode,
			Reason:     "invalid response body",
			Body:       string(resp.Body),
			Trace:      resp.Trace,
		}
	}

	return &StatusOutput{
		Record: &record,
		Body:   resp.Body,
	}, nil
}

// PaymentURL is the hosted payment page the payer is redirected to.
func (p *NickyProvider) PaymentURL(shortID string) string {
	return p.cfg.PayBaseURL + "?paymentId=" + url.QueryEscape(shortID)
}

func (p *NickyProvider) headers() map[string]string {
	return map[string]string{
		APIKeyHeader:   p.cfg.AuthToken,
		"Content-Type": "application/json",
		"X-Request-ID": uuid.NewString(),
	}
}
