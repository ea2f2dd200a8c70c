package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/controller"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/factory"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/httpclient"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/provider"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/repository"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/service"
	"github.com/vibast-solutions/ms-go-payments-nicky/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server exposing the payment form, payment links and the payer return endpoint.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, gatewayService, cleanup := mustCreateGatewayService()
	defer cleanup()

	gatewayController := controller.NewGatewayController(gatewayService)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(gatewayController, echoInternalAuthMiddleware.RequireInternalAccess(cfg.App.ServiceName))

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

// setupHTTPServer mounts the admin routes behind internalAccess. The
// transaction route stays public because payers land on it from the provider.
func setupHTTPServer(gatewayController *controller.GatewayController, internalAccess echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(ensureRequestID())

	e.GET("/health", gatewayController.Health)

	invoices := e.Group("/gateway/invoices", internalAccess)
	invoices.GET("/:id/form", gatewayController.PaymentForm)
	invoices.POST("/:id/link", gatewayController.CreatePaymentLink)

	transactions := e.Group("/gateway/transactions")
	transactions.GET("/:id", gatewayController.ProcessTransaction)
	transactions.POST("/:id", gatewayController.ProcessTransaction)

	return e
}

// ensureRequestID keeps the caller's X-Request-ID or issues a new one, and
// carries it into the request context for service logs.
func ensureRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				requestID = uuid.NewString()
				ctx.Request().Header.Set(echo.HeaderXRequestID, requestID)
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)

			req := ctx.Request()
			ctx.SetRequest(req.WithContext(factory.WithRequestID(req.Context(), requestID)))
			return next(ctx)
		}
	}
}

func mustCreateGatewayService() (*config.Config, *service.GatewayService, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	nickyClient := httpclient.New()
	nickyProvider, err := provider.NewNickyProvider(provider.NickyConfig{
		AuthToken:     cfg.Nicky.AuthToken,
		APIBaseURL:    cfg.Nicky.APIBaseURL,
		PayBaseURL:    cfg.Nicky.PayBaseURL,
		CreateTimeout: cfg.Nicky.CreateTimeout,
		StatusTimeout: cfg.Nicky.StatusTimeout,
	}, nickyClient)
	if err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to initialize Nicky provider")
	}

	gatewayService, err := service.NewGatewayService(
		repository.NewInvoiceRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewSettlementRepository(db),
		service.NewPublicURLs(cfg.App.PublicBaseURL, cfg.App.GatewayBaseURL),
		nickyProvider,
		service.GatewayConfig{
			NotifyURL: cfg.Nicky.NotifyURL,
			Debug:     cfg.App.Debug,
		},
	)
	if err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to initialize gateway service")
	}

	cleanup := func() {
		nickyClient.CloseIdleConnections()
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, gatewayService, cleanup
}
