package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/factory"
	"github.com/vibast-solutions/ms-go-payments-nicky/app/service"
)

var invoiceID uint64

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Run invoice payment commands",
}

var invoiceLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Create a Nicky payment request for an invoice and print its payment URL",
	Run: func(cmd *cobra.Command, _ []string) {
		runInvoiceCommand("invoice_link", func(s *service.GatewayService, ctx context.Context) error {
			link, err := s.CreatePaymentLink(ctx, invoiceID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link.PaymentURL)
			return nil
		})
	},
}

var invoiceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the Nicky payment status of an invoice without changing any records",
	Run: func(cmd *cobra.Command, _ []string) {
		runInvoiceCommand("invoice_status", func(s *service.GatewayService, ctx context.Context) error {
			record, err := s.CheckStatus(ctx, invoiceID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%.2f\n", record.Bill.ShortID, record.Status, record.AmountNative)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(invoiceCmd)
	invoiceCmd.AddCommand(invoiceLinkCmd)
	invoiceCmd.AddCommand(invoiceStatusCmd)

	invoiceCmd.PersistentFlags().Uint64Var(&invoiceID, "id", 0, "Billing host invoice id")
	_ = invoiceCmd.MarkPersistentFlagRequired("id")
}

func runInvoiceCommand(name string, fn func(s *service.GatewayService, ctx context.Context) error) {
	_, gatewayService, cleanup := mustCreateGatewayService()
	defer cleanup()

	ctx := factory.WithRequestID(context.Background(), uuid.NewString())
	runJob(name, func() error { return fn(gatewayService, ctx) })
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("invoice_id", invoiceID).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("invoice_id", invoiceID).WithField("latency", latency.String()).Info("job_completed")
}
