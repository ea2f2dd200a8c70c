package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vibast-solutions/ms-go-payments-nicky/app/entity"
)

const shortIDNotePrefix = "shortId: "

var (
	shortIDPattern     = regexp.MustCompile(`shortId: (\S+)`)
	titlePrefixPattern = regexp.MustCompile(`^(Payment for invoice \S+).*`)
)

// ExtractShortID reads the provider short id stored in an invoice note.
func ExtractShortID(notes string) (string, error) {
	matches := shortIDPattern.FindStringSubmatch(notes)
	if len(matches) < 2 {
		return "", fmt.Errorf("%w: invalid or missing shortId in the invoice notes", ErrInput)
	}
	return matches[1], nil
}

func ShortIDNote(shortID string) string {
	return shortIDNotePrefix + shortID
}

// InvoiceTitle names the payment after the invoice number, and after its single
// item when there is exactly one.
func InvoiceTitle(invoice *entity.Invoice) string {
	number := invoice.Serie + zeroPad(invoice.Nr, 5)
	if len(invoice.Items) == 1 {
		return fmt.Sprintf("Payment for invoice %s [%s]", number, invoice.Items[0].Title)
	}
	return fmt.Sprintf("Payment for invoice %s", number)
}

func paymentDescription(invoice *entity.Invoice) string {
	return titlePrefixPattern.ReplaceAllString(InvoiceTitle(invoice), "$1")
}

func buyerName(invoice *entity.Invoice) string {
	return strings.TrimSpace(invoice.BuyerFirstName + " " + invoice.BuyerLastName)
}

func zeroPad(value string, width int) string {
	if len(value) >= width {
		return value
	}
	return strings.Repeat("0", width-len(value)) + value
}
