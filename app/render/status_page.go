package render

import (
	"bytes"
	"html/template"
	"time"
)

// AutoRefreshDelay is how long the pending page waits before reloading itself.
const AutoRefreshDelay = 15 * time.Minute

// StatusPageView is the data shown on the pending payment page.
type StatusPageView struct {
	ShortID          string
	InvoiceReference string
	Description      string
	CreatedDate      string
	Status           string
	CheckURL         string
	AutoRefresh      bool
}

func (v StatusPageView) RefreshMillis() int64 {
	return AutoRefreshDelay.Milliseconds()
}

const statusPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Nicky Payment Status</title>
  <style>
    body {
      font-family: Arial, sans-serif;
      background-color: #f4f4f9;
      color: #333;
      margin: 0;
      padding: 20px;
      text-align: center;
    }
    .container {
      max-width: 600px;
      margin: 0 auto;
      background: #fff;
      padding: 20px;
      border-radius: 10px;
      box-shadow: 0 2px 10px rgba(0, 0, 0, 0.1);
    }
    .status {
      padding: 15px;
      margin: 20px 0;
      font-size: 18px;
      font-weight: bold;
      border-radius: 5px;
    }
    .pending {
      background-color: #fff3cd;
      color: #856404;
    }
    a.link { word-break: break-all; }
    button {
      margin-top: 20px;
      padding: 10px 20px;
      font-size: 16px;
      border: none;
      border-radius: 5px;
      background-color: #007bff;
      color: white;
      cursor: pointer;
    }
  </style>
  <script>
    function refreshPage() {
      location.reload();
    }
    {{- if .AutoRefresh}}
    document.addEventListener("DOMContentLoaded", function() {
      setTimeout(refreshPage, {{.RefreshMillis}});
    });
    {{- end}}
  </script>
</head>
<body>
  <div class="container">
    <h1>Nicky Payment Status</h1>
    <p><strong>Short ID:</strong> {{.ShortID}}</p>
    <p><strong>Invoice Reference:</strong> {{.InvoiceReference}}</p>
    <p><strong>Description:</strong> {{.Description}}</p>
    <p><strong>Created Date:</strong> {{.CreatedDate}}</p>
    <div class="status pending">Status: {{.Status}}</div>
    <p>
      <strong>Payment Delay Notice:</strong> Cryptocurrency payments can take additional time to confirm.
      Please copy and save this link to check the status later:
    </p>
    <p><a class="link" href="{{.CheckURL}}" target="_blank">{{.CheckURL}}</a></p>
    <button onclick="refreshPage()">Refresh Now</button>
  </div>
</body>
</html>
`

const paymentFormTemplate = `<a href="{{.}}" class="btn btn-success btn-lg" role="button" style="text-decoration: none;">
    Proceed to Payment
</a>
`

var (
	statusPage  = template.Must(template.New("status").Parse(statusPageTemplate))
	paymentForm = template.Must(template.New("form").Parse(paymentFormTemplate))
)

func RenderStatusPage(view StatusPageView) (string, error) {
	var buf bytes.Buffer
	if err := statusPage.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPaymentForm renders the "Proceed to Payment" button embedded in the invoice page.
func RenderPaymentForm(paymentURL string) (string, error) {
	var buf bytes.Buffer
	if err := paymentForm.Execute(&buf, paymentURL); err != nil {
		return "", err
	}
	return buf.String(), nil
}
