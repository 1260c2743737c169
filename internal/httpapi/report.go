package httpapi

import (
	"bytes"
	"encoding/csv"
	"html/template"
	"strconv"
	"time"

	"tajautos/backend/internal/domain"
	"tajautos/backend/internal/invoice"
)

func reportToCSV(report domain.Report) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "start_date", report.StartDate},
		{"summary", "end_date", report.EndDate},
		{"summary", "sales_count", strconv.Itoa(report.SalesCount)},
		{"summary", "revenue_cents", strconv.FormatInt(report.RevenueCents, 10)},
		{"summary", "cash_revenue_cents", strconv.FormatInt(report.CashRevenueCents, 10)},
		{"summary", "credit_revenue_cents", strconv.FormatInt(report.CreditRevenueCents, 10)},
		{"summary", "purchase_count", strconv.Itoa(report.PurchaseCount)},
		{"summary", "purchase_cost_cents", strconv.FormatInt(report.PurchaseCostCents, 10)},
		{"summary", "profit_cents", strconv.FormatInt(report.ProfitCents, 10)},
		{"summary", "profit_basis", report.ProfitBasis},
		{"summary", "payment_count", strconv.Itoa(report.PaymentCount)},
		{"summary", "collections_cents", strconv.FormatInt(report.CollectionsCents, 10)},
	}
	for _, sale := range report.Sales {
		rows = append(rows, []string{"sale", sale.ID, strconv.FormatInt(sale.TotalCents, 10)})
	}
	for _, purchase := range report.Purchases {
		rows = append(rows, []string{"purchase", purchase.ID, strconv.FormatInt(purchase.TotalCents, 10)})
	}
	for _, payment := range report.Payments {
		rows = append(rows, []string{"payment", payment.ID, strconv.FormatInt(payment.AmountCents, 10)})
	}

	if err := writer.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var reportHTMLTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"money": func(prefix string, cents int64) string { return invoice.FormatMoney(prefix, cents) },
	"stamp": func(loc *time.Location, at time.Time) string { return at.In(loc).Format("02 Jan 2006 15:04") },
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>{{.Shop}} report {{.Report.StartDate}} to {{.Report.EndDate}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>{{.Shop}}</h2>
  <p>Report {{.Report.StartDate}} to {{.Report.EndDate}}</p>
  <p>Sales: {{.Report.SalesCount}} | Revenue: {{money .Prefix .Report.RevenueCents}} (cash {{money .Prefix .Report.CashRevenueCents}}, credit {{money .Prefix .Report.CreditRevenueCents}})</p>
  <p>Purchases: {{.Report.PurchaseCount}} | Spend: {{money .Prefix .Report.PurchaseCostCents}}</p>
  <p>Profit (revenue minus purchases): {{money .Prefix .Report.ProfitCents}}</p>
  <p>Collections: {{.Report.PaymentCount}} | {{money .Prefix .Report.CollectionsCents}}</p>

  <h3>Sales</h3>
  <table>
    <thead><tr><th>Time</th><th>Sale</th><th>Type</th><th>Customer</th><th>Total</th></tr></thead>
    <tbody>{{range .Report.Sales}}<tr><td>{{stamp $.Loc .CreatedAt}}</td><td>{{.ID}}</td><td>{{.PaymentType}}</td><td>{{.CustomerName}}</td><td class="num">{{money $.Prefix .TotalCents}}</td></tr>{{end}}</tbody>
  </table>

  <h3>Purchases</h3>
  <table>
    <thead><tr><th>Time</th><th>Vendor</th><th>Part</th><th>Qty</th><th>Total</th></tr></thead>
    <tbody>{{range .Report.Purchases}}<tr><td>{{stamp $.Loc .CreatedAt}}</td><td>{{.VendorName}}</td><td>{{.ProductName}}</td><td class="num">{{.Qty}}</td><td class="num">{{money $.Prefix .TotalCents}}</td></tr>{{end}}</tbody>
  </table>

  <h3>Collections</h3>
  <table>
    <thead><tr><th>Time</th><th>Customer</th><th>Amount</th></tr></thead>
    <tbody>{{range .Report.Payments}}<tr><td>{{stamp $.Loc .CreatedAt}}</td><td>{{.CustomerName}}</td><td class="num">{{money $.Prefix .AmountCents}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

type reportPage struct {
	Shop   string
	Prefix string
	Loc    *time.Location
	Report domain.Report
}

func (a *API) reportToHTML(report domain.Report) ([]byte, error) {
	profile := a.invoices.Profile()
	page := reportPage{
		Shop:   profile.Name,
		Prefix: profile.CurrencyPrefix,
		Loc:    a.invoices.Location(),
		Report: report,
	}
	var buf bytes.Buffer
	if err := reportHTMLTmpl.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
