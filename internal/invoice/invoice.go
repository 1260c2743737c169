package invoice

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"tajautos/backend/internal/config"
	"tajautos/backend/internal/domain"
)

const receiptWidth = 32

type Renderer struct {
	profile config.ShopProfile
	loc     *time.Location
	page    *template.Template
}

func NewRenderer(profile config.ShopProfile, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	r := &Renderer{profile: profile, loc: loc}
	r.page = template.Must(template.New("invoice").Funcs(template.FuncMap{
		"money": func(cents int64) string { return FormatMoney(r.profile.CurrencyPrefix, cents) },
	}).Parse(invoiceHTML))
	return r
}

func (r *Renderer) Profile() config.ShopProfile {
	return r.profile
}

func (r *Renderer) Location() *time.Location {
	return r.loc
}

// Number derives a stable invoice number from the sale id and date.
func (r *Renderer) Number(sale domain.Sale) string {
	suffix := sale.ID
	if idx := strings.LastIndex(suffix, "-"); idx >= 0 && idx < len(suffix)-1 {
		suffix = suffix[idx+1:]
	}
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	prefix := r.profile.InvoicePrefix
	if prefix == "" {
		prefix = "INV"
	}
	return fmt.Sprintf("%s-%s-%s", prefix, sale.CreatedAt.In(r.loc).Format("20060102"), strings.ToUpper(suffix))
}

// Render builds the thermal receipt for a committed sale.
func (r *Renderer) Render(sale domain.Sale) (domain.Invoice, error) {
	if sale.ID == "" || len(sale.Items) == 0 {
		return domain.Invoice{}, fmt.Errorf("render invoice: sale has no id or items")
	}

	number := r.Number(sale)
	money := func(cents int64) string { return FormatMoney(r.profile.CurrencyPrefix, cents) }

	lines := []string{
		center(r.profile.Name),
	}
	for _, line := range []string{r.profile.AddressLine1, joinNonEmpty(", ", r.profile.AddressLine2, r.profile.City), r.profile.Phone} {
		if line != "" {
			lines = append(lines, center(line))
		}
	}
	lines = append(lines,
		strings.Repeat("=", receiptWidth),
		"Invoice: "+number,
		"Date: "+sale.CreatedAt.In(r.loc).Format("2006-01-02 15:04"),
		"Payment: "+strings.ToUpper(string(sale.PaymentType)),
	)
	if sale.PaymentType == domain.PaymentCredit {
		lines = append(lines, "Customer: "+sale.CustomerName)
		if sale.CustomerContact != "" {
			lines = append(lines, "Contact: "+sale.CustomerContact)
		}
	}
	lines = append(lines, strings.Repeat("-", receiptWidth))
	for _, item := range sale.Items {
		lines = append(lines, truncate(item.Name, receiptWidth))
		lines = append(lines, spread(fmt.Sprintf("  %d x %s", item.Qty, money(item.UnitPriceCents)), money(item.LineTotalCents)))
	}
	lines = append(lines,
		strings.Repeat("-", receiptWidth),
		spread("TOTAL", money(sale.TotalCents)),
		strings.Repeat("=", receiptWidth),
	)
	if r.profile.Footer != "" {
		lines = append(lines, center(r.profile.Footer))
	}
	lines = append(lines, "")

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.Invoice{
		Number:       number,
		SaleID:       sale.ID,
		PreviewText:  strings.Join(lines, "\n"),
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		FileName:     fmt.Sprintf("receipt-%s.bin", sale.ID),
	}, nil
}

type invoicePage struct {
	Shop     config.ShopProfile
	Number   string
	Date     string
	Sale     domain.Sale
	IsCredit bool
}

// HTML writes the printable invoice page for sale.
func (r *Renderer) HTML(w io.Writer, sale domain.Sale) error {
	var buf bytes.Buffer
	err := r.page.Execute(&buf, invoicePage{
		Shop:     r.profile,
		Number:   r.Number(sale),
		Date:     sale.CreatedAt.In(r.loc).Format("02 Jan 2006 15:04"),
		Sale:     sale,
		IsCredit: sale.PaymentType == domain.PaymentCredit,
	})
	if err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}

func center(val string) string {
	val = truncate(val, receiptWidth)
	pad := (receiptWidth - len(val)) / 2
	return strings.Repeat(" ", pad) + val
}

func spread(left string, right string) string {
	gap := receiptWidth - len(left) - len(right)
	if gap < 1 {
		return left + "\n" + strings.Repeat(" ", max(receiptWidth-len(right), 0)) + right
	}
	return left + strings.Repeat(" ", gap) + right
}

func truncate(val string, width int) string {
	if len(val) <= width {
		return val
	}
	return val[:width]
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, sep)
}

const invoiceHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>Invoice {{.Number}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 24px; color: #111; }
header { border-bottom: 2px solid #111; margin-bottom: 16px; }
table { width: 100%; border-collapse: collapse; }
th, td { border-bottom: 1px solid #ccc; padding: 6px; text-align: left; }
td.num, th.num { text-align: right; }
.total { font-weight: bold; font-size: 1.1em; }
@media print { button { display: none; } }
</style>
</head>
<body>
<header>
<h1>{{.Shop.Name}}</h1>
<p>{{.Shop.AddressLine1}}{{if .Shop.AddressLine2}}, {{.Shop.AddressLine2}}{{end}}{{if .Shop.City}}, {{.Shop.City}}{{end}}</p>
{{if .Shop.Phone}}<p>Phone: {{.Shop.Phone}}</p>{{end}}
</header>
<p><strong>Invoice:</strong> {{.Number}}<br><strong>Date:</strong> {{.Date}}<br><strong>Payment:</strong> {{.Sale.PaymentType}}</p>
{{if .IsCredit}}<p><strong>Customer:</strong> {{.Sale.CustomerName}}<br><strong>Contact:</strong> {{.Sale.CustomerContact}}{{if .Sale.CustomerAddress}}<br><strong>Address:</strong> {{.Sale.CustomerAddress}}{{end}}</p>{{end}}
<table>
<thead><tr><th>Item</th><th class="num">Qty</th><th class="num">Unit Price</th><th class="num">Amount</th></tr></thead>
<tbody>
{{range .Sale.Items}}<tr><td>{{.Name}}</td><td class="num">{{.Qty}}</td><td class="num">{{money .UnitPriceCents}}</td><td class="num">{{money .LineTotalCents}}</td></tr>
{{end}}<tr class="total"><td colspan="3">Total</td><td class="num">{{money .Sale.TotalCents}}</td></tr>
</tbody>
</table>
{{if .Shop.Footer}}<p>{{.Shop.Footer}}</p>{{end}}
<button onclick="window.print()">Print</button>
</body>
</html>`
