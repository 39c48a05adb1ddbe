// Package export renders order lists for download.
package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"storefront-svc/models"
)

var orderHeader = []string{
	"Order ID", "Customer Name", "Email", "Phone", "Address", "Payment Method",
	"Total Amount", "Discount", "Shipping Charge", "Status", "Order Date", "Products Count",
}

const orderDateLayout = "2006-01-02 15:04:05"

// WriteOrdersCSV writes a header line and one line per order. Every field is
// quoted, so the output has exactly len(orders)+1 lines even when values
// contain commas.
func WriteOrdersCSV(w io.Writer, orders []*models.Order) error {
	bw := bufio.NewWriter(w)
	if err := writeRecord(bw, orderHeader); err != nil {
		return err
	}
	for _, o := range orders {
		if err := writeRecord(bw, orderRecord(o)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func orderRecord(o *models.Order) []string {
	address := o.Customer.Address
	if o.Customer.City != "" {
		address += ", " + o.Customer.City
	}
	return []string{
		o.OrderID,
		o.Customer.Name,
		o.Customer.Email,
		o.Customer.Phone,
		address,
		string(o.PaymentMethod),
		formatAmount(o.Total),
		formatAmount(o.Discount),
		formatAmount(o.ShippingCharge),
		string(o.Status),
		o.CreatedAt.Format(orderDateLayout),
		strconv.Itoa(len(o.Products)),
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Line breaks inside a value are flattened to spaces to keep one order per line.
var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func writeRecord(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		f = flatten.Replace(f)
		if _, err := w.WriteString(`"` + strings.ReplaceAll(f, `"`, `""`) + `"`); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}
