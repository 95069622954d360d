// Package format renders metric keys and values for display.
package format

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"sheetdash/internal/record"
)

// NotAvailable is shown for absent values.
const NotAvailable = "N/A"

// CurrencySymbol prefixes currency metrics.
const CurrencySymbol = "₹"

var labels = map[string]string{
	"Delivered orders": "Orders",
	"Sessions":         "Sessions",
	"CR":               "Conversion Rate",
	"AOV":              "Average Order Value",
	"GMV":              "GMV",
	"Customers":        "Customers",
	"New customers":    "New Customers",
	"Repeat customers": "Repeat Customers",
	"ATC":              "Add to Cart Rate",
	"C2O":              "Cart to Order",
	"Cart Page %":      "Cart Page Reach",
	"ASP":              "Average Selling Price",
	"TPC":              "Transactions per Customer",
	"ITO":              "Items per Order",
	"ATC2P":            "Add to Cart to Purchase",
	"Units":            "Units Sold",
}

var (
	percentMetrics  = newSet("CR", "ATC", "C2O", "Cart Page %")
	currencyMetrics = newSet("AOV", "GMV", "ASP")
	decimalMetrics  = newSet("TPC", "ITO", "ATC2P")
)

type set map[string]struct{}

func newSet(keys ...string) set {
	s := make(set, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s set) has(key string) bool {
	_, ok := s[key]
	return ok
}

// Label returns the display label for a metric key, or the key itself.
func Label(key string) string {
	if label, ok := labels[key]; ok {
		return label
	}
	return key
}

// Value formats a metric value for display. It accepts numbers, *float64,
// decimals and raw strings; text that is not numeric is returned as-is.
func Value(key string, value any) string {
	switch v := value.(type) {
	case nil:
		return NotAvailable
	case *float64:
		if v == nil {
			return NotAvailable
		}
		return Number(key, *v)
	case float64:
		return Number(key, v)
	case float32:
		return Number(key, float64(v))
	case int:
		return Number(key, float64(v))
	case int64:
		return Number(key, float64(v))
	case decimal.Decimal:
		return Number(key, v.InexactFloat64())
	case string:
		parsed := record.ParseValue(v)
		if parsed == nil {
			return v
		}
		return Number(key, *parsed)
	default:
		return fmt.Sprint(v)
	}
}

// Number formats a numeric metric value according to the metric's kind.
func Number(key string, v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotAvailable
	}

	d := decimal.NewFromFloat(v)
	switch {
	case percentMetrics.has(key):
		return d.StringFixed(1) + "%"
	case currencyMetrics.has(key):
		return signed(d.Round(0), func(abs decimal.Decimal) string {
			return CurrencySymbol + GroupIndian(abs.StringFixed(0))
		})
	case decimalMetrics.has(key):
		return d.StringFixed(2)
	default:
		return signed(d.Round(0), func(abs decimal.Decimal) string {
			return GroupIndian(abs.StringFixed(0))
		})
	}
}

func signed(d decimal.Decimal, render func(decimal.Decimal) string) string {
	if d.IsNegative() {
		return "-" + render(d.Abs())
	}
	return render(d)
}

// GroupIndian inserts separators using the Indian convention: the last
// three digits form one group, earlier digits are grouped in pairs.
func GroupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}

	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return strings.Join(append(groups, tail), ",")
}
