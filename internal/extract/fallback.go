package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"invoiced/internal/core"
)

// Fallback scans the PDF's embedded text when the OCR service is
// unavailable. Scanned documents with no text layer yield an empty
// result, which is fine: the invoice just stays manually editable.
type Fallback struct{}

var (
	// £1.234,56 / €1,234.56 / GBP 1234.56 and similar.
	amountPattern = regexp.MustCompile(`(£|€|GBP|EUR)\s*([0-9][0-9.,]*)`)
	// 2025-06, 06/2025, June 2025.
	isoPeriodPattern   = regexp.MustCompile(`\b(19[7-9][0-9]|20[0-9]{2})-(0[1-9]|1[0-2])\b`)
	slashPeriodPattern = regexp.MustCompile(`\b(0[1-9]|1[0-2])/((?:19[7-9][0-9]|20[0-9]{2}))\b`)
	monthNamePattern   = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+((?:19[7-9][0-9]|20[0-9]{2}))\b`)
)

var monthNames = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,
}

func (Fallback) Extract(ctx context.Context, _ string, content []byte) (Result, error) {
	text, err := pdfText(content)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var res Result
	res.AmountCents, res.Currency = largestAmount(text)
	res.Year, res.Month = findPeriod(text)
	return res, nil
}

func pdfText(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// largestAmount picks the biggest money value in the document. Invoice
// totals dominate line items, so the maximum is usually the total.
func largestAmount(text string) (int64, string) {
	var best int64
	var currency string
	for _, m := range amountPattern.FindAllStringSubmatch(text, -1) {
		cents, err := core.ParseDecimalToCents(normalizeNumber(m[2]))
		if err != nil {
			continue
		}
		if cents > best {
			best = cents
			currency = symbolCurrency(m[1])
		}
	}
	return best, currency
}

func symbolCurrency(sym string) string {
	switch sym {
	case "£", "GBP":
		return core.CurrencyGBP
	default:
		return core.CurrencyEUR
	}
}

// normalizeNumber strips thousands separators, keeping the final
// dot or comma as the decimal mark when it has at most two digits
// after it.
func normalizeNumber(s string) string {
	lastDot := strings.LastIndexAny(s, ".,")
	if lastDot == -1 {
		return s
	}
	if len(s)-lastDot-1 > 2 {
		// 1.234 style thousands grouping, no decimals.
		return strings.Map(dropSeparators, s)
	}
	intPart := strings.Map(dropSeparators, s[:lastDot])
	return intPart + "." + s[lastDot+1:]
}

func dropSeparators(r rune) rune {
	if r == '.' || r == ',' {
		return -1
	}
	return r
}

func findPeriod(text string) (int, int) {
	if m := isoPeriodPattern.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return year, month
	}
	if m := slashPeriodPattern.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		return year, month
	}
	if m := monthNamePattern.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[2])
		return year, monthNames[strings.ToLower(m[1])]
	}
	return 0, 0
}
