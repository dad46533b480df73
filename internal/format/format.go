// Package format provides pure, locale-independent rendering helpers for
// amounts and dates. No I/O, no global state.
package format

import (
	"fmt"
	"strings"
	"time"
)

// arabicMonths is a fixed Gregorian month-name table. The calendar stays
// Gregorian even for Arabic output: government bill due dates are
// Gregorian-dated, so no Hijri conversion is ever applied.
var arabicMonths = [12]string{
	"يناير", "فبراير", "مارس", "أبريل", "مايو", "يونيو",
	"يوليو", "أغسطس", "سبتمبر", "أكتوبر", "نوفمبر", "ديسمبر",
}

// Amount renders a monetary value with 2 fixed decimals and thousands
// separators, e.g. 1234567.5 -> "1,234,567.50".
func Amount(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%.2f", v)
	parts := strings.SplitN(s, ".", 2)
	intPart, fracPart := parts[0], parts[1]

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	b.WriteByte('.')
	b.WriteString(fracPart)
	return b.String()
}

// AmountSAR renders an amount with the riyal suffix, e.g. "1,250.00 ر.س".
func AmountSAR(v float64) string {
	return Amount(v) + " ر.س"
}

// GregorianArabic renders an epoch-millisecond timestamp as a Gregorian date
// with Arabic month names, e.g. "15 يناير 2024". Always UTC, independent of
// host locale and calendar settings.
func GregorianArabic(ms int64) string {
	t := time.UnixMilli(ms).UTC()
	return fmt.Sprintf("%d %s %d", t.Day(), arabicMonths[t.Month()-1], t.Year())
}

// Timestamp renders an epoch-millisecond timestamp as RFC3339 UTC.
func Timestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// MaskPhone hides all but the last two digits of a phone number,
// e.g. "+966501234567" -> "+9665******67".
func MaskPhone(phone string) string {
	if len(phone) <= 6 {
		return "*****"
	}
	return phone[:5] + strings.Repeat("*", len(phone)-7) + phone[len(phone)-2:]
}
