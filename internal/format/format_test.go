package format_test

import (
	"testing"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/format"

	"github.com/stretchr/testify/assert"
)

func TestAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00"},
		{5, "5.00"},
		{1250.5, "1,250.50"},
		{1234567.5, "1,234,567.50"},
		{999.999, "1,000.00"},
		{-1250.5, "-1,250.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, format.Amount(tt.in))
	}
}

func TestAmountSAR(t *testing.T) {
	assert.Equal(t, "1,250.00 ر.س", format.AmountSAR(1250))
}

func TestGregorianArabic(t *testing.T) {
	ms := time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "15 يناير 2024", format.GregorianArabic(ms))

	ms = time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "1 ديسمبر 2025", format.GregorianArabic(ms))
}

func TestTimestamp(t *testing.T) {
	ms := time.Date(2024, time.March, 2, 9, 30, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "2024-03-02T09:30:00Z", format.Timestamp(ms))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+9665******67", format.MaskPhone("+966501234567"))
	assert.Equal(t, "*****", format.MaskPhone("12345"))
}
