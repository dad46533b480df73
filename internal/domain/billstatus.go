package domain

import (
	"math"
	"time"
)

// dayMillis is one day in epoch milliseconds, the unit of DueDate arithmetic.
const dayMillis = 86_400_000

// Effective (display) bill statuses. Superset of the persisted statuses:
// "overdue" and "upcoming" only ever exist as derived values.
const (
	EffectiveStatusUnpaid    = "unpaid"
	EffectiveStatusUpcoming  = "upcoming"
	EffectiveStatusOverdue   = "overdue"
	EffectiveStatusPaid      = "paid"
	EffectiveStatusScheduled = "scheduled"
)

// upcomingWindowDays is how far ahead a due date counts as "upcoming".
const upcomingWindowDays = 7

// IsBillOverdue is the single source of truth for overdue-ness: a bill is
// overdue iff it is not paid and its due date has passed. Stored status is
// advisory only and must never be consulted for this question.
func IsBillOverdue(b *Bill, now time.Time) bool {
	return b.Status != BillStatusPaid && b.DueDate < now.UnixMilli()
}

// DaysUntilDue returns ceil((dueDate - now) / 1 day). Negative values denote
// days overdue; zero denotes due today.
func DaysUntilDue(b *Bill, now time.Time) int {
	delta := b.DueDate - now.UnixMilli()
	return int(math.Ceil(float64(delta) / float64(dayMillis)))
}

// EffectiveStatus classifies a bill for display: paid, overdue (derived),
// scheduled, upcoming (due within 7 days) or unpaid.
func EffectiveStatus(b *Bill, now time.Time) string {
	switch {
	case b.Status == BillStatusPaid:
		return EffectiveStatusPaid
	case IsBillOverdue(b, now):
		return EffectiveStatusOverdue
	case b.Status == BillStatusScheduled:
		return EffectiveStatusScheduled
	case DaysUntilDue(b, now) <= upcomingWindowDays:
		return EffectiveStatusUpcoming
	default:
		return EffectiveStatusUnpaid
	}
}

// StatusLabel maps an effective status to its Arabic display label.
func StatusLabel(effectiveStatus string) string {
	switch effectiveStatus {
	case EffectiveStatusPaid:
		return "مدفوعة"
	case EffectiveStatusOverdue:
		return "متأخرة"
	case EffectiveStatusUpcoming:
		return "مستحقة قريباً"
	case EffectiveStatusScheduled:
		return "مجدولة"
	default:
		return "غير مدفوعة"
	}
}

// StatusColor maps an effective status to its display color.
func StatusColor(effectiveStatus string) string {
	switch effectiveStatus {
	case EffectiveStatusPaid:
		return "#34C759"
	case EffectiveStatusOverdue:
		return "#FF3B30"
	case EffectiveStatusUpcoming:
		return "#FF9500"
	case EffectiveStatusScheduled:
		return "#007AFF"
	default:
		return "#8E8E93"
	}
}

// ============================================================
// Penalty schedule
// ============================================================

// PenaltyTier maps an overdue-days bracket to a late-fee rate.
// A tier applies when daysOverdue <= MaxDaysOverdue; MaxDaysOverdue == 0
// marks the open-ended final tier.
type PenaltyTier struct {
	MaxDaysOverdue int     `json:"maxDaysOverdue"`
	Rate           float64 `json:"rate"`
}

// PenaltySchedule is the business-defined late-fee tiering. It is loaded
// from configuration, never hard-coded, so tiers can change without a
// redeploy of the penalty logic.
type PenaltySchedule struct {
	Tiers []PenaltyTier `json:"tiers"`
}

// DefaultPenaltySchedule is the rate table used when no override is
// configured. Tier values are placeholders pending confirmation from the
// billing authority.
func DefaultPenaltySchedule() PenaltySchedule {
	return PenaltySchedule{
		Tiers: []PenaltyTier{
			{MaxDaysOverdue: 30, Rate: 0.05},
			{MaxDaysOverdue: 90, Rate: 0.10},
			{MaxDaysOverdue: 0, Rate: 0.15},
		},
	}
}

// LateFee computes the surcharge for a bill amount overdue by the given
// number of days, rounded to 2 decimals. Zero when not overdue or when the
// schedule has no tiers.
func (s PenaltySchedule) LateFee(amount float64, daysOverdue int) float64 {
	if daysOverdue <= 0 || len(s.Tiers) == 0 {
		return 0
	}
	rate := s.Tiers[len(s.Tiers)-1].Rate
	for _, t := range s.Tiers {
		if t.MaxDaysOverdue > 0 && daysOverdue <= t.MaxDaysOverdue {
			rate = t.Rate
			break
		}
	}
	return Round2(amount * rate)
}

// ApplyPenalty recomputes PenaltyInfo for the bill as of now. The penalty is
// recomputed lazily on every read so it never goes stale as the clock
// advances; once a bill is paid the stored snapshot freezes and this is a
// no-op. Returns the bill for chaining.
func (s PenaltySchedule) ApplyPenalty(b *Bill, now time.Time) *Bill {
	if b.Status == BillStatusPaid {
		return b
	}
	if !IsBillOverdue(b, now) {
		b.PenaltyInfo = nil
		return b
	}
	daysOverdue := -DaysUntilDue(b, now)
	if daysOverdue < 1 {
		daysOverdue = 1
	}
	fee := s.LateFee(b.Amount, daysOverdue)
	b.PenaltyInfo = &PenaltyInfo{
		LateFee:          fee,
		DaysOverdue:      daysOverdue,
		TotalWithPenalty: Round2(b.Amount + fee),
	}
	return b
}

// PayableAmount is the amount a bill costs to settle right now: the penalty
// total when one is attached, the base amount otherwise.
func PayableAmount(b *Bill) float64 {
	if b.PenaltyInfo != nil {
		return b.PenaltyInfo.TotalWithPenalty
	}
	return b.Amount
}

// Round2 rounds a monetary value to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ============================================================
// IBAN validation
// ============================================================

// ValidateIBAN checks a Saudi IBAN: exactly 24 characters, "SA" prefix
// followed by 22 digits.
func ValidateIBAN(iban string) bool {
	if len(iban) != 24 {
		return false
	}
	if iban[0] != 'S' || iban[1] != 'A' {
		return false
	}
	for i := 2; i < 24; i++ {
		if iban[i] < '0' || iban[i] > '9' {
			return false
		}
	}
	return true
}
