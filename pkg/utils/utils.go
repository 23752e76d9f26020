package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// SplitAmount splits total into parts integer amounts.
// Every part but the last is floor(total / parts); the last part takes the
// remainder so the parts always sum to total.
// Returns nil when parts is not positive.
func SplitAmount(total int64, parts int) []int64 {
	if parts <= 0 {
		return nil
	}

	amounts := make([]int64, parts)
	perPart := total / int64(parts)
	remaining := total

	for i := 0; i < parts-1; i++ {
		amounts[i] = perPart
		remaining -= perPart
	}
	amounts[parts-1] = remaining

	return amounts
}

// CalculateDueDate returns the due date of the given period (1-indexed),
// counted in calendar months from startDate.
// Period 1 is due one month after startDate. When the target month is shorter
// than startDate's day, the date is clamped to the last day of that month
// (Jan 31 -> Feb 28/29 -> Mar 31) instead of overflowing into the next month.
func CalculateDueDate(startDate time.Time, period int) time.Time {
	year, month, day := startDate.Date()

	firstOfTarget := time.Date(year, month+time.Month(period), 1, 0, 0, 0, 0, startDate.Location())
	lastDay := DaysIn(firstOfTarget.Year(), firstOfTarget.Month())
	if day > lastDay {
		day = lastDay
	}

	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, startDate.Location())
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// TruncateToDate drops the clock part of t, keeping the calendar date in UTC.
func TruncateToDate(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// IsDateOverdue checks if a due date lies strictly before the calendar date of now
func IsDateOverdue(dueDate time.Time, now time.Time) bool {
	return TruncateToDate(dueDate).Before(TruncateToDate(now))
}

// MinorUnitsToDecimal converts an amount in minor units to the decimal stored
// in NUMERIC columns.
func MinorUnitsToDecimal(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount)
}

// DecimalToMinorUnits converts a NUMERIC column value back to minor units.
// Values carrying a fractional part are truncated toward zero.
func DecimalToMinorUnits(d decimal.Decimal) int64 {
	return d.IntPart()
}
