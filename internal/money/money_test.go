package money

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNairaFormatting(t *testing.T) {
	cases := map[string]string{
		"150000":    "₦150,000.00",
		"0":         "₦0.00",
		"999.999":   "₦1,000.00",
		"1234567.5": "₦1,234,567.50",
		"-30000.25": "₦-30,000.25",
		"12.3":      "₦12.30",
	}
	for in, want := range cases {
		require.Equal(t, want, Naira(decimal.RequireFromString(in)), in)
	}
}

func TestBalanceFloorsAtZero(t *testing.T) {
	total := decimal.NewFromInt(100000)
	require.True(t, Balance(total, decimal.NewFromInt(40000)).Equal(decimal.NewFromInt(60000)))
	require.True(t, Balance(total, decimal.NewFromInt(150000)).IsZero())
}

func TestDaysBetweenUsesCalendarDays(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)
	late := time.Date(2026, 10, 15, 23, 30, 0, 0, lagos)
	due := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	require.Equal(t, 3, DaysBetween(late, due))
	require.Equal(t, -3, DaysBetween(due, late))
	require.True(t, Before(late, due))
	require.False(t, Before(due, due))
}

func TestParseMonth(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	m, err := ParseMonth("", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), m)

	m, err = ParseMonth("2026-02", now)
	require.NoError(t, err)
	require.Equal(t, "February 2026", m.Format(MonthLayout))

	_, err = ParseMonth("02/2026", now)
	require.Error(t, err)
}
