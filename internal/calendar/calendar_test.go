package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateKey(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"canonical", "2024-03-01", false},
		{"leap day", "2024-02-29", false},
		{"not a leap year", "2023-02-29", true},
		{"single digit month", "2024-3-01", true},
		{"with time", "2024-03-01T10:00:00Z", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDateKey(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DateKey(tt.in), d)
		})
	}
}

func TestDaysBetweenInclusive(t *testing.T) {
	t.Run("same day yields one date", func(t *testing.T) {
		for _, s := range []string{"2024-01-01", "2024-02-29", "2024-12-31"} {
			d := MustParse(s)
			days, err := DaysBetweenInclusive(d, d)
			require.NoError(t, err)
			assert.Equal(t, []DateKey{d}, days)
		}
	})

	t.Run("crosses month and year", func(t *testing.T) {
		days, err := DaysBetweenInclusive("2024-12-30", "2025-01-02")
		require.NoError(t, err)
		assert.Equal(t, []DateKey{"2024-12-30", "2024-12-31", "2025-01-01", "2025-01-02"}, days)
	})

	t.Run("leap february", func(t *testing.T) {
		days, err := DaysBetweenInclusive("2024-02-27", "2024-03-01")
		require.NoError(t, err)
		assert.Equal(t, []DateKey{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"}, days)
	})

	t.Run("reversed range", func(t *testing.T) {
		_, err := DaysBetweenInclusive("2024-03-10", "2024-03-09")
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := DaysBetweenInclusive("garbage", "2024-03-09")
		assert.ErrorIs(t, err, ErrInvalidDate)
	})
}

func TestCountDaysInclusive(t *testing.T) {
	n, err := CountDaysInclusive("2024-03-10", "2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	// Spans the March DST switch in most zones; keys are zone-free.
	n, err = CountDaysInclusive("2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, 31, n)

	_, err = CountDaysInclusive("2024-03-15", "2024-03-10")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestWeekdayOf(t *testing.T) {
	assert.Equal(t, Fri, WeekdayOf("2024-03-01"))
	assert.Equal(t, Sun, WeekdayOf("2024-03-03"))
	assert.Equal(t, Mon, WeekdayOf("2024-03-04"))
	assert.Equal(t, Thu, WeekdayOf("2024-02-29"))
	assert.Equal(t, Wed, WeekdayOf("2025-01-01"))
}

func TestAddDays(t *testing.T) {
	assert.Equal(t, DateKey("2024-03-01"), AddDays("2024-02-28", 2))
	assert.Equal(t, DateKey("2023-12-31"), AddDays("2024-01-01", -1))
	assert.Equal(t, DateKey("2024-01-01"), AddDays("2024-01-01", 0))
}

func TestDaysIn(t *testing.T) {
	assert.Equal(t, 29, DaysIn(time.February, 2024))
	assert.Equal(t, 28, DaysIn(time.February, 2023))
	assert.Equal(t, 28, DaysIn(time.February, 1900))
	assert.Equal(t, 29, DaysIn(time.February, 2000))
	assert.Equal(t, 30, DaysIn(time.April, 2024))
	assert.Equal(t, 31, DaysIn(time.December, 2024))
}

func TestToday(t *testing.T) {
	// 23:30 UTC on March 1st is already March 2nd in Tokyo.
	instant := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	clock := FixedClock(instant)

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	assert.Equal(t, DateKey("2024-03-01"), Today(clock, nil))
	assert.Equal(t, DateKey("2024-03-02"), Today(clock, tokyo))
}

func TestWeekdaySet(t *testing.T) {
	set, err := ParseWeekdaySet([]string{"sun", "Monday", "Sat"})
	require.NoError(t, err)
	assert.True(t, set.Has(Sun))
	assert.True(t, set.Has(Mon))
	assert.False(t, set.Has(Tue))
	assert.Equal(t, []string{"Mon", "Sat", "Sun"}, set.Strings())

	_, err = ParseWeekdaySet([]string{"Funday"})
	assert.Error(t, err)

	var empty WeekdaySet
	assert.False(t, empty.Has(Mon))
}
