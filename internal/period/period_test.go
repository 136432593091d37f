package period

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestInsideAt_FullDates(t *testing.T) {
	tests := []struct {
		name   string
		period string
		today  time.Time
		want   bool
	}{
		{"inside literal range", "2023-09-30,2023-11-01", date(2023, time.October, 15), true},
		{"on start boundary", "2023-09-30,2023-11-01", date(2023, time.September, 30), true},
		{"on end boundary", "2023-09-30,2023-11-01", date(2023, time.November, 1), true},
		{"before range", "2023-09-30,2023-11-01", date(2023, time.September, 29), false},
		{"after range", "2023-09-30,2023-11-01", date(2023, time.November, 2), false},
		{"different year", "2023-09-30,2023-11-01", date(2024, time.October, 15), false},
		{"with spaces", "2023-09-30, 2023-11-01", date(2023, time.October, 15), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InsideAt(tt.period, tt.today); got != tt.want {
				t.Errorf("InsideAt(%q, %s) = %v, want %v", tt.period, tt.today.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestInsideAt_RecurringDates(t *testing.T) {
	tests := []struct {
		name   string
		period string
		today  time.Time
		want   bool
	}{
		{"inside same-year range", "09-30,11-01", date(2024, time.October, 10), true},
		{"outside same-year range", "09-30,11-01", date(2024, time.June, 10), false},
		{"wraparound, in december", "12-01,02-28", date(2024, time.December, 15), true},
		{"wraparound, in january", "12-01,02-28", date(2025, time.January, 20), true},
		{"wraparound, in february", "12-01,02-28", date(2025, time.February, 28), true},
		{"wraparound, in march", "12-01,02-28", date(2025, time.March, 1), false},
		{"wraparound, in summer", "12-01,02-28", date(2024, time.July, 4), false},
		{"start today", "10-10,11-01", date(2024, time.October, 10), true},
		{"mixed full start recurring end", "2023-09-30,11-01", date(2023, time.October, 15), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InsideAt(tt.period, tt.today); got != tt.want {
				t.Errorf("InsideAt(%q, %s) = %v, want %v", tt.period, tt.today.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestInsideAt_Malformed(t *testing.T) {
	today := date(2024, time.October, 10)

	inputs := []string{
		"",
		"invalid date",
		"2023-09-30",
		"2023-09-30,2023-10-01,2023-11-01",
		"09-31,11-01", // september has 30 days
		"13-01,14-01", // no such months
		"9-30,11-01",  // wrong token length
		"aa-bb,cc-dd",
		"2023-99-99,2023-11-01",
	}

	for _, in := range inputs {
		if InsideAt(in, today) {
			t.Errorf("InsideAt(%q) = true, want false for malformed input", in)
		}
	}
}
