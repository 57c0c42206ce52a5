package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseScheduledDate(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "rfc3339",
			input: "2026-03-11T10:00:00Z",
			want:  time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "local time without offset",
			input: "2026-03-11T10:00",
			want:  time.Date(2026, 3, 11, 10, 0, 0, 0, loc),
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   "tomorrow",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScheduledDate(tt.input, loc)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseScheduledDate(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScheduledDate(%q) error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("ParseScheduledDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2026-03-11", time.UTC)
	if err != nil {
		t.Fatalf("ParseDate error: %v", err)
	}
	if !got.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("ParseDate = %v", got)
	}

	if _, err := ParseDate("11/03/2026", time.UTC); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}

func TestCheckAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		valid  bool
	}{
		{name: "regular", amount: "15.50", valid: true},
		{name: "integer", amount: "3", valid: true},
		{name: "zero", amount: "0", valid: false},
		{name: "negative", amount: "-1", valid: false},
		{name: "three decimals", amount: "1.005", valid: false},
		{name: "too large", amount: "100000000", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAmount(decimal.RequireFromString(tt.amount))
			if (err == nil) != tt.valid {
				t.Fatalf("CheckAmount(%s) error = %v, want valid=%v", tt.amount, err, tt.valid)
			}
		})
	}
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{email: "ana@example.com", valid: true},
		{email: "", valid: false},
		{email: "no-at-sign", valid: false},
		{email: "Ana <ana@example.com>", valid: false},
	}

	for _, tt := range tests {
		if got := IsValidEmail(tt.email); got != tt.valid {
			t.Fatalf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.valid)
		}
	}
}

func TestIsValidRating(t *testing.T) {
	for r := 1; r <= 5; r++ {
		if !IsValidRating(r) {
			t.Fatalf("rating %d must be valid", r)
		}
	}
	if IsValidRating(0) || IsValidRating(6) {
		t.Fatalf("ratings outside 1..5 must be invalid")
	}
}
