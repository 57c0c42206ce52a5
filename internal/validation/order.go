// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DateLayout — формат календарной даты в запросах слотов.
	DateLayout = "2006-01-02"

	localDateTimeLayout = "2006-01-02T15:04"
	maxAmountDigits     = 8
)

var maxAmount = decimal.New(1, maxAmountDigits)

// ParseScheduledDate разбирает дату доставки в формате RFC 3339 или "YYYY-MM-DDTHH:MM".
// Время без смещения трактуется в зоне loc.
func ParseScheduledDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("scheduled_date is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(localDateTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed scheduled_date %q", s)
	}
	return t, nil
}

// ParseDate разбирает календарную дату "YYYY-MM-DD" в зоне loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// CheckAmount проверяет, что сумма положительна, не больше 99999999.99 и имеет не более двух знаков после запятой.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return errors.New("amount is too large")
	}
	if !amount.Equal(amount.Round(2)) {
		return errors.New("amount must have at most two decimal places")
	}
	return nil
}

// IsValidEmail проверяет адрес электронной почты.
func IsValidEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// IsValidRating проверяет, что оценка находится в диапазоне от 1 до 5.
func IsValidRating(rating int) bool {
	return rating >= 1 && rating <= 5
}
