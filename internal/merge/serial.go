package merge

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/browser2excel/internal/model"
)

// ErrInvalidDate is returned when a display date cannot be converted to a serial.
var ErrInvalidDate = errors.New("invalid date")

// serialEpoch is day zero of the spreadsheet serial convention. No 1900 leap-year
// correction is applied, so serials before 1900-03-01 differ from Excel's by one.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

const secondsPerDay = 24 * 60 * 60

// Serial returns the day count of t's calendar day since the epoch.
func Serial(t time.Time) int {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int((day.Unix() - serialEpoch.Unix()) / secondsPerDay)
}

// FromSerial returns the calendar day for a serial.
func FromSerial(serial int) time.Time {
	return serialEpoch.AddDate(0, 0, serial)
}

// DisplayDate formats a serial as dd/MM/yyyy.
func DisplayDate(serial int) string {
	return FromSerial(serial).Format(model.DisplayDateLayout)
}

// ParseDisplayDate converts a dd/MM/yyyy string to its serial.
func ParseDisplayDate(s string) (int, error) {
	t, err := time.Parse(model.DisplayDateLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Serial(t), nil
}

// SerialString converts a dd/MM/yyyy string to its serial in decimal form. Input that is not a
// display date is returned unchanged, so a non-numeric result signals a conversion failure.
func SerialString(s string) string {
	serial, err := ParseDisplayDate(s)
	if err != nil {
		return s
	}
	return strconv.Itoa(serial)
}

// cellSerial reads a stored date cell. Cells hold either a serial number (possibly with a time
// fraction) or a display date string.
func cellSerial(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return math.Floor(v), true
	}
	if serial, err := ParseDisplayDate(raw); err == nil {
		return float64(serial), true
	}
	return 0, false
}
