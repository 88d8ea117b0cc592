package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers on the wire.
	decimal.MarshalJSONWithoutQuotes = true
}

// Date is a calendar day that accepts ISO dates with or without a time component.
type Date struct {
	time.Time
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// NewDate truncates t to its calendar day.
func NewDate(t time.Time) Date {
	return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses s with any of the accepted ISO layouts.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t), nil
		}
	}
	return Date{}, fmt.Errorf("unrecognized date %q", s)
}

// MarshalJSON writes the date as yyyy-MM-dd.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format("2006-01-02"))
}

// UnmarshalJSON accepts null, yyyy-MM-dd and ISO date-times.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Statement is the structured result of understanding an uploaded statement document.
type Statement struct {
	Start    Date            `json:"start"`
	End      Date            `json:"end"`
	Number   string          `json:"number"`
	Bookings []Booking       `json:"bookings"`
	NewSaldo decimal.Decimal `json:"newSaldo"`
}

// Booking is one line of a statement. Foreign-currency fields are optional.
type Booking struct {
	BelegDatum                Date             `json:"belegDatum"`
	BuchungsDatum             Date             `json:"buchungsDatum"`
	Waehrung                  *string          `json:"waehrung,omitempty"`
	Betrag                    *decimal.Decimal `json:"betrag,omitempty"`
	Kurs                      *string          `json:"kurs,omitempty"`
	WaehrungsumrechnungInEuro *decimal.Decimal `json:"waehrungsumrechnungInEuro,omitempty"`
	Zweck                     string           `json:"zweck"`
	BetragInEuro              decimal.Decimal  `json:"betragInEuro"`
}
