package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawRecord_ParsedDate(t *testing.T) {
	tests := []struct {
		date   *string
		want   time.Time
		name   string
		wantOK bool
	}{
		{
			name:   "valid lexical date",
			date:   StringPtr("2024-03-15-10.20.30.123456"),
			want:   time.Date(2024, 3, 15, 10, 20, 30, 123456000, time.UTC),
			wantOK: true,
		},
		{name: "missing date", date: nil},
		{name: "empty date", date: StringPtr("")},
		{name: "iso date is rejected", date: StringPtr("2024-03-15T10:20:30")},
		{name: "impossible day", date: StringPtr("2024-02-31-10.20.30.000000")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RawRecord{Date: tt.date}.ParsedDate()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestRawRecord_Details(t *testing.T) {
	tests := []struct {
		name   string
		label  *string
		amount string
		want   ParsedDetail
	}{
		{
			name:   "full label with thousands separator",
			label:  StringPtr("Umsatz: ; AMAZON EU ; Verwendungszweck: ; Order 123 ; Betrag: ; 1.234,56 ; EUR"),
			amount: "-1234.56",
			want:   ParsedDetail{Receiver: "AMAZON EU", Topic: "Order 123"},
		},
		{
			name:   "credit becomes positive",
			label:  StringPtr("Umsatz: ; Employer ; Verwendungszweck: ; Salary ; Betrag: ; -2.500,00 ; EUR"),
			amount: "2500",
			want:   ParsedDetail{Receiver: "Employer", Topic: "Salary"},
		},
		{
			name:   "line break token stripped from topic",
			label:  StringPtr("Umsatz: ; Shop ; Verwendungszweck: ; RefLINEBREAKCODE 42 ; Betrag: ; 9,99 ; EUR"),
			amount: "-9.99",
			want:   ParsedDetail{Receiver: "Shop", Topic: "Ref 42"},
		},
		{name: "no label", label: nil, amount: "0"},
		{name: "label without pattern", label: StringPtr("something else"), amount: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RawRecord{Label: tt.label}.Details()
			assert.Equal(t, tt.want.Receiver, got.Receiver)
			assert.Equal(t, tt.want.Topic, got.Topic)
			assert.True(t, decimal.RequireFromString(tt.amount).Equal(got.Amount), "amount %s", got.Amount)
		})
	}
}

func TestParseLocaleAmount(t *testing.T) {
	assert.Equal(t, "1234.56", ParseLocaleAmount("1.234,56").String())
	assert.Equal(t, "12", ParseLocaleAmount("12").String())
	assert.True(t, ParseLocaleAmount("n/a").IsZero())
}

func TestRawRecord_JSON(t *testing.T) {
	var rec RawRecord
	err := json.Unmarshal([]byte(`{"id":3,"content":"<div></div>","date":"2024-01-05-00.00.00.000000","arialabel":"x"}`), &rec)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ID)
	assert.Equal(t, "x", rec.LabelText())
	_, ok := rec.ParsedDate()
	assert.True(t, ok)
}

func TestDate_JSON(t *testing.T) {
	var b Booking
	err := json.Unmarshal([]byte(`{"belegDatum":"2024-03-14T00:00:00","buchungsDatum":"2024-03-15","zweck":"AMAZON","betragInEuro":12.5}`), &b)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-14", b.BelegDatum.Format("2006-01-02"))
	assert.Equal(t, "2024-03-15", b.BuchungsDatum.Format("2006-01-02"))
	assert.Nil(t, b.Betrag)

	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"buchungsDatum":"2024-03-15"`)

	_, err = ParseDate("15.03.2024")
	assert.Error(t, err)
}
