// Package model defines the core data structures shared by extraction, classification and merge.
package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawDateLayout is the lexical format of RawRecord.Date (yyyy-MM-dd-HH.mm.ss.ffffff).
const RawDateLayout = "2006-01-02-15.04.05.000000"

// DisplayDateLayout is the dd/MM/yyyy format used for display rows.
const DisplayDateLayout = "02/01/2006"

// RawRecord is one candidate transaction element captured from a page.
// IDs are only unique within the extraction batch that produced them.
type RawRecord struct {
	Date    *string `json:"date,omitempty"`
	Label   *string `json:"arialabel,omitempty"`
	Content string  `json:"content"`
	ID      int     `json:"id"`
}

// ParsedDetail holds the fields derived from a record's accessible label.
type ParsedDetail struct {
	Amount   decimal.Decimal
	Receiver string
	Topic    string
}

var detailPattern = regexp.MustCompile(
	`Umsatz:\s;\s(?P<receiver>.*?)\s;\sVerwendungszweck:\s;\s(?P<topic>.*?)\s;\sBetrag:\s;\s(?P<amount>.*?)\s`)

const lineBreakToken = "LINEBREAKCODE"

// ParsedDate parses Date with RawDateLayout. ok is false when the date is absent or malformed.
func (r RawRecord) ParsedDate() (t time.Time, ok bool) {
	if r.Date == nil || *r.Date == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(RawDateLayout, *r.Date)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// LabelText returns the accessible label or an empty string.
func (r RawRecord) LabelText() string {
	if r.Label == nil {
		return ""
	}
	return *r.Label
}

// Details extracts receiver, topic and amount from the label.
// A label that does not match yields an empty detail with a zero amount.
func (r RawRecord) Details() ParsedDetail {
	match := detailPattern.FindStringSubmatch(r.LabelText())
	if match == nil {
		return ParsedDetail{}
	}

	return ParsedDetail{
		Receiver: match[detailPattern.SubexpIndex("receiver")],
		Topic:    strings.Replace(match[detailPattern.SubexpIndex("topic")], lineBreakToken, "", 1),
		Amount:   ParseLocaleAmount(match[detailPattern.SubexpIndex("amount")]).Neg(),
	}
}

// ParseLocaleAmount parses a number written with "." thousands and "," decimal separators.
// Unparsable input yields zero.
func ParseLocaleAmount(s string) decimal.Decimal {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	normalized = strings.Replace(normalized, ",", ".", 1)
	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
