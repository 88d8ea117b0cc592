package model

import (
	"github.com/shopspring/decimal"
)

// Classification is the outcome of running the rule engine for one record.
type Classification struct {
	Description string `json:"description"`
	Kind        string `json:"kind"`
	Frequency   string `json:"frequency"`
}

// Transaction is a classified display row. It lives only as long as the batch it came from.
type Transaction struct {
	Amount      decimal.Decimal `json:"amount"`
	SVG         *string         `json:"svg,omitempty"`
	Description string          `json:"description"`
	Kind        string          `json:"kind"`
	Frequency   string          `json:"frequency"`
	Date        string          `json:"date"` // dd/MM/yyyy
	ID          int             `json:"id"`
}

// NewTransaction combines a record id, its classification and its derived values.
func NewTransaction(id int, c Classification, date string, amount decimal.Decimal, svg *string) Transaction {
	return Transaction{
		ID:          id,
		Description: c.Description,
		Kind:        c.Kind,
		Frequency:   c.Frequency,
		Date:        date,
		Amount:      amount,
		SVG:         svg,
	}
}
