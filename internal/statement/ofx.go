package statement

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagRegex  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// OFXExtractor reads OFX and QFX statement downloads locally.
type OFXExtractor struct {
	logger *slog.Logger
}

// NewOFXExtractor returns an extractor logging to logger, or slog.Default when nil.
func NewOFXExtractor(logger *slog.Logger) *OFXExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &OFXExtractor{logger: logger}
}

// Extract parses the first bank or credit card statement in doc.
func (e *OFXExtractor) Extract(_ context.Context, doc Document) (model.Statement, error) {
	resp, err := ofxgo.ParseResponse(bytes.NewReader(preprocessOFX(doc.Data)))
	if err != nil {
		return model.Statement{}, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			out := convert(string(stmt.BankAcctFrom.AcctID), stmt.CurDef.String(), stmt.BankTranList, stmt.BalAmt)
			e.logger.Info("Parsed OFX bank statement", "account", out.Number, "bookings", len(out.Bookings))
			return out, nil
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			out := convert(string(stmt.CCAcctFrom.AcctID), stmt.CurDef.String(), stmt.BankTranList, stmt.BalAmt)
			e.logger.Info("Parsed OFX credit card statement", "account", out.Number, "bookings", len(out.Bookings))
			return out, nil
		}
	}
	return model.Statement{}, fmt.Errorf("%w: OFX file has no statements", ErrUnsupported)
}

// preprocessOFX fixes common formatting issues in OFX files.
func preprocessOFX(data []byte) []byte {
	content := strings.TrimLeft(string(data), " \t\r\n\ufeff")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = openTagRegex.ReplaceAllString(content, "$1>")
	return []byte(content)
}

func convert(account, currency string, list *ofxgo.TransactionList, balance ofxgo.Amount) model.Statement {
	out := model.Statement{
		Number:   account,
		NewSaldo: amount(balance),
	}
	if list == nil {
		return out
	}
	out.Start = model.NewDate(list.DtStart.Time)
	out.End = model.NewDate(list.DtEnd.Time)

	for _, tx := range list.Transactions {
		booked := model.NewDate(tx.DtPosted.Time)
		b := model.Booking{
			BelegDatum:    booked,
			BuchungsDatum: booked,
			Zweck:         purpose(tx),
			BetragInEuro:  amount(tx.TrnAmt),
		}
		if tx.DtUser != nil {
			b.BelegDatum = model.NewDate(tx.DtUser.Time)
		}
		if currency != "" && currency != "EUR" {
			b.Waehrung = model.StringPtr(currency)
			original := b.BetragInEuro
			b.Betrag = &original
		}
		out.Bookings = append(out.Bookings, b)
	}
	return out
}

func amount(a ofxgo.Amount) decimal.Decimal {
	d, err := decimal.NewFromString(a.FloatString(2))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// purpose prefers the payee, falling back to the name and then the memo.
func purpose(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}
	parts := []string{strings.TrimSpace(string(tx.Name))}
	if memo := strings.TrimSpace(string(tx.Memo)); memo != "" && memo != parts[0] {
		parts = append(parts, memo)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
