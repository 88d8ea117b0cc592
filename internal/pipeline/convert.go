// Package pipeline turns extracted batches into classified display rows and merges them into a
// table at most once per row.
package pipeline

import (
	"regexp"
	"slices"

	"github.com/Veraticus/browser2excel/internal/model"
)

var svgPattern = regexp.MustCompile(`<svg.*?>(.*?)</svg>`)

// Classifier maps a record's fields to its description, kind and frequency.
type Classifier interface {
	Classify(receiver, topic, label string) model.Classification
}

// FromElements converts a page batch. Records without a parsable date are dropped and the rest
// are returned newest first, the reverse of page order.
func FromElements(records []model.RawRecord, classifier Classifier) []model.Transaction {
	out := make([]model.Transaction, 0, len(records))
	for _, record := range slices.Backward(records) {
		date, ok := record.ParsedDate()
		if !ok {
			continue
		}

		detail := record.Details()
		var svg *string
		if match := svgPattern.FindString(record.Content); match != "" {
			svg = &match
		}

		c := classifier.Classify(detail.Receiver, detail.Topic, record.LabelText())
		out = append(out, model.NewTransaction(record.ID, c, date.Format(model.DisplayDateLayout), detail.Amount, svg))
	}
	return out
}

// FromStatement converts the bookings of an understood statement. The booking index becomes
// the row id and the purpose text is used as both receiver and topic.
func FromStatement(statement model.Statement, classifier Classifier) []model.Transaction {
	out := make([]model.Transaction, 0, len(statement.Bookings))
	for i, booking := range statement.Bookings {
		c := classifier.Classify(booking.Zweck, booking.Zweck, "")
		out = append(out, model.NewTransaction(i, c, booking.BuchungsDatum.Format(model.DisplayDateLayout), booking.BetragInEuro, nil))
	}
	return out
}
