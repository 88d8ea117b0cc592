// Package extract reads transaction cards out of a rendered bank page.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/andybalholm/cascadia"
)

// DefaultSelector matches debit cards on the bank's transaction list.
const DefaultSelector = "div.mkp-card.mkp-card-debit"

// Attributes written onto matched elements.
const (
	HighlightedAttr = "data-card-detector-highlighted"
	IDAttr          = "data-card-detector-id"
	ActiveAttr      = "data-card-detector-active"
)

// ErrInvalidSelector is returned for selectors that do not compile.
var ErrInvalidSelector = errors.New("invalid selector")

// Options names the selector and the attributes carrying a card's date and label.
type Options struct {
	Selector       string
	DateAttribute  string
	LabelAttribute string
}

// DefaultOptions returns the bank page defaults.
func DefaultOptions() Options {
	return Options{
		Selector:       DefaultSelector,
		DateAttribute:  "data-date",
		LabelAttribute: "aria-label",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if strings.TrimSpace(o.Selector) == "" {
		o.Selector = d.Selector
	}
	if o.DateAttribute == "" {
		o.DateAttribute = d.DateAttribute
	}
	if o.LabelAttribute == "" {
		o.LabelAttribute = d.LabelAttribute
	}
	return o
}

// ValidateSelector reports whether selector is a usable CSS selector.
func ValidateSelector(selector string) error {
	if _, err := cascadia.Compile(selector); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSelector, selector, err)
	}
	return nil
}

// Records returns the cards of doc matching the selector, numbered in document order from 0.
// The document is not modified.
func Records(doc *goquery.Document, opts Options) ([]model.RawRecord, error) {
	opts = opts.withDefaults()
	if err := ValidateSelector(opts.Selector); err != nil {
		return nil, err
	}

	var records []model.RawRecord
	var firstErr error
	doc.Find(opts.Selector).Each(func(i int, s *goquery.Selection) {
		record, err := newRecord(i, s, opts)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		records = append(records, record)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return records, nil
}

func newRecord(id int, s *goquery.Selection, opts Options) (model.RawRecord, error) {
	content, err := goquery.OuterHtml(s)
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("rendering card %d: %w", id, err)
	}
	return model.RawRecord{
		ID:      id,
		Content: content,
		Date:    lookupAttr(s, opts.DateAttribute),
		Label:   lookupAttr(s, opts.LabelAttribute),
	}, nil
}

// lookupAttr reads name from the element itself or its first descendant carrying it.
func lookupAttr(s *goquery.Selection, name string) *string {
	if v, ok := s.Attr(name); ok {
		return model.StringPtr(v)
	}
	if v, ok := s.Find("[" + name + "]").First().Attr(name); ok {
		return model.StringPtr(v)
	}
	return nil
}

// Page is a loaded document whose cards can be marked and highlighted.
type Page struct {
	doc *goquery.Document
	URL string
	mu  sync.Mutex
}

// NewPage wraps markup read from r.
func NewPage(url string, r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	return &Page{URL: url, doc: doc}, nil
}

// Load reads a page from an http(s) URL or a local file.
func Load(ctx context.Context, client *http.Client, source string) (*Page, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		f, err := os.Open(source) // #nosec G304
		if err != nil {
			return nil, fmt.Errorf("opening page: %w", err)
		}
		defer func() { _ = f.Close() }()
		return NewPage("file://"+source, f)
	}

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching page: unexpected status %s", resp.Status)
	}
	return NewPage(source, resp.Body)
}

// Mark clears earlier marks, tags every card matching the selector with its id and returns
// the cards. Captured markup includes the marks.
func (p *Page) Mark(opts Options) ([]model.RawRecord, error) {
	opts = opts.withDefaults()
	if err := ValidateSelector(opts.Selector); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.doc.Find("[" + HighlightedAttr + "]").
		RemoveAttr(HighlightedAttr).
		RemoveAttr(IDAttr).
		RemoveAttr(ActiveAttr)

	cards := p.doc.Find(opts.Selector)
	cards.Each(func(i int, s *goquery.Selection) {
		s.SetAttr(HighlightedAttr, "true")
		s.SetAttr(IDAttr, strconv.Itoa(i))
	})

	records := make([]model.RawRecord, 0, cards.Length())
	var err error
	cards.EachWithBreak(func(i int, s *goquery.Selection) bool {
		var record model.RawRecord
		record, err = newRecord(i, s, opts)
		records = append(records, record)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Highlight flags the marked card with cardID as active and returns its text.
// It reports false when no marked card has that id.
func (p *Page) Highlight(cardID int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.doc.Find("[" + ActiveAttr + "]").RemoveAttr(ActiveAttr)
	card := p.doc.Find(fmt.Sprintf("[%s=%q]", IDAttr, strconv.Itoa(cardID))).First()
	if card.Length() == 0 {
		return "", false
	}
	card.SetAttr(ActiveAttr, "true")
	return strings.Join(strings.Fields(card.Text()), " "), true
}
