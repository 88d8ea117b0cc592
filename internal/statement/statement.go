// Package statement turns uploaded statement documents into structured statements.
package statement

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/Veraticus/browser2excel/internal/model"
)

// Errors returned while extracting statements.
var (
	ErrNoFile      = errors.New("no file uploaded")
	ErrUnsupported = errors.New("unsupported document")
	ErrBadOutput   = errors.New("statement output did not validate")
)

// Document is an uploaded file.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Ext returns the lower-case file extension including the dot.
func (d Document) Ext() string {
	return strings.ToLower(filepath.Ext(d.Name))
}

// MIMEType returns the declared content type, inferring it from the extension when absent.
func (d Document) MIMEType() string {
	if d.ContentType != "" && d.ContentType != "application/octet-stream" {
		return d.ContentType
	}
	switch d.Ext() {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".csv", ".txt":
		return "text/plain"
	}
	return "application/octet-stream"
}

// Extractor understands one kind of statement document.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (model.Statement, error)
}

// Router sends OFX/QFX files to the local parser and everything else to the document agent.
type Router struct {
	OFX   Extractor
	Agent Extractor
}

// Extract dispatches doc by extension. PDFs are inspected before the agent sees them.
func (r *Router) Extract(ctx context.Context, doc Document) (model.Statement, error) {
	if len(doc.Data) == 0 {
		return model.Statement{}, ErrNoFile
	}

	switch doc.Ext() {
	case ".ofx", ".qfx":
		if r.OFX == nil {
			return model.Statement{}, ErrUnsupported
		}
		return r.OFX.Extract(ctx, doc)
	case ".pdf":
		if _, err := InspectPDF(doc.Data); err != nil {
			return model.Statement{}, err
		}
	}

	if r.Agent == nil {
		return model.Statement{}, ErrUnsupported
	}
	return r.Agent.Extract(ctx, doc)
}
