package statement

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"
)

// MaxUploadSize bounds an uploaded statement.
const MaxUploadSize = 32 << 20

// Handler serves POST /extract: the first uploaded file is extracted and returned as JSON.
type Handler struct {
	extractor Extractor
	logger    *slog.Logger
}

// NewHandler returns a handler delegating to extractor.
func NewHandler(extractor Extractor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{extractor: extractor, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	doc, err := firstFile(r)
	if err != nil {
		h.logger.Warn("rejected upload", "error", err)
		writeError(w, http.StatusBadRequest, "No file uploaded.")
		return
	}

	stmt, err := h.extractor.Extract(r.Context(), doc)
	switch {
	case errors.Is(err, ErrNoFile):
		writeError(w, http.StatusBadRequest, "No file uploaded.")
		return
	case errors.Is(err, ErrUnsupported):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case err != nil:
		h.logger.Error("statement extraction failed", "file", doc.Name, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.logger.Info("extracted statement", "file", doc.Name, "bookings", len(stmt.Bookings))
	writeJSON(w, http.StatusOK, stmt)
}

// firstFile reads the first file of a multipart form, ordered by field name.
func firstFile(r *http.Request) (Document, error) {
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		return Document{}, err
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File) == 0 {
		return Document{}, ErrNoFile
	}

	fields := make([]string, 0, len(r.MultipartForm.File))
	for name := range r.MultipartForm.File {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	for _, name := range fields {
		if headers := r.MultipartForm.File[name]; len(headers) > 0 {
			return readPart(headers[0])
		}
	}
	return Document{}, ErrNoFile
}

func readPart(header *multipart.FileHeader) (Document, error) {
	f, err := header.Open()
	if err != nil {
		return Document{}, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
