package statement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/browser2excel/internal/model"
)

// Upload posts the file at path to baseURL/extract and returns the raw JSON reply and the
// decoded statement.
func Upload(ctx context.Context, client *http.Client, baseURL, path string) (json.RawMessage, model.Statement, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, model.Statement{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, model.Statement{}, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, model.Statement{}, err
	}
	if err := form.Close(); err != nil {
		return nil, model.Statement{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/extract", &body)
	if err != nil {
		return nil, model.Statement{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, model.Statement{}, fmt.Errorf("uploading %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.Statement{}, fmt.Errorf("reading reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var reply struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &reply) == nil && reply.Error != "" {
			return raw, model.Statement{}, fmt.Errorf("extract failed (%s): %s", resp.Status, reply.Error)
		}
		return raw, model.Statement{}, fmt.Errorf("extract failed: %s", resp.Status)
	}

	var stmt model.Statement
	if err := json.Unmarshal(raw, &stmt); err != nil {
		return raw, model.Statement{}, fmt.Errorf("decoding statement: %w", err)
	}
	return raw, stmt, nil
}
