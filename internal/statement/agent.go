package statement

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

//go:embed schema.json
var statementSchemaSource string

var statementSchema = jsonschema.MustCompileString("statement.schema.json", statementSchemaSource)

const prompt = "You read credit card statements.\n\n" +
	"Task:\n" +
	"- Read the attached statement and return ONE JSON object.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text, no code fences).\n\n" +
	"Fields:\n" +
	"- \"start\", \"end\": statement period, ISO \"YYYY-MM-DD\"\n" +
	"- \"number\": statement or card number as printed\n" +
	"- \"newSaldo\": number, the new balance. Pay attention to whether it is positive or negative.\n" +
	"- \"bookings\": array of objects with\n" +
	"  - \"belegDatum\": receipt date, \"YYYY-MM-DD\"\n" +
	"  - \"buchungsDatum\": booking date, \"YYYY-MM-DD\"\n" +
	"  - \"zweck\": purpose text\n" +
	"  - \"betragInEuro\": number, negative for charges\n" +
	"  - \"waehrung\", \"betrag\", \"kurs\", \"waehrungsumrechnungInEuro\": foreign currency details or null\n"

// Generator is the part of the Gemini models API the agent uses.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Agent asks a Gemini model to read a statement document.
type Agent struct {
	models Generator
	logger *slog.Logger
	model  string
}

// NewAgent creates a Gemini client. An empty apiKey lets the SDK read GEMINI_API_KEY or GOOGLE_API_KEY.
func NewAgent(ctx context.Context, apiKey, modelName string, logger *slog.Logger) (*Agent, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return NewAgentWithGenerator(client.Models, modelName, logger), nil
}

// NewAgentWithGenerator wraps an existing generator.
func NewAgentWithGenerator(models Generator, modelName string, logger *slog.Logger) *Agent {
	if modelName == "" {
		modelName = DefaultModelName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{models: models, model: modelName, logger: logger}
}

// Extract sends doc to the model and validates the returned statement.
func (a *Agent) Extract(ctx context.Context, doc Document) (model.Statement, error) {
	parts := []*genai.Part{
		{Text: prompt},
		{InlineData: &genai.Blob{MIMEType: doc.MIMEType(), Data: doc.Data}},
	}
	if doc.Ext() == ".pdf" {
		if info, err := InspectPDF(doc.Data); err == nil && info.Text != "" {
			parts = append(parts, &genai.Part{Text: "Text layer of the document:\n" + info.Text})
		}
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	}

	a.logger.Info("extracting statement", "file", doc.Name, "model", a.model, "bytes", len(doc.Data))
	resp, err := a.models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		return model.Statement{}, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return model.Statement{}, fmt.Errorf("%w: empty response from model", ErrBadOutput)
	}
	return DecodeStatement([]byte(cleanModelJSON(raw)))
}

// DecodeStatement validates data against the statement schema and decodes it.
func DecodeStatement(data []byte) (model.Statement, error) {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return model.Statement{}, fmt.Errorf("%w: %v (raw: %s)", ErrBadOutput, err, common.Truncate(string(data), common.MaxLoggedPayload))
	}
	if err := statementSchema.Validate(generic); err != nil {
		return model.Statement{}, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}

	var out model.Statement
	if err := json.Unmarshal(data, &out); err != nil {
		return model.Statement{}, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	return out, nil
}

// cleanModelJSON strips Markdown fences and any text around the outermost JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = strings.TrimSpace(s[idx+1:])
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
