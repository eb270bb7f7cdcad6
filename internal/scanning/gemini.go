package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-1.5-flash"

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = geminiSchema()

	return &Gemini{
		client: client,
		model:  model,
		name:   modelName,
	}, nil
}

// Scan analyzes a receipt and extracts its fields. PDFs are sent as-is.
func (g *Gemini) Scan(ctx context.Context, doc Document) (*Result, error) {
	parts := []genai.Part{genai.Text(Prompt)}

	if doc.IsPDF() {
		parts = append(parts, genai.Blob{MIMEType: "application/pdf", Data: doc.Data})
	} else {
		images, mimeType, err := rasterize(doc)
		if err != nil {
			return nil, err
		}
		for _, img := range images {
			parts = append(parts, genai.Blob{MIMEType: mimeType, Data: img})
		}
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyResponse
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyResponse
	}

	res, err := parseResult(text.String())
	if err != nil {
		return nil, fmt.Errorf("parsing receipt data: %w", err)
	}
	return res, nil
}

// Model returns the configured model name
func (g *Gemini) Model() string {
	return g.name
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
