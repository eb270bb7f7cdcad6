package scanning

import (
	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/zombor/receipt-capture/internal/receipt"
)

const schemaName = "receipt_extraction"

// Prompt is the fixed instruction sent with every document
const Prompt = "Extract data from this receipt/invoice. Return JSON with " +
	"vendor (string), amount (number), date (YYYY-MM-DD), tax (number), " +
	"confidence (0-100), category (Materials, Equipment, Labor, Fuel, Other). " +
	"If tax is missing, use 0. If date is missing, leave empty string."

var requiredFields = []string{"vendor", "amount", "date", "tax", "confidence", "category"}

func categoryNames() []string {
	names := make([]string, 0, len(receipt.Categories))
	for _, c := range receipt.Categories {
		names = append(names, string(c))
	}
	return names
}

// openAISchema is the strict structured output schema for chat completions
func openAISchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"vendor":     {Type: jsonschema.String},
			"amount":     {Type: jsonschema.Number},
			"date":       {Type: jsonschema.String},
			"tax":        {Type: jsonschema.Number},
			"confidence": {Type: jsonschema.Number},
			"category":   {Type: jsonschema.String, Enum: categoryNames()},
		},
		Required:             requiredFields,
		AdditionalProperties: false,
	}
}

func geminiSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"vendor":     {Type: genai.TypeString},
			"amount":     {Type: genai.TypeNumber},
			"date":       {Type: genai.TypeString},
			"tax":        {Type: genai.TypeNumber},
			"confidence": {Type: genai.TypeNumber},
			"category":   {Type: genai.TypeString, Format: "enum", Enum: categoryNames()},
		},
		Required: requiredFields,
	}
}
