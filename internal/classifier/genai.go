package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAIClassifier implements Generator using the Gemini API with a JSON
// response schema, so the answer parses without prompt gymnastics.
type GenAIClassifier struct {
	client *genai.Client
	model  string
}

// NewGenAIClassifier creates a Gemini-backed classifier.
func NewGenAIClassifier(ctx context.Context, apiKey, model string) (*GenAIClassifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model == "" {
		model = "gemini-2.0-flash"
	}

	return &GenAIClassifier{client: client, model: model}, nil
}

type genaiCategory struct {
	Major string `json:"major"`
	Minor string `json:"minor"`
}

// ClassifyItem asks the model for a major/minor procurement category.
func (g *GenAIClassifier) ClassifyItem(ctx context.Context, name, spec string) (string, string, error) {
	prompt := fmt.Sprintf(
		"Classify the following purchase requisition item into a procurement category.\nItem name: %s\nSpecification: %s\nAnswer with a short major category and a short minor category.",
		name, spec,
	)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"major": {Type: genai.TypeString},
				"minor": {Type: genai.TypeString},
			},
			Required: []string{"major", "minor"},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", "", nil
	}

	var cat genaiCategory
	if err := json.Unmarshal([]byte(text), &cat); err != nil {
		return "", "", fmt.Errorf("parse category response: %w", err)
	}

	return strings.TrimSpace(cat.Major), strings.TrimSpace(cat.Minor), nil
}
