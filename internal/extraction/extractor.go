// Package extraction wraps the AI model that turns statement PDFs into
// candidate transactions. The rest of the system depends only on the
// StatementExtractor contract: decrypted document bytes in, an ordered list
// of candidates out.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// StatementExtractor is the typed contract with the extraction collaborator.
type StatementExtractor interface {
	Extract(ctx context.Context, pdfBytes []byte) ([]domain.TransactionInput, error)
}

// CategorySource supplies the category taxonomy offered to the model.
type CategorySource interface {
	ListCategoryNames(ctx context.Context) ([]string, error)
}

// GeminiExtractor extracts transactions with a Gemini vision model.
type GeminiExtractor struct {
	model      string
	categories CategorySource
}

// NewGeminiExtractor creates an extractor using the given model name.
// categories may be nil, in which case the model chooses freely.
func NewGeminiExtractor(model string, categories CategorySource) *GeminiExtractor {
	return &GeminiExtractor{model: model, categories: categories}
}

// Extract sends the PDF to the model and returns the parsed candidates.
// It expects the model to return a STRICT JSON array of transactions.
func (e *GeminiExtractor) Extract(ctx context.Context, pdfBytes []byte) ([]domain.TransactionInput, error) {
	prompt, err := e.buildPrompt(ctx)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: "application/pdf",
						Data:     pdfBytes,
					},
				},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("extraction: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("extraction: empty response from model")
	}

	clean := cleanModelJSON(rawText)

	var parsed []interface{}
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, fmt.Errorf("extraction: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}

	return transformCandidates(parsed)
}

func (e *GeminiExtractor) buildPrompt(ctx context.Context) (string, error) {
	catPrompt := ""
	if e.categories != nil {
		names, err := e.categories.ListCategoryNames(ctx)
		if err != nil {
			return "", fmt.Errorf("extraction: loading categories: %w", err)
		}
		if len(names) > 0 {
			catPrompt = "Predefined categories (use one of these, or null):\n- " +
				strings.Join(names, "\n- ") + "\n"
		}
	}
	return basePrompt + "\n" + catPrompt + "\n" + rulesPrompt, nil
}

// cleanModelJSON strips Markdown fences and surrounding junk if the model
// ignored the strict-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// If there's still junk around the JSON array, keep only from the first
	// '[' to the last ']'.
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
