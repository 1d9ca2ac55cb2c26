package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/tripweave/tripweave/internal/resolve"
)

const defaultModel = "gemini-2.0-flash"

// CityInferrer asks Gemini which city a free-text place/destination belongs
// to. It is the deepest fallback in the resolution waterfall, only consulted
// when both local matching and geocoding came up empty.
type CityInferrer struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewCityInferrer(ctx context.Context, logger *slog.Logger) (*CityInferrer, error) {
	apiKey := os.Getenv("GOOGLE_GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_GEMINI_API_KEY environment variable is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	model := defaultModel
	if m := os.Getenv("GEMINI_MODEL"); m != "" {
		model = m
	}
	return &CityInferrer{client: client, model: model, logger: logger}, nil
}

const inferPrompt = `You are a travel data normalizer. Given the free-text location below,
identify the city it refers to or belongs to. Respond with ONLY a JSON object, no prose:
{"city": "...", "state": "...", "country": "...", "country_code": "ISO 3166-1 alpha-2"}
Use empty strings for anything you cannot determine. Location: %q`

// InferCity returns a descriptor for the city the text most likely refers to.
// An empty city in the model's answer yields a zero descriptor, which callers
// treat as a soft miss.
func (c *CityInferrer) InferCity(ctx context.Context, location string) (resolve.Descriptor, error) {
	var d resolve.Descriptor
	if location == "" {
		return d, nil
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(fmt.Sprintf(inferPrompt, location)),
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0.0),
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		return d, fmt.Errorf("failed to generate city inference: %w", err)
	}

	text := cleanJSONResponse(result.Text())
	var parsed struct {
		City        string `json:"city"`
		State       string `json:"state"`
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return d, fmt.Errorf("failed to parse city inference JSON: %w", err)
	}

	d.CityName = parsed.City
	d.State = parsed.State
	d.CountryName = parsed.Country
	d.CountryCode = parsed.CountryCode
	c.logger.DebugContext(ctx, "AI city inference",
		slog.String("location", location),
		slog.String("city", d.CityName),
		slog.String("country", d.CountryName),
	)
	return d, nil
}

// cleanJSONResponse strips markdown code fences some model responses wrap
// around the JSON payload.
func cleanJSONResponse(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
