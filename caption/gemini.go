package caption

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultModel = "gemini-pro"

// GeminiGenerator calls the Google Generative Language REST API. Every call
// is bounded by Timeout so a slow generator cannot stall a completion.
type GeminiGenerator struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

// NewGeminiGenerator returns a generator with the given API key and a
// per-call timeout. A non-positive timeout defaults to 10 seconds.
func NewGeminiGenerator(apiKey string, timeout time.Duration) *GeminiGenerator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GeminiGenerator{
		APIKey:  apiKey,
		Model:   defaultModel,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Timeout: timeout,
		Client:  &http.Client{},
	}
}

type generateContentRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate builds the prompt and performs one API call. It returns an error
// on transport or API failure and on an empty candidate list; the caller is
// expected to fall back.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	body, err := json.Marshal(generateContentRequest{
		Contents: []content{{Parts: []part{{Text: buildPrompt(req)}}}},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.BaseURL, g.Model, g.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("caption generator returned status %d", resp.StatusCode)
	}

	var decoded generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("caption generator returned no candidates")
	}

	caption := strings.TrimSpace(decoded.Candidates[0].Content.Parts[0].Text)
	if caption == "" {
		return "", errors.New("caption generator returned an empty caption")
	}
	return caption, nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Create an engaging and motivational social media caption for someone who just completed their habit.\n\n")
	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- Habit: %s\n", req.HabitTitle)
	fmt.Fprintf(&b, "- Category: %s\n", req.CategoryName)
	fmt.Fprintf(&b, "- Frequency: %s\n", req.Occurrence)
	if req.Notes != "" {
		fmt.Fprintf(&b, "- Additional notes: %s\n", req.Notes)
	}
	b.WriteString("\nRequirements:\n")
	b.WriteString("- Keep it under 100 characters\n")
	b.WriteString("- Make it motivational and inspiring\n")
	b.WriteString("- Make it feel authentic and personal\n")
	b.WriteString("- Use hashtags sparingly (1-2 max)\n")
	return b.String()
}
