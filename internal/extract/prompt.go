// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"

	"github.com/CDCThjnk/bioscrape/pkg/types"
)

// extractionPromptTmpl is the prompt sent to the Claude API for each
// biography. It pins the output to the same JSON shape the regex backend
// produces, so the two backends are interchangeable downstream.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`You are an information extraction system. You will be given a single biography as raw text. Extract the following fields and return ONLY a JSON object. If a field is missing in the text, return null (or [] for list fields). Do not infer facts not present in the text.

- degrees: list of degree strings like "Engineer-Physicist (Moscow Institute of Electronic Technology, 1989)"
- education: array of objects {institution, year (int or null), qualification}
- occupations: list of roles exactly as stated
- time_in_space: free text as stated (e.g. "124 days 23 hours 52 minutes")
- interests: list of hobby phrases exactly as mentioned (e.g. "water skiing")
- nationality: the literal Nationality value as stated
- age: integer age ONLY if explicitly present (e.g. "(age 59)"), otherwise null

Example response:
{"degrees": [], "education": [], "occupations": ["Cosmonaut"], "time_in_space": null, "interests": ["tourism"], "nationality": "Russian", "age": 59}

Biography:
{{.Text}}
`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeBackend calls the Claude API to extract a profile from one
// biography. The API key comes from configuration; it is never embedded
// in source.
type ClaudeBackend struct {
	APIKey string
	Model  string
	Client *http.Client
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

// claudeMessage is a single message in the Claude API conversation.
type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

// claudeContent is a content block in the Claude API response.
type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Extract calls the Claude API with the extraction prompt for one biography.
func (c *ClaudeBackend) Extract(ctx context.Context, text string) (*types.Profile, error) {
	prompt, err := renderPrompt(text)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	reqBody := claudeRequest{
		Model:     c.Model,
		MaxTokens: 4096,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return nil, fmt.Errorf("decoding Claude response: %w", err)
	}

	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		profile := types.NewProfile()
		if err := json.Unmarshal([]byte(block.Text), profile); err != nil {
			return nil, fmt.Errorf("parsing profile JSON: %w", err)
		}
		ensureLists(profile)
		return profile, nil
	}

	return nil, fmt.Errorf("no text content in Claude API response")
}

// ensureLists restores the never-null invariant for list fields after
// unmarshaling, in case the model returned explicit nulls.
func ensureLists(p *types.Profile) {
	if p.Degrees == nil {
		p.Degrees = []string{}
	}
	if p.Education == nil {
		p.Education = []types.EducationEntry{}
	}
	if p.Occupations == nil {
		p.Occupations = []string{}
	}
	if p.Interests == nil {
		p.Interests = []string{}
	}
}

// renderPrompt executes the extraction prompt template with the biography text.
func renderPrompt(text string) (string, error) {
	var buf bytes.Buffer
	if err := extractionPromptTmpl.Execute(&buf, struct{ Text string }{Text: text}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
