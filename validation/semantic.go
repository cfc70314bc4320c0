package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SemanticValidator checks a document against natural-language rules. It is
// an external, potentially slow, potentially unavailable collaborator; the
// pipeline treats an unconfigured validator as a skipped stage, not a
// failed one.
type SemanticValidator interface {
	// Configured reports whether the validator can be called at all.
	Configured() bool

	ValidateSemantic(ctx context.Context, document any, rules []string) (Result, error)
}

const systemPrompt = `You are a JSON validation expert. Analyze the provided JSON data against the custom rules and determine if it's valid.

Rules to validate:
%s

Respond with a JSON object containing:
- "is_valid": boolean
- "errors": list of error messages (empty if valid)
- "warnings": list of warning messages (optional)

Be thorough and check each rule carefully.`

// OpenAIValidator calls an OpenAI-compatible chat completions endpoint and
// asks the model to judge the document against the rules.
type OpenAIValidator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOpenAIValidator creates a semantic validator. An empty apiKey yields a
// validator that reports itself unconfigured, which the pipeline turns into
// a skipped stage.
func NewOpenAIValidator(apiKey string) *OpenAIValidator {
	return &OpenAIValidator{
		apiKey:  apiKey,
		model:   "gpt-3.5-turbo",
		baseURL: "https://api.openai.com/v1",
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// WithEndpoint overrides the model and base URL, for compatible providers
// and for tests.
func (v *OpenAIValidator) WithEndpoint(baseURL, model string) *OpenAIValidator {
	v.baseURL = strings.TrimSuffix(baseURL, "/")
	if model != "" {
		v.model = model
	}
	return v
}

// Configured reports whether an API key is present.
func (v *OpenAIValidator) Configured() bool {
	return v.apiKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type verdict struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// ValidateSemantic sends the document and rules to the model and parses its
// verdict. Transport failures are returned as errors; a verdict the model
// phrased as invalid comes back as a failed Result with its error list.
func (v *OpenAIValidator) ValidateSemantic(ctx context.Context, document any, rules []string) (Result, error) {
	docJSON, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("marshal document: %w", err)
	}

	var ruleLines strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&ruleLines, "- %s\n", r)
	}

	userPrompt := fmt.Sprintf(
		"JSON Data to validate:\n%s\n\nCustom Rules:\n%s\nPlease validate this JSON against the rules and provide your assessment.",
		docJSON, ruleLines.String())

	body, err := json.Marshal(chatRequest{
		Model: v.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, strings.Join(rules, "\n"))},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		v.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("semantic validation request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("semantic validator returned status %d: %s",
			resp.StatusCode, truncate(string(respBody), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil || len(chat.Choices) == 0 {
		return Result{}, fmt.Errorf("unexpected response shape from semantic validator")
	}

	var verdict verdict
	content := stripFences(chat.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return Result{
			Passed: false,
			Errors: []string{"Failed to parse LLM validation response"},
		}, nil
	}

	if verdict.IsValid {
		return Result{Passed: true, Errors: []string{}}, nil
	}
	if len(verdict.Errors) == 0 {
		verdict.Errors = []string{"Semantic validation failed"}
	}
	return Result{Passed: false, Errors: verdict.Errors}, nil
}

// stripFences removes a markdown code fence the model may wrap its JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
