// Package openrouter calls an OpenAI-compatible chat-completions API to
// turn combined email and OCR text into a structured ledger entry. The
// model runs in two stages: entity extraction, then categorization.
// Model output is untrusted; every response is schema-validated and
// malformed responses are retried against a fixed budget.
package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/earlybird-ai/finledger/internal/core/domain"
	"github.com/earlybird-ai/finledger/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	ParseRetries int
	Executor     *resilience.Executor
}

func (c Config) normalize() Config {
	out := c
	if out.BaseURL == "" {
		out.BaseURL = "https://openrouter.ai/api/v1"
	}
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	if out.ParseRetries <= 0 {
		out.ParseRetries = 3
	}
	return out
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	cfg = cfg.normalize()
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type extraction struct {
	Text        string  `json:"text"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Vendor      string  `json:"vendor"`
	Type        string  `json:"type"`
	ReferenceID string  `json:"reference_id"`
}

type categorization struct {
	Label string `json:"label"`
}

func (c *Client) Classify(ctx context.Context, text, hintDate string) (domain.LedgerEntry, error) {
	rawEntities, err := c.completeJSON(ctx, "classifier.extract", extractionMessages(text, hintDate), extractionSchema)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	var ex extraction
	if err := json.Unmarshal(rawEntities, &ex); err != nil {
		return domain.LedgerEntry{}, domain.WrapError(domain.ErrMalformedResponse, "decode extraction", err)
	}

	rawLabel, err := c.completeJSON(ctx, "classifier.categorize", categorizationMessages(text), labelSchema)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	var cat categorization
	if err := json.Unmarshal(rawLabel, &cat); err != nil {
		return domain.LedgerEntry{}, domain.WrapError(domain.ErrMalformedResponse, "decode categorization", err)
	}

	return domain.LedgerEntry{
		Text:        strings.TrimSpace(ex.Text),
		Date:        strings.TrimSpace(ex.Date),
		Amount:      ex.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(ex.Currency)),
		Vendor:      strings.TrimSpace(ex.Vendor),
		Type:        domain.TransactionType(strings.TrimSpace(ex.Type)),
		ReferenceID: strings.TrimSpace(ex.ReferenceID),
		Label:       strings.TrimSpace(cat.Label),
	}, nil
}

// completeJSON runs one chat completion and returns the first valid
// JSON object in the response. Transport failures go through the
// resilience executor; parse failures are retried with the same input
// and surface as ErrMalformedResponse once the budget is spent.
func (c *Client) completeJSON(ctx context.Context, operation string, messages []chatMessage, schema map[string]any) (json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ParseRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := c.complete(ctx, operation, messages)
		if err != nil {
			return nil, err
		}

		raw, err := extractJSONObject(content)
		if err == nil {
			if err = validateAgainstSchema(schema, raw); err == nil {
				return raw, nil
			}
		}
		lastErr = err
	}
	return nil, domain.WrapError(domain.ErrMalformedResponse, operation, fmt.Errorf("after %d attempts: %w", c.cfg.ParseRetries, lastErr))
}

func (c *Client) complete(ctx context.Context, operation string, messages []chatMessage) (string, error) {
	request := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   4096,
		Temperature: 0.1,
	}

	var response chatResponse
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/chat/completions", request, &response, operation)
	}

	var err error
	if c.cfg.Executor != nil {
		err = c.cfg.Executor.Execute(ctx, operation, call, classifyTransportError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", domain.WrapError(domain.ErrMalformedResponse, operation, fmt.Errorf("no choices in response"))
	}
	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return "", domain.WrapError(domain.ErrMalformedResponse, operation, fmt.Errorf("empty response content"))
	}
	return content, nil
}

// extractJSONObject tolerates fenced or chatty model replies and pulls
// out the first balanced top-level object.
func extractJSONObject(raw string) (json.RawMessage, error) {
	raw = stripFences(raw)

	start := strings.Index(raw, "{")
	if start < 0 {
		return nil, fmt.Errorf("no json object in response")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				candidate := raw[start : i+1]
				if !json.Valid([]byte(candidate)) {
					return nil, fmt.Errorf("unparseable json object in response")
				}
				return json.RawMessage(candidate), nil
			}
		}
	}
	return nil, fmt.Errorf("unbalanced json object in response")
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}
