// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/tiktoken-go/tokenizer"
)

// ClassifyRequest carries one utterance and the tenant's candidate pool to
// the provider.
type ClassifyRequest struct {
	TenantID      string
	Utterance     string
	TenantContext string
	Candidates    []CandidateSummary
}

// CandidateSummary is the compact scenario view sent to the provider.
type CandidateSummary struct {
	ID          string `json:"id"`
	Intent      string `json:"intent"`
	Description string `json:"description"`
}

// ClassifyResult is the structured provider verdict.
type ClassifyResult struct {
	Matched    bool    `json:"matched"`
	ScenarioID string  `json:"scenario_id"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	TokensUsed int     `json:"tokens_used"`
	LatencyMs  int64   `json:"latency_ms"`
}

const classifySystemPrompt = `You match a caller utterance from a field-service phone call to one of the provided scenarios.
Respond with JSON only: {"matched": bool, "scenario_id": string, "confidence": number 0-1, "rationale": string}.
If no scenario fits, set matched to false.`

// Client calls the OpenAI-compatible Tier-3 provider, guarded by the tenant
// token budget and the circuit breaker. All failures surface as errors the
// cascade treats as "no match".
type Client struct {
	api     *openai.Client
	model   string
	budget  *Budget
	breaker *Breaker

	// encoder estimates prompt tokens for the budget pre-check. May be nil
	// when the encoding is unavailable; estimation then falls back to a
	// bytes/4 heuristic.
	encoder tokenizer.Codec
}

// NewClient creates a Tier-3 client. baseURL may be empty for the default
// endpoint.
func NewClient(baseURL, apiKey, model string, budget *Budget, breaker *Breaker) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	enc, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warnf("llm: tokenizer unavailable, falling back to heuristic estimates: %v", err)
		enc = nil
	}

	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		model:   model,
		budget:  budget,
		breaker: breaker,
		encoder: enc,
	}
}

// EstimateTokens estimates the token count of a prompt string.
func (c *Client) EstimateTokens(text string) int64 {
	if c.encoder != nil {
		if ids, _, err := c.encoder.Encode(text); err == nil {
			return int64(len(ids))
		}
	}
	return int64(len(text) / 4)
}

// Classify asks the provider to match the utterance to a candidate. The
// caller is expected to pass a context with the Tier-3 hard timeout already
// applied; Classify never retries.
func (c *Client) Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResult, error) {
	if !c.breaker.Allow() {
		return nil, ErrBreakerOpen
	}

	prompt := c.buildPrompt(req)
	estimate := c.EstimateTokens(classifySystemPrompt) + c.EstimateTokens(prompt)
	if !c.budget.Allow(req.TenantID, estimate) {
		return nil, ErrBudgetExceeded
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("llm: classify call failed: %w", err)
	}
	c.breaker.RecordSuccess()
	c.budget.Consume(req.TenantID, int64(resp.Usage.TotalTokens))

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: provider returned no choices")
	}

	result := parseClassifyJSON(resp.Choices[0].Message.Content)
	result.TokensUsed = resp.Usage.TotalTokens
	result.LatencyMs = latency
	return result, nil
}

// buildPrompt renders the utterance, tenant context, and candidate pool.
func (c *Client) buildPrompt(req ClassifyRequest) string {
	var sb strings.Builder
	sb.WriteString("Utterance: ")
	sb.WriteString(req.Utterance)
	sb.WriteString("\n")
	if req.TenantContext != "" {
		sb.WriteString("Business context: ")
		sb.WriteString(req.TenantContext)
		sb.WriteString("\n")
	}
	sb.WriteString("Scenarios:\n")
	for _, cand := range req.Candidates {
		fmt.Fprintf(&sb, "- id=%s intent=%s: %s\n", cand.ID, cand.Intent, cand.Description)
	}
	return sb.String()
}

// parseClassifyJSON parses the provider's JSON leniently. Models sometimes
// omit the matched flag while still returning a scenario id; that case is
// normalized to matched=true before decoding.
func parseClassifyJSON(raw string) *ClassifyResult {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "{"); i > 0 {
		raw = raw[i:]
	}
	if !gjson.Get(raw, "matched").Exists() && gjson.Get(raw, "scenario_id").String() != "" {
		raw, _ = sjson.Set(raw, "matched", true)
	}

	return &ClassifyResult{
		Matched:    gjson.Get(raw, "matched").Bool(),
		ScenarioID: gjson.Get(raw, "scenario_id").String(),
		Confidence: gjson.Get(raw, "confidence").Float(),
		Rationale:  gjson.Get(raw, "rationale").String(),
	}
}
