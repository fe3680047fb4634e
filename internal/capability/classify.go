package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/linnemanlabs/warden/internal/analysis"
	"github.com/linnemanlabs/warden/internal/backend"
)

// ClassifyAlert produces a security event type and a tag set for an alert.
type ClassifyAlert struct {
	backend backend.Backend
}

// NewClassifyAlert creates the classification capability.
func NewClassifyAlert(b backend.Backend) *ClassifyAlert {
	return &ClassifyAlert{backend: b}
}

func (c *ClassifyAlert) Name() string { return CapClassifyAlert }

func (c *ClassifyAlert) Description() string {
	return `Classify a security alert: assign a security event type, generate correlation
tags, and estimate how useful the alert is for cross-alert correlation.`
}

func (c *ClassifyAlert) Schema() Schema {
	return Schema{
		Required: []string{"alert"},
		Properties: map[string]Property{
			"alert":           {Type: TypeObject, Description: "Alert record to classify"},
			"force_refresh":   {Type: TypeBoolean, Description: "Re-classify even if tags already exist"},
			"organization_id": {Type: TypeString},
			"user_id":         {Type: TypeString},
			"session_id":      {Type: TypeString},
		},
	}
}

const classifySystem = `You are a security event classifier. Respond with a single JSON object:
{
  "securityEventType": string,
  "tags": [string],
  "confidence": 0-100,
  "correlationPotential": "low" | "medium" | "high",
  "reasoning": string
}

Tags should be short, lowercase, and reusable across alerts (e.g. "brute-force",
"lateral-movement", "credential-access").`

func (c *ClassifyAlert) Execute(ctx context.Context, params map[string]any) (*Output, error) {
	prompt, err := alertPrompt(params, "Classify this security alert.")
	if err != nil {
		return nil, err
	}

	comp, err := c.backend.Complete(ctx, &backend.Request{
		System: classifySystem,
		Prompt: prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	raw, err := backend.ExtractJSON(comp.Text)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	var result analysis.Classification
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("classify: decode result: %w", err)
	}
	normalized, err := json.Marshal(&result)
	if err != nil {
		return nil, fmt.Errorf("classify: encode result: %w", err)
	}

	return &Output{
		Result:       normalized,
		InputTokens:  comp.InputTokens,
		OutputTokens: comp.OutputTokens,
	}, nil
}
