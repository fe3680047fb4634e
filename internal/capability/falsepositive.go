package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/linnemanlabs/warden/internal/analysis"
	"github.com/linnemanlabs/warden/internal/backend"
)

// FalsePositiveDetect is the pre-screen capability: a cheap check for
// alerts that match known benign patterns, run before full analysis.
type FalsePositiveDetect struct {
	backend backend.Backend
}

// NewFalsePositiveDetect creates the pre-screen capability.
func NewFalsePositiveDetect(b backend.Backend) *FalsePositiveDetect {
	return &FalsePositiveDetect{backend: b}
}

func (f *FalsePositiveDetect) Name() string { return CapDetectFalsePositive }

func (f *FalsePositiveDetect) Description() string {
	return `Pre-screen a security alert against known benign patterns. Returns a false-positive
verdict with confidence and, when warranted, an auto-resolution recommendation.`
}

func (f *FalsePositiveDetect) Schema() Schema {
	return Schema{
		Required: []string{"alert"},
		Properties: map[string]Property{
			"alert":              {Type: TypeObject, Description: "Alert record under triage"},
			"historical_context": {Type: TypeArray, Description: "Prior detections for the same source, newest first"},
			"organization_id":    {Type: TypeString},
			"user_id":            {Type: TypeString},
			"session_id":         {Type: TypeString},
		},
	}
}

const falsePositiveSystem = `You are a security operations pre-screening assistant. You decide whether
an alert is a false positive that can be closed without analyst review.

Respond with a single JSON object:
{
  "isFalsePositive": bool,
  "confidence": 0-100,
  "detectionPatterns": [string],
  "reasoning": string,
  "recommendation": {
    "shouldAutoResolve": bool,
    "confidenceLevel": 0-100,
    "resolutionType": "false_positive" | "resolved",
    "reasoning": string,
    "reviewRequired": bool
  }
}

Only recommend auto-resolution when the benign pattern is unambiguous.`

func (f *FalsePositiveDetect) Execute(ctx context.Context, params map[string]any) (*Output, error) {
	prompt, err := alertPrompt(params, "Pre-screen this alert for false-positive patterns.")
	if err != nil {
		return nil, err
	}

	comp, err := f.backend.Complete(ctx, &backend.Request{
		System: falsePositiveSystem,
		Prompt: prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("pre-screen: %w", err)
	}

	raw, err := backend.ExtractJSON(comp.Text)
	if err != nil {
		return nil, fmt.Errorf("pre-screen: %w", err)
	}

	// round-trip through the typed struct to drop anything off-schema
	var result analysis.FalsePositiveResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("pre-screen: decode result: %w", err)
	}
	normalized, err := json.Marshal(&result)
	if err != nil {
		return nil, fmt.Errorf("pre-screen: encode result: %w", err)
	}

	return &Output{
		Result:       normalized,
		InputTokens:  comp.InputTokens,
		OutputTokens: comp.OutputTokens,
	}, nil
}

// alertPrompt renders the merged parameters into a prompt body. The alert
// payload travels as JSON so the model sees exactly what the store holds.
func alertPrompt(params map[string]any, instruction string) (string, error) {
	al, ok := params["alert"]
	if !ok {
		return "", fmt.Errorf("missing alert parameter")
	}
	alertJSON, err := json.MarshalIndent(al, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode alert: %w", err)
	}

	prompt := fmt.Sprintf("%s\n\nAlert:\n%s\n", instruction, alertJSON)

	if hist, ok := params["historical_context"]; ok {
		histJSON, err := json.MarshalIndent(hist, "", "  ")
		if err == nil && string(histJSON) != "null" {
			prompt += fmt.Sprintf("\nHistorical context:\n%s\n", histJSON)
		}
	}
	return prompt, nil
}
