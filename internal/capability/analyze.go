package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/linnemanlabs/warden/internal/analysis"
	"github.com/linnemanlabs/warden/internal/backend"
)

// AnalyzeAlert is the full-analysis capability: confidence, risk
// assessment, recommended actions, and an auto-resolution recommendation.
type AnalyzeAlert struct {
	backend backend.Backend
}

// NewAnalyzeAlert creates the full-analysis capability.
func NewAnalyzeAlert(b backend.Backend) *AnalyzeAlert {
	return &AnalyzeAlert{backend: b}
}

func (a *AnalyzeAlert) Name() string { return CapAnalyzeAlert }

func (a *AnalyzeAlert) Description() string {
	return `Run a complete security analysis of an alert: confidence score, risk assessment
with contributing factors, recommended actions, and an auto-resolution recommendation.`
}

func (a *AnalyzeAlert) Schema() Schema {
	return Schema{
		Required: []string{"alert"},
		Properties: map[string]Property{
			"alert":           {Type: TypeObject, Description: "Alert record under triage"},
			"organization_id": {Type: TypeString},
			"user_id":         {Type: TypeString},
			"session_id":      {Type: TypeString},
		},
	}
}

const analyzeSystem = `You are a security operations analyst. Analyze the alert and respond with a
single JSON object:
{
  "confidence": 0-100,
  "riskAssessment": {
    "level": "low" | "medium" | "high" | "critical" | "unknown",
    "score": 0-10,
    "factors": [string]
  },
  "recommendedActions": {
    "immediate": [string],
    "followUp": [string]
  },
  "securityEventType": string,
  "summary": string,
  "autoResolutionRecommendation": {
    "shouldAutoResolve": bool,
    "confidenceLevel": 0-100,
    "resolutionType": "false_positive" | "resolved",
    "reasoning": string,
    "reviewRequired": bool,
    "escalationTrigger": string
  }
}

Score risk from the alert evidence only. Do not speculate beyond the data.`

func (a *AnalyzeAlert) Execute(ctx context.Context, params map[string]any) (*Output, error) {
	prompt, err := alertPrompt(params, "Perform a full security analysis of this alert.")
	if err != nil {
		return nil, err
	}

	comp, err := a.backend.Complete(ctx, &backend.Request{
		System: analyzeSystem,
		Prompt: prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	raw, err := backend.ExtractJSON(comp.Text)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	var result analysis.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("analyze: decode result: %w", err)
	}
	result.RiskAssessment.Level = analysis.ParseRiskLevel(string(result.RiskAssessment.Level))

	normalized, err := json.Marshal(&result)
	if err != nil {
		return nil, fmt.Errorf("analyze: encode result: %w", err)
	}

	return &Output{
		Result:       normalized,
		InputTokens:  comp.InputTokens,
		OutputTokens: comp.OutputTokens,
	}, nil
}
