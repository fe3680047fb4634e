// Package backend defines the model backend collaborator: a black box
// that turns a prompt into structured JSON. Latency and failure modes are
// opaque to the rest of warden and surface as ordinary execution failures.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Request is a single completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int64
}

// Completion is the model's reply plus token accounting.
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Backend is the interface any model provider must implement.
type Backend interface {
	Complete(ctx context.Context, req *Request) (*Completion, error)
}

// ExtractJSON pulls the first JSON object out of model output. Models
// wrap payloads in prose or markdown fences often enough that capabilities
// must not assume the reply is bare JSON.
func ExtractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)

	// strip a markdown code fence if present
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	candidate := s[start : end+1]

	if !gjson.Valid(candidate) {
		return nil, fmt.Errorf("model output is not valid JSON")
	}
	return json.RawMessage(candidate), nil
}
