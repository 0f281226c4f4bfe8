package ai

import (
	"encoding/json"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
)

// PersonaOut is one element of a validated persona-batch response.
type PersonaOut struct {
	Name                string `json:"name"`
	DetailedDescription string `json:"detailed_description"`
	ProductAttitudes    string `json:"product_attitudes"`
}

// FeedbackOut is a validated feedback response object.
type FeedbackOut struct {
	Feedback       string   `json:"feedback"`
	PurchaseIntent int      `json:"purchase_intent"`
	KeyConcerns    []string `json:"key_concerns"`
}

// ThemeOut is one element of a validated aggregation response.
type ThemeOut struct {
	Theme    string `json:"theme"`
	Mentions int    `json:"mentions"`
}

// invalidAIResponse is the permanent classification every validator
// function returns on schema violation (§4.5).
func invalidAIResponse(msg string) error {
	return domain.NewAppError(domain.CodeInvalidAIResponse, msg)
}

// ValidatePersonaBatch parses and validates a persona-batch JSON
// array. Per the documented tolerant policy (SPEC_FULL §4.5): array
// length >= 1 is accepted; callers truncate extras beyond the
// requested count and treat a short array as partial success.
func ValidatePersonaBatch(raw string) ([]PersonaOut, error) {
	var out []PersonaOut
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, invalidAIResponse("persona batch is not a JSON array")
	}
	if len(out) < 1 {
		return nil, invalidAIResponse("persona batch array is empty")
	}
	for _, p := range out {
		if p.Name == "" || p.DetailedDescription == "" {
			return nil, invalidAIResponse("persona element missing name or detailed_description")
		}
	}
	return out, nil
}

// ValidateFeedback parses and validates a feedback JSON object (§4.5).
func ValidateFeedback(raw string) (FeedbackOut, error) {
	var out FeedbackOut
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return FeedbackOut{}, invalidAIResponse("feedback is not a JSON object")
	}
	if out.Feedback == "" {
		return FeedbackOut{}, invalidAIResponse("feedback field missing or empty")
	}
	if out.PurchaseIntent < 1 || out.PurchaseIntent > 10 {
		return FeedbackOut{}, invalidAIResponse("purchase_intent out of range [1,10]")
	}
	if len(out.KeyConcerns) < 2 || len(out.KeyConcerns) > 4 {
		return FeedbackOut{}, invalidAIResponse("key_concerns length out of range [2,4]")
	}
	return out, nil
}

// ValidateAggregation parses and validates an aggregation JSON array
// (§4.5): length in [5,7], each element with a non-empty theme and a
// mentions integer of at least 1.
func ValidateAggregation(raw string) ([]ThemeOut, error) {
	var out []ThemeOut
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, invalidAIResponse("aggregation is not a JSON array")
	}
	if len(out) < 5 || len(out) > 7 {
		return nil, invalidAIResponse("aggregation array length out of range [5,7]")
	}
	for _, t := range out {
		if t.Theme == "" || t.Mentions < 1 {
			return nil, invalidAIResponse("aggregation element missing theme or mentions < 1")
		}
	}
	return out, nil
}
