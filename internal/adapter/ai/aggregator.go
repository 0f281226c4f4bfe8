package ai

import (
	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
)

// GatewayAggregator adapts a Gateway + Prompt Builder + Response
// Validator into the narrow usecase.Aggregator port the Termination
// Detector depends on.
type GatewayAggregator struct {
	Gateway *Gateway
}

// AggregateThemes issues the aggregation LLM call over concerns and
// returns validated theme counts.
func (a GatewayAggregator) AggregateThemes(ctx domain.Context, concerns []string) ([]domain.ThemeCount, error) {
	sys := BuildAggregationSystemPrompt()
	usr := BuildAggregationUserPrompt(concerns)
	raw, err := a.Gateway.ChatJSON(ctx, AggregationParams, sys, usr)
	if err != nil {
		return nil, err
	}
	themes, err := ValidateAggregation(raw)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ThemeCount, len(themes))
	for i, t := range themes {
		out[i] = domain.ThemeCount{Theme: t.Theme, Mentions: t.Mentions}
	}
	return out, nil
}
