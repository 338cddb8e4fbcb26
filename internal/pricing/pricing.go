// Package pricing translates completion-API token usage into monetary cost.
//
// Each supported model is described by a Model value carrying both its price
// shape and the completion endpoint it is served from, so callers resolve a
// model name exactly once instead of re-branching on strings at every call
// site. Two price shapes exist: a flat rate per 1000 total tokens, and a
// tiered pair of rates for prompt vs. completion tokens.
//
// Lookups are strict: a model name that is not in the catalog yields
// ErrUnknownModel. There is deliberately no default branch — models without
// a published token price (for example locally hosted ones) must not be
// silently billed at another model's rate.
package pricing

import (
	"errors"
	"sort"
)

// ErrUnknownModel is returned when a model name has no pricing entry.
var ErrUnknownModel = errors.New("unknown model pricing")

// Model describes one completion model: its identity, price shape, and the
// backend endpoint path it is routed to.
type Model struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"` // path on the completion backend, e.g. "/chat/gpt4"

	// Tiered selects the price shape. Flat models charge FlatPer1K per 1000
	// total tokens; tiered models charge PromptPer1K and CompletionPer1K per
	// 1000 prompt/completion tokens respectively.
	Tiered          bool    `json:"tiered"`
	FlatPer1K       float64 `json:"flat_per_1k,omitempty"`
	PromptPer1K     float64 `json:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `json:"completion_per_1k,omitempty"`
}

// Price computes the cost of one exchange from the usage figures reported by
// the completion backend.
func (m Model) Price(promptTokens, completionTokens, totalTokens int) float64 {
	if m.Tiered {
		return (float64(promptTokens)*m.PromptPer1K + float64(completionTokens)*m.CompletionPer1K) / 1000
	}
	return float64(totalTokens) * m.FlatPer1K / 1000
}

// catalog is the closed set of billable models. New models are added here,
// never inferred.
var catalog = map[string]Model{
	"gpt-3.5-turbo": {
		Name:      "gpt-3.5-turbo",
		Endpoint:  "/chat/gpt3",
		FlatPer1K: 0.002,
	},
	"gpt-4": {
		Name:            "gpt-4",
		Endpoint:        "/chat/gpt4",
		Tiered:          true,
		PromptPer1K:     0.03,
		CompletionPer1K: 0.06,
	},
	"gpt-4-1106-preview": {
		Name:            "gpt-4-1106-preview",
		Endpoint:        "/chat/gpt4",
		Tiered:          true,
		PromptPer1K:     0.03,
		CompletionPer1K: 0.06,
	},
}

// Lookup resolves a model name to its catalog entry. Unknown names fail with
// ErrUnknownModel rather than falling back to any default rate.
func Lookup(name string) (Model, error) {
	m, ok := catalog[name]
	if !ok {
		return Model{}, ErrUnknownModel
	}
	return m, nil
}

// Price is a convenience wrapper combining Lookup and Model.Price.
func Price(model string, promptTokens, completionTokens, totalTokens int) (float64, error) {
	m, err := Lookup(model)
	if err != nil {
		return 0, err
	}
	return m.Price(promptTokens, completionTokens, totalTokens), nil
}

// Accumulate adds one exchange's cost onto a running total. Totals are only
// ever advanced this way during normal operation; they are verified against a
// from-scratch sum when a room is rehydrated.
func Accumulate(runningTotal, cost float64) float64 {
	return runningTotal + cost
}

// Models returns the catalog entries sorted by name, for the model listing
// endpoint.
func Models() []Model {
	out := make([]Model, 0, len(catalog))
	for _, m := range catalog {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
