// Package pricing defines the immutable pricing table and the pure cost
// calculator for agent resource usage. Nothing in this package mutates
// ledger state; calculations are handed to the meter service to record.
package pricing

import "math"

// Unit identifies what kind of resource a calculation priced.
type Unit string

const (
	UnitTokens   Unit = "tokens"
	UnitToolCall Unit = "tool_call"
	UnitExternal Unit = "external_request"
	UnitPenalty  Unit = "penalty"
)

// Table holds per-unit costs and per-category multipliers. All amounts are
// integer currency units (cents). Loaded once at startup and shared by
// immutable reference across executions; never mutated after load.
type Table struct {
	// InputRate and OutputRate are currency units per 1000 tokens.
	InputRate  int64
	OutputRate int64

	// ToolPrices maps tool name to a fixed per-call price.
	// ToolBasePrice applies when a tool is absent from the map.
	ToolPrices    map[string]int64
	ToolBasePrice int64

	// ProviderPrices maps provider name to a fixed per-request price.
	// ProviderBasePrice applies when a provider is absent from the map.
	ProviderPrices    map[string]int64
	ProviderBasePrice int64

	// Multipliers maps agent category to a price scaling factor (>= 0).
	// Categories absent from the map use 1.0.
	Multipliers map[string]float64

	// PenaltyEnabled gates penalty charges globally.
	// PenaltyMultiplier scales penalties relative to current total spend.
	PenaltyEnabled    bool
	PenaltyMultiplier float64
}

// Calculation is the result of pricing one resource-usage fact.
type Calculation struct {
	Amount    int64            `json:"amount"`
	Unit      Unit             `json:"unit"`
	Breakdown map[string]int64 `json:"breakdown,omitempty"`
	Reason    string           `json:"reason"`
}

// Multiplier returns the category multiplier, defaulting to 1.0 for
// unknown categories.
func (t *Table) Multiplier(category string) float64 {
	if m, ok := t.Multipliers[category]; ok {
		return m
	}
	return 1.0
}

// AdjustedLimit scales a requested budget limit by the category multiplier,
// rounding up. Applied once at account creation.
func (t *Table) AdjustedLimit(requested int64, category string) int64 {
	return ceilScale(requested, t.Multiplier(category))
}

// TokenCost prices token usage: ceil(in/1000 * inputRate) plus
// ceil(out/1000 * outputRate), then the category multiplier, rounded up.
// The multiplier is applied once, at calculation time.
func (t *Table) TokenCost(inputTokens, outputTokens int64, category string) Calculation {
	inCost := ceilDiv(inputTokens*t.InputRate, 1000)
	outCost := ceilDiv(outputTokens*t.OutputRate, 1000)
	amount := ceilScale(inCost+outCost, t.Multiplier(category))
	return Calculation{
		Amount: amount,
		Unit:   UnitTokens,
		Breakdown: map[string]int64{
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
			"input_cost":    inCost,
			"output_cost":   outCost,
		},
		Reason: "token usage",
	}
}

// ToolCost prices one tool invocation by table lookup, falling back to the
// configured base price for unlisted tools.
func (t *Table) ToolCost(tool, category string) Calculation {
	price, ok := t.ToolPrices[tool]
	if !ok {
		price = t.ToolBasePrice
	}
	amount := ceilScale(price, t.Multiplier(category))
	return Calculation{
		Amount:    amount,
		Unit:      UnitToolCall,
		Breakdown: map[string]int64{"base_price": price},
		Reason:    "tool call: " + tool,
	}
}

// ExternalCost prices count requests to an external provider.
func (t *Table) ExternalCost(provider string, count int64, category string) Calculation {
	price, ok := t.ProviderPrices[provider]
	if !ok {
		price = t.ProviderBasePrice
	}
	amount := ceilScale(price*count, t.Multiplier(category))
	return Calculation{
		Amount: amount,
		Unit:   UnitExternal,
		Breakdown: map[string]int64{
			"base_price":    price,
			"request_count": count,
		},
		Reason: "external requests: " + provider,
	}
}

// PenaltyCost prices a penalty as ceil(currentSpend * penaltyMultiplier *
// severity). currentSpend is read at penalty time so penalties scale with
// how much has already been spent. Returns a zero calculation when
// penalties are disabled or severity is zero.
func (t *Table) PenaltyCost(currentSpend int64, severity float64) Calculation {
	calc := Calculation{Unit: UnitPenalty, Reason: "penalty"}
	if !t.PenaltyEnabled || severity == 0 {
		return calc
	}
	calc.Amount = int64(math.Ceil(float64(currentSpend) * t.PenaltyMultiplier * severity))
	calc.Breakdown = map[string]int64{"spend_at_penalty": currentSpend}
	return calc
}

// ceilDiv divides a by b rounding up. b must be positive.
func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// ceilScale multiplies an integer amount by a float factor, rounding up.
func ceilScale(amount int64, factor float64) int64 {
	if factor == 1.0 {
		return amount
	}
	return int64(math.Ceil(float64(amount) * factor))
}
