package budget

import (
	"math"

	"github.com/inkmill/inkmill/internal/config"
)

// Usage unit estimation constants. Estimates feed admission checks only;
// actual billing always comes from the service's reported usage.
const (
	unitsPerWord      = 1.4 // rough tokens-per-word ratio for English prose
	promptOverhead    = 400 // input units consumed by prompts per call
	conclusionReserve = 1000
)

// ModelPrice is one row of the static price table.
type ModelPrice struct {
	ServiceModel    string
	InputPer1K      float64
	OutputPer1K     float64
	SingleCallLimit int
}

// PriceTable maps model names to their prices and call limits.
type PriceTable map[string]ModelPrice

// TableFromConfig builds the price table from the validated config.
func TableFromConfig(models map[string]config.Model) PriceTable {
	table := make(PriceTable, len(models))
	for name, m := range models {
		table[name] = ModelPrice{
			ServiceModel:    m.ServiceModel,
			InputPer1K:      m.InputPricePer1K,
			OutputPer1K:     m.OutputPricePer1K,
			SingleCallLimit: m.SingleCallLimit,
		}
	}
	return table
}

// Lookup returns the price row for a model.
func (pt PriceTable) Lookup(model string) (ModelPrice, bool) {
	p, ok := pt[model]
	return p, ok
}

// Cost converts actual billed usage units into a monetary cost.
func (pt PriceTable) Cost(model string, inputUnits, outputUnits int) float64 {
	p, ok := pt[model]
	if !ok {
		return 0
	}
	return float64(inputUnits)/1000*p.InputPer1K + float64(outputUnits)/1000*p.OutputPer1K
}

// Estimate projects the cost of generating up to maxLen words with the given
// model, derived from the requested target length and the price table. The
// projection covers every call segmented mode can issue: outline, sections,
// and conclusion.
func (pt PriceTable) Estimate(model string, maxLen, sectionSize int) float64 {
	p, ok := pt[model]
	if !ok {
		return 0
	}

	calls := 1
	outputUnits := float64(maxLen) * unitsPerWord
	if maxLen > p.SingleCallLimit && sectionSize > 0 {
		sections := int(math.Ceil(float64(maxLen) / float64(sectionSize)))
		calls = sections + 2 // outline and conclusion
		outputUnits += conclusionReserve * unitsPerWord
	}

	inputUnits := float64(calls * promptOverhead)
	return inputUnits/1000*p.InputPer1K + outputUnits/1000*p.OutputPer1K
}
