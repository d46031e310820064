package trainer

import (
	"time"

	"github.com/quantfoundry/foresight/internal/contracts"
)

// dataset is an assembled, labeled slice of evaluated pairs ready for
// fitting or scoring. Row order follows the pair order (oldest first).
type dataset struct {
	X       [][]float64
	values  []map[string]float64
	labels  []contracts.PredictedAction
	up      []int // 1 when the realized return is positive
	returns []float64
	skipped int // quarantined, schema-mismatched or past the bound
}

func (d dataset) classCounts() map[contracts.PredictedAction]int {
	counts := make(map[contracts.PredictedAction]int)
	for _, l := range d.labels {
		counts[l]++
	}
	return counts
}

// deriveSchema builds the feature schema from the first usable pair. Every
// subsequent row must match it or is dropped during assembly.
func deriveSchema(pairs []contracts.EvaluatedPair) (contracts.FeatureSchema, error) {
	if len(pairs) == 0 {
		return contracts.FeatureSchema{}, &contracts.InsufficientTrainingDataError{Got: 0, Need: 1}
	}

	fv := pairs[0].Prediction.Features
	version := fv.SchemaVersion
	if version == "" {
		version = "v1"
	}

	names := make([]string, 0, len(fv.Values))
	for name := range fv.Values {
		names = append(names, name)
	}
	return contracts.NewFeatureSchema(version, names), nil
}

// assemble turns evaluated pairs into a labeled dataset. Rows are dropped,
// never repaired: quarantined predictions, vectors that fail the schema, and
// any row whose prediction timestamp is not strictly before the bound.
func assemble(pairs []contracts.EvaluatedPair, schema contracts.FeatureSchema, quarantined map[string]struct{}, before time.Time, thresholds LabelThresholds) dataset {
	var d dataset

	for _, pair := range pairs {
		p := pair.Prediction

		if !p.PredictionTimestamp.Before(before) {
			d.skipped++
			continue
		}
		if _, held := quarantined[p.ID]; held {
			d.skipped++
			continue
		}
		if err := schema.Validate(p.Features); err != nil {
			d.skipped++
			continue
		}

		ret := pair.Outcome.ActualReturnPct

		d.X = append(d.X, schema.Vectorize(p.Features.Values))
		d.values = append(d.values, p.Features.Values)
		d.labels = append(d.labels, thresholds.Label(ret))
		d.returns = append(d.returns, ret)
		if ret > 0 {
			d.up = append(d.up, 1)
		} else {
			d.up = append(d.up, 0)
		}
	}
	return d
}
