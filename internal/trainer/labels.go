package trainer

import "github.com/quantfoundry/foresight/internal/contracts"

// LabelThresholds map realized signed returns to action classes. They exist
// only at training time; stored predictions and outcomes never carry labels.
type LabelThresholds struct {
	StrongPct float64 // |return| at or above this is a STRONG class
	WeakPct   float64 // |return| at or above this is BUY or SELL
}

// Label assigns the action class for a realized return pct.
func (t LabelThresholds) Label(returnPct float64) contracts.PredictedAction {
	switch {
	case returnPct >= t.StrongPct:
		return contracts.ActionStrongBuy
	case returnPct >= t.WeakPct:
		return contracts.ActionBuy
	case returnPct <= -t.StrongPct:
		return contracts.ActionStrongSell
	case returnPct <= -t.WeakPct:
		return contracts.ActionSell
	default:
		return contracts.ActionHold
	}
}
