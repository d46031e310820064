package contracts

import "time"

// ViolationCategory classifies a temporal-integrity violation.
type ViolationCategory string

const (
	// ViolationLeakage: a feature snapshot contains values collected after
	// the prediction timestamp.
	ViolationLeakage ViolationCategory = "LEAKAGE"

	// ViolationFutureTimestamp: a stored timestamp is later than now.
	ViolationFutureTimestamp ViolationCategory = "FUTURE_TIMESTAMP"

	// ViolationMinDelay: an outcome was evaluated before MinEvalDelay elapsed.
	ViolationMinDelay ViolationCategory = "MIN_DELAY"

	// ViolationDuplicate: two predictions share a (symbol, bucket).
	ViolationDuplicate ViolationCategory = "DUPLICATE"

	// ViolationReferential: an outcome's prediction_id does not resolve.
	ViolationReferential ViolationCategory = "REFERENTIAL"
)

// ViolationSeverity ranks violations. Critical violations fail closed: the
// evaluator and trainer refuse to run. High violations quarantine the
// offending rows from downstream work and are reported.
type ViolationSeverity string

const (
	SeverityCritical ViolationSeverity = "CRITICAL"
	SeverityHigh     ViolationSeverity = "HIGH"
)

// Severity maps a category to its fixed severity. Future timestamps are a
// form of leakage and rank critical.
func (c ViolationCategory) Severity() ViolationSeverity {
	switch c {
	case ViolationLeakage, ViolationFutureTimestamp, ViolationMinDelay:
		return SeverityCritical
	default:
		return SeverityHigh
	}
}

// Violation is a single audited defect, tied to the rows that carry it.
type Violation struct {
	Category     ViolationCategory `json:"category"`
	Severity     ViolationSeverity `json:"severity"`
	PredictionID string            `json:"prediction_id,omitempty"`
	OutcomeID    string            `json:"outcome_id,omitempty"`
	Symbol       string            `json:"symbol,omitempty"`
	Message      string            `json:"message"`
}

// AuditReport is the result of one guard pass over a ledger window. The
// guard never mutates data; remediation is an explicit operator action.
type AuditReport struct {
	From               time.Time   `json:"from"`
	To                 time.Time   `json:"to"`
	PredictionsChecked int         `json:"predictions_checked"`
	OutcomesChecked    int         `json:"outcomes_checked"`
	Violations         []Violation `json:"violations"`
	GeneratedAt        time.Time   `json:"generated_at"`
}

// Passed reports whether the window is free of violations of any severity.
func (r *AuditReport) Passed() bool {
	return len(r.Violations) == 0
}

// CriticalCount returns the number of critical violations.
func (r *AuditReport) CriticalCount() int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// HasCritical reports whether the window contains any critical violation.
func (r *AuditReport) HasCritical() bool {
	return r.CriticalCount() > 0
}

// QuarantinedPredictions returns the prediction ids implicated in
// high-severity violations. Downstream dataset assembly excludes them for
// the run without fixing or deleting anything.
func (r *AuditReport) QuarantinedPredictions() map[string]struct{} {
	out := make(map[string]struct{})
	for _, v := range r.Violations {
		if v.Severity == SeverityHigh && v.PredictionID != "" {
			out[v.PredictionID] = struct{}{}
		}
	}
	return out
}
