package contracts

import (
	"sort"
	"time"
)

// FeatureVector is the typed feature record handed to the prediction engine.
// CollectedAt is the wall-clock time of feature collection and becomes the
// prediction timestamp. CollectedTimes optionally carries per-feature
// collection timestamps; the integrity guard uses them to detect features
// that postdate the prediction.
type FeatureVector struct {
	Symbol         string               `json:"symbol"`
	CollectedAt    time.Time            `json:"collected_at"`
	SchemaVersion  string               `json:"schema_version"`
	Values         map[string]float64   `json:"values"`
	CollectedTimes map[string]time.Time `json:"collected_times,omitempty"`
}

// FeatureSchema names and orders the features a model bundle was trained on.
// Every bundle is tied to the exact schema it was fitted against; inference
// rejects vectors that do not match.
type FeatureSchema struct {
	Version string   `json:"version"`
	Names   []string `json:"names"`
}

// NewFeatureSchema builds a schema with deterministic feature order.
func NewFeatureSchema(version string, names []string) FeatureSchema {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	return FeatureSchema{Version: version, Names: sorted}
}

// Validate checks a feature vector against the schema. It returns a
// *FeatureSchemaError naming every missing and unexpected feature, or nil.
func (s FeatureSchema) Validate(fv FeatureVector) error {
	schemaErr := &FeatureSchemaError{SchemaVersion: s.Version}

	if fv.SchemaVersion != "" && fv.SchemaVersion != s.Version {
		schemaErr.VersionMismatch = fv.SchemaVersion
	}

	for _, name := range s.Names {
		if _, ok := fv.Values[name]; !ok {
			schemaErr.Missing = append(schemaErr.Missing, name)
		}
	}

	known := make(map[string]struct{}, len(s.Names))
	for _, name := range s.Names {
		known[name] = struct{}{}
	}
	for name := range fv.Values {
		if _, ok := known[name]; !ok {
			schemaErr.Unexpected = append(schemaErr.Unexpected, name)
		}
	}
	sort.Strings(schemaErr.Missing)
	sort.Strings(schemaErr.Unexpected)

	if schemaErr.VersionMismatch != "" || len(schemaErr.Missing) > 0 || len(schemaErr.Unexpected) > 0 {
		return schemaErr
	}
	return nil
}

// Vectorize orders feature values into the schema's canonical vector.
// Callers must Validate first; missing features are zero-filled here.
func (s FeatureSchema) Vectorize(values map[string]float64) []float64 {
	x := make([]float64, len(s.Names))
	for i, name := range s.Names {
		x[i] = values[name]
	}
	return x
}
