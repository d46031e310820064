package contracts

import (
	"testing"
	"time"
)

func TestReturnPct(t *testing.T) {
	tests := []struct {
		name  string
		entry float64
		exit  float64
		want  float64
	}{
		{name: "five percent up", entry: 100.0, exit: 105.0, want: 5.0},
		{name: "five percent down", entry: 100.0, exit: 95.0, want: -5.0},
		{name: "flat", entry: 100.0, exit: 100.0, want: 0.0},
		{name: "doubling", entry: 50.0, exit: 100.0, want: 100.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReturnPct(tt.entry, tt.exit)
			epsilon := 1e-9
			if diff := got - tt.want; diff > epsilon || diff < -epsilon {
				t.Errorf("ReturnPct(%v, %v) = %v, want %v", tt.entry, tt.exit, got, tt.want)
			}
		})
	}
}

func TestSign(t *testing.T) {
	if got := Sign(2.76); got != 1 {
		t.Errorf("Sign(2.76) = %d, want 1", got)
	}
	if got := Sign(-0.01); got != -1 {
		t.Errorf("Sign(-0.01) = %d, want -1", got)
	}
	if got := Sign(0); got != 0 {
		t.Errorf("Sign(0) = %d, want 0", got)
	}
}

func TestBucketKey(t *testing.T) {
	interval := 24 * time.Hour

	morning := time.Date(2026, 3, 9, 9, 30, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 9, 21, 45, 0, 0, time.UTC)
	nextDay := time.Date(2026, 3, 10, 0, 1, 0, 0, time.UTC)

	if BucketKey(morning, interval) != BucketKey(evening, interval) {
		t.Error("same-day timestamps should share a bucket")
	}
	if BucketKey(morning, interval) == BucketKey(nextDay, interval) {
		t.Error("different days should not share a bucket")
	}

	// buckets are normalized to UTC so mixed-zone inputs dedupe correctly
	seoul := time.FixedZone("KST", 9*3600)
	asSeoul := morning.In(seoul)
	if BucketKey(morning, interval) != BucketKey(asSeoul, interval) {
		t.Error("bucket key must be timezone independent")
	}
}

func TestPrediction_Age(t *testing.T) {
	ts := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	p := Prediction{PredictionTimestamp: ts}

	now := ts.Add(90 * time.Minute)
	if got := p.Age(now); got != 90*time.Minute {
		t.Errorf("Age() = %v, want 90m", got)
	}
}
