package adapter

import (
	"testing"

	"github.com/rowan/parcelbase/internal/domain"
)

func intPtr(v int) *int          { return &v }
func floatPtr(v float64) *float64 { return &v }

// TestScoreConfidenceMonotonic verifies that populating any additional field
// never decreases the score and the result stays within [0,1].
func TestScoreConfidenceMonotonic(t *testing.T) {
	rules := DefaultConfidenceRules()

	base := &NormalizedResult{Parcel: &domain.NormalizedParcel{}}
	prev := ScoreConfidence(base, rules)
	if prev != 0 {
		t.Fatalf("empty result should score 0, got %f", prev)
	}

	// Populate fields one at a time; score must be non-decreasing.
	steps := []func(*NormalizedResult){
		func(r *NormalizedResult) { r.Parcel.SitusFullAddress = "123 MAIN ST" },
		func(r *NormalizedResult) { r.Assessments = []domain.Assessment{{TaxYear: 2024}} },
		func(r *NormalizedResult) { r.Parcel.OwnerName = "DOE JOHN" },
		func(r *NormalizedResult) { r.Parcel.YearBuilt = intPtr(1985) },
		func(r *NormalizedResult) { r.Sales = []domain.Sale{{SaleDate: "2020-01-15", Price: 400000}} },
		func(r *NormalizedResult) { r.Parcel.Bedrooms = intPtr(3) },
		func(r *NormalizedResult) { r.Parcel.Bathrooms = floatPtr(2) },
		func(r *NormalizedResult) { r.Parcel.LivingAreaSqFt = intPtr(1800) },
	}

	for i, step := range steps {
		step(base)
		got := ScoreConfidence(base, rules)
		if got < prev {
			t.Errorf("score decreased after step %d: %f -> %f", i, prev, got)
		}
		if got < 0 || got > 1 {
			t.Errorf("score out of range after step %d: %f", i, got)
		}
		prev = got
	}

	// Fully populated record scores exactly 1.0.
	if prev != 1.0 {
		t.Errorf("fully populated record should score 1.0, got %f", prev)
	}
}

// TestScoreConfidenceCapped verifies the cap holds even if the rule table
// over-weights.
func TestScoreConfidenceCapped(t *testing.T) {
	rules := []ConfidenceRule{
		{Name: "a", Weight: 0.8, Applies: func(*NormalizedResult) bool { return true }},
		{Name: "b", Weight: 0.8, Applies: func(*NormalizedResult) bool { return true }},
	}
	got := ScoreConfidence(&NormalizedResult{}, rules)
	if got != 1.0 {
		t.Errorf("expected capped score 1.0, got %f", got)
	}
}

// TestHappyPathFixtureWeight mirrors the reference fixture: address, owner,
// valuation, year built, bedrooms, and one sale must clear 0.8.
func TestHappyPathFixtureWeight(t *testing.T) {
	res := &NormalizedResult{
		Parcel: &domain.NormalizedParcel{
			SitusFullAddress: "123 MAIN ST",
			OwnerName:        "DOE JOHN",
			YearBuilt:        intPtr(1985),
			Bedrooms:         intPtr(3),
		},
		Assessments: []domain.Assessment{{TaxYear: 2024}},
		Sales:       []domain.Sale{{SaleDate: "2020-01-15", Price: 400000}},
	}
	got := ScoreConfidence(res, DefaultConfidenceRules())
	if got < 0.8 {
		t.Errorf("reference fixture should score >= 0.8, got %f", got)
	}
}
