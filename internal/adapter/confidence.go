package adapter

// ConfidenceRule is one (predicate, weight) pair of the confidence table.
// Rules only ever add weight; an absent field contributes zero.
type ConfidenceRule struct {
	Name    string
	Weight  float64
	Applies func(*NormalizedResult) bool
}

// DefaultConfidenceRules is the fixed per-field weight table. Weights sum to
// 1.0 for a fully populated record; ScoreConfidence caps the total at 1.0
// regardless.
func DefaultConfidenceRules() []ConfidenceRule {
	return []ConfidenceRule{
		{
			Name:   "situs_address",
			Weight: 0.30,
			Applies: func(r *NormalizedResult) bool {
				return r.Parcel != nil && r.Parcel.SitusFullAddress != ""
			},
		},
		{
			Name:   "assessment",
			Weight: 0.25,
			Applies: func(r *NormalizedResult) bool {
				return len(r.Assessments) > 0
			},
		},
		{
			Name:   "owner",
			Weight: 0.10,
			Applies: func(r *NormalizedResult) bool {
				return r.Parcel != nil && r.Parcel.OwnerName != ""
			},
		},
		{
			Name:   "year_built",
			Weight: 0.10,
			Applies: func(r *NormalizedResult) bool {
				return r.Parcel != nil && r.Parcel.YearBuilt != nil
			},
		},
		{
			Name:   "sales",
			Weight: 0.10,
			Applies: func(r *NormalizedResult) bool {
				return len(r.Sales) > 0
			},
		},
		{
			Name:   "bedrooms",
			Weight: 0.05,
			Applies: func(r *NormalizedResult) bool {
				return r.Parcel != nil && r.Parcel.Bedrooms != nil
			},
		},
		{
			Name:   "bathrooms",
			Weight: 0.05,
			Applies: func(r *NormalizedResult) bool {
				return r.Parcel != nil && r.Parcel.Bathrooms != nil
			},
		},
		{
			Name:   "living_area",
			Weight: 0.05,
			Applies: func(r *NormalizedResult) bool {
				return r.Parcel != nil && r.Parcel.LivingAreaSqFt != nil
			},
		},
	}
}

// ScoreConfidence sums the weights of all rules whose predicate holds and
// caps the result at 1.0.
func ScoreConfidence(res *NormalizedResult, rules []ConfidenceRule) float64 {
	var score float64
	for _, rule := range rules {
		if rule.Applies(res) {
			score += rule.Weight
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
