package expense

import (
	"math"
	"math/rand"
)

// Synthetic generates a reproducible training set of typical expenses:
// normal small amounts in category 1 (mean 50, sd 10) and larger ones in
// category 2 (mean 200, sd 50), submitted Monday to Friday by employees.
func Synthetic(seed int64, small, large int) []FeatureVector {
	rng := rand.New(rand.NewSource(seed))
	out := make([]FeatureVector, 0, small+large)

	for range small {
		out = append(out, FeatureVector{
			Amount:      nonNegative(50 + rng.NormFloat64()*10),
			CategoryID:  1,
			DayOfWeek:   rng.Intn(5),
			RoleEncoded: RoleEmployee,
		})
	}
	for range large {
		out = append(out, FeatureVector{
			Amount:      nonNegative(200 + rng.NormFloat64()*50),
			CategoryID:  2,
			DayOfWeek:   rng.Intn(5),
			RoleEncoded: RoleEmployee,
		})
	}
	return out
}

// KnownAnomalies are expenses that should stand out against Synthetic data:
// a 5000 lunch, a 20 travel claim and a 10000 lunch, all on a Sunday.
func KnownAnomalies() []FeatureVector {
	return []FeatureVector{
		{Amount: 5000, CategoryID: 1, DayOfWeek: 6, RoleEncoded: RoleEmployee},
		{Amount: 20, CategoryID: 2, DayOfWeek: 6, RoleEncoded: RoleEmployee},
		{Amount: 10000, CategoryID: 1, DayOfWeek: 6, RoleEncoded: RoleEmployee},
	}
}

func nonNegative(v float64) float64 {
	return math.Max(v, 0)
}
