package tracking

// CalorieEstimator is a flat MET model: kcal = km * body mass * MET.
type CalorieEstimator struct {
	BodyMassKg float64
	MET        float64
}

func DefaultCalorieEstimator() CalorieEstimator {
	return CalorieEstimator{BodyMassKg: 60, MET: 8}
}

func (e CalorieEstimator) Calories(distanceKm float64) float64 {
	if distanceKm <= 0 || e.BodyMassKg <= 0 || e.MET <= 0 {
		return 0
	}
	return distanceKm * e.BodyMassKg * e.MET
}
