package models

// Component weights of the overall optimization score.
const (
	WeightConflict            = 0.3
	WeightTeacherSatisfaction = 0.25
	WeightEfficiency          = 0.2
	WeightDistribution        = 0.15
	WeightUtilization         = 0.1
)

// OptimizationScore holds the component scores of a candidate
// timetable, each on a 0..100 scale.
type OptimizationScore struct {
	Conflict            float64 `json:"conflict"`
	TeacherSatisfaction float64 `json:"teacher_satisfaction"`
	Efficiency          float64 `json:"efficiency"`
	Distribution        float64 `json:"distribution"`
	Utilization         float64 `json:"utilization"`
	Total               float64 `json:"total"`
}

// Weighted recomputes and returns the total from the components.
func (s *OptimizationScore) Weighted() float64 {
	s.Total = s.Conflict*WeightConflict +
		s.TeacherSatisfaction*WeightTeacherSatisfaction +
		s.Efficiency*WeightEfficiency +
		s.Distribution*WeightDistribution +
		s.Utilization*WeightUtilization
	return s.Total
}
