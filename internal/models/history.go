package models

import "time"

// FeatureVector is the extracted heuristic fingerprint of a schedule.
// Field order matters: AsSlice feeds cosine similarity.
type FeatureVector struct {
	SessionDensity     float64 `db:"session_density" json:"session_density"`
	MorningRatio       float64 `db:"morning_ratio" json:"morning_ratio"`
	AfternoonRatio     float64 `db:"afternoon_ratio" json:"afternoon_ratio"`
	GapDensity         float64 `db:"gap_density" json:"gap_density"`
	WorkloadVariance   float64 `db:"workload_variance" json:"workload_variance"`
	TeacherUtilization float64 `db:"teacher_utilization" json:"teacher_utilization"`
	SubjectDiversity   float64 `db:"subject_diversity" json:"subject_diversity"`
	CoreSubjectRatio   float64 `db:"core_subject_ratio" json:"core_subject_ratio"`
	MaxDailyLoad       float64 `db:"max_daily_load" json:"max_daily_load"`
}

// AsSlice returns the vector components in canonical order.
func (v FeatureVector) AsSlice() []float64 {
	return []float64{
		v.SessionDensity,
		v.MorningRatio,
		v.AfternoonRatio,
		v.GapDensity,
		v.WorkloadVariance,
		v.TeacherUtilization,
		v.SubjectDiversity,
		v.CoreSubjectRatio,
		v.MaxDailyLoad,
	}
}

// HistoricalSchedule is a past run kept for similarity lookups.
type HistoricalSchedule struct {
	ScheduleID    string        `db:"schedule_id" json:"schedule_id"`
	Features      FeatureVector `json:"features"`
	SuccessRating float64       `db:"success_rating" json:"success_rating"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// SimilarSchedule pairs a historical schedule with its similarity to
// the candidate under analysis.
type SimilarSchedule struct {
	HistoricalSchedule
	Similarity float64 `json:"similarity"`
}

// OutcomePrediction is the advisory verdict of the analyzer.
type OutcomePrediction struct {
	SuccessProbability  float64           `json:"success_probability"`
	ConflictLikelihood  float64           `json:"conflict_likelihood"`
	SatisfactionScore   float64           `json:"satisfaction_score"`
	Features            FeatureVector     `json:"features"`
	SimilarSchedules    []SimilarSchedule `json:"similar_schedules,omitempty"`
	Recommendations     []string          `json:"recommendations,omitempty"`
}
