package dto

import "github.com/noah-isme/timetable-engine/internal/models"

// SlotRefRequest names a day/period cell in a request payload.
type SlotRefRequest struct {
	Day    string `json:"day" validate:"required,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	Period int    `json:"period" validate:"required,min=1"`
}

// TeachingLoadRequest is one curriculum demand submitted for generation.
type TeachingLoadRequest struct {
	ID                   string           `json:"id" validate:"required"`
	TeacherID            string           `json:"teacherId" validate:"required"`
	TeacherName          string           `json:"teacherName"`
	SubjectID            string           `json:"subjectId" validate:"required"`
	SubjectName          string           `json:"subjectName"`
	RequiresLab          bool             `json:"requiresLab"`
	ClassID              string           `json:"classId" validate:"required"`
	ClassName            string           `json:"className"`
	ExpectedStudents     int              `json:"expectedStudents" validate:"omitempty,min=1"`
	WeeklyHours          int              `json:"weeklyHours" validate:"required,min=1,max=40"`
	PriorityLevel        int              `json:"priorityLevel" validate:"omitempty,min=1,max=10"`
	PreferredConsecutive int              `json:"preferredConsecutive" validate:"omitempty,min=1"`
	PreferredSlots       []SlotRefRequest `json:"preferredSlots" validate:"omitempty,dive"`
	UnavailableSlots     []SlotRefRequest `json:"unavailableSlots" validate:"omitempty,dive"`
}

// BreakWindowRequest inserts a break after a period.
type BreakWindowRequest struct {
	AfterPeriod int `json:"afterPeriod" validate:"required,min=1"`
	Minutes     int `json:"minutes" validate:"required,min=5,max=120"`
}

// GenerationSettingsRequest shapes the weekly grid.
type GenerationSettingsRequest struct {
	WorkingDays     []string             `json:"workingDays" validate:"omitempty,min=1,dive,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	DailyPeriods    int                  `json:"dailyPeriods" validate:"omitempty,min=1,max=16"`
	PeriodDuration  int                  `json:"periodDuration" validate:"omitempty,min=20,max=120"`
	StartOfDay      string               `json:"startOfDay" validate:"omitempty,len=5"`
	Breaks          []BreakWindowRequest `json:"breaks" validate:"omitempty,dive"`
	MorningCoreBias bool                 `json:"morningCoreBias"`
}

// OptimizationPreferencesRequest toggles the improvement passes.
type OptimizationPreferencesRequest struct {
	Enabled            bool    `json:"enabled"`
	UseGenetic         bool    `json:"useGenetic"`
	UseAnnealing       bool    `json:"useAnnealing"`
	UseAnalyzer        bool    `json:"useAnalyzer"`
	Seed               int64   `json:"seed"`
	MaxConsecutiveSame int     `json:"maxConsecutiveSame" validate:"omitempty,min=1"`
	MinBreakBetween    int     `json:"minBreakBetween" validate:"omitempty,min=0"`
	TargetScore        float64 `json:"targetScore" validate:"omitempty,min=0,max=100"`
}

// GenerateTimetableRequest is the full generation run input.
type GenerateTimetableRequest struct {
	InstitutionID  string                          `json:"institutionId" validate:"required"`
	AcademicYearID string                          `json:"academicYearId" validate:"required"`
	Name           string                          `json:"name"`
	Loads          []TeachingLoadRequest           `json:"loads" validate:"required,min=1,dive"`
	Rooms          []RoomRequest                   `json:"rooms" validate:"omitempty,dive"`
	Settings       GenerationSettingsRequest       `json:"settings"`
	Optimization   *OptimizationPreferencesRequest `json:"optimization"`

	// Template carries a raw overlay merged over Settings/Optimization.
	Template map[string]any `json:"template"`

	Async bool `json:"async"`
}

// RoomRequest describes an available room for the run.
type RoomRequest struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity" validate:"required,min=1"`
	IsLab    bool   `json:"isLab"`
}

// ValidateWorkloadRequest runs only the workload preparation stage.
type ValidateWorkloadRequest struct {
	InstitutionID  string                    `json:"institutionId" validate:"required"`
	AcademicYearID string                    `json:"academicYearId" validate:"required"`
	Loads          []TeachingLoadRequest     `json:"loads" validate:"required,min=1,dive"`
	Settings       GenerationSettingsRequest `json:"settings"`
}

// AnalyzeScheduleRequest asks the analyzer for an advisory prediction.
type AnalyzeScheduleRequest struct {
	InstitutionID string                    `json:"institutionId" validate:"required"`
	Sessions      []models.ScheduleSession  `json:"sessions" validate:"required,min=1"`
	Settings      GenerationSettingsRequest `json:"settings"`
}

// GenerationRunResponse reports an accepted async run.
type GenerationRunResponse struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// ToModel converts the request load into the domain form.
func (r TeachingLoadRequest) ToModel() models.TeachingLoad {
	load := models.TeachingLoad{
		ID:                   r.ID,
		TeacherID:            r.TeacherID,
		TeacherName:          r.TeacherName,
		SubjectID:            r.SubjectID,
		SubjectName:          r.SubjectName,
		RequiresLab:          r.RequiresLab,
		ClassID:              r.ClassID,
		ClassName:            r.ClassName,
		ExpectedStudents:     r.ExpectedStudents,
		WeeklyHours:          r.WeeklyHours,
		PriorityLevel:        r.PriorityLevel,
		PreferredConsecutive: r.PreferredConsecutive,
	}
	for _, s := range r.PreferredSlots {
		load.PreferredSlots = append(load.PreferredSlots, models.SlotRef{Day: s.Day, Period: s.Period})
	}
	for _, s := range r.UnavailableSlots {
		load.UnavailableSlots = append(load.UnavailableSlots, models.SlotRef{Day: s.Day, Period: s.Period})
	}
	return load
}

// ToModel converts the settings request into the domain form with
// defaults applied.
func (r GenerationSettingsRequest) ToModel() models.GenerationSettings {
	settings := models.GenerationSettings{
		WorkingDays:     r.WorkingDays,
		DailyPeriods:    r.DailyPeriods,
		PeriodDuration:  r.PeriodDuration,
		StartOfDay:      r.StartOfDay,
		MorningCoreBias: r.MorningCoreBias,
	}
	for _, b := range r.Breaks {
		settings.Breaks = append(settings.Breaks, models.BreakWindow{AfterPeriod: b.AfterPeriod, Minutes: b.Minutes})
	}
	settings.Normalize()
	return settings
}

// ToModel converts the room request into the domain form.
func (r RoomRequest) ToModel(institutionID string) models.Room {
	return models.Room{
		ID:            r.ID,
		InstitutionID: institutionID,
		Name:          r.Name,
		Capacity:      r.Capacity,
		IsLab:         r.IsLab,
		Active:        true,
	}
}
