package models

// Room is a physical teaching space.
type Room struct {
	ID            string `db:"id" json:"id"`
	InstitutionID string `db:"institution_id" json:"institution_id"`
	Name          string `db:"name" json:"name"`
	Capacity      int    `db:"capacity" json:"capacity"`
	IsLab         bool   `db:"is_lab" json:"is_lab"`
	Active        bool   `db:"active" json:"active"`
}

// Fits reports whether the room can host the load at all: enough seats
// and a lab when the subject requires one.
func (r Room) Fits(load TeachingLoad) bool {
	if !r.Active {
		return false
	}
	if load.RequiresLab && !r.IsLab {
		return false
	}
	return r.Capacity >= load.ExpectedStudents
}
