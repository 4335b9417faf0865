package service

import (
	"github.com/noah-isme/timetable-engine/internal/models"
)

// matrixCell is one lesson slot of the weekly arena.
type matrixCell struct {
	Slot        models.TimeSlot
	Assignments []models.Assignment
}

// timeMatrix is the run-owned placement arena. Cells are indexed by
// (day index, period-1) and exist for lesson slots only. Sessions are
// the source of truth; the occupancy maps are indexes over them.
type timeMatrix struct {
	settings models.GenerationSettings
	days     []string
	periods  int

	cells    [][]matrixCell
	sessions []models.ScheduleSession

	// Occupant counts, not flags: merged chunk runs can carry two
	// colliding sessions through place(), and unmarking one of them
	// must not free the cell while the other still sits in it.
	teacherBusy map[cellKey]map[string]int
	classBusy   map[cellKey]map[string]int
}

func newTimeMatrix(settings models.GenerationSettings) (*timeMatrix, error) {
	settings.Normalize()

	slots, err := settings.BuildTimeSlots()
	if err != nil {
		return nil, err
	}

	m := &timeMatrix{
		settings:    settings,
		days:        settings.WorkingDays,
		periods:     settings.DailyPeriods,
		cells:       make([][]matrixCell, len(settings.WorkingDays)),
		teacherBusy: make(map[cellKey]map[string]int),
		classBusy:   make(map[cellKey]map[string]int),
	}

	dayIdx := make(map[string]int, len(m.days))
	for i, day := range m.days {
		m.cells[i] = make([]matrixCell, m.periods)
		dayIdx[day] = i
	}

	for _, slot := range slots {
		if slot.Type != models.SlotTypeLesson {
			continue
		}
		if di, ok := dayIdx[slot.Day]; ok && slot.Period >= 1 && slot.Period <= m.periods {
			m.cells[di][slot.Period-1].Slot = slot
		}
	}

	return m, nil
}

func (m *timeMatrix) dayIndex(day string) int {
	for i, d := range m.days {
		if d == day {
			return i
		}
	}
	return -1
}

func (m *timeMatrix) slotAt(day string, period int) (models.TimeSlot, bool) {
	di := m.dayIndex(day)
	if di < 0 || period < 1 || period > m.periods {
		return models.TimeSlot{}, false
	}
	return m.cells[di][period-1].Slot, true
}

// canPlace reports whether both the teacher and the class are free at
// the cell.
func (m *timeMatrix) canPlace(teacherID, classID, day string, period int) bool {
	if m.dayIndex(day) < 0 || period < 1 || period > m.periods {
		return false
	}
	key := cellKey{Day: day, Period: period}
	if m.teacherBusy[key][teacherID] > 0 {
		return false
	}
	if m.classBusy[key][classID] > 0 {
		return false
	}
	return true
}

// place appends a session for the load at the cell. The caller checks
// canPlace first; place does not re-validate.
func (m *timeMatrix) place(session models.ScheduleSession) {
	di := m.dayIndex(session.Day)
	if di < 0 {
		return
	}
	cell := &m.cells[di][session.Period-1]
	cell.Assignments = append(cell.Assignments, models.Assignment{
		TeachingLoadID: session.TeachingLoadID,
		TeacherID:      session.TeacherID,
		ClassID:        session.ClassID,
		SubjectID:      session.SubjectID,
		RoomID:         session.RoomID,
	})

	m.sessions = append(m.sessions, session)
	m.mark(session, true)
}

// remove drops the session at index i and repairs the indexes.
func (m *timeMatrix) remove(i int) models.ScheduleSession {
	session := m.sessions[i]
	m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
	m.mark(session, false)
	m.dropAssignment(session)
	return session
}

// move relocates session i to a new cell, updating every index. The
// caller validates the target with canPlace.
func (m *timeMatrix) move(i int, day string, period int) {
	session := m.sessions[i]
	m.mark(session, false)
	m.dropAssignment(session)

	session.Day = day
	session.Period = period
	if slot, ok := m.slotAt(day, period); ok {
		session.StartTime = slot.StartTime
		session.EndTime = slot.EndTime
	}
	m.sessions[i] = session

	di := m.dayIndex(day)
	cell := &m.cells[di][period-1]
	cell.Assignments = append(cell.Assignments, models.Assignment{
		TeachingLoadID: session.TeachingLoadID,
		TeacherID:      session.TeacherID,
		ClassID:        session.ClassID,
		SubjectID:      session.SubjectID,
		RoomID:         session.RoomID,
	})
	m.mark(session, true)
}

func (m *timeMatrix) mark(session models.ScheduleSession, busy bool) {
	key := cellKey{Day: session.Day, Period: session.Period}
	if busy {
		if m.teacherBusy[key] == nil {
			m.teacherBusy[key] = make(map[string]int)
		}
		if m.classBusy[key] == nil {
			m.classBusy[key] = make(map[string]int)
		}
		m.teacherBusy[key][session.TeacherID]++
		m.classBusy[key][session.ClassID]++
		return
	}
	if cells := m.teacherBusy[key]; cells != nil {
		if cells[session.TeacherID]--; cells[session.TeacherID] <= 0 {
			delete(cells, session.TeacherID)
		}
	}
	if cells := m.classBusy[key]; cells != nil {
		if cells[session.ClassID]--; cells[session.ClassID] <= 0 {
			delete(cells, session.ClassID)
		}
	}
}

func (m *timeMatrix) dropAssignment(session models.ScheduleSession) {
	di := m.dayIndex(session.Day)
	if di < 0 {
		return
	}
	cell := &m.cells[di][session.Period-1]
	for idx, a := range cell.Assignments {
		if a.TeachingLoadID == session.TeachingLoadID && a.ClassID == session.ClassID {
			cell.Assignments = append(cell.Assignments[:idx], cell.Assignments[idx+1:]...)
			return
		}
	}
}

// retagAssignment syncs the cell assignment with a mutated session.
func (m *timeMatrix) retagAssignment(session models.ScheduleSession) {
	di := m.dayIndex(session.Day)
	if di < 0 {
		return
	}
	cell := &m.cells[di][session.Period-1]
	for idx, a := range cell.Assignments {
		if a.TeachingLoadID == session.TeachingLoadID && a.ClassID == session.ClassID {
			cell.Assignments[idx].TeacherID = session.TeacherID
			cell.Assignments[idx].RoomID = session.RoomID
			return
		}
	}
}

// snapshot deep-copies the matrix so multi-step mutations can roll
// back wholly.
func (m *timeMatrix) snapshot() *timeMatrix {
	clone := &timeMatrix{
		settings:    m.settings,
		days:        m.days,
		periods:     m.periods,
		cells:       make([][]matrixCell, len(m.cells)),
		sessions:    append([]models.ScheduleSession(nil), m.sessions...),
		teacherBusy: make(map[cellKey]map[string]int, len(m.teacherBusy)),
		classBusy:   make(map[cellKey]map[string]int, len(m.classBusy)),
	}

	for i, row := range m.cells {
		clone.cells[i] = make([]matrixCell, len(row))
		for j, cell := range row {
			clone.cells[i][j] = matrixCell{
				Slot:        cell.Slot,
				Assignments: append([]models.Assignment(nil), cell.Assignments...),
			}
		}
	}
	for key, set := range m.teacherBusy {
		copied := make(map[string]int, len(set))
		for id, n := range set {
			copied[id] = n
		}
		clone.teacherBusy[key] = copied
	}
	for key, set := range m.classBusy {
		copied := make(map[string]int, len(set))
		for id, n := range set {
			copied[id] = n
		}
		clone.classBusy[key] = copied
	}

	return clone
}

// restore replaces the matrix state with a previously taken snapshot.
func (m *timeMatrix) restore(snap *timeMatrix) {
	m.cells = snap.cells
	m.sessions = snap.sessions
	m.teacherBusy = snap.teacherBusy
	m.classBusy = snap.classBusy
}

// sessionIndex finds a session by ID, -1 when absent.
func (m *timeMatrix) sessionIndex(id string) int {
	for i, s := range m.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}
