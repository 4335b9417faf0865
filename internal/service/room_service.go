package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

type roomFetcher interface {
	ListActive(ctx context.Context, institutionID string) ([]models.Room, error)
}

// RoomService resolves rooms for placements. Room availability is
// advisory: a lesson without a room is still a valid lesson.
type RoomService struct {
	rooms  roomFetcher
	logger *zap.Logger
}

// NewRoomService wires the room catalog.
func NewRoomService(rooms roomFetcher, logger *zap.Logger) *RoomService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomService{rooms: rooms, logger: logger}
}

// Catalog fetches the active rooms once per run, largest first.
func (s *RoomService) Catalog(ctx context.Context, institutionID string) ([]models.Room, error) {
	if s.rooms == nil {
		return nil, nil
	}
	rooms, err := s.rooms.ListActive(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}
	return rooms, nil
}

// roomResolver tracks per-cell room occupancy over one run.
type roomResolver struct {
	rooms    []models.Room
	occupied map[cellKey]map[string]bool
}

type cellKey struct {
	Day    string
	Period int
}

func newRoomResolver(rooms []models.Room) *roomResolver {
	return &roomResolver{
		rooms:    rooms,
		occupied: make(map[cellKey]map[string]bool),
	}
}

// Resolve picks the best room for a load at a cell. Free fitting rooms
// win; an occupied fitting room is reused before giving up; nil when
// nothing fits at all.
func (r *roomResolver) Resolve(load models.TeachingLoad, day string, period int) *string {
	if r == nil || len(r.rooms) == 0 {
		return nil
	}

	key := cellKey{Day: day, Period: period}
	var fallback *models.Room

	for i := range r.rooms {
		room := &r.rooms[i]
		if !room.Fits(load) {
			continue
		}
		if !r.occupied[key][room.ID] {
			r.reserve(key, room.ID)
			id := room.ID
			return &id
		}
		if fallback == nil {
			fallback = room
		}
	}

	if fallback != nil {
		id := fallback.ID
		return &id
	}
	return nil
}

// Release frees a room at a cell, used when a session moves.
func (r *roomResolver) Release(roomID *string, day string, period int) {
	if r == nil || roomID == nil {
		return
	}
	key := cellKey{Day: day, Period: period}
	if cells, ok := r.occupied[key]; ok {
		delete(cells, *roomID)
	}
}

func (r *roomResolver) reserve(key cellKey, roomID string) {
	if r.occupied[key] == nil {
		r.occupied[key] = make(map[string]bool)
	}
	r.occupied[key][roomID] = true
}

// snapshotOccupancy deep-copies the per-cell reservations so a failed
// resolution chain can hand them back unchanged.
func (r *roomResolver) snapshotOccupancy() map[cellKey]map[string]bool {
	if r == nil {
		return nil
	}
	copied := make(map[cellKey]map[string]bool, len(r.occupied))
	for key, rooms := range r.occupied {
		set := make(map[string]bool, len(rooms))
		for id := range rooms {
			set[id] = true
		}
		copied[key] = set
	}
	return copied
}

func (r *roomResolver) restoreOccupancy(snap map[cellKey]map[string]bool) {
	if r == nil {
		return
	}
	if snap == nil {
		snap = make(map[cellKey]map[string]bool)
	}
	r.occupied = snap
}
