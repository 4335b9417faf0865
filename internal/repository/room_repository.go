package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// RoomRepository reads the room catalog.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs the repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// ListActive returns active rooms for an institution ordered by
// capacity descending.
func (r *RoomRepository) ListActive(ctx context.Context, institutionID string) ([]models.Room, error) {
	const query = `SELECT id, institution_id, name, capacity, is_lab, active
		FROM rooms
		WHERE institution_id = $1 AND active = TRUE
		ORDER BY capacity DESC, name ASC`

	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, institutionID); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}
