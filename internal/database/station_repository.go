package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/setrag/rail-booking-backend/internal/models"
)

// StationRepository reads station reference data
type StationRepository struct {
	db *sqlx.DB
}

// NewStationRepository creates a new StationRepository
func NewStationRepository(db *sqlx.DB) *StationRepository {
	return &StationRepository{db: db}
}

// List returns all stations ordered by name
func (r *StationRepository) List(ctx context.Context) ([]models.Station, error) {
	stations := []models.Station{}
	query := `SELECT id, name, latitude, longitude, created_at FROM stations ORDER BY name`
	if err := r.db.SelectContext(ctx, &stations, query); err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	return stations, nil
}

// GetByName returns a station by its unique name, or nil if not found
func (r *StationRepository) GetByName(ctx context.Context, name string) (*models.Station, error) {
	var station models.Station
	query := `SELECT id, name, latitude, longitude, created_at FROM stations WHERE name = $1`
	err := r.db.GetContext(ctx, &station, query, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get station: %w", err)
	}
	return &station, nil
}
