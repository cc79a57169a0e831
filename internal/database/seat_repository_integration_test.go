//go:build integration

package database

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/database/

func newIntegrationDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(32)

	require.NoError(t, Migrate(db.DB))
	return db
}

// newIntegrationTrip creates a trip with count seats and removes it afterwards
func newIntegrationTrip(t *testing.T, db *sqlx.DB, count int) *models.Trip {
	t.Helper()
	ctx := context.Background()

	var stations []int64
	require.NoError(t, db.SelectContext(ctx, &stations, `SELECT id FROM stations ORDER BY id LIMIT 2`))
	require.Len(t, stations, 2)

	departure := time.Now().Add(72 * time.Hour).Truncate(time.Microsecond)
	trip := &models.Trip{
		OriginStationID:      stations[0],
		DestinationStationID: stations[1],
		DepartureTime:        departure,
		ArrivalTime:          departure.Add(14 * time.Hour),
	}
	trips := NewTripRepository(db)
	require.NoError(t, trips.Create(ctx, trip))
	t.Cleanup(func() { trips.Delete(context.Background(), trip.ID) })

	_, created, err := NewSeatRepository(db).SeedIfEmpty(ctx, trip.ID, models.LayoutSeats(trip.ID, 1, count))
	require.NoError(t, err)
	require.True(t, created)
	return trip
}

func TestSeatRepositoryAllocateConcurrentPostgres(t *testing.T) {
	db := newIntegrationDB(t)
	trip := newIntegrationTrip(t, db, 20)
	repo := NewSeatRepository(db)

	const callers = 50
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		claimed = map[int64]int{}
		errs    []error
	)
	now := time.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seat, err := repo.Allocate(context.Background(), trip.ID, nil, now.Add(15*time.Minute), now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if seat != nil {
				claimed[seat.ID]++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, claimed, 20)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "seat %d claimed more than once", id)
	}
}

func TestTripRepositoryUpdatePostgres(t *testing.T) {
	ctx := context.Background()
	db := newIntegrationDB(t)
	trip := newIntegrationTrip(t, db, 10)
	seats := NewSeatRepository(db)
	trips := NewTripRepository(db)

	// sell the three newest seats so shrinking has to skip them
	for _, no := range []string{"8B", "9B", "10V"} {
		seat, err := seats.Confirm(ctx, trip.ID, no)
		require.NoError(t, err)
		require.NotNil(t, seat)
	}

	_, err := trips.Update(ctx, trip, 2)
	assert.ErrorIs(t, err, models.ErrSeatCountTooLow)

	resize, err := trips.Update(ctx, trip, 5)
	require.NoError(t, err)
	assert.Equal(t, models.SeatResize{Before: 10, After: 5, Removed: 5}, *resize)

	resize, err = trips.Update(ctx, trip, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, resize.Added)

	all, err := seats.ListByTrip(ctx, trip.ID)
	require.NoError(t, err)
	var nos []string
	for _, s := range all {
		nos = append(nos, s.SeatNo)
	}
	assert.Equal(t, []string{"1A", "2A", "8B", "9B", "10V", "11A", "12V"}, nos)
}
