package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/setrag/rail-booking-backend/internal/config"
	"github.com/setrag/rail-booking-backend/internal/database"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/setrag/rail-booking-backend/internal/services"
	"github.com/setrag/rail-booking-backend/pkg/logger"
	"github.com/setrag/rail-booking-backend/pkg/mq"
	"github.com/sirupsen/logrus"
)

// libreville is West Africa Time
var libreville = time.FixedZone("WAT", 60*60)

// departure is one daily service of the timetable
type departure struct {
	origin      string
	destination string
	hour        int
	dayOffset   int
	duration    time.Duration
}

var timetable = []departure{
	{"Owendo", "Franceville", 7, 0, 14 * time.Hour},
	{"Owendo", "Franceville", 14, 0, 14 * time.Hour},
	{"Franceville", "Owendo", 7, 1, 14 * time.Hour},
	{"Owendo", "Moanda", 7, 0, 12 * time.Hour},
	{"Owendo", "Moanda", 14, 0, 12 * time.Hour},
}

// plannedTrip is a trip the seeder makes sure exists
type plannedTrip struct {
	origin      string
	destination string
	departure   time.Time
	arrival     time.Time
}

// plan lists the timetable's trips for days consecutive days starting at start's date
func plan(start time.Time, days int) []plannedTrip {
	start = start.In(libreville)
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, libreville)

	trips := make([]plannedTrip, 0, days*len(timetable))
	for day := 0; day < days; day++ {
		date := first.AddDate(0, 0, day)
		for _, d := range timetable {
			dep := date.AddDate(0, 0, d.dayOffset).Add(time.Duration(d.hour) * time.Hour)
			trips = append(trips, plannedTrip{
				origin:      d.origin,
				destination: d.destination,
				departure:   dep,
				arrival:     dep.Add(d.duration),
			})
		}
	}
	return trips
}

func main() {
	var (
		dbURLFlag string
		days      int
		seats     int
		sweep     bool
		reset     bool
		migrate   bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.IntVar(&days, "days", 30, "number of days of trips to create")
	flag.IntVar(&seats, "seats", 0, "seats per trip (defaults to DEFAULT_SEAT_COUNT)")
	flag.BoolVar(&sweep, "sweep", false, "run one hold sweep and exit")
	flag.BoolVar(&reset, "reset", false, "delete all trips, seats, bookings and payment audits first")
	flag.BoolVar(&migrate, "migrate", false, "apply schema migrations first")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	log := logger.New(logger.Options{Level: getEnv("LOG_LEVEL", "info")})
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}
	if seats <= 0 {
		seats = defaultSeatCount()
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	if migrate {
		if err := database.Migrate(db.DB.DB); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
	}

	tripRepository := database.NewTripRepository(db.DB)
	inventory := services.NewSeatInventoryService(database.NewSeatRepository(db.DB), tripRepository, log)

	if sweep {
		ledger := services.NewBookingLedgerService(database.NewBookingRepository(db.DB), log)
		sweeper := services.NewHoldSweeperService(ledger, inventory, mq.NoopPublisher{}, services.DefaultHoldSweeperConfig(), log)
		result, err := sweeper.RunOnce(ctx)
		if err != nil {
			log.Fatalf("hold sweep failed: %v", err)
		}
		fmt.Printf("Expired %d bookings, released %d seats\n", result.ExpiredBookings, result.ReleasedSeats)
		return
	}

	if reset {
		fmt.Println("Truncating catalog and booking tables...")
		if _, err := db.ExecContext(ctx, `TRUNCATE TABLE payment_audits, bookings, seats, trips RESTART IDENTITY CASCADE`); err != nil {
			log.Fatalf("failed to truncate tables: %v", err)
		}
	}

	created, err := seedTrips(ctx, database.NewStationRepository(db.DB), tripRepository, plan(time.Now(), days), log)
	if err != nil {
		log.Fatalf("failed to seed trips: %v", err)
	}

	ids, err := tripRepository.ListIDsWithoutSeats(ctx)
	if err != nil {
		log.Fatalf("failed to list trips without seats: %v", err)
	}
	for _, id := range ids {
		if _, err := inventory.Seed(ctx, id, seats); err != nil {
			log.Fatalf("failed to seed seats of trip %d: %v", id, err)
		}
	}

	fmt.Printf("Created %d trips, seeded seats on %d trips\n", created, len(ids))
}

func seedTrips(ctx context.Context, stations *database.StationRepository, trips *database.TripRepository, planned []plannedTrip, log *logrus.Logger) (int, error) {
	ids := map[string]int64{}
	stationID := func(name string) (int64, error) {
		if id, ok := ids[name]; ok {
			return id, nil
		}
		station, err := stations.GetByName(ctx, name)
		if err != nil {
			return 0, err
		}
		if station == nil {
			return 0, fmt.Errorf("station %q: %w", name, models.ErrStationNotFound)
		}
		ids[name] = station.ID
		return station.ID, nil
	}

	created := 0
	for _, p := range planned {
		origin, err := stationID(p.origin)
		if err != nil {
			return created, err
		}
		destination, err := stationID(p.destination)
		if err != nil {
			return created, err
		}

		trip := &models.Trip{
			OriginStationID:      origin,
			DestinationStationID: destination,
			DepartureTime:        p.departure,
			ArrivalTime:          p.arrival,
		}
		isNew, err := trips.FindOrCreate(ctx, trip)
		if err != nil {
			return created, err
		}
		if isNew {
			created++
			log.WithFields(logrus.Fields{
				"trip_id":   trip.ID,
				"route":     p.origin + "-" + p.destination,
				"departure": p.departure.Format(time.RFC3339),
			}).Debug("Trip created")
		}
	}
	return created, nil
}

func defaultSeatCount() int {
	n, err := strconv.Atoi(getEnv("DEFAULT_SEAT_COUNT", "100"))
	if err != nil || n <= 0 {
		return 100
	}
	return n
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
