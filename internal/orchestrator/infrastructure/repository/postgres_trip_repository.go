package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"av-trip/internal/orchestrator/domain"
	"av-trip/pkg/faults"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTripRepository implements domain.TripRepository for deployments
// that want durable trip records. Each statement runs in its own implicit
// transaction, which satisfies the per-call commit boundary.
type PostgresTripRepository struct {
	db *pgxpool.Pool
}

func NewPostgresTripRepository(db *pgxpool.Pool) *PostgresTripRepository {
	return &PostgresTripRepository{
		db: db,
	}
}

// Save persists a new trip
func (r *PostgresTripRepository) Save(ctx context.Context, trip *domain.Trip) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO trips (
			id, rider, origin_port, destination_port, vehicle_id, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		trip.ID(),
		trip.Rider(),
		trip.OriginPort(),
		trip.DestinationPort(),
		trip.VehicleID(),
		trip.Status().String(),
		trip.CreatedAt(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("trip %q: %w", trip.ID(), faults.ErrAlreadyExists)
		}
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

// Update persists a status change for an existing trip
func (r *PostgresTripRepository) Update(ctx context.Context, trip *domain.Trip) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE trips SET status = $1, updated_at = NOW() WHERE id = $2
	`, trip.Status().String(), trip.ID())
	if err != nil {
		return fmt.Errorf("update trip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trip %q: %w", trip.ID(), faults.ErrNotFound)
	}
	return nil
}

// FindByID retrieves a trip by its ID
func (r *PostgresTripRepository) FindByID(ctx context.Context, tripID string) (*domain.Trip, error) {
	var (
		id              string
		rider           string
		originPort      string
		destinationPort string
		vehicleID       string
		status          string
		createdAt       time.Time
	)

	err := r.db.QueryRow(ctx, `
		SELECT id, rider, origin_port, destination_port, vehicle_id, status, created_at
		FROM trips
		WHERE id = $1
	`, tripID).Scan(&id, &rider, &originPort, &destinationPort, &vehicleID, &status, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("trip %q: %w", tripID, faults.ErrNotFound)
		}
		return nil, fmt.Errorf("query trip: %w", err)
	}

	return domain.ReconstructTrip(id, rider, originPort, destinationPort, vehicleID, domain.TripStatus(status), createdAt), nil
}

// CountTrips returns the total number of stored trips
func (r *PostgresTripRepository) CountTrips(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM trips`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count trips: %w", err)
	}
	return count, nil
}

// FindByStatus retrieves trips by status
func (r *PostgresTripRepository) FindByStatus(ctx context.Context, status domain.TripStatus) ([]*domain.Trip, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, rider, origin_port, destination_port, vehicle_id, status, created_at
		FROM trips
		WHERE status = $1
		ORDER BY created_at DESC
	`, status.String())
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	var trips []*domain.Trip
	for rows.Next() {
		var (
			id              string
			rider           string
			originPort      string
			destinationPort string
			vehicleID       string
			st              string
			createdAt       time.Time
		)
		if err := rows.Scan(&id, &rider, &originPort, &destinationPort, &vehicleID, &st, &createdAt); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, domain.ReconstructTrip(id, rider, originPort, destinationPort, vehicleID, domain.TripStatus(st), createdAt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trips: %w", err)
	}
	return trips, nil
}
