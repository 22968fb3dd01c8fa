package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parking_iot/internal/domain"
	"parking_iot/internal/repository"
)

type pgReadingRepository struct {
	db *sql.DB
}

func NewPgReadingRepository(db *sql.DB) repository.ReadingRepository {
	return &pgReadingRepository{db: db}
}

func (r *pgReadingRepository) Create(ctx context.Context, reading *domain.SensorReading) error {
	query := `INSERT INTO sensor_readings (sensor_id, timestamp, occupied, distance_cm, magnetic_field, battery_level, signal_strength, raw_data, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP)
	           RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		reading.SensorID, reading.Timestamp, reading.Occupied,
		reading.DistanceCm, reading.MagneticField,
		reading.BatteryLevel, reading.SignalStrength,
		nullableJSON(reading.RawData),
	).Scan(&reading.ID, &reading.CreatedAt)
	if err != nil {
		return fmt.Errorf("ReadingRepository.Create: %w", err)
	}
	reading.CreatedAt = reading.CreatedAt.In(time.UTC)
	return nil
}

func (r *pgReadingRepository) FindRecentBySensor(ctx context.Context, sensorID string, limit int) ([]domain.SensorReading, error) {
	query := `SELECT id, sensor_id, timestamp, occupied, distance_cm, magnetic_field, battery_level, signal_strength, created_at
	           FROM sensor_readings
	           WHERE sensor_id = $1
	           ORDER BY timestamp DESC
	           LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, sensorID, limit)
	if err != nil {
		return nil, fmt.Errorf("ReadingRepository.FindRecentBySensor: %w", err)
	}
	defer rows.Close()

	var readings []domain.SensorReading
	for rows.Next() {
		var rd domain.SensorReading
		if err := rows.Scan(
			&rd.ID, &rd.SensorID, &rd.Timestamp, &rd.Occupied,
			&rd.DistanceCm, &rd.MagneticField,
			&rd.BatteryLevel, &rd.SignalStrength, &rd.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ReadingRepository.FindRecentBySensor (scanning row): %w", err)
		}
		rd.Timestamp = rd.Timestamp.In(time.UTC)
		rd.CreatedAt = rd.CreatedAt.In(time.UTC)
		readings = append(readings, rd)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ReadingRepository.FindRecentBySensor (rows error): %w", err)
	}
	return readings, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
