package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parking_iot/internal/domain"
	"parking_iot/internal/repository"
)

type pgSensorHealthRepository struct {
	db *sql.DB
}

func NewPgSensorHealthRepository(db *sql.DB) repository.SensorHealthRepository {
	return &pgSensorHealthRepository{db: db}
}

const healthColumns = `sensor_id, last_heartbeat_at, last_data_at, battery_level, signal_strength, firmware_version, error_count, is_online, needs_maintenance, updated_at`

func (r *pgSensorHealthRepository) Upsert(ctx context.Context, h *domain.SensorHealth) error {
	query := `INSERT INTO sensor_health (sensor_id, last_heartbeat_at, last_data_at, battery_level, signal_strength, firmware_version, error_count, is_online, needs_maintenance, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
	           ON CONFLICT (sensor_id) DO UPDATE SET
	             last_heartbeat_at = COALESCE(EXCLUDED.last_heartbeat_at, sensor_health.last_heartbeat_at),
	             last_data_at      = COALESCE(EXCLUDED.last_data_at, sensor_health.last_data_at),
	             battery_level     = COALESCE(EXCLUDED.battery_level, sensor_health.battery_level),
	             signal_strength   = COALESCE(EXCLUDED.signal_strength, sensor_health.signal_strength),
	             firmware_version  = CASE WHEN EXCLUDED.firmware_version <> '' THEN EXCLUDED.firmware_version ELSE sensor_health.firmware_version END,
	             is_online         = EXCLUDED.is_online,
	             needs_maintenance = EXCLUDED.needs_maintenance,
	             updated_at        = CURRENT_TIMESTAMP`
	_, err := r.db.ExecContext(ctx, query,
		h.SensorID, h.LastHeartbeatAt, h.LastDataAt,
		h.BatteryLevel, h.SignalStrength, h.FirmwareVersion,
		h.ErrorCount, h.IsOnline, h.NeedsMaintenance,
	)
	if err != nil {
		return fmt.Errorf("SensorHealthRepository.Upsert: %w", err)
	}
	return nil
}

func (r *pgSensorHealthRepository) FindBySensorID(ctx context.Context, sensorID string) (*domain.SensorHealth, error) {
	query := `SELECT ` + healthColumns + ` FROM sensor_health WHERE sensor_id = $1`
	h := &domain.SensorHealth{}
	err := r.db.QueryRowContext(ctx, query, sensorID).Scan(
		&h.SensorID, &h.LastHeartbeatAt, &h.LastDataAt,
		&h.BatteryLevel, &h.SignalStrength, &h.FirmwareVersion,
		&h.ErrorCount, &h.IsOnline, &h.NeedsMaintenance, &h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SensorHealthRepository.FindBySensorID: %w", err)
	}
	h.UpdatedAt = h.UpdatedAt.In(time.UTC)
	return h, nil
}

func (r *pgSensorHealthRepository) FindAll(ctx context.Context) ([]domain.SensorHealth, error) {
	query := `SELECT ` + healthColumns + ` FROM sensor_health ORDER BY sensor_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("SensorHealthRepository.FindAll: %w", err)
	}
	defer rows.Close()

	var healths []domain.SensorHealth
	for rows.Next() {
		var h domain.SensorHealth
		if err := rows.Scan(
			&h.SensorID, &h.LastHeartbeatAt, &h.LastDataAt,
			&h.BatteryLevel, &h.SignalStrength, &h.FirmwareVersion,
			&h.ErrorCount, &h.IsOnline, &h.NeedsMaintenance, &h.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("SensorHealthRepository.FindAll (scanning row): %w", err)
		}
		h.UpdatedAt = h.UpdatedAt.In(time.UTC)
		healths = append(healths, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SensorHealthRepository.FindAll (rows error): %w", err)
	}
	return healths, nil
}

func (r *pgSensorHealthRepository) IncrementErrorCount(ctx context.Context, sensorID string, at time.Time) error {
	query := `INSERT INTO sensor_health (sensor_id, error_count, is_online, needs_maintenance, updated_at)
	           VALUES ($1, 1, TRUE, FALSE, CURRENT_TIMESTAMP)
	           ON CONFLICT (sensor_id) DO UPDATE SET
	             error_count = sensor_health.error_count + 1,
	             updated_at  = CURRENT_TIMESTAMP`
	if _, err := r.db.ExecContext(ctx, query, sensorID); err != nil {
		return fmt.Errorf("SensorHealthRepository.IncrementErrorCount: %w", err)
	}
	return nil
}

func (r *pgSensorHealthRepository) MarkOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	// Một sensor chỉ offline khi CẢ đường dữ liệu lẫn heartbeat đều im lặng
	// quá cutoff — heartbeat mới phải giữ sensor online dù nó không đo gì.
	query := `UPDATE sensor_health SET is_online = FALSE, updated_at = CURRENT_TIMESTAMP
	           WHERE is_online = TRUE
	             AND GREATEST(COALESCE(last_data_at, 'epoch'::timestamptz),
	                          COALESCE(last_heartbeat_at, 'epoch'::timestamptz)) < $1`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("SensorHealthRepository.MarkOffline: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("SensorHealthRepository.MarkOffline (checking rows affected): %w", err)
	}
	return rowsAffected, nil
}
