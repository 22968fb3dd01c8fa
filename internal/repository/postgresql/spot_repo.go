package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parking_iot/internal/domain"
	"parking_iot/internal/repository"

	"github.com/lib/pq"
)

type pgSpotRepository struct {
	db *sql.DB
}

func NewPgSpotRepository(db *sql.DB) repository.SpotRepository {
	return &pgSpotRepository{db: db}
}

const spotColumns = `id, location, level, zone, is_occupied, is_reserved, is_disabled, sensor_type, hourly_rate, last_updated, created_at`

func scanSpot(row interface{ Scan(...any) error }) (*domain.ParkingSpot, error) {
	spot := &domain.ParkingSpot{}
	var lastUpdated sql.NullTime
	err := row.Scan(
		&spot.ID, &spot.Location, &spot.Level, &spot.Zone,
		&spot.IsOccupied, &spot.IsReserved, &spot.IsDisabled,
		&spot.SensorType, &spot.HourlyRate, &lastUpdated, &spot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastUpdated.Valid {
		spot.LastUpdated = lastUpdated.Time.In(time.UTC)
	}
	spot.CreatedAt = spot.CreatedAt.In(time.UTC)
	spot.Status = spot.DeriveStatus()
	return spot, nil
}

func (r *pgSpotRepository) Create(ctx context.Context, spot *domain.ParkingSpot) (*domain.ParkingSpot, error) {
	query := `INSERT INTO parking_spots (id, location, level, zone, is_occupied, is_reserved, is_disabled, sensor_type, hourly_rate, last_updated, created_at)
	           VALUES ($1, $2, $3, $4, FALSE, FALSE, $5, $6, $7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		spot.ID, spot.Location, spot.Level, spot.Zone,
		spot.IsDisabled, spot.SensorType, spot.HourlyRate,
	).Scan(&spot.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code.Name() == "unique_violation" {
				return nil, fmt.Errorf("%w: chỗ đỗ '%s' đã tồn tại", repository.ErrDuplicateEntry, spot.ID)
			}
		}
		return nil, fmt.Errorf("SpotRepository.Create: %w", err)
	}
	spot.CreatedAt = spot.CreatedAt.In(time.UTC)
	spot.Status = spot.DeriveStatus()
	return spot, nil
}

func (r *pgSpotRepository) FindByID(ctx context.Context, id string) (*domain.ParkingSpot, error) {
	query := `SELECT ` + spotColumns + ` FROM parking_spots WHERE id = $1`
	spot, err := scanSpot(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SpotRepository.FindByID: %w", err)
	}
	return spot, nil
}

func (r *pgSpotRepository) FindAll(ctx context.Context) ([]domain.ParkingSpot, error) {
	query := `SELECT ` + spotColumns + ` FROM parking_spots ORDER BY id`
	return r.querySpots(ctx, "FindAll", query)
}

func (r *pgSpotRepository) FindAvailable(ctx context.Context, level, zone string) ([]domain.ParkingSpot, error) {
	query := `SELECT ` + spotColumns + ` FROM parking_spots
	           WHERE is_occupied = FALSE AND is_reserved = FALSE AND is_disabled = FALSE
	             AND ($1 = '' OR level = $1) AND ($2 = '' OR zone = $2)
	           ORDER BY id`
	return r.querySpots(ctx, "FindAvailable", query, level, zone)
}

func (r *pgSpotRepository) querySpots(ctx context.Context, op string, query string, args ...any) ([]domain.ParkingSpot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SpotRepository.%s: %w", op, err)
	}
	defer rows.Close()

	var spots []domain.ParkingSpot
	for rows.Next() {
		spot, err := scanSpot(rows)
		if err != nil {
			return nil, fmt.Errorf("SpotRepository.%s (scanning row): %w", op, err)
		}
		spots = append(spots, *spot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SpotRepository.%s (rows error): %w", op, err)
	}
	return spots, nil
}

func (r *pgSpotRepository) Update(ctx context.Context, spot *domain.ParkingSpot) (*domain.ParkingSpot, error) {
	query := `UPDATE parking_spots
	           SET location = $1, level = $2, zone = $3, is_disabled = $4, sensor_type = $5, hourly_rate = $6
	           WHERE id = $7
	           RETURNING ` + spotColumns
	updated, err := scanSpot(r.db.QueryRowContext(ctx, query,
		spot.Location, spot.Level, spot.Zone, spot.IsDisabled, spot.SensorType, spot.HourlyRate, spot.ID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SpotRepository.Update: %w", err)
	}
	return updated, nil
}

func (r *pgSpotRepository) Delete(ctx context.Context, id string) error {
	// Xóa cascade các reservation tham chiếu trước — đây là thao tác admin
	// tường minh, không bao giờ chạy tự động.
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SpotRepository.Delete (begin tx): %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE spot_id = $1`, id); err != nil {
		return fmt.Errorf("SpotRepository.Delete (reservations): %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM parking_spots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("SpotRepository.Delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("SpotRepository.Delete (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return tx.Commit()
}

func (r *pgSpotRepository) SetOccupied(ctx context.Context, id string, occupied bool, at time.Time) error {
	// is_occupied và last_updated đổi trong cùng một câu lệnh để reader
	// không bao giờ thấy tổ hợp dở dang.
	query := `UPDATE parking_spots SET is_occupied = $1, last_updated = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, occupied, at, id)
	if err != nil {
		return fmt.Errorf("SpotRepository.SetOccupied: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("SpotRepository.SetOccupied (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgSpotRepository) SetReserved(ctx context.Context, id string, reserved bool) error {
	if !reserved {
		// Thả cờ là idempotent
		result, err := r.db.ExecContext(ctx,
			`UPDATE parking_spots SET is_reserved = FALSE WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("SpotRepository.SetReserved(false): %w", err)
		}
		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return repository.ErrNotFound
		}
		return nil
	}

	// Conditional write: chỉ thắng khi cờ đang trống và spot không bị
	// vô hiệu hóa. Caller thua race sẽ nhận ErrAlreadyReserved.
	result, err := r.db.ExecContext(ctx,
		`UPDATE parking_spots SET is_reserved = TRUE
	      WHERE id = $1 AND is_reserved = FALSE AND is_disabled = FALSE`, id)
	if err != nil {
		return fmt.Errorf("SpotRepository.SetReserved(true): %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("SpotRepository.SetReserved (checking rows affected): %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// Phân loại lý do thất bại
	spot, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if spot.IsDisabled {
		return repository.ErrSpotDisabledRow
	}
	return repository.ErrAlreadyReserved
}

func (r *pgSpotRepository) CountOverall(ctx context.Context) (*domain.OccupancyOverall, error) {
	query := `SELECT COUNT(*),
	                 COUNT(*) FILTER (WHERE is_occupied),
	                 COUNT(*) FILTER (WHERE is_reserved)
	           FROM parking_spots`
	overall := &domain.OccupancyOverall{}
	err := r.db.QueryRowContext(ctx, query).Scan(&overall.TotalSpots, &overall.OccupiedSpots, &overall.ReservedSpots)
	if err != nil {
		return nil, fmt.Errorf("SpotRepository.CountOverall: %w", err)
	}
	overall.AvailableSpots = overall.TotalSpots - overall.OccupiedSpots - overall.ReservedSpots
	if overall.TotalSpots > 0 {
		overall.OccupancyRate = round2(float64(overall.OccupiedSpots) / float64(overall.TotalSpots) * 100)
	}
	return overall, nil
}

func (r *pgSpotRepository) CountByLevel(ctx context.Context) ([]domain.LevelOccupancy, error) {
	query := `SELECT level, COUNT(*), COUNT(*) FILTER (WHERE is_occupied)
	           FROM parking_spots GROUP BY level ORDER BY level`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("SpotRepository.CountByLevel: %w", err)
	}
	defer rows.Close()

	var levels []domain.LevelOccupancy
	for rows.Next() {
		var lv domain.LevelOccupancy
		if err := rows.Scan(&lv.Level, &lv.TotalSpots, &lv.OccupiedSpots); err != nil {
			return nil, fmt.Errorf("SpotRepository.CountByLevel (scanning row): %w", err)
		}
		lv.AvailableSpots = lv.TotalSpots - lv.OccupiedSpots
		if lv.TotalSpots > 0 {
			lv.OccupancyRate = round2(float64(lv.OccupiedSpots) / float64(lv.TotalSpots) * 100)
		}
		levels = append(levels, lv)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SpotRepository.CountByLevel (rows error): %w", err)
	}
	return levels, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
