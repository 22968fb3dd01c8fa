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

type pgReservationRepository struct {
	db *sql.DB
}

func NewPgReservationRepository(db *sql.DB) repository.ReservationRepository {
	return &pgReservationRepository{db: db}
}

const reservationColumns = `id, spot_id, user_email, user_phone, start_time, end_time, duration_hours, total_amount, payment_status, status, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	err := row.Scan(
		&res.ID, &res.SpotID, &res.UserEmail, &res.UserPhone,
		&res.StartTime, &res.EndTime, &res.DurationHours, &res.TotalAmount,
		&res.PaymentStatus, &res.Status, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	res.StartTime = res.StartTime.In(time.UTC)
	res.EndTime = res.EndTime.In(time.UTC)
	res.CreatedAt = res.CreatedAt.In(time.UTC)
	res.UpdatedAt = res.UpdatedAt.In(time.UTC)
	return res, nil
}

func (r *pgReservationRepository) Create(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error) {
	query := `INSERT INTO reservations (id, spot_id, user_email, user_phone, start_time, end_time, duration_hours, total_amount, payment_status, status, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		res.ID, res.SpotID, res.UserEmail, res.UserPhone,
		res.StartTime, res.EndTime, res.DurationHours, res.TotalAmount,
		res.PaymentStatus, res.Status,
	).Scan(&res.CreatedAt, &res.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return nil, fmt.Errorf("%w: reservation '%s' đã tồn tại", repository.ErrDuplicateEntry, res.ID)
			case "foreign_key_violation":
				return nil, fmt.Errorf("%w: chỗ đỗ '%s' không tồn tại", repository.ErrNotFound, res.SpotID)
			}
		}
		return nil, fmt.Errorf("ReservationRepository.Create: %w", err)
	}
	res.CreatedAt = res.CreatedAt.In(time.UTC)
	res.UpdatedAt = res.UpdatedAt.In(time.UTC)
	return res, nil
}

func (r *pgReservationRepository) FindByID(ctx context.Context, id string) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ReservationRepository.FindByID: %w", err)
	}
	return res, nil
}

func (r *pgReservationRepository) HasActiveOverlap(ctx context.Context, spotID string, start, end time.Time) (bool, error) {
	// Giao khoảng nửa mở [start, end): hai cửa sổ back-to-back không giao nhau.
	query := `SELECT EXISTS(
	             SELECT 1 FROM reservations
	             WHERE spot_id = $1 AND status = 'active'
	               AND start_time < $3 AND end_time > $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, spotID, start, end).Scan(&exists); err != nil {
		return false, fmt.Errorf("ReservationRepository.HasActiveOverlap: %w", err)
	}
	return exists, nil
}

func (r *pgReservationRepository) FindActiveCovering(ctx context.Context, spotID string, at time.Time) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
	           WHERE spot_id = $1 AND status = 'active'
	             AND start_time <= $2 AND end_time > $2
	           ORDER BY start_time LIMIT 1`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, spotID, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ReservationRepository.FindActiveCovering: %w", err)
	}
	return res, nil
}

func (r *pgReservationRepository) FindExpired(ctx context.Context, olderThan time.Time) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
	           WHERE status = 'active' AND end_time < $1
	           ORDER BY end_time`
	return r.queryReservations(ctx, "FindExpired", query, olderThan)
}

func (r *pgReservationRepository) FindDueForActivation(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations res
	           WHERE res.status = 'active'
	             AND res.start_time <= $1 AND res.end_time > $1
	             AND EXISTS(SELECT 1 FROM parking_spots s
	                         WHERE s.id = res.spot_id AND s.is_reserved = FALSE)
	           ORDER BY res.start_time`
	return r.queryReservations(ctx, "FindDueForActivation", query, now)
}

func (r *pgReservationRepository) queryReservations(ctx context.Context, op string, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ReservationRepository.%s: %w", op, err)
	}
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("ReservationRepository.%s (scanning row): %w", op, err)
		}
		reservations = append(reservations, *res)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ReservationRepository.%s (rows error): %w", op, err)
	}
	return reservations, nil
}

func (r *pgReservationRepository) UpdateStatus(ctx context.Context, id string, status domain.ReservationStatus) error {
	query := `UPDATE reservations SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("ReservationRepository.UpdateStatus: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ReservationRepository.UpdateStatus (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgReservationRepository) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	query := `UPDATE reservations SET payment_status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("ReservationRepository.UpdatePaymentStatus: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ReservationRepository.UpdatePaymentStatus (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
