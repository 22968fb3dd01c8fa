package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parking_iot/internal/domain"
	"parking_iot/internal/repository"
)

// Các fake in-memory dùng chung cho test service. Hành vi mô phỏng đúng
// semantics của bản Postgres: conditional write cho SetReserved, interval
// nửa mở cho overlap.

type fakeSpotRepo struct {
	mu    sync.Mutex
	spots map[string]*domain.ParkingSpot

	setOccupiedCalls int
}

func newFakeSpotRepo() *fakeSpotRepo {
	return &fakeSpotRepo{spots: make(map[string]*domain.ParkingSpot)}
}

func (r *fakeSpotRepo) put(spot *domain.ParkingSpot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *spot
	r.spots[spot.ID] = &cp
}

func (r *fakeSpotRepo) get(id string) *domain.ParkingSpot {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.spots[id]
	return &cp
}

func (r *fakeSpotRepo) Create(ctx context.Context, spot *domain.ParkingSpot) (*domain.ParkingSpot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.spots[spot.ID]; exists {
		return nil, repository.ErrDuplicateEntry
	}
	spot.CreatedAt = time.Now().UTC()
	spot.LastUpdated = spot.CreatedAt
	cp := *spot
	r.spots[spot.ID] = &cp
	return spot, nil
}

func (r *fakeSpotRepo) FindByID(ctx context.Context, id string) (*domain.ParkingSpot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	spot, ok := r.spots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *spot
	return &cp, nil
}

func (r *fakeSpotRepo) FindAll(ctx context.Context) ([]domain.ParkingSpot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ParkingSpot, 0, len(r.spots))
	for _, s := range r.spots {
		out = append(out, *s)
	}
	return out, nil
}

func (r *fakeSpotRepo) FindAvailable(ctx context.Context, level, zone string) ([]domain.ParkingSpot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ParkingSpot
	for _, s := range r.spots {
		if s.IsOccupied || s.IsReserved || s.IsDisabled {
			continue
		}
		if level != "" && s.Level != level {
			continue
		}
		if zone != "" && s.Zone != zone {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *fakeSpotRepo) Update(ctx context.Context, spot *domain.ParkingSpot) (*domain.ParkingSpot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.spots[spot.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	cp := *spot
	r.spots[spot.ID] = &cp
	return spot, nil
}

func (r *fakeSpotRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.spots[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.spots, id)
	return nil
}

func (r *fakeSpotRepo) SetOccupied(ctx context.Context, id string, occupied bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	spot, ok := r.spots[id]
	if !ok {
		return repository.ErrNotFound
	}
	spot.IsOccupied = occupied
	spot.LastUpdated = at
	r.setOccupiedCalls++
	return nil
}

func (r *fakeSpotRepo) SetReserved(ctx context.Context, id string, reserved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	spot, ok := r.spots[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !reserved {
		spot.IsReserved = false
		return nil
	}
	if spot.IsDisabled {
		return repository.ErrSpotDisabledRow
	}
	if spot.IsReserved {
		return repository.ErrAlreadyReserved
	}
	spot.IsReserved = true
	return nil
}

func (r *fakeSpotRepo) CountOverall(ctx context.Context) (*domain.OccupancyOverall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	overall := &domain.OccupancyOverall{}
	for _, s := range r.spots {
		overall.TotalSpots++
		switch domain.DeriveStatus(s.IsDisabled, s.IsOccupied, s.IsReserved) {
		case domain.SpotOccupied:
			overall.OccupiedSpots++
		case domain.SpotReserved:
			overall.ReservedSpots++
		case domain.SpotAvailable:
			overall.AvailableSpots++
		}
	}
	if overall.TotalSpots > 0 {
		overall.OccupancyRate = float64(overall.OccupiedSpots) / float64(overall.TotalSpots) * 100
	}
	return overall, nil
}

func (r *fakeSpotRepo) CountByLevel(ctx context.Context) ([]domain.LevelOccupancy, error) {
	return nil, nil
}

type fakeReservationRepo struct {
	mu           sync.Mutex
	reservations map[string]*domain.Reservation
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{reservations: make(map[string]*domain.Reservation)}
}

func (r *fakeReservationRepo) Create(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.reservations[res.ID]; exists {
		return nil, repository.ErrDuplicateEntry
	}
	res.CreatedAt = time.Now().UTC()
	res.UpdatedAt = res.CreatedAt
	cp := *res
	r.reservations[res.ID] = &cp
	return res, nil
}

func (r *fakeReservationRepo) FindByID(ctx context.Context, id string) (*domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *res
	return &cp, nil
}

func (r *fakeReservationRepo) HasActiveOverlap(ctx context.Context, spotID string, start, end time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.reservations {
		if res.SpotID != spotID || res.Status != domain.ReservationActive {
			continue
		}
		// Interval nửa mở: back-to-back không giao nhau.
		if res.StartTime.Before(end) && res.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeReservationRepo) FindActiveCovering(ctx context.Context, spotID string, at time.Time) (*domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.reservations {
		if res.SpotID == spotID && res.Status == domain.ReservationActive && res.CoversAt(at) {
			cp := *res
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeReservationRepo) FindExpired(ctx context.Context, olderThan time.Time) ([]domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Reservation
	for _, res := range r.reservations {
		if res.Status == domain.ReservationActive && res.EndTime.Before(olderThan) {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (r *fakeReservationRepo) FindDueForActivation(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Reservation
	for _, res := range r.reservations {
		if res.Status == domain.ReservationActive && res.CoversAt(now) {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (r *fakeReservationRepo) UpdateStatus(ctx context.Context, id string, status domain.ReservationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return repository.ErrNotFound
	}
	res.Status = status
	res.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeReservationRepo) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return repository.ErrNotFound
	}
	res.PaymentStatus = status
	return nil
}

type fakeReadingRepo struct {
	mu       sync.Mutex
	readings []domain.SensorReading
}

func (r *fakeReadingRepo) Create(ctx context.Context, reading *domain.SensorReading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reading.ID = int64(len(r.readings) + 1)
	reading.CreatedAt = time.Now().UTC()
	r.readings = append(r.readings, *reading)
	return nil
}

func (r *fakeReadingRepo) FindRecentBySensor(ctx context.Context, sensorID string, limit int) ([]domain.SensorReading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SensorReading
	for i := len(r.readings) - 1; i >= 0 && len(out) < limit; i-- {
		if r.readings[i].SensorID == sensorID {
			out = append(out, r.readings[i])
		}
	}
	return out, nil
}

func (r *fakeReadingRepo) count(sensorID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, reading := range r.readings {
		if reading.SensorID == sensorID {
			n++
		}
	}
	return n
}

type fakeHealthRepo struct {
	mu         sync.Mutex
	health     map[string]*domain.SensorHealth
	errorCount map[string]int
}

func newFakeHealthRepo() *fakeHealthRepo {
	return &fakeHealthRepo{
		health:     make(map[string]*domain.SensorHealth),
		errorCount: make(map[string]int),
	}
}

func (r *fakeHealthRepo) Upsert(ctx context.Context, h *domain.SensorHealth) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *h
	// Merge kiểu COALESCE như bản SQL: field null không ghi đè giá trị cũ.
	if old, ok := r.health[h.SensorID]; ok {
		if !cp.LastHeartbeatAt.Valid {
			cp.LastHeartbeatAt = old.LastHeartbeatAt
		}
		if !cp.LastDataAt.Valid {
			cp.LastDataAt = old.LastDataAt
		}
		if !cp.BatteryLevel.Valid {
			cp.BatteryLevel = old.BatteryLevel
		}
		if !cp.SignalStrength.Valid {
			cp.SignalStrength = old.SignalStrength
		}
		if cp.FirmwareVersion == "" {
			cp.FirmwareVersion = old.FirmwareVersion
		}
	}
	cp.UpdatedAt = time.Now().UTC()
	r.health[h.SensorID] = &cp
	return nil
}

func (r *fakeHealthRepo) FindBySensorID(ctx context.Context, sensorID string) (*domain.SensorHealth, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.health[sensorID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (r *fakeHealthRepo) FindAll(ctx context.Context) ([]domain.SensorHealth, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SensorHealth
	for _, h := range r.health {
		out = append(out, *h)
	}
	return out, nil
}

func (r *fakeHealthRepo) IncrementErrorCount(ctx context.Context, sensorID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorCount[sensorID]++
	return nil
}

func (r *fakeHealthRepo) MarkOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, h := range r.health {
		last := h.LastDataAt.Time
		if h.LastHeartbeatAt.Valid && h.LastHeartbeatAt.Time.After(last) {
			last = h.LastHeartbeatAt.Time
		}
		if h.IsOnline && last.Before(cutoff) {
			h.IsOnline = false
			n++
		}
	}
	return n, nil
}

type fakeSpotCache struct {
	mu    sync.Mutex
	spots map[string]*domain.ParkingSpot
}

func newFakeSpotCache() *fakeSpotCache {
	return &fakeSpotCache{spots: make(map[string]*domain.ParkingSpot)}
}

func (c *fakeSpotCache) SetStatus(ctx context.Context, spot *domain.ParkingSpot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *spot
	c.spots[spot.ID] = &cp
	return nil
}

func (c *fakeSpotCache) GetStatus(ctx context.Context, spotID string) (*domain.ParkingSpot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	spot, ok := c.spots[spotID]
	if !ok {
		return nil, nil
	}
	cp := *spot
	return &cp, nil
}

func (c *fakeSpotCache) Invalidate(ctx context.Context, spotID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.spots, spotID)
	return nil
}

type fakeWSManager struct {
	mu            sync.Mutex
	statusChanges []domain.SpotStatusChangedNotification
	reservations  []domain.SpotReservedNotification
	sensorErrors  []domain.SensorErrorNotification
}

func (m *fakeWSManager) BroadcastSpotStatusChanged(event domain.SpotStatusChangedNotification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusChanges = append(m.statusChanges, event)
}

func (m *fakeWSManager) BroadcastSpotReserved(event domain.SpotReservedNotification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations = append(m.reservations, event)
}

func (m *fakeWSManager) BroadcastSensorError(event domain.SensorErrorNotification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sensorErrors = append(m.sensorErrors, event)
}

func testSpot(id string) *domain.ParkingSpot {
	return &domain.ParkingSpot{
		ID:         id,
		Location:   fmt.Sprintf("Chỗ đỗ %s", id),
		Level:      "L1",
		Zone:       "A",
		SensorType: domain.SensorUltrasonic,
		HourlyRate: 2.0,
	}
}
