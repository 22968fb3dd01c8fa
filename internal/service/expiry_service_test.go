package service

import (
	"context"
	"testing"
	"time"

	"parking_iot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expiryFixture struct {
	service  *ExpiryService
	spotRepo *fakeSpotRepo
	resRepo  *fakeReservationRepo
	cache    *fakeSpotCache
	ws       *fakeWSManager
	now      time.Time
}

func newExpiryFixture(t *testing.T) *expiryFixture {
	t.Helper()
	f := &expiryFixture{
		spotRepo: newFakeSpotRepo(),
		resRepo:  newFakeReservationRepo(),
		cache:    newFakeSpotCache(),
		ws:       &fakeWSManager{},
		now:      time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	}
	f.service = NewExpiryService(f.resRepo, f.spotRepo, f.cache, f.ws, testConfig())
	f.service.now = func() time.Time { return f.now }
	f.spotRepo.put(testSpot("PARK_001"))
	return f
}

func (f *expiryFixture) addReservation(id string, start, end time.Time) {
	_, err := f.resRepo.Create(context.Background(), &domain.Reservation{
		ID:        id,
		SpotID:    "PARK_001",
		UserEmail: "khach@example.com",
		StartTime: start,
		EndTime:   end,
		Status:    domain.ReservationActive,
	})
	if err != nil {
		panic(err)
	}
}

func TestSweepExpiresOverdueReservation(t *testing.T) {
	f := newExpiryFixture(t)

	// Kết thúc 2 giờ trước, grace 1 giờ: phải hết hạn.
	f.addReservation("RES_old", f.now.Add(-4*time.Hour), f.now.Add(-2*time.Hour))
	spot := f.spotRepo.get("PARK_001")
	spot.IsReserved = true
	f.spotRepo.put(spot)

	f.service.SweepOnce(context.Background())

	res, err := f.resRepo.FindByID(context.Background(), "RES_old")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, res.Status)
	assert.False(t, f.spotRepo.get("PARK_001").IsReserved)
}

func TestSweepRespectsGracePeriod(t *testing.T) {
	f := newExpiryFixture(t)

	// Kết thúc 30 phút trước, grace 1 giờ: CHƯA được hết hạn.
	f.addReservation("RES_recent", f.now.Add(-2*time.Hour), f.now.Add(-30*time.Minute))
	spot := f.spotRepo.get("PARK_001")
	spot.IsReserved = true
	f.spotRepo.put(spot)

	f.service.SweepOnce(context.Background())

	res, err := f.resRepo.FindByID(context.Background(), "RES_recent")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationActive, res.Status)
	assert.True(t, f.spotRepo.get("PARK_001").IsReserved)
}

func TestSweepKeepsFlagWhenAnotherActiveCovers(t *testing.T) {
	f := newExpiryFixture(t)

	f.addReservation("RES_old", f.now.Add(-5*time.Hour), f.now.Add(-2*time.Hour))
	// Reservation thứ hai đang phủ thời điểm hiện tại.
	f.addReservation("RES_current", f.now.Add(-time.Hour), f.now.Add(time.Hour))
	spot := f.spotRepo.get("PARK_001")
	spot.IsReserved = true
	f.spotRepo.put(spot)

	f.service.SweepOnce(context.Background())

	res, err := f.resRepo.FindByID(context.Background(), "RES_old")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, res.Status)

	// Re-check tại thời điểm ghi: cờ phải giữ nguyên cho RES_current.
	assert.True(t, f.spotRepo.get("PARK_001").IsReserved)
}

func TestSweepActivatesFutureReservationWhenDue(t *testing.T) {
	f := newExpiryFixture(t)

	// Đặt trước lúc tạo, giờ cửa sổ đã chạm now: sweep phải bật cờ và
	// broadcast spot_reserved đúng tại thời điểm kích hoạt.
	f.addReservation("RES_future", f.now.Add(-time.Minute), f.now.Add(2*time.Hour))
	require.False(t, f.spotRepo.get("PARK_001").IsReserved)
	require.Empty(t, f.ws.reservations)

	f.service.SweepOnce(context.Background())

	assert.True(t, f.spotRepo.get("PARK_001").IsReserved)
	require.Len(t, f.ws.reservations, 1)
	assert.Equal(t, domain.EventSpotReserved, f.ws.reservations[0].Event)
	assert.Equal(t, "RES_future", f.ws.reservations[0].ReservationID)
}

func TestSweepActivationSkipsDisabledSpot(t *testing.T) {
	f := newExpiryFixture(t)

	f.addReservation("RES_future", f.now.Add(-time.Minute), f.now.Add(2*time.Hour))
	spot := f.spotRepo.get("PARK_001")
	spot.IsDisabled = true
	f.spotRepo.put(spot)

	// Spot bị vô hiệu hóa sau khi reservation được tạo: không bật cờ,
	// không panic, sweep tiếp tục bình thường.
	f.service.SweepOnce(context.Background())

	assert.False(t, f.spotRepo.get("PARK_001").IsReserved)
	assert.Empty(t, f.ws.reservations)
}

func TestSweepActivationIdempotent(t *testing.T) {
	f := newExpiryFixture(t)

	f.addReservation("RES_current", f.now.Add(-time.Minute), f.now.Add(2*time.Hour))

	f.service.SweepOnce(context.Background())
	require.True(t, f.spotRepo.get("PARK_001").IsReserved)

	// Quét lần hai: ErrAlreadyReserved được nuốt, trạng thái không đổi
	// và không broadcast lặp lại.
	f.service.SweepOnce(context.Background())
	assert.True(t, f.spotRepo.get("PARK_001").IsReserved)
	assert.Len(t, f.ws.reservations, 1)
}
