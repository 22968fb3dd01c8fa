package occupancy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerCommitAfterConsecutiveMatches(t *testing.T) {
	d := NewDebouncer(200, 3)
	at := time.Now()

	// Trạng thái khởi tạo là FREE: các mẫu trống liên tiếp commit lại FREE
	// nhưng không phát state change.
	for _, distance := range []float64{250, 248, 252} {
		raw, change := d.Observe(distance, at)
		assert.False(t, raw.Candidate)
		assert.Nil(t, change)
	}
	assert.False(t, d.Published())

	// Hai mẫu có xe chưa đủ debounce count, trạng thái công bố giữ nguyên.
	raw, change := d.Observe(45, at)
	assert.True(t, raw.Candidate)
	assert.InDelta(t, 1.0/3.0, raw.Confidence, 0.001)
	assert.Nil(t, change)

	raw, change = d.Observe(44, at)
	assert.InDelta(t, 2.0/3.0, raw.Confidence, 0.001)
	assert.Nil(t, change)
	assert.False(t, d.Published())

	// Mẫu thứ ba commit transition FREE -> OCCUPIED.
	raw, change = d.Observe(43, at)
	assert.InDelta(t, 1.0, raw.Confidence, 0.001)
	require.NotNil(t, change)
	assert.False(t, change.PreviousOccupied)
	assert.True(t, change.Occupied)
	assert.True(t, d.Published())
}

func TestDebouncerFlappingResetsCounter(t *testing.T) {
	d := NewDebouncer(200, 3)
	at := time.Now()

	// Hai mẫu có xe, rồi một mẫu nhiễu trống: bộ đếm phải reset,
	// không bao giờ commit OCCUPIED.
	d.Observe(45, at)
	d.Observe(44, at)
	raw, change := d.Observe(250, at)
	assert.False(t, raw.Candidate)
	assert.InDelta(t, 1.0/3.0, raw.Confidence, 0.001)
	assert.Nil(t, change)

	// Lại hai mẫu có xe: vẫn chưa đủ 3 liên tiếp.
	d.Observe(46, at)
	_, change = d.Observe(45, at)
	assert.Nil(t, change)
	assert.False(t, d.Published())
}

func TestDebouncerRoundTrip(t *testing.T) {
	d := NewDebouncer(200, 3)
	at := time.Now()

	var changes []StateChange
	for _, distance := range []float64{45, 44, 43, 250, 251, 252} {
		_, change := d.Observe(distance, at)
		if change != nil {
			changes = append(changes, *change)
		}
	}

	// Đúng hai transition: FREE->OCCUPIED rồi OCCUPIED->FREE.
	require.Len(t, changes, 2)
	assert.True(t, changes[0].Occupied)
	assert.False(t, changes[1].Occupied)
	assert.False(t, d.Published())
}

func TestDebouncerConfidenceCapped(t *testing.T) {
	d := NewDebouncer(200, 3)
	at := time.Now()

	// Sau khi commit, các mẫu cùng trạng thái không đẩy confidence quá 1.
	for i := 0; i < 10; i++ {
		raw, _ := d.Observe(45, at)
		assert.LessOrEqual(t, raw.Confidence, 1.0)
	}
}

func TestDebouncerThresholdBoundary(t *testing.T) {
	d := NewDebouncer(200, 1)
	at := time.Now()

	// distance == threshold KHÔNG tính là có xe (so sánh strict <).
	raw, _ := d.Observe(200, at)
	assert.False(t, raw.Candidate)

	raw, _ = d.Observe(199.9, at)
	assert.True(t, raw.Candidate)
}

func TestDebouncerCountClamped(t *testing.T) {
	// debounceCount < 1 được nâng lên 1: mọi mẫu commit ngay.
	d := NewDebouncer(200, 0)
	_, change := d.Observe(45, time.Now())
	require.NotNil(t, change)
	assert.True(t, change.Occupied)
}
