package occupancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleFilterAverage(t *testing.T) {
	f := NewSampleFilter(2, 400)

	// Mẫu ngoài dải (timeout -1, quá xa 500, quá gần 1) phải bị loại,
	// trung bình chỉ tính trên phần còn lại.
	avg, err := f.Average([]float64{250, invalidSample, 45, 500, 1})
	require.NoError(t, err)
	assert.InDelta(t, 147.5, avg, 0.001)
}

func TestSampleFilterAverageAllInvalid(t *testing.T) {
	f := NewSampleFilter(2, 400)

	_, err := f.Average([]float64{invalidSample, invalidSample, 500, 0})
	require.ErrorIs(t, err, ErrNoValidReading)
}

func TestSampleFilterAverageSingleValid(t *testing.T) {
	f := NewSampleFilter(2, 400)

	avg, err := f.Average([]float64{invalidSample, 180, invalidSample, invalidSample, invalidSample})
	require.NoError(t, err)
	assert.Equal(t, 180.0, avg)
}

func TestSampleFilterBoundaries(t *testing.T) {
	f := NewSampleFilter(2, 400)

	// Biên của dải đo là hợp lệ.
	assert.True(t, f.Valid(2))
	assert.True(t, f.Valid(400))
	assert.False(t, f.Valid(1.99))
	assert.False(t, f.Valid(400.01))
}
