package occupancy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSampler trả lần lượt các kết quả đã định sẵn; err != nil mô
// phỏng một xung timeout/no-echo.
type scriptedSampler struct {
	results []sampleResult
	idx     int
}

type sampleResult struct {
	distance float64
	err      error
}

func (s *scriptedSampler) ReadDistance(ctx context.Context) (float64, error) {
	if s.idx >= len(s.results) {
		return 0, errors.New("hết mẫu")
	}
	r := s.results[s.idx]
	s.idx++
	return r.distance, r.err
}

func newTestLoop(sampler Sampler) *Loop {
	return &Loop{
		Sampler:     sampler,
		Filter:      NewSampleFilter(2, 400),
		Debouncer:   NewDebouncer(200, 3),
		Samples:     5,
		ReadTimeout: 30 * time.Millisecond,
		Interval:    30 * time.Second,
	}
}

func TestLoopMeasureOnceAveragesValidSamples(t *testing.T) {
	timeoutErr := errors.New("echo timeout")
	sampler := &scriptedSampler{results: []sampleResult{
		{distance: 100}, {err: timeoutErr}, {distance: 110}, {distance: 500}, {distance: 90},
	}}
	loop := newTestLoop(sampler)

	var raws []RawReading
	loop.OnRawReading = func(r RawReading) { raws = append(raws, r) }

	err := loop.MeasureOnce(context.Background(), time.Now())
	require.NoError(t, err)

	// Trung bình của {100, 110, 90}: mẫu timeout và mẫu 500cm bị loại.
	require.Len(t, raws, 1)
	assert.InDelta(t, 100.0, raws[0].DistanceCm, 0.001)
	assert.True(t, raws[0].Candidate)
}

func TestLoopMeasureOnceNoValidReading(t *testing.T) {
	timeoutErr := errors.New("echo timeout")
	sampler := &scriptedSampler{results: []sampleResult{
		{err: timeoutErr}, {err: timeoutErr}, {err: timeoutErr}, {err: timeoutErr}, {err: timeoutErr},
	}}
	loop := newTestLoop(sampler)

	var rawCount int
	loop.OnRawReading = func(RawReading) { rawCount++ }

	err := loop.MeasureOnce(context.Background(), time.Now())
	require.ErrorIs(t, err, ErrNoValidReading)

	// Chu kỳ hỏng không phát raw reading và không chạm vào debouncer.
	assert.Zero(t, rawCount)
	assert.False(t, loop.Debouncer.Published())
}

func TestLoopNoValidReadingDoesNotResetDebounce(t *testing.T) {
	timeoutErr := errors.New("echo timeout")
	loop := newTestLoop(nil)

	// Hai chu kỳ có xe, một chu kỳ hỏng, rồi chu kỳ có xe thứ ba:
	// transition vẫn phải commit vì chu kỳ hỏng không đụng bộ đếm.
	batches := [][]sampleResult{
		{{distance: 45}, {distance: 46}, {distance: 44}, {distance: 45}, {distance: 45}},
		{{distance: 45}, {distance: 44}, {distance: 46}, {distance: 45}, {distance: 44}},
		{{err: timeoutErr}, {err: timeoutErr}, {err: timeoutErr}, {err: timeoutErr}, {err: timeoutErr}},
		{{distance: 44}, {distance: 45}, {distance: 45}, {distance: 46}, {distance: 44}},
	}

	var changes []StateChange
	loop.OnChange = func(c StateChange) { changes = append(changes, c) }

	for _, batch := range batches {
		loop.Sampler = &scriptedSampler{results: batch}
		_ = loop.MeasureOnce(context.Background(), time.Now())
	}

	require.Len(t, changes, 1)
	assert.True(t, changes[0].Occupied)
	assert.True(t, loop.Debouncer.Published())
}
