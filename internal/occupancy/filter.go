package occupancy

import "errors"

// ErrNoValidReading: toàn bộ mẫu trong batch đều ngoài dải đo hoặc timeout.
// Caller không được coi giá trị trung bình 0 là một khoảng cách hợp lệ.
var ErrNoValidReading = errors.New("không có mẫu đo hợp lệ trong batch")

// SampleFilter loại bỏ các mẫu siêu âm ngoài dải [MinCm, MaxCm] rồi lấy
// trung bình cộng phần còn lại. Mẫu timeout/no-echo được firmware đánh dấu
// bằng giá trị âm nên cũng rơi ra ngoài dải. Không có side effect.
type SampleFilter struct {
	MinCm float64
	MaxCm float64
}

func NewSampleFilter(minCm, maxCm float64) *SampleFilter {
	return &SampleFilter{MinCm: minCm, MaxCm: maxCm}
}

func (f *SampleFilter) Valid(distanceCm float64) bool {
	return distanceCm >= f.MinCm && distanceCm <= f.MaxCm
}

// Average trả về trung bình của các mẫu hợp lệ trong batch.
func (f *SampleFilter) Average(samples []float64) (float64, error) {
	var sum float64
	var count int
	for _, s := range samples {
		if !f.Valid(s) {
			continue
		}
		sum += s
		count++
	}
	if count == 0 {
		return 0, ErrNoValidReading
	}
	return sum / float64(count), nil
}
