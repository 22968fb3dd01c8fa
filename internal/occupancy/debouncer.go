package occupancy

import "time"

// RawReading được phát ra cho MỌI lần đo đã lọc, kể cả khi chưa commit —
// đây là dữ liệu nuôi history/analytics. Confidence = counter/debounce_count.
type RawReading struct {
	DistanceCm float64
	Candidate  bool // Trạng thái tức thời: distance < threshold
	Confidence float64
	Timestamp  time.Time
}

// StateChange chỉ được phát khi trạng thái đã commit khác với trạng thái
// đã công bố trước đó.
type StateChange struct {
	PreviousOccupied bool
	Occupied         bool
	Timestamp        time.Time
}

// Debouncer là state machine hai trạng thái {FREE, OCCUPIED} với bộ đếm
// pending-transition: chỉ khi cùng một candidate xuất hiện đủ debounceCount
// lần liên tiếp thì trạng thái công bố mới được phép đổi. Một mẫu nhiễu
// đơn lẻ (phản xạ, vật cản thoáng qua) sẽ reset bộ đếm chứ không lật
// trạng thái công khai của spot.
//
// Thay cho các biến global current/previous state trong firmware cũ,
// mỗi sensor giữ một instance riêng với cấu hình inject được — nhờ vậy
// test được mà không cần phần cứng.
type Debouncer struct {
	thresholdCm   float64
	debounceCount int

	pendingOccupied bool
	matchCount      int
	published       bool // Trạng thái đã công bố ra ngoài, khởi tạo là FREE
}

func NewDebouncer(thresholdCm float64, debounceCount int) *Debouncer {
	if debounceCount < 1 {
		debounceCount = 1
	}
	return &Debouncer{thresholdCm: thresholdCm, debounceCount: debounceCount}
}

// Published trả về trạng thái occupied đã công bố gần nhất.
func (d *Debouncer) Published() bool {
	return d.published
}

// Observe nhận một khoảng cách ĐÃ LỌC và trả về raw-reading event cùng
// state-change event (nil nếu chưa commit hoặc commit không đổi trạng thái).
// Một lần đọc NoValidReading không được gọi vào đây: nó không được phép
// chạm vào bộ đếm debounce.
func (d *Debouncer) Observe(distanceCm float64, at time.Time) (RawReading, *StateChange) {
	candidate := distanceCm < d.thresholdCm

	if d.matchCount == 0 || candidate != d.pendingOccupied {
		d.pendingOccupied = candidate
		d.matchCount = 1
	} else if d.matchCount < d.debounceCount {
		d.matchCount++
	}

	raw := RawReading{
		DistanceCm: distanceCm,
		Candidate:  candidate,
		Confidence: float64(d.matchCount) / float64(d.debounceCount),
		Timestamp:  at,
	}

	var change *StateChange
	if d.matchCount >= d.debounceCount && candidate != d.published {
		change = &StateChange{
			PreviousOccupied: d.published,
			Occupied:         candidate,
			Timestamp:        at,
		}
		d.published = candidate
	}
	return raw, change
}
