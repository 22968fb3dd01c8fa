package occupancy

import (
	"context"
	"errors"
	"log"
	"time"
)

// Sampler đọc một xung siêu âm duy nhất. Phần cứng thật (pulse timing,
// chân trigger/echo) nằm sau interface này; trong test là một fake.
type Sampler interface {
	ReadDistance(ctx context.Context) (float64, error)
}

// Loop là bản tham chiếu phía host của chính sách lấy mẫu chạy trên
// firmware; backend không chạy nó trong binary mà dùng để mô phỏng và test
// đúng hành vi thiết bị. Mỗi chu kỳ đo gom một batch MEASUREMENT_SAMPLES
// xung, mỗi xung có timeout đọc riêng (SENSOR_TIMEOUT); xung timeout chỉ
// làm hỏng MỘT mẫu, không làm hỏng cả batch. Batch đi qua SampleFilter
// rồi Debouncer.
type Loop struct {
	Sampler     Sampler
	Filter      *SampleFilter
	Debouncer   *Debouncer
	Samples     int           // Số mẫu mỗi batch, ví dụ 5
	ReadTimeout time.Duration // Timeout cho từng xung, ví dụ 30ms
	Interval    time.Duration // Khoảng cách giữa hai chu kỳ đo, ví dụ 30s

	OnRawReading func(RawReading)
	OnChange     func(StateChange)
	OnError      func(error) // Nhận ErrNoValidReading, mỗi chu kỳ tối đa một lần
}

// sentinel cho mẫu hỏng, nằm ngoài dải hợp lệ của filter
const invalidSample = -1.0

// MeasureOnce thực hiện một chu kỳ đo đầy đủ. Lỗi trả về duy nhất là
// ErrNoValidReading; lỗi đó không chạm vào bộ đếm debounce.
func (l *Loop) MeasureOnce(ctx context.Context, at time.Time) error {
	samples := make([]float64, 0, l.Samples)
	for i := 0; i < l.Samples; i++ {
		readCtx, cancel := context.WithTimeout(ctx, l.ReadTimeout)
		d, err := l.Sampler.ReadDistance(readCtx)
		cancel()
		if err != nil {
			// Timeout hoặc no-echo: mẫu này bị loại, batch vẫn tiếp tục
			samples = append(samples, invalidSample)
			continue
		}
		samples = append(samples, d)
	}

	avg, err := l.Filter.Average(samples)
	if err != nil {
		return err
	}

	raw, change := l.Debouncer.Observe(avg, at)
	if l.OnRawReading != nil {
		l.OnRawReading(raw)
	}
	if change != nil && l.OnChange != nil {
		l.OnChange(*change)
	}
	return nil
}

// Run lặp MeasureOnce theo Interval cho tới khi context bị hủy. Một chu kỳ
// NoValidReading được báo qua OnError rồi thử lại ở chu kỳ sau — không có
// gì ở đây là fatal.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := l.MeasureOnce(ctx, now); err != nil {
				if errors.Is(err, ErrNoValidReading) {
					if l.OnError != nil {
						l.OnError(err)
					}
					continue
				}
				log.Printf("Sampling loop: lỗi không mong muốn: %v", err)
			}
		}
	}
}
