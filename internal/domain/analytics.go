package domain

import "time"

// Kết quả tổng hợp cho GET /analytics/occupancy. Phần aggregation được
// đẩy xuống DB (GROUP BY level), service chỉ ghép số liệu.

type OccupancyOverall struct {
	TotalSpots     int     `json:"total_spots"`
	OccupiedSpots  int     `json:"occupied_spots"`
	ReservedSpots  int     `json:"reserved_spots"`
	AvailableSpots int     `json:"available_spots"`
	OccupancyRate  float64 `json:"occupancy_rate"` // Phần trăm, làm tròn 2 chữ số
}

type LevelOccupancy struct {
	Level          string  `json:"level"`
	TotalSpots     int     `json:"total_spots"`
	OccupiedSpots  int     `json:"occupied_spots"`
	AvailableSpots int     `json:"available_spots"`
	OccupancyRate  float64 `json:"occupancy_rate"`
}

type OccupancyAnalytics struct {
	Overall   OccupancyOverall `json:"overall"`
	ByLevel   []LevelOccupancy `json:"by_level"`
	Timestamp time.Time        `json:"timestamp"`
}
