package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"parking_iot/internal/domain"

	"github.com/go-redis/redis/v8"
)

// SpotCache lưu trạng thái chỗ đỗ gần nhất vào Redis dưới key "spot:{id}"
// để dashboard đọc nhanh mà không cần query Postgres.
type SpotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSpotCache(addr, password string, ttl time.Duration) (*SpotCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("không thể kết nối Redis tại %s: %w", addr, err)
	}
	log.Printf("Đã kết nối Redis tại %s", addr)
	return &SpotCache{client: client, ttl: ttl}, nil
}

func spotKey(spotID string) string {
	return fmt.Sprintf("spot:%s", spotID)
}

// SetStatus ghi snapshot trạng thái spot. Lỗi cache không được chặn luồng chính,
// caller chỉ cần log.
func (c *SpotCache) SetStatus(ctx context.Context, spot *domain.ParkingSpot) error {
	payload, err := json.Marshal(spot)
	if err != nil {
		return fmt.Errorf("SpotCache.SetStatus marshal: %w", err)
	}
	if err := c.client.Set(ctx, spotKey(spot.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("SpotCache.SetStatus: %w", err)
	}
	return nil
}

// GetStatus trả về (nil, nil) khi cache miss.
func (c *SpotCache) GetStatus(ctx context.Context, spotID string) (*domain.ParkingSpot, error) {
	data, err := c.client.Get(ctx, spotKey(spotID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("SpotCache.GetStatus: %w", err)
	}
	spot := &domain.ParkingSpot{}
	if err := json.Unmarshal(data, spot); err != nil {
		return nil, fmt.Errorf("SpotCache.GetStatus unmarshal: %w", err)
	}
	return spot, nil
}

func (c *SpotCache) Invalidate(ctx context.Context, spotID string) error {
	if err := c.client.Del(ctx, spotKey(spotID)).Err(); err != nil {
		return fmt.Errorf("SpotCache.Invalidate: %w", err)
	}
	return nil
}

func (c *SpotCache) Close() error {
	return c.client.Close()
}
