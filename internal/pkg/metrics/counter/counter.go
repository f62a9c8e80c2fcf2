package counter

import (
	"context"

	"github.com/permitradar/permitradar/internal/pkg/cache"
)

const (
	downloadsKey = "leads:counters:downloads"
	deniedKey    = "leads:counters:denied"
	shortfallKey = "leads:counters:shortfall"
)

// AddCSVDownload increments the download counter for a city in Redis
func AddCSVDownload(city string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, downloadsKey, city, 1).Err()
}

// AddAccessDenied increments the denied-access counter for a city in Redis
func AddAccessDenied(city string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, deniedKey, city, 1).Err()
}

// AddAssignmentShortfall records how many leads an assignment came up short
func AddAssignmentShortfall(city string, missing int) error {
	if missing <= 0 {
		return nil
	}
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, shortfallKey, city, int64(missing)).Err()
}

// Snapshot returns all counters grouped by metric name, each keyed by city.
func Snapshot() (map[string]map[string]string, error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	snapshot := make(map[string]map[string]string, 3)
	for name, key := range map[string]string{
		"csv_downloads":        downloadsKey,
		"access_denied":        deniedKey,
		"assignment_shortfall": shortfallKey,
	} {
		data, err := rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		snapshot[name] = data
	}
	return snapshot, nil
}
