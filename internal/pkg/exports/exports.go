package exports

import (
	"context"
	"errors"
	"regexp"

	"github.com/permitradar/permitradar/app/models"
	"github.com/permitradar/permitradar/internal/pkg/env"
)

// ErrNoExport means no CSV export exists (yet) for the requested city.
var ErrNoExport = errors.New("no export available")

var citySlugPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Storage fetches the latest CSV export for a city. The ingestion backend
// writes exports; this portal only reads them.
type Storage interface {
	Fetch(ctx context.Context, city string) ([]byte, error)
}

// Filename is the canonical export object name for a city.
func Filename(city string) string {
	return models.NormalizeCity(city) + "_leads.csv"
}

// ValidCitySlug reports whether a normalized city is a safe storage key.
func ValidCitySlug(city string) bool {
	return citySlugPattern.MatchString(city)
}

// NewStorageFromEnv selects the export backend: S3 when a bucket is
// configured, the local export directory otherwise.
func NewStorageFromEnv() (Storage, error) {
	if bucket := env.GetEnv("EXPORTS_S3_BUCKET", ""); bucket != "" {
		return NewS3Storage()
	}
	return NewLocalStorage(env.GetEnv("EXPORTS_DIR", "./exports")), nil
}
