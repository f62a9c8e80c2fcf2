package exports

import (
	"context"
	"os"
	"path/filepath"

	"github.com/permitradar/permitradar/app/models"
)

// LocalStorage reads CSV exports from a directory on disk. Used in
// development and for single-host deployments where the scraper backend
// writes exports straight to a shared volume.
type LocalStorage struct {
	dir string
}

func NewLocalStorage(dir string) *LocalStorage {
	return &LocalStorage{dir: dir}
}

func (s *LocalStorage) Fetch(_ context.Context, city string) ([]byte, error) {
	normalized := models.NormalizeCity(city)
	if !ValidCitySlug(normalized) {
		return nil, ErrNoExport
	}

	data, err := os.ReadFile(filepath.Join(s.dir, Filename(normalized)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoExport
		}
		return nil, err
	}
	return data, nil
}
