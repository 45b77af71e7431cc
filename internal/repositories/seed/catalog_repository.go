// Package seed serves the pricing catalog from YAML, either the embedded default
// or an operator supplied file.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/repositories"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// CatalogRepository decodes a YAML catalog document on every load.
type CatalogRepository struct {
	read func() ([]byte, error)
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository reads from path, or the embedded catalog when path is blank.
// The file is re-read on each load so edits are picked up by catalog refreshes.
func NewCatalogRepository(path string) *CatalogRepository {
	path = strings.TrimSpace(path)
	if path == "" {
		return NewCatalogRepositoryFromBytes(defaultCatalog)
	}
	return &CatalogRepository{read: func() ([]byte, error) { return os.ReadFile(path) }}
}

// NewCatalogRepositoryFromBytes serves a fixed document.
func NewCatalogRepositoryFromBytes(data []byte) *CatalogRepository {
	buf := append([]byte(nil), data...)
	return &CatalogRepository{read: func() ([]byte, error) { return buf, nil }}
}

// DefaultCatalog returns a copy of the embedded catalog document.
func DefaultCatalog() []byte {
	return append([]byte(nil), defaultCatalog...)
}

func (r *CatalogRepository) LoadPricingCatalog(ctx context.Context) (domain.PricingCatalog, error) {
	if err := ctx.Err(); err != nil {
		return domain.PricingCatalog{}, err
	}
	data, err := r.read()
	if err != nil {
		return domain.PricingCatalog{}, fmt.Errorf("seed catalog: read: %w", err)
	}

	var records repositories.CatalogRecords
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&records); err != nil {
		return domain.PricingCatalog{}, fmt.Errorf("seed catalog: decode: %w", err)
	}
	return records.ToDomain()
}
