package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"golang.org/x/sync/errgroup"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
	pfirestore "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/platform/firestore"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/repositories"
)

const (
	paperStocksCollection      = "paperStocks"
	addOnsCollection           = "addOns"
	turnaroundTablesCollection = "turnaroundTables"
)

// CatalogRepository reads the pricing catalog from three Firestore collections.
// Document IDs fill in record IDs that are left blank.
type CatalogRepository struct {
	stocks     *pfirestore.BaseRepository[repositories.PaperStockRecord]
	addOns     *pfirestore.BaseRepository[repositories.AddOnRecord]
	turnaround *pfirestore.BaseRepository[repositories.TurnaroundTableRecord]
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		stocks:     pfirestore.NewBaseRepository[repositories.PaperStockRecord](provider, paperStocksCollection, nil),
		addOns:     pfirestore.NewBaseRepository[repositories.AddOnRecord](provider, addOnsCollection, nil),
		turnaround: pfirestore.NewBaseRepository[repositories.TurnaroundTableRecord](provider, turnaroundTablesCollection, nil),
	}, nil
}

func (r *CatalogRepository) LoadPricingCatalog(ctx context.Context) (domain.PricingCatalog, error) {
	var records repositories.CatalogRecords
	byDisplayOrder := func(q firestore.Query) firestore.Query { return q.OrderBy("displayOrder", firestore.Asc) }

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := r.stocks.Query(gctx, nil)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			rec := doc.Data
			rec.ID = fallbackID(rec.ID, doc.ID)
			records.PaperStocks = append(records.PaperStocks, rec)
		}
		return nil
	})
	g.Go(func() error {
		docs, err := r.addOns.Query(gctx, byDisplayOrder)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			rec := doc.Data
			rec.ID = fallbackID(rec.ID, doc.ID)
			records.AddOns = append(records.AddOns, rec)
		}
		return nil
	})
	g.Go(func() error {
		docs, err := r.turnaround.Query(gctx, nil)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			rec := doc.Data
			rec.PaperStockID = fallbackID(rec.PaperStockID, doc.ID)
			records.TurnaroundTables = append(records.TurnaroundTables, rec)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.PricingCatalog{}, err
	}
	return records.ToDomain()
}

// Ping issues a single-document read used by readiness checks.
func (r *CatalogRepository) Ping(ctx context.Context) error {
	_, err := r.stocks.Query(ctx, func(q firestore.Query) firestore.Query { return q.Limit(1) })
	return err
}

func fallbackID(id, docID string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return docID
}
