// Package product is the catalog service's product registry.
package product

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/example/ec-order-sync/internal/apperror"
	"github.com/example/ec-order-sync/internal/config"
	"github.com/example/ec-order-sync/internal/infrastructure/store"
	"github.com/example/ec-order-sync/internal/model"
	"go.uber.org/zap"
)

var (
	ErrInvalidName     = errors.New("name is required")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrInvalidQuantity = errors.New("quantity must not be negative")
)

type CreateProductRequest struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

type Service struct {
	catalog store.CatalogStore
	topics  config.Topics
	logger  *zap.Logger
}

func NewService(catalog store.CatalogStore, topics config.Topics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{catalog: catalog, topics: topics, logger: logger}
}

// Create registers a product and queues product_created with its initial stock.
func (s *Service) Create(ctx context.Context, req CreateProductRequest) (*model.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Wrap(apperror.KindBusinessRule, ErrInvalidName, "name is required")
	}
	if req.Price < 0 {
		return nil, apperror.Wrap(apperror.KindBusinessRule, ErrInvalidPrice, "price must not be negative")
	}
	if req.Quantity < 0 {
		return nil, apperror.Wrap(apperror.KindBusinessRule, ErrInvalidQuantity, "quantity must not be negative")
	}

	p := &model.Product{Name: name, Price: req.Price, AvailableQuantity: req.Quantity}
	err := s.catalog.WithinTx(ctx, func(ctx context.Context, tx store.CatalogTx) error {
		if err := tx.InsertProduct(ctx, p); err != nil {
			return err
		}
		return tx.Enqueue(ctx, s.topics.ProductCreated, strconv.FormatInt(p.ID, 10), model.NewProductFact(p))
	})
	if err != nil {
		return nil, apperror.Unexpected(err, "create product")
	}

	s.logger.Info("product created",
		zap.Int64("product_id", p.ID),
		zap.String("name", p.Name),
		zap.Int64("quantity", p.AvailableQuantity),
	)
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]model.Product, error) {
	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, apperror.Unexpected(err, "list products")
	}
	if products == nil {
		products = []model.Product{}
	}
	return products, nil
}
