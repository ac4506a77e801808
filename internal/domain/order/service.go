// Package order is the stock-aware order engine. Every mutation runs in one
// local transaction that locks the rows it reads for modification, so the
// order total, its items and product stock stay consistent under concurrency.
package order

import (
	"context"
	"errors"

	"github.com/example/ec-order-sync/internal/apperror"
	"github.com/example/ec-order-sync/internal/domain/inventory"
	"github.com/example/ec-order-sync/internal/infrastructure/store"
	"github.com/example/ec-order-sync/internal/model"
	"go.uber.org/zap"
)

var (
	ErrEmptyOrder       = errors.New("order must have at least one item")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrDuplicateProduct = errors.New("product listed more than once")
	ErrInvalidPaging    = errors.New("skip and limit must not be negative")
	ErrOrderNotFound    = errors.New("order not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrItemNotFound     = errors.New("order item not found")
	ErrClientNotFound   = errors.New("client not found")
)

type Service struct {
	orders   store.OrderStore
	replicas store.ReplicaReader
	ledger   *inventory.Ledger
	logger   *zap.Logger
}

func NewService(orders store.OrderStore, replicas store.ReplicaReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		orders:   orders,
		replicas: replicas,
		ledger:   inventory.NewLedger(),
		logger:   logger,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.OrderDetail, error) {
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	buyer, err := s.replicas.GetUser(ctx, req.BuyerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.Wrap(apperror.KindNotFound, ErrClientNotFound, "client not found")
	}
	if err != nil {
		return nil, apperror.Unexpected(err, "load client %s", req.BuyerID)
	}

	ids := make([]int64, len(req.Items))
	var total int64
	for i, item := range req.Items {
		ids[i] = item.ProductID
		total += item.Quantity
	}

	var (
		created  model.Order
		items    []model.OrderItem
		products map[int64]model.Product
	)
	err = s.orders.WithinTx(ctx, func(ctx context.Context, tx store.OrderTx) error {
		locked, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}
		products = indexProducts(locked)

		// All checks happen before the first write.
		for _, item := range req.Items {
			p, ok := products[item.ProductID]
			if !ok {
				return apperror.Wrap(apperror.KindNotFound, ErrProductNotFound,
					"product %d not found", item.ProductID)
			}
			if err := s.ledger.CheckReserve(p, item.Quantity); err != nil {
				return err
			}
		}

		created = model.Order{UserID: buyer.ID, TotalQuantity: total}
		if err := tx.InsertOrder(ctx, &created); err != nil {
			return err
		}

		items = make([]model.OrderItem, 0, len(req.Items))
		for _, line := range req.Items {
			item := model.OrderItem{OrderID: created.ID, ProductID: line.ProductID, Quantity: line.Quantity}
			if err := tx.InsertOrderItem(ctx, &item); err != nil {
				return err
			}
			p := products[line.ProductID]
			if err := s.ledger.Reserve(ctx, tx, &p, line.Quantity); err != nil {
				return err
			}
			products[line.ProductID] = p
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, "create order")
	}

	s.logger.Info("order created",
		zap.Int64("order_id", created.ID),
		zap.String("buyer_id", buyer.ID),
		zap.Int64("total_quantity", created.TotalQuantity),
		zap.Int("items", len(items)),
	)

	detail := buildDetail(created, items, products, map[string]model.UserReplica{buyer.ID: *buyer})
	return &detail, nil
}

func (s *Service) UpdateOrderItem(ctx context.Context, req UpdateOrderItemRequest) (*model.OrderItem, error) {
	if req.Quantity <= 0 {
		return nil, apperror.Wrap(apperror.KindBusinessRule, ErrInvalidQuantity,
			"quantity must be greater than zero")
	}

	var updated model.OrderItem
	var delta int64
	err := s.orders.WithinTx(ctx, func(ctx context.Context, tx store.OrderTx) error {
		o, err := tx.LockOrder(ctx, req.OrderID)
		if errors.Is(err, store.ErrNotFound) {
			return apperror.Wrap(apperror.KindNotFound, ErrOrderNotFound, "order %d not found", req.OrderID)
		}
		if err != nil {
			return err
		}

		locked, err := tx.LockProducts(ctx, []int64{req.ProductID})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return apperror.Wrap(apperror.KindNotFound, ErrProductNotFound, "product %d not found", req.ProductID)
		}
		p := locked[0]

		item, err := tx.LockOrderItem(ctx, req.OrderID, req.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return apperror.Wrap(apperror.KindNotFound, ErrItemNotFound,
				"product %d is not part of order %d", req.ProductID, req.OrderID)
		}
		if err != nil {
			return err
		}

		delta = req.Quantity - item.Quantity
		if err := s.ledger.CheckAdjust(p, delta); err != nil {
			return err
		}

		if err := tx.UpdateOrderItemQuantity(ctx, item.ID, req.Quantity); err != nil {
			return err
		}
		if err := s.ledger.Adjust(ctx, tx, &p, delta); err != nil {
			return err
		}
		if err := tx.UpdateOrderTotal(ctx, o.ID, o.TotalQuantity+delta); err != nil {
			return err
		}

		updated = *item
		updated.Quantity = req.Quantity
		return nil
	})
	if err != nil {
		return nil, classify(err, "update order item")
	}

	s.logger.Info("order item updated",
		zap.Int64("order_id", updated.OrderID),
		zap.Int64("product_id", updated.ProductID),
		zap.Int64("quantity", updated.Quantity),
		zap.Int64("delta", delta),
	)
	return &updated, nil
}

func (s *Service) DeleteOrder(ctx context.Context, orderID int64) error {
	var restored int
	err := s.orders.WithinTx(ctx, func(ctx context.Context, tx store.OrderTx) error {
		if _, err := tx.LockOrder(ctx, orderID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperror.Wrap(apperror.KindNotFound, ErrOrderNotFound, "order %d not found", orderID)
			}
			return err
		}

		items, err := tx.LockOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		ids := make([]int64, len(items))
		for i, item := range items {
			ids[i] = item.ProductID
		}
		locked, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}
		products := indexProducts(locked)

		for _, item := range items {
			p, ok := products[item.ProductID]
			if !ok {
				return apperror.Wrap(apperror.KindNotFound, ErrProductNotFound,
					"product %d of order %d not found", item.ProductID, orderID)
			}
			if err := s.ledger.Release(ctx, tx, &p, item.Quantity); err != nil {
				return err
			}
			products[item.ProductID] = p
			restored++
		}
		return tx.DeleteOrder(ctx, orderID)
	})
	if err != nil {
		return classify(err, "delete order")
	}

	s.logger.Info("order deleted", zap.Int64("order_id", orderID), zap.Int("items_restored", restored))
	return nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*model.OrderDetail, error) {
	o, err := s.orders.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.Wrap(apperror.KindNotFound, ErrOrderNotFound, "order %d not found", id)
	}
	if err != nil {
		return nil, apperror.Unexpected(err, "load order %d", id)
	}

	details, err := s.resolve(ctx, []model.Order{*o})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

// ListOrders pages through orders by id. Zero limit means DefaultLimit.
func (s *Service) ListOrders(ctx context.Context, skip, limit int) (*model.OrderPage, error) {
	if skip < 0 || limit < 0 {
		return nil, apperror.Wrap(apperror.KindBusinessRule, ErrInvalidPaging, "skip and limit must not be negative")
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	total, err := s.orders.CountOrders(ctx)
	if err != nil {
		return nil, apperror.Unexpected(err, "count orders")
	}
	orders, err := s.orders.ListOrders(ctx, skip, limit)
	if err != nil {
		return nil, apperror.Unexpected(err, "list orders")
	}

	details, err := s.resolve(ctx, orders)
	if err != nil {
		return nil, err
	}
	return &model.OrderPage{Orders: details, Total: total}, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	products, err := s.orders.ListProducts(ctx)
	if err != nil {
		return nil, apperror.Unexpected(err, "list products")
	}
	if products == nil {
		products = []model.Product{}
	}
	return products, nil
}

// resolve loads items, products and buyer names for orders. A buyer that has
// not been replicated yet leaves client_name empty.
func (s *Service) resolve(ctx context.Context, orders []model.Order) ([]model.OrderDetail, error) {
	details := make([]model.OrderDetail, 0, len(orders))
	if len(orders) == 0 {
		return details, nil
	}

	orderIDs := make([]int64, len(orders))
	var userIDs []string
	seenUser := make(map[string]bool)
	for i, o := range orders {
		orderIDs[i] = o.ID
		if !seenUser[o.UserID] {
			seenUser[o.UserID] = true
			userIDs = append(userIDs, o.UserID)
		}
	}

	items, err := s.orders.ListOrderItems(ctx, orderIDs)
	if err != nil {
		return nil, apperror.Unexpected(err, "list order items")
	}
	byOrder := make(map[int64][]model.OrderItem, len(orders))
	var productIDs []int64
	seenProduct := make(map[int64]bool)
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
		if !seenProduct[item.ProductID] {
			seenProduct[item.ProductID] = true
			productIDs = append(productIDs, item.ProductID)
		}
	}

	products, err := s.orders.GetProducts(ctx, productIDs)
	if err != nil {
		return nil, apperror.Unexpected(err, "load products")
	}
	users, err := s.replicas.GetUsers(ctx, userIDs)
	if err != nil {
		return nil, apperror.Unexpected(err, "load clients")
	}
	byUser := make(map[string]model.UserReplica, len(users))
	for _, u := range users {
		byUser[u.ID] = u
	}

	productIndex := indexProducts(products)
	for _, o := range orders {
		details = append(details, buildDetail(o, byOrder[o.ID], productIndex, byUser))
	}
	return details, nil
}

func validateItems(items []ItemRequest) error {
	if len(items) == 0 {
		return apperror.Wrap(apperror.KindBusinessRule, ErrEmptyOrder, "order must have at least one item")
	}
	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return apperror.Wrap(apperror.KindBusinessRule, ErrInvalidQuantity,
				"quantity for product %d must be greater than zero", item.ProductID)
		}
		if seen[item.ProductID] {
			return apperror.Wrap(apperror.KindBusinessRule, ErrDuplicateProduct,
				"product %d listed more than once", item.ProductID)
		}
		seen[item.ProductID] = true
	}
	return nil
}

func indexProducts(products []model.Product) map[int64]model.Product {
	index := make(map[int64]model.Product, len(products))
	for _, p := range products {
		index[p.ID] = p
	}
	return index
}

func buildDetail(o model.Order, items []model.OrderItem, products map[int64]model.Product, users map[string]model.UserReplica) model.OrderDetail {
	detail := model.OrderDetail{
		ID:            o.ID,
		ClientID:      o.UserID,
		ClientName:    users[o.UserID].Name,
		TotalQuantity: o.TotalQuantity,
		CreatedAt:     o.CreatedAt,
		Items:         make([]model.OrderItemDetail, 0, len(items)),
	}
	for _, item := range items {
		p := products[item.ProductID]
		detail.Items = append(detail.Items, model.OrderItemDetail{
			ID:          item.ID,
			OrderID:     item.OrderID,
			ProductID:   item.ProductID,
			ProductName: p.Name,
			Quantity:    item.Quantity,
			Price:       p.Price,
		})
	}
	return detail
}

// classify keeps domain errors as they are and marks everything else unexpected.
func classify(err error, op string) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Unexpected(err, "%s", op)
}
