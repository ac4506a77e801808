package product

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/example/ec-order-sync/internal/apperror"
	"github.com/example/ec-order-sync/internal/config"
	"github.com/example/ec-order-sync/internal/infrastructure/store/mocks"
	"github.com/example/ec-order-sync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProductService() (*Service, *mocks.MockCatalogStore) {
	catalog := mocks.NewMockCatalogStore(nil)
	return NewService(catalog, config.Topics{ProductCreated: "product_created"}, nil), catalog
}

func TestService_Create_Success(t *testing.T) {
	svc, catalog := newTestProductService()

	p, err := svc.Create(context.Background(), CreateProductRequest{Name: "Keyboard", Price: 4500, Quantity: 10})

	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, int64(10), p.AvailableQuantity)

	events := catalog.Outbox.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "product_created", events[0].Topic)
	var fact model.ProductFact
	require.NoError(t, json.Unmarshal(events[0].Payload, &fact))
	assert.Equal(t, model.ProductFact{ID: 1, Name: "Keyboard", Price: 4500, Quantity: 10}, fact)
}

func TestService_Create_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		req         CreateProductRequest
		expectedErr error
	}{
		{"blank name", CreateProductRequest{Name: " ", Price: 1, Quantity: 1}, ErrInvalidName},
		{"negative price", CreateProductRequest{Name: "x", Price: -1, Quantity: 1}, ErrInvalidPrice},
		{"negative quantity", CreateProductRequest{Name: "x", Price: 1, Quantity: -1}, ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, catalog := newTestProductService()

			_, err := svc.Create(context.Background(), tt.req)

			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, apperror.KindBusinessRule, apperror.KindOf(err))
			assert.Empty(t, catalog.Outbox.Events())
		})
	}
}

func TestService_Create_OutboxFailureRollsBack(t *testing.T) {
	svc, catalog := newTestProductService()
	catalog.EnqueueErr = errors.New("outbox unavailable")

	_, err := svc.Create(context.Background(), CreateProductRequest{Name: "Keyboard", Price: 1, Quantity: 1})

	assert.Equal(t, apperror.KindUnexpected, apperror.KindOf(err))
	products, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestService_List(t *testing.T) {
	svc, _ := newTestProductService()
	for _, name := range []string{"Keyboard", "Mouse"} {
		_, err := svc.Create(context.Background(), CreateProductRequest{Name: name, Price: 100, Quantity: 3})
		require.NoError(t, err)
	}

	products, err := svc.List(context.Background())

	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Keyboard", products[0].Name)
	assert.Equal(t, "Mouse", products[1].Name)
}
