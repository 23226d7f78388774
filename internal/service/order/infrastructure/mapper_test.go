// internal/service/order/infrastructure/mapper_test.go
package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/errs"
	"orderflow/internal/service/order/domain"
)

func TestMapperRoundTrip(t *testing.T) {
	order, _, err := domain.NewOrder("customer-1", []domain.OrderItem{
		{ProductID: "laptop", Quantity: 2, UnitPrice: 999.99},
	})
	require.NoError(t, err)

	rebuilt, err := toDomain(toModel(order))
	require.NoError(t, err)
	assert.Equal(t, order, rebuilt)
}

func TestMapperRejectsCorruptStatus(t *testing.T) {
	order, _, err := domain.NewOrder("customer-1", []domain.OrderItem{
		{ProductID: "laptop", Quantity: 1, UnitPrice: 1},
	})
	require.NoError(t, err)

	model := toModel(order)
	model.Status = "SHIPPED-TO-MARS"

	_, err = toDomain(model)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidState(err))
}
