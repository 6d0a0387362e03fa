package main

import (
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomOrder(t *testing.T) {
	faker := gofakeit.New(42)
	pool := customerPool(faker, 3)
	require.Len(t, pool, 3)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		event := randomOrder(faker, pool)
		require.NoError(t, event.Validate())
		assert.Contains(t, pool, event.CustomerID)
		assert.GreaterOrEqual(t, event.OrderValue, 5.0)
		assert.LessOrEqual(t, event.OrderValue, 500.0)
		assert.False(t, seen[event.OrderID], "order ids are unique")
		seen[event.OrderID] = true
	}
}

func TestCustomerPoolNeverEmpty(t *testing.T) {
	assert.Len(t, customerPool(gofakeit.New(1), 0), 1)
}
