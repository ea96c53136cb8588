package view_test

//go:generate mockgen -source=view.go -destination=mocks/mocks.go -package=mocks Store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connection/internal/connection/models"
	"connection/internal/connection/view"
	"connection/internal/connection/view/store"
)

func TestNewSet(t *testing.T) {
	t.Run("requires every classified view", func(t *testing.T) {
		_, err := view.NewSet(store.NewMemory(models.ViewConnected), store.NewMemory(models.ViewException))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing store for view disconnected")
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		_, err := view.NewSet(store.NewMemory(models.ViewConnected), store.NewMemory(models.ViewConnected))
		require.Error(t, err)
	})

	t.Run("discrepancy store is optional", func(t *testing.T) {
		set, err := view.NewSet(
			store.NewMemory(models.ViewConnected),
			store.NewMemory(models.ViewDisconnected),
			store.NewMemory(models.ViewException),
		)
		require.NoError(t, err)
		_, ok := set.Get(models.ViewDiscrepancy)
		assert.False(t, ok)
		assert.Equal(t, models.ViewException, set.MustGet(models.ViewException).View())
	})
}
