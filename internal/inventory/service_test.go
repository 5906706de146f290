package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
)

func newInventoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS inventory_items (
  product_id TEXT PRIMARY KEY,
  quantity INTEGER NOT NULL DEFAULT 0,
  safety_stock INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedStock(t *testing.T, db *gorm.DB, productID uuid.UUID, qty, safety int) {
	t.Helper()
	require.NoError(t, db.Create(&models.InventoryItem{
		ProductID:   productID,
		Quantity:    qty,
		SafetyStock: safety,
	}).Error)
}

func stockOf(t *testing.T, db *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, db.First(&item, "product_id = ?", productID).Error)
	return item.Quantity
}

func TestReserveDecrementsStock(t *testing.T) {
	db := newInventoryTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	productA := uuid.New()
	productB := uuid.New()
	seedStock(t, db, productA, 5, 0)
	seedStock(t, db, productB, 2, 0)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, []Line{
			{ProductID: productA, Quantity: 3},
			{ProductID: productB, Quantity: 2},
		})
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stockOf(t, db, productA))
	assert.Equal(t, 0, stockOf(t, db, productB))
}

func TestReserveAggregatesDuplicateLines(t *testing.T) {
	db := newInventoryTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	productID := uuid.New()
	seedStock(t, db, productID, 5, 0)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, []Line{
			{ProductID: productID, Quantity: 2},
			{ProductID: productID, Quantity: 4},
		})
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.As(err).Code())
	assert.Equal(t, 5, stockOf(t, db, productID), "failed reserve must not change stock")
}

func TestReserveRejectsWholeSetOnSingleShortage(t *testing.T) {
	db := newInventoryTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	plenty := uuid.New()
	scarce := uuid.New()
	seedStock(t, db, plenty, 10, 0)
	seedStock(t, db, scarce, 1, 0)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, []Line{
			{ProductID: plenty, Quantity: 2},
			{ProductID: scarce, Quantity: 3},
		})
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.As(err).Code())

	details, _ := pkgerrors.As(err).Details().(map[string]any)
	require.NotNil(t, details)
	shortages, ok := details["shortages"].([]Shortage)
	require.True(t, ok)
	require.Len(t, shortages, 1)
	assert.Equal(t, scarce, shortages[0].ProductID)
	assert.Equal(t, 3, shortages[0].Requested)
	assert.Equal(t, 1, shortages[0].Available)

	assert.Equal(t, 10, stockOf(t, db, plenty))
	assert.Equal(t, 1, stockOf(t, db, scarce))
}

func TestReserveMissingRowIsShortage(t *testing.T) {
	db := newInventoryTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, []Line{
			{ProductID: uuid.New(), Quantity: 1},
		})
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.As(err).Code())
}

func TestReserveRequiresTransaction(t *testing.T) {
	db := newInventoryTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	err = svc.Reserve(context.Background(), nil, []Line{{ProductID: uuid.New(), Quantity: 1}})
	require.Error(t, err)
}

func TestReleaseRestoresStock(t *testing.T) {
	db := newInventoryTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	productID := uuid.New()
	seedStock(t, db, productID, 1, 0)

	require.NoError(t, svc.Release(context.Background(), nil, productID, 4))
	assert.Equal(t, 5, stockOf(t, db, productID))
}

func TestLowStock(t *testing.T) {
	db := newInventoryTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	low := uuid.New()
	fine := uuid.New()
	seedStock(t, db, low, 2, 5)
	seedStock(t, db, fine, 50, 5)

	rows, err := svc.LowStock(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, low, rows[0].ProductID)
}
