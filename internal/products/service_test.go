package products

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
)

func newCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  supplier_id TEXT NOT NULL,
  sku TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  description TEXT,
  price NUMERIC NOT NULL,
  shipping_days INTEGER NOT NULL DEFAULT 7,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS inventory_items (
  product_id TEXT PRIMARY KEY,
  quantity INTEGER NOT NULL DEFAULT 0,
  safety_stock INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, supplierID uuid.UUID, sku string, active bool, createdAt time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	require.NoError(t, db.Exec(
		"INSERT INTO products (id, supplier_id, sku, title, price, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		id.String(), supplierID.String(), sku, "Product "+sku, decimal.NewFromInt(100), active, createdAt, createdAt,
	).Error)
	require.NoError(t, db.Exec(
		"INSERT INTO inventory_items (product_id, quantity, safety_stock, updated_at) VALUES (?, ?, ?, ?)",
		id.String(), 10, 0, createdAt,
	).Error)
	return id
}

func TestServiceGet(t *testing.T) {
	db := newCatalogTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	supplierID := uuid.New()
	productID := seedProduct(t, db, supplierID, "SKU-1", true, time.Now().UTC())

	product, err := svc.Get(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, "SKU-1", product.SKU)
	require.NotNil(t, product.Inventory)
	assert.Equal(t, 10, product.Inventory.Quantity)
}

func TestServiceGetNotFound(t *testing.T) {
	db := newCatalogTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeNotFound, appErr.Code())
}

func TestServiceListFiltersAndPaginates(t *testing.T) {
	db := newCatalogTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	supplierID := uuid.New()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seedProduct(t, db, supplierID, fmt.Sprintf("SKU-%d", i), true, base.Add(time.Duration(i)*time.Minute))
	}
	seedProduct(t, db, supplierID, "SKU-OFF", false, base)

	page, err := svc.List(context.Background(), ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "SKU-2", page.Items[0].SKU)
	require.NotEmpty(t, page.Cursor)

	rest, err := svc.List(context.Background(), ListParams{Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Equal(t, "SKU-0", rest.Items[0].SKU)
	assert.Empty(t, rest.Cursor)
}

func TestServiceListSearch(t *testing.T) {
	db := newCatalogTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	supplierID := uuid.New()
	now := time.Now().UTC()
	seedProduct(t, db, supplierID, "USB-CABLE", true, now)
	seedProduct(t, db, supplierID, "PHONE-CASE", true, now.Add(time.Minute))

	page, err := svc.List(context.Background(), ListParams{Query: "usb"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "USB-CABLE", page.Items[0].SKU)
}

func TestServiceListBySupplier(t *testing.T) {
	db := newCatalogTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	alpha := uuid.New()
	beta := uuid.New()
	now := time.Now().UTC()
	seedProduct(t, db, alpha, "A-1", true, now)
	seedProduct(t, db, beta, "B-1", true, now.Add(time.Minute))

	page, err := svc.List(context.Background(), ListParams{SupplierID: &alpha})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "A-1", page.Items[0].SKU)
}
