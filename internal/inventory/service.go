package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
)

// Line is one reservation request against a product.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
}

// Shortage describes a product the reservation could not cover.
type Shortage struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Service reserves and releases stock. Reserve must run inside the caller's
// transaction so the decrement commits or rolls back with the order.
type Service interface {
	Reserve(ctx context.Context, tx *gorm.DB, lines []Line) error
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	LowStock(ctx context.Context, limit int) ([]models.InventoryItem, error)
}

type service struct {
	repo Repository
}

// NewService builds the inventory service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo}, nil
}

// Reserve locks the touched stock rows, verifies every line fits, and only
// then decrements. All-or-nothing: a single shortage rejects the whole set.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "reserve requires a transaction")
	}
	wanted := aggregateLines(lines)
	if len(wanted) == 0 {
		return nil
	}

	productIDs := make([]uuid.UUID, 0, len(wanted))
	for id := range wanted {
		productIDs = append(productIDs, id)
	}
	sort.Slice(productIDs, func(i, j int) bool {
		return productIDs[i].String() < productIDs[j].String()
	})

	repo := s.repo.WithTx(tx)
	rows, err := repo.LockByProductIDs(ctx, productIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock inventory")
	}
	available := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		available[row.ProductID] = row.Quantity
	}

	var shortages []Shortage
	for _, id := range productIDs {
		if qty, ok := available[id]; !ok || qty < wanted[id] {
			shortages = append(shortages, Shortage{
				ProductID: id,
				Requested: wanted[id],
				Available: qty,
			})
		}
	}
	if len(shortages) > 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{"shortages": shortages})
	}

	for _, id := range productIDs {
		ok, err := repo.Decrement(ctx, id, wanted[id])
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement inventory")
		}
		if !ok {
			// Row changed between lock and decrement; treat as a shortage.
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(map[string]any{"shortages": []Shortage{{
					ProductID: id,
					Requested: wanted[id],
					Available: available[id],
				}}})
		}
	}
	return nil
}

// Release returns stock, used when a paid order is refunded or cancelled.
func (s *service) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	if err := repo.Increment(ctx, productID, qty); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release inventory")
	}
	return nil
}

func (s *service) LowStock(ctx context.Context, limit int) ([]models.InventoryItem, error) {
	return s.repo.LowStock(ctx, limit)
}

func aggregateLines(lines []Line) map[uuid.UUID]int {
	wanted := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.ProductID == uuid.Nil || line.Quantity <= 0 {
			continue
		}
		wanted[line.ProductID] += line.Quantity
	}
	return wanted
}
