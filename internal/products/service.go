package products

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/pagination"
)

// Service is the storefront catalog read surface.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

// ListParams filter and paginate the catalog browse.
type ListParams struct {
	Query      string
	SupplierID *uuid.UUID
	Limit      int
	Cursor     string
}

// ListResult wraps a catalog page and the cursor for the next one.
type ListResult struct {
	Items  []models.Product `json:"items"`
	Cursor string           `json:"cursor"`
}

type service struct {
	repo Repository
}

// NewService builds the catalog service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	items, next, err := s.repo.List(ctx, listProductsParams{
		Query:      params.Query,
		SupplierID: params.SupplierID,
		Limit:      params.Limit,
		Cursor:     cursor,
	})
	if err != nil {
		return nil, err
	}

	result := &ListResult{Items: items}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}
