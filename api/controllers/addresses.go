package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pasalhub/pasalmart-backend/api/responses"
	"github.com/pasalhub/pasalmart-backend/api/validators"
	"github.com/pasalhub/pasalmart-backend/internal/address"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

type addressCreateRequest struct {
	FullName   string  `json:"full_name" validate:"required"`
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	Region     *string `json:"region,omitempty"`
	PostalCode *string `json:"postal_code,omitempty"`
	Country    string  `json:"country,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

// ListAddresses returns every address the caller has saved.
func ListAddresses(repo address.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		addresses, err := repo.ListByUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"addresses": addresses})
	}
}

// CreateAddress saves a new shipping or billing destination.
func CreateAddress(repo address.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req addressCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		country := req.Country
		if country == "" {
			country = "NP"
		}
		addr := &models.Address{
			UserID:     userID,
			FullName:   validators.SanitizeString(req.FullName, 120),
			Line1:      validators.SanitizeString(req.Line1, 200),
			Line2:      req.Line2,
			City:       validators.SanitizeString(req.City, 80),
			Region:     req.Region,
			PostalCode: req.PostalCode,
			Country:    country,
			Phone:      req.Phone,
		}
		if err := repo.Create(r.Context(), addr); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create address"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, addr)
	}
}

// DeleteAddress removes a saved address. Orders keep their address rows, so
// history is unaffected.
func DeleteAddress(repo address.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		addressID, err := uuid.Parse(chi.URLParam(r, "addressId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "address id invalid"))
			return
		}

		if err := repo.Delete(r.Context(), addressID, userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"ok": true})
	}
}
