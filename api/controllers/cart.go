package controllers

import (
	"net/http"

	"github.com/devanshkukreja/looms-backend/api/middleware"
	"github.com/devanshkukreja/looms-backend/api/responses"
	"github.com/devanshkukreja/looms-backend/api/validators"
	"github.com/devanshkukreja/looms-backend/internal/cart"
	pkgerrors "github.com/devanshkukreja/looms-backend/pkg/errors"
	"github.com/devanshkukreja/looms-backend/pkg/logger"
	"github.com/devanshkukreja/looms-backend/pkg/types"
)

type addLineRequest struct {
	ProductID   string `json:"product_id" validate:"required"`
	Size        string `json:"size"`
	Color       string `json:"color"`
	SKU         string `json:"sku" validate:"required"`
	UnitPrice   string `json:"unit_price" validate:"required"`
	Currency    string `json:"currency" validate:"required,len=3"`
	Quantity    int    `json:"quantity" validate:"required,min=1"`
	StockLimit  *int   `json:"stock_limit,omitempty" validate:"omitempty,min=1"`
	DisplayName string `json:"display_name" validate:"required"`
	ImageRef    string `json:"image_ref,omitempty"`
}

type lineKeyRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	SKU       string `json:"sku" validate:"required"`
}

func (r lineKeyRequest) key() cart.LineKey {
	return cart.LineKey{
		ProductID: r.ProductID,
		Size:      r.Size,
		Color:     r.Color,
		SKU:       r.SKU,
	}
}

type cartResponse struct {
	Lines []cart.Line `json:"lines"`
	Total types.Money `json:"total"`
}

// CartFetch returns the caller's cart lines and recomputed total.
func CartFetch(store *cart.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := ownerOrReject(w, r, logg)
		if !ok {
			return
		}
		writeCart(w, r, store, logg, owner)
	}
}

// CartAddLine merges a quantity into the line identified by the item's
// composite key, creating it on first add.
func CartAddLine(store *cart.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := ownerOrReject(w, r, logg)
		if !ok {
			return
		}

		var payload addLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		price, err := types.NewMoney(payload.UnitPrice, payload.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit price"))
			return
		}

		item := cart.Line{
			LineKey: cart.LineKey{
				ProductID: payload.ProductID,
				Size:      payload.Size,
				Color:     payload.Color,
				SKU:       payload.SKU,
			},
			UnitPrice:   price,
			StockLimit:  payload.StockLimit,
			DisplayName: payload.DisplayName,
			ImageRef:    payload.ImageRef,
		}

		if _, err := store.AddLine(r.Context(), owner, item, payload.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, store, logg, owner)
	}
}

// CartDecrementLine lowers the identified line's quantity by one, removing it
// at zero. An absent line is not an error.
func CartDecrementLine(store *cart.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := ownerOrReject(w, r, logg)
		if !ok {
			return
		}

		var payload lineKeyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := store.DecrementLine(r.Context(), owner, payload.key()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, store, logg, owner)
	}
}

// CartRemoveLine deletes the identified line regardless of quantity.
func CartRemoveLine(store *cart.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := ownerOrReject(w, r, logg)
		if !ok {
			return
		}

		var payload lineKeyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := store.RemoveLine(r.Context(), owner, payload.key()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, store, logg, owner)
	}
}

// CartClear empties the cart and its persisted state.
func CartClear(store *cart.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := ownerOrReject(w, r, logg)
		if !ok {
			return
		}

		if err := store.Clear(r.Context(), owner); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, store, logg, owner)
	}
}

func ownerOrReject(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	owner := middleware.CartOwnerFromContext(r.Context())
	if owner == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart owner not resolved"))
		return "", false
	}
	return owner, true
}

func writeCart(w http.ResponseWriter, r *http.Request, store *cart.Store, logg *logger.Logger, owner string) {
	lines, err := store.Lines(r.Context(), owner)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	total, err := store.Total(r.Context(), owner)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	if lines == nil {
		lines = []cart.Line{}
	}
	responses.WriteSuccess(w, cartResponse{Lines: lines, Total: total})
}
