package handlers

import (
	"encoding/json"
	"net/http"

	"booking-system/internal/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type CatalogHandler struct {
	app     *pocketbase.PocketBase
	catalog *services.CatalogService
	cache   *services.ResponseCache
}

func NewCatalogHandler(app *pocketbase.PocketBase, catalog *services.CatalogService, cache *services.ResponseCache) *CatalogHandler {
	return &CatalogHandler{app: app, catalog: catalog, cache: cache}
}

// ListServices serves the catalog, read-through cached. The catalog changes
// rarely; the record hooks invalidate the cache on mutation.
func (h *CatalogHandler) ListServices(e *core.RequestEvent) error {
	route := e.Request.URL.Path

	if body, ok := h.cache.Get(e.Request.Context(), route); ok {
		return e.Blob(http.StatusOK, "application/json", []byte(body))
	}

	items, err := h.catalog.ListServices(e.Request.Context())
	if err != nil {
		return respondErr(err)
	}

	body, err := json.Marshal(map[string]any{"services": items, "total": len(items)})
	if err != nil {
		return respondErr(err)
	}
	h.cache.Set(e.Request.Context(), route, string(body))
	return e.Blob(http.StatusOK, "application/json", body)
}

// GetService serves one catalog entry, cached under its own route.
func (h *CatalogHandler) GetService(e *core.RequestEvent) error {
	route := e.Request.URL.Path

	if body, ok := h.cache.Get(e.Request.Context(), route); ok {
		return e.Blob(http.StatusOK, "application/json", []byte(body))
	}

	svc, err := h.catalog.GetService(e.Request.Context(), e.Request.PathValue("serviceId"))
	if err != nil {
		return respondErr(err)
	}

	body, err := json.Marshal(svc)
	if err != nil {
		return respondErr(err)
	}
	h.cache.Set(e.Request.Context(), route, string(body))
	return e.Blob(http.StatusOK, "application/json", body)
}

// QuotePrice prices a service with an optional coupon. Never cached: coupon
// validity is time dependent.
func (h *CatalogHandler) QuotePrice(e *core.RequestEvent) error {
	serviceID := e.Request.PathValue("serviceId")

	price, err := h.catalog.CurrentPrice(e.Request.Context(), serviceID)
	if err != nil {
		return respondErr(err)
	}

	original := price
	discount := decimal.Zero
	code := e.Request.URL.Query().Get("coupon")
	if code != "" {
		price, err = h.catalog.ApplyCoupon(e.Request.Context(), price, code)
		if err != nil {
			return respondErr(err)
		}
		discount = original.Sub(price)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"service_id": serviceID,
		"price":      price,
		"original":   original,
		"discount":   discount,
	})
}
