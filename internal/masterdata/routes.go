// Package masterdata groups the reference-data modules behind one mount point.
package masterdata

import (
	"github.com/go-chi/chi/v5"

	"github.com/tassili-erp/tassili-erp/internal/masterdata/customers"
	"github.com/tassili-erp/tassili-erp/internal/masterdata/items"
	"github.com/tassili-erp/tassili-erp/internal/masterdata/suppliers"
	"github.com/tassili-erp/tassili-erp/internal/masterdata/warehouses"
)

// Handler aggregates the master data sub-handlers.
type Handler struct {
	Items      *items.Handler
	Warehouses *warehouses.Handler
	Customers  *customers.Handler
	Suppliers  *suppliers.Handler
}

// MountRoutes registers all master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/items", h.Items.MountRoutes)
	r.Route("/warehouses", h.Warehouses.MountRoutes)
	r.Route("/customers", h.Customers.MountRoutes)
	r.Route("/suppliers", h.Suppliers.MountRoutes)
}
