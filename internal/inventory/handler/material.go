package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dentflow/dentflow-backend/internal/inventory/repository"
	"github.com/dentflow/dentflow-backend/internal/inventory/service"
	"github.com/dentflow/dentflow-backend/pkg/errors"
	"github.com/dentflow/dentflow-backend/pkg/httputil"
	"github.com/dentflow/dentflow-backend/pkg/logger"
	"github.com/dentflow/dentflow-backend/pkg/permissions"
	"github.com/dentflow/dentflow-backend/pkg/tenant"
)

// IdempotencyKeyHeader carries the client's retry key on restock and usage
const IdempotencyKeyHeader = "Idempotency-Key"

// MaterialService is the inventory service as seen by the HTTP layer.
// *service.InventoryService implements it.
type MaterialService interface {
	CreateMaterial(ctx context.Context, scope tenant.Scope, req service.CreateMaterialRequest) (*repository.Material, error)
	GetMaterial(ctx context.Context, scope tenant.Scope, id string) (*repository.Material, error)
	ListMaterials(ctx context.Context, scope tenant.Scope) ([]*repository.Material, error)
	ListLowStock(ctx context.Context, scope tenant.Scope) ([]*repository.Material, error)
	Stats(ctx context.Context, scope tenant.Scope) (*repository.MaterialStats, error)
	UpdateMaterial(ctx context.Context, scope tenant.Scope, id string, req service.UpdateMaterialRequest) (*repository.Material, error)
	DeleteMaterial(ctx context.Context, scope tenant.Scope, id string) error
	Restock(ctx context.Context, scope tenant.Scope, id string, req service.RestockRequest) (*service.RestockResult, error)
	RecordUsage(ctx context.Context, scope tenant.Scope, id string, req service.UsageRequest) (*service.UsageResult, error)
	ListTransactions(ctx context.Context, scope tenant.Scope, id string) ([]*repository.InventoryTransaction, error)
	Reconcile(ctx context.Context, scope tenant.Scope, id string) (*service.Reconciliation, error)
}

// MaterialHandler handles material endpoints
type MaterialHandler struct {
	service MaterialService
	logger  *logger.Logger
}

// NewMaterialHandler creates a new material handler
func NewMaterialHandler(svc MaterialService, log *logger.Logger) *MaterialHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &MaterialHandler{
		service: svc,
		logger:  log,
	}
}

// Mount registers the material routes under /api/v1/materials behind
// token authentication and per-route permissions.
func Mount(r chi.Router, h *MaterialHandler, verifier httputil.TokenVerifier) {
	r.Route("/api/v1/materials", func(r chi.Router) {
		r.Use(httputil.Authenticate(verifier))

		r.Group(func(r chi.Router) {
			r.Use(httputil.RequirePermission(permissions.InventoryRead))
			r.Get("/", h.List)
			r.Get("/low-stock", h.ListLowStock)
			r.Get("/stats", h.Stats)
			r.Get("/{id}", h.Get)
			r.Get("/{id}/transactions", h.ListTransactions)
			r.Get("/{id}/reconciliation", h.Reconcile)
		})

		r.Group(func(r chi.Router) {
			r.Use(httputil.RequirePermission(permissions.InventoryWrite))
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Post("/{id}/restock", h.Restock)
		})

		r.With(httputil.RequirePermission(permissions.InventoryDelete)).Delete("/{id}", h.Delete)
		r.With(httputil.RequirePermission(permissions.InventoryUsage)).Post("/{id}/usage", h.RecordUsage)
	})
}

// List lists the clinic's materials
func (h *MaterialHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	materials, err := h.service.ListMaterials(r.Context(), scope)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, materials)
}

// ListLowStock lists materials at or below their reorder threshold
func (h *MaterialHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	materials, err := h.service.ListLowStock(r.Context(), scope)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, materials)
}

// Stats returns dashboard counters
func (h *MaterialHandler) Stats(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), scope)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}

// Get gets a material by ID
func (h *MaterialHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	material, err := h.service.GetMaterial(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, material)
}

// Create creates a material and seeds its ledger
func (h *MaterialHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req service.CreateMaterialRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	material, err := h.service.CreateMaterial(r.Context(), scope, req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.Created(w, material)
}

// Update applies a partial update
func (h *MaterialHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req service.UpdateMaterialRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := h.service.UpdateMaterial(r.Context(), scope, chi.URLParam(r, "id"), req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.NoContent(w)
}

// Delete removes a material from the catalog
func (h *MaterialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteMaterial(r.Context(), scope, chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.NoContent(w)
}

// Restock adds stock. The body is either a bare integer or a RestockRequest object.
func (h *MaterialHandler) Restock(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req service.RestockRequest
	if err := decodeQuantityOrObject(r, &req.Quantity, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyKeyHeader)

	result, err := h.service.Restock(r.Context(), scope, chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// RecordUsage takes stock out. The body is either a bare integer or a UsageRequest object.
func (h *MaterialHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req service.UsageRequest
	if err := decodeQuantityOrObject(r, &req.Quantity, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyKeyHeader)

	result, err := h.service.RecordUsage(r.Context(), scope, chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// ListTransactions returns a material's ledger, newest first
func (h *MaterialHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	entries, err := h.service.ListTransactions(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, entries)
}

// Reconcile compares a material's quantity with its ledger
func (h *MaterialHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	result, err := h.service.Reconcile(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

func (h *MaterialHandler) scope(w http.ResponseWriter, r *http.Request) (tenant.Scope, bool) {
	scope, err := httputil.ScopeFromRequest(r)
	if err != nil {
		httputil.Error(w, r, err)
		return tenant.Scope{}, false
	}
	return scope, true
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httputil.DecodeJSON(r, v); err != nil {
		httputil.Error(w, r, err)
		return false
	}
	if err := httputil.Validate(v); err != nil {
		httputil.Error(w, r, err)
		return false
	}
	return true
}

// decodeQuantityOrObject accepts `20` as well as `{"quantity": 20, ...}`.
func decodeQuantityOrObject(r *http.Request, quantity *int, obj any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.BadRequest("failed to read request body")
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return errors.BadRequest("request body is required")
	}

	if body[0] == '{' {
		if err := json.Unmarshal(body, obj); err != nil {
			return errors.BadRequest("invalid JSON body")
		}
		return nil
	}

	if err := json.Unmarshal(body, quantity); err != nil {
		return errors.InvalidArgument("quantity", "must be an integer")
	}
	return nil
}
