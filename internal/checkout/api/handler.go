package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/forfit/storefront/internal/auth"
	"github.com/forfit/storefront/internal/checkout"
	"github.com/forfit/storefront/internal/logger"
	"github.com/forfit/storefront/internal/tenant"
	"github.com/forfit/storefront/internal/utils"
)

type Handler struct {
	Service *checkout.Service
	Logger  *logger.Logger
}

func NewHandler(service *checkout.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// Checkout handles POST /orders/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	store := tenant.FromContext(r.Context())
	if userID == "" || store == nil {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "unauthorized"))
		return
	}

	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Checkout: bad request body: %v", err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}
	if len(req.Items) == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("cart is empty", "invalid_products"))
		return
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("quantity must be positive", "invalid_quantity"))
			return
		}
	}
	if req.PointsRedeem < 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("pointsRedeem must not be negative", "invalid_points"))
		return
	}

	result, err := h.Service.Checkout(r.Context(), store, userID, req)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error) {
	var invalidProducts *checkout.InvalidProductsError
	if errors.As(err, &invalidProducts) {
		utils.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "invalid_products",
			"missing": invalidProducts.Missing,
		})
		return
	}

	var insufficientStock *checkout.InsufficientStockError
	if errors.As(err, &insufficientStock) {
		utils.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "insufficient_stock",
			"productId": insufficientStock.ProductID,
			"available": insufficientStock.Available,
		})
		return
	}

	if errors.Is(err, checkout.ErrInvalidCoupon) {
		utils.WriteJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_coupon"})
		return
	}

	var gatewayErr *checkout.GatewayError
	if errors.As(err, &gatewayErr) {
		h.Logger.Error("API", fmt.Sprintf("Checkout: gateway failure: %v", gatewayErr))
		utils.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "abacatepay_" + gatewayErr.Stage + "_failed",
			"details": gatewayErr.Err.Error(),
		})
		return
	}

	h.Logger.Error("API", fmt.Sprintf("Checkout: internal error: %v", err))
	utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("checkout failed", err.Error()))
}

// ListOrders handles GET /orders and returns the caller's order history.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "unauthorized"))
		return
	}

	orders, err := h.Service.ListOrders(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListOrders: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to list orders", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, orders)
}
