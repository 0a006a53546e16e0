package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gamemarket/backend/internal/order"
)

type AddressPayload struct {
	Street       string `json:"street" validate:"required"`
	Number       string `json:"number" validate:"required"`
	Neighborhood string `json:"neighborhood" validate:"required"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state" validate:"required"`
	Zipcode      string `json:"zipcode" validate:"required"`
}

func (p AddressPayload) toDomain() order.Address {
	return order.Address{
		Street:       p.Street,
		Number:       p.Number,
		Neighborhood: p.Neighborhood,
		City:         p.City,
		State:        p.State,
		ZipCode:      p.Zipcode,
	}
}

type CreateOrderRequest struct {
	ListingID       string         `json:"listing_id" validate:"required,uuid"`
	Quantity        int            `json:"quantity" validate:"required,min=1"`
	ShippingAddress AddressPayload `json:"shipping_address" validate:"required"`
	Note            string         `json:"note"`
}

type CheckoutItem struct {
	ListingID string `json:"listing_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	Note      string `json:"note"`
}

type CheckoutRequest struct {
	CartItems       []CheckoutItem `json:"cart_items" validate:"required,min=1,dive"`
	ShippingAddress AddressPayload `json:"shipping_address" validate:"required"`
	PaymentMethod   string         `json:"payment_method"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// OrderResponse decorates an order with caller-relative fields.
type OrderResponse struct {
	order.Order
	Role    order.Role `json:"role,omitempty"`
	Expired bool       `json:"expired"`
}

type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int64           `json:"total"`
}

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Post("/orders/checkout", h.handleCheckout)
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/stats", h.handleStats)
	router.Get("/orders/purchases", h.handleListPurchases)
	router.Get("/orders/sales", h.handleListSales)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Put("/orders/{id}/status", h.handleUpdateStatus)
	router.Post("/orders/{id}/cancel", h.handleCancelOrder)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	callerID, ok := CallerID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	var req CreateOrderRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	listingID, err := uuid.FromString(req.ListingID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	ord, err := h.svc.CreateOrder(r.Context(), callerID, order.CreateOrderInput{
		ListingID:       listingID,
		Quantity:        req.Quantity,
		ShippingAddress: req.ShippingAddress.toDomain(),
		Note:            req.Note,
	})
	if err != nil {
		code := mapErrorToStatusCode(err)
		if code == http.StatusInternalServerError {
			log.Error().Err(err).Msg("handler: failed to create order")
			respondWithError(w, code, "failed to create order")
			return
		}
		respondWithError(w, code, err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, toOrderResponse(ord, callerID))
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	callerID, ok := CallerID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	var req CheckoutRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	items := make([]order.CartItem, 0, len(req.CartItems))
	for i, item := range req.CartItems {
		listingID, err := uuid.FromString(item.ListingID)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid listing id for item %d", i+1))
			return
		}
		items = append(items, order.CartItem{
			ListingID: listingID,
			Quantity:  item.Quantity,
			Note:      item.Note,
		})
	}

	result, err := h.svc.Checkout(r.Context(), callerID, order.CheckoutInput{
		Items:           items,
		ShippingAddress: req.ShippingAddress.toDomain(),
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		if errors.Is(err, order.ErrCheckoutFailed) {
			// Every item failed; still surface the per-item reasons.
			respondWithJSON(w, http.StatusBadRequest, map[string]any{
				"error":        err.Error(),
				"failed_items": result.Failed,
				"summary":      result.Summary,
			})
			return
		}
		code := mapErrorToStatusCode(err)
		if code == http.StatusInternalServerError {
			log.Error().Err(err).Msg("handler: checkout failed")
			respondWithError(w, code, "checkout failed")
			return
		}
		respondWithError(w, code, err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	callerID, ok := CallerID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	ord, err := h.svc.GetOrderByID(r.Context(), orderID, callerID)
	if err != nil {
		code := mapErrorToStatusCode(err)
		if code == http.StatusInternalServerError {
			log.Error().Err(err).Msg("handler: failed to get order")
			respondWithError(w, code, "failed to get order")
			return
		}
		respondWithError(w, code, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(ord, callerID))
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	callerID, ok := CallerID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req UpdateStatusRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, err := order.ToStatus(req.Status)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.transition(w, r, orderID, callerID, target)
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	callerID, ok := CallerID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	h.transition(w, r, orderID, callerID, order.StatusCancelled)
}

func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, orderID, callerID uuid.UUID, target order.Status) {
	ord, err := h.svc.Transition(r.Context(), orderID, callerID, target)
	if err != nil {
		code := mapErrorToStatusCode(err)
		if code == http.StatusInternalServerError {
			log.Error().Err(err).Stringer("order_id", orderID).Msg("handler: failed to update order status")
			respondWithError(w, code, "failed to update order status")
			return
		}
		respondWithError(w, code, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(ord, callerID))
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, "")
}

func (h *OrderHandler) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, order.RoleBuyer)
}

func (h *OrderHandler) handleListSales(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, order.RoleSeller)
}

// listOrders serves the role-filtered order listings. A fixed role pins the
// purchases/sales projections; otherwise the role query parameter decides.
func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request, fixedRole order.Role) {
	callerID, ok := CallerID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	role := fixedRole
	if role == "" {
		switch r.URL.Query().Get("role") {
		case "buyer":
			role = order.RoleBuyer
		case "seller":
			role = order.RoleSeller
		case "", "all":
			role = order.RoleAll
		default:
			respondWithError(w, http.StatusBadRequest, "role must be 'all', 'buyer' or 'seller'")
			return
		}
	}

	q := order.ListQuery{
		Role:   role,
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := order.ToStatus(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.Status = &status
	}

	orders, total, err := h.svc.ListUserOrders(r.Context(), callerID, q)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to list orders")
		respondWithError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	resp := ListOrdersResponse{Orders: make([]OrderResponse, 0, len(orders)), Total: total}
	for i := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(&orders[i], callerID))
	}

	respondWithJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	callerID, ok := CallerID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	stats, err := h.svc.Stats(r.Context(), callerID)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to compute order stats")
		respondWithError(w, http.StatusInternalServerError, "failed to compute order stats")
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

func toOrderResponse(ord *order.Order, callerID uuid.UUID) OrderResponse {
	return OrderResponse{
		Order:   *ord,
		Role:    ord.RoleOf(callerID),
		Expired: ord.Expired(time.Now().UTC()),
	}
}

func decodeAndValidate(r *http.Request, validate *validator.Validate, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fe := validationErrors[0]
			return fmt.Errorf("validation failed on field %q (%s)", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
