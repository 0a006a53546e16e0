package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	handler "github.com/gamemarket/backend/internal/handler/http"
	"github.com/gamemarket/backend/internal/order"
)

var (
	buyerID  = uuid.Must(uuid.FromString("123e4567-e89b-12d3-a456-426614174000"))
	sellerID = uuid.Must(uuid.FromString("223e4567-e89b-12d3-a456-426614174000"))
	orderID  = uuid.Must(uuid.FromString("750e8400-e29b-41d4-a716-446655440000"))
)

type mockService struct {
	createOrderFunc    func(ctx context.Context, buyerID uuid.UUID, in order.CreateOrderInput) (*order.Order, error)
	checkoutFunc       func(ctx context.Context, buyerID uuid.UUID, in order.CheckoutInput) (*order.BatchResult, error)
	transitionFunc     func(ctx context.Context, orderID, actorID uuid.UUID, target order.Status) (*order.Order, error)
	getOrderByIDFunc   func(ctx context.Context, orderID, callerID uuid.UUID) (*order.Order, error)
	listUserOrdersFunc func(ctx context.Context, userID uuid.UUID, q order.ListQuery) ([]order.Order, int64, error)
	statsFunc          func(ctx context.Context, userID uuid.UUID) (*order.UserStats, error)
}

func (m *mockService) CreateOrder(ctx context.Context, buyerID uuid.UUID, in order.CreateOrderInput) (*order.Order, error) {
	return m.createOrderFunc(ctx, buyerID, in)
}

func (m *mockService) Checkout(ctx context.Context, buyerID uuid.UUID, in order.CheckoutInput) (*order.BatchResult, error) {
	return m.checkoutFunc(ctx, buyerID, in)
}

func (m *mockService) Transition(ctx context.Context, orderID, actorID uuid.UUID, target order.Status) (*order.Order, error) {
	return m.transitionFunc(ctx, orderID, actorID, target)
}

func (m *mockService) GetOrderByID(ctx context.Context, orderID, callerID uuid.UUID) (*order.Order, error) {
	return m.getOrderByIDFunc(ctx, orderID, callerID)
}

func (m *mockService) ListUserOrders(ctx context.Context, userID uuid.UUID, q order.ListQuery) ([]order.Order, int64, error) {
	return m.listUserOrdersFunc(ctx, userID, q)
}

func (m *mockService) Stats(ctx context.Context, userID uuid.UUID) (*order.UserStats, error) {
	return m.statsFunc(ctx, userID)
}

func newTestRouter(svc order.Service) *chi.Mux {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(handler.RequireIdentity)
		handler.NewOrderHandler(svc).RegisterRoutes(r)
	})
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path string, callerID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if callerID != "" {
		req.Header.Set(handler.HeaderUserID, callerID)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func sampleOrder() *order.Order {
	return &order.Order{
		ID:            orderID,
		BuyerID:       buyerID,
		SellerID:      sellerID,
		ListingID:     uuid.Must(uuid.NewV4()),
		Quantity:      1,
		UnitPrice:     decimal.RequireFromString("50.00"),
		TotalPrice:    decimal.RequireFromString("50.00"),
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
	}
}

func sampleAddress() map[string]string {
	return map[string]string{
		"street":       "Rua das Flores",
		"number":       "123",
		"neighborhood": "Centro",
		"city":         "Sao Paulo",
		"state":        "SP",
		"zipcode":      "01000-000",
	}
}

func TestHandler_Identity(t *testing.T) {
	router := newTestRouter(&mockService{})

	rec := doRequest(t, router, http.MethodGet, "/orders/"+orderID.String(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/orders/"+orderID.String(), "not-a-uuid", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_CreateOrder(t *testing.T) {
	validBody := map[string]any{
		"listing_id":       uuid.Must(uuid.NewV4()).String(),
		"quantity":         2,
		"shipping_address": sampleAddress(),
	}

	tests := []struct {
		name       string
		body       any
		serviceErr error
		wantCode   int
	}{
		{name: "created", body: validBody, wantCode: http.StatusCreated},
		{name: "listing_unavailable", body: validBody, serviceErr: order.ErrListingUnavailable, wantCode: http.StatusNotFound},
		{name: "self_purchase", body: validBody, serviceErr: order.ErrSelfPurchase, wantCode: http.StatusBadRequest},
		{name: "missing_quantity", body: map[string]any{
			"listing_id":       uuid.Must(uuid.NewV4()).String(),
			"shipping_address": sampleAddress(),
		}, wantCode: http.StatusBadRequest},
		{name: "malformed_listing_id", body: map[string]any{
			"listing_id":       "nope",
			"quantity":         1,
			"shipping_address": sampleAddress(),
		}, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{
				createOrderFunc: func(ctx context.Context, callerID uuid.UUID, in order.CreateOrderInput) (*order.Order, error) {
					assert.Equal(t, buyerID, callerID)
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					return sampleOrder(), nil
				},
			}

			rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/orders", buyerID.String(), tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestHandler_CreateOrder_ResponseBody(t *testing.T) {
	svc := &mockService{
		createOrderFunc: func(ctx context.Context, callerID uuid.UUID, in order.CreateOrderInput) (*order.Order, error) {
			return sampleOrder(), nil
		},
	}

	body := map[string]any{
		"listing_id":       uuid.Must(uuid.NewV4()).String(),
		"quantity":         1,
		"shipping_address": sampleAddress(),
	}
	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/orders", buyerID.String(), body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, orderID.String(), resp["id"])
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, "buyer", resp["role"])
}

func TestHandler_Checkout_PartialFailure(t *testing.T) {
	failed := order.CartItem{ListingID: uuid.Must(uuid.NewV4()), Quantity: 1}
	svc := &mockService{
		checkoutFunc: func(ctx context.Context, callerID uuid.UUID, in order.CheckoutInput) (*order.BatchResult, error) {
			require.Len(t, in.Items, 2)
			return &order.BatchResult{
				Orders: []order.Order{*sampleOrder()},
				Failed: []order.FailedItem{{Item: failed, Reason: order.ErrListingUnavailable.Error()}},
				Summary: order.BatchSummary{
					TotalItems:      2,
					SuccessfulCount: 1,
					FailedCount:     1,
				},
			}, nil
		},
	}

	body := map[string]any{
		"cart_items": []map[string]any{
			{"listing_id": uuid.Must(uuid.NewV4()).String(), "quantity": 1},
			{"listing_id": failed.ListingID.String(), "quantity": 1},
		},
		"shipping_address": sampleAddress(),
	}
	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/orders/checkout", buyerID.String(), body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Orders  []json.RawMessage  `json:"orders"`
		Failed  []order.FailedItem `json:"failed_items"`
		Summary order.BatchSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Orders, 1)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, order.ErrListingUnavailable.Error(), resp.Failed[0].Reason)
	assert.Equal(t, 2, resp.Summary.TotalItems)
}

func TestHandler_Checkout_AllItemsFail(t *testing.T) {
	svc := &mockService{
		checkoutFunc: func(ctx context.Context, callerID uuid.UUID, in order.CheckoutInput) (*order.BatchResult, error) {
			return &order.BatchResult{
				Failed: []order.FailedItem{
					{Item: in.Items[0], Reason: order.ErrListingUnavailable.Error()},
				},
				Summary: order.BatchSummary{TotalItems: 1, FailedCount: 1},
			}, order.ErrCheckoutFailed
		},
	}

	body := map[string]any{
		"cart_items": []map[string]any{
			{"listing_id": uuid.Must(uuid.NewV4()).String(), "quantity": 1},
		},
		"shipping_address": sampleAddress(),
	}
	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/orders/checkout", buyerID.String(), body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, order.ErrCheckoutFailed.Error(), resp["error"])
	assert.NotNil(t, resp["failed_items"])
	assert.NotNil(t, resp["summary"])
}

func TestHandler_Checkout_EmptyCart(t *testing.T) {
	rec := doRequest(t, newTestRouter(&mockService{}), http.MethodPost, "/orders/checkout", buyerID.String(), map[string]any{
		"cart_items":       []map[string]any{},
		"shipping_address": sampleAddress(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_GetOrder(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantCode   int
	}{
		{name: "found", wantCode: http.StatusOK},
		{name: "not_found", serviceErr: order.ErrOrderNotFound, wantCode: http.StatusNotFound},
		{name: "not_a_party", serviceErr: order.ErrAccessDenied, wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{
				getOrderByIDFunc: func(ctx context.Context, id, callerID uuid.UUID) (*order.Order, error) {
					assert.Equal(t, orderID, id)
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					return sampleOrder(), nil
				},
			}

			rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/orders/"+orderID.String(), buyerID.String(), nil)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestHandler_UpdateStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		serviceErr error
		wantCode   int
	}{
		{name: "paid", status: "paid", wantCode: http.StatusOK},
		{name: "unknown_status", status: "refunded", wantCode: http.StatusBadRequest},
		{name: "wrong_party", status: "shipped", serviceErr: order.ErrRoleNotPermitted, wantCode: http.StatusForbidden},
		{name: "illegal_transition", status: "delivered", serviceErr: &order.InvalidTransitionError{From: order.StatusPending, To: order.StatusDelivered}, wantCode: http.StatusConflict},
		{name: "stranger", status: "paid", serviceErr: order.ErrAccessDenied, wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{
				transitionFunc: func(ctx context.Context, id, actorID uuid.UUID, target order.Status) (*order.Order, error) {
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					ord := sampleOrder()
					ord.Status = target
					return ord, nil
				},
			}

			rec := doRequest(t, newTestRouter(svc), http.MethodPut,
				fmt.Sprintf("/orders/%s/status", orderID), buyerID.String(),
				map[string]string{"status": tt.status})
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestHandler_CancelOrder(t *testing.T) {
	var requested order.Status
	svc := &mockService{
		transitionFunc: func(ctx context.Context, id, actorID uuid.UUID, target order.Status) (*order.Order, error) {
			requested = target
			ord := sampleOrder()
			ord.Status = target
			return ord, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodPost,
		fmt.Sprintf("/orders/%s/cancel", orderID), buyerID.String(), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.StatusCancelled, requested)
}

func TestHandler_ListOrders(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantRole order.Role
		wantCode int
	}{
		{name: "default_all", path: "/orders", wantRole: order.RoleAll, wantCode: http.StatusOK},
		{name: "buyer_filter", path: "/orders?role=buyer", wantRole: order.RoleBuyer, wantCode: http.StatusOK},
		{name: "purchases_projection", path: "/orders/purchases", wantRole: order.RoleBuyer, wantCode: http.StatusOK},
		{name: "sales_projection", path: "/orders/sales", wantRole: order.RoleSeller, wantCode: http.StatusOK},
		{name: "bad_role", path: "/orders?role=admin", wantCode: http.StatusBadRequest},
		{name: "bad_status", path: "/orders?status=refunded", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{
				listUserOrdersFunc: func(ctx context.Context, userID uuid.UUID, q order.ListQuery) ([]order.Order, int64, error) {
					assert.Equal(t, tt.wantRole, q.Role)
					return []order.Order{*sampleOrder()}, 1, nil
				},
			}

			rec := doRequest(t, newTestRouter(svc), http.MethodGet, tt.path, buyerID.String(), nil)
			require.Equal(t, tt.wantCode, rec.Code)

			if tt.wantCode == http.StatusOK {
				var resp handler.ListOrdersResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, int64(1), resp.Total)
				require.Len(t, resp.Orders, 1)
			}
		})
	}
}

func TestHandler_ListOrders_StatusFilter(t *testing.T) {
	svc := &mockService{
		listUserOrdersFunc: func(ctx context.Context, userID uuid.UUID, q order.ListQuery) ([]order.Order, int64, error) {
			require.NotNil(t, q.Status)
			assert.Equal(t, order.StatusDelivered, *q.Status)
			assert.Equal(t, 5, q.Limit)
			assert.Equal(t, 10, q.Offset)
			return nil, 0, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/orders?status=delivered&limit=5&offset=10", buyerID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_Stats(t *testing.T) {
	svc := &mockService{
		statsFunc: func(ctx context.Context, userID uuid.UUID) (*order.UserStats, error) {
			assert.Equal(t, buyerID, userID)
			return &order.UserStats{
				Buyer:      order.RoleStats{Total: 2, ByStatus: map[order.Status]int64{order.StatusPending: 2}},
				TotalSpent: decimal.RequireFromString("100.00"),
			}, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/orders/stats", buyerID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp order.UserStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Buyer.Total)
}
