package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"enroll-middleware/checkout"
	"enroll-middleware/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClasses struct{}

func (stubClasses) GetByID(ctx context.Context, id string) (*models.ClassOffering, error) {
	return &models.ClassOffering{ID: id, Name: "Swim Level 1", PriceCents: 12000}, nil
}

func (stubClasses) CheckCapacity(ctx context.Context, id string) (bool, error) {
	return true, nil
}

type stubChildren struct{}

func (stubChildren) GetMy(ctx context.Context) ([]models.Child, error) {
	return []models.Child{{ID: "kid-1", FirstName: "Ada"}, {ID: "kid-2", FirstName: "Ben"}}, nil
}

type stubOrders struct{}

func (stubOrders) Create(ctx context.Context, in checkout.CreateOrderInput) (*models.Order, error) {
	return &models.Order{ID: "ord_42", TotalCents: 12348}, nil
}

func (stubOrders) ApplyDiscount(ctx context.Context, orderID, code string) (*models.Order, error) {
	return &models.Order{ID: orderID, TotalCents: 11000}, nil
}

func (stubOrders) RemoveDiscount(ctx context.Context, orderID string) (*models.Order, error) {
	return &models.Order{ID: orderID, TotalCents: 12348}, nil
}

type stubPayments struct{}

func (stubPayments) CreateIntent(ctx context.Context, in checkout.CreateIntentInput) (*models.PaymentIntent, error) {
	return &models.PaymentIntent{ID: "pi_42", ClientSecret: "pi_42_secret"}, nil
}

func (stubPayments) Confirm(ctx context.Context, in checkout.ConfirmInput) (*models.PaymentResult, error) {
	return &models.PaymentResult{Success: true}, nil
}

type stubEnrollments struct{}

func (stubEnrollments) Create(ctx context.Context, in checkout.EnrollmentInput) (*models.Enrollment, error) {
	return &models.Enrollment{ID: "enr_42", ChildID: in.ChildID}, nil
}

func testRouter(reg *Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := checkout.Services{
		Classes:     stubClasses{},
		Children:    stubChildren{},
		Orders:      stubOrders{},
		Payments:    stubPayments{},
		Enrollments: stubEnrollments{},
	}
	cfg := checkout.Config{ProcessingFeePercent: 2.9}
	r := gin.New()
	r.POST("/api/checkout", func(c *gin.Context) {
		StartCheckout(c, reg, svc, cfg)
	})
	r.GET("/api/checkout/:id", func(c *gin.Context) {
		GetState(c, reg)
	})
	r.POST("/api/checkout/:id/children", func(c *gin.Context) {
		PostChild(c, reg)
	})
	r.POST("/api/checkout/:id/payment-method", func(c *gin.Context) {
		PostPaymentMethod(c, reg)
	})
	r.POST("/api/checkout/:id/order", func(c *gin.Context) {
		PostOrder(c, reg)
	})
	r.POST("/api/checkout/:id/payment", func(c *gin.Context) {
		PostPayment(c, reg)
	})
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func startSession(t *testing.T, r *gin.Engine) (string, checkout.State) {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/checkout", map[string]string{"class_id": "class-7"})
	require.Equal(t, 200, w.Code)
	var resp startCheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID, resp.State
}

func TestStartCheckoutReturnsInitializedState(t *testing.T) {
	r := testRouter(NewRegistry(time.Minute))
	_, state := startSession(t, r)
	assert.Equal(t, checkout.StepSelection, state.CurrentStep)
	require.NotNil(t, state.Class)
	assert.Equal(t, "Swim Level 1", state.Class.Name)
	assert.Len(t, state.Children, 2)
	assert.True(t, state.HasCapacity)
}

func TestStartCheckoutRejectsMissingClassID(t *testing.T) {
	r := testRouter(NewRegistry(time.Minute))
	w := doJSON(t, r, http.MethodPost, "/api/checkout", map[string]string{})
	assert.Equal(t, 400, w.Code)
}

func TestUnknownSessionIs404(t *testing.T) {
	r := testRouter(NewRegistry(time.Minute))
	w := doJSON(t, r, http.MethodGet, "/api/checkout/nope", nil)
	assert.Equal(t, 404, w.Code)
}

func TestCheckoutFlowThroughHandlers(t *testing.T) {
	r := testRouter(NewRegistry(time.Minute))
	id, _ := startSession(t, r)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/checkout/%v/children", id),
		map[string]interface{}{"child_id": "kid-1", "multi": true})
	require.Equal(t, 200, w.Code)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/checkout/%v/order", id), nil)
	require.Equal(t, 200, w.Code)
	var state checkout.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, "ord_42", state.OrderID)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/checkout/%v/payment", id), nil)
	require.Equal(t, 200, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, "pi_42_secret", state.ClientSecret)
	assert.Equal(t, checkout.StepPayment, state.CurrentStep)
}

func TestPaymentMethodRejectsUnknownValue(t *testing.T) {
	r := testRouter(NewRegistry(time.Minute))
	id, _ := startSession(t, r)
	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/checkout/%v/payment-method", id),
		map[string]string{"method": "barter"})
	assert.Equal(t, 400, w.Code)
}

func TestRegistrySweepEvictsIdleSessions(t *testing.T) {
	reg := NewRegistry(time.Millisecond)
	id := reg.Put(checkout.NewSession(checkout.Services{}, checkout.Config{}))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, reg.Sweep())
	_, ok := reg.Get(id)
	assert.False(t, ok)
}
