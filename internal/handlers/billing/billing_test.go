package billing

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"isp-billing-service/internal/domain/customer"
	"isp-billing-service/internal/domain/invoice"
	"isp-billing-service/internal/pkg/response"
	billingsvc "isp-billing-service/internal/service/billing"
	discountsvc "isp-billing-service/internal/service/discount"
	referralsvc "isp-billing-service/internal/service/referral"
	"isp-billing-service/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRouter(t *testing.T) (*gin.Engine, *testutil.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := testutil.NewStore()
	rec := &testutil.Recorder{}
	logger := zap.NewNop()

	referrals := referralsvc.NewReferralService(
		store.Codes, store.Transactions, store.Marketing, store.Customers, store.Ledger,
		store, testutil.DefaultSettings(), rec, logger,
	)
	discounts := discountsvc.NewDiscountService(
		store.Discounts, store.Applications, store.Invoices, store.Customers, store.Ledger,
		store, rec, logger,
	)
	svc := billingsvc.NewBillingService(
		referrals, discounts, store.Invoices, store.Applications, store.Customers, store.Ledger,
		store, rec, logger,
	)
	h := NewBillingHandler(svc)

	r := gin.New()
	r.POST("/billing/calculate", h.CalculateDiscounts)
	r.POST("/billing/invoices", h.CreateInvoice)
	r.GET("/billing/invoices/:id/discounts", h.GetInvoiceDiscounts)
	r.PUT("/billing/invoices/:id/discounts", h.RecalculateInvoice)
	r.POST("/billing/reconcile", h.Reconcile)
	return r, store
}

func do(r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, response.Response) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestCreateInvoiceHandler(t *testing.T) {
	r, store := newRouter(t)
	cust := store.AddCustomer(customer.Customer{Name: "Njeri"})

	w, resp := do(r, http.MethodPost, "/billing/invoices", gin.H{"customer_id": cust, "amount": "2500"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	inv := resp.Data.(map[string]interface{})["invoice"].(map[string]interface{})
	final, err := decimal.NewFromString(inv["final_amount"].(string))
	require.NoError(t, err)
	assert.True(t, final.Equal(decimal.NewFromInt(2500)))

	w, _ = do(r, http.MethodPost, "/billing/invoices", gin.H{"customer_id": 9999, "amount": "100"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(r, http.MethodPost, "/billing/invoices", gin.H{"amount": "100"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecalculateInvoiceHandler(t *testing.T) {
	r, store := newRouter(t)
	cust := store.AddCustomer(customer.Customer{Name: "Njeri"})
	paid := store.AddInvoice(invoice.Invoice{CustomerID: cust, Amount: decimal.NewFromInt(1000), Status: invoice.StatusPaid})
	open := store.AddInvoice(invoice.Invoice{CustomerID: cust, Amount: decimal.NewFromInt(1000)})

	w, _ := do(r, http.MethodPut, "/billing/invoices/"+strconv.FormatInt(paid, 10)+"/discounts", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, resp := do(r, http.MethodPut, "/billing/invoices/"+strconv.FormatInt(open, 10)+"/discounts", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, resp.Success)

	w, _ = do(r, http.MethodGet, "/billing/invoices/9999/discounts", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(r, http.MethodGet, "/billing/invoices/x/discounts", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcileHandler(t *testing.T) {
	r, store := newRouter(t)
	cust := store.AddCustomer(customer.Customer{Name: "Njeri"})
	store.AddInvoice(invoice.Invoice{CustomerID: cust, Amount: decimal.NewFromInt(1000)})

	w, resp := do(r, http.MethodPost, "/billing/reconcile?customer_id="+strconv.FormatInt(cust, 10), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, resp.Data.(map[string]interface{})["processed"])

	w, _ = do(r, http.MethodPost, "/billing/reconcile?customer_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
