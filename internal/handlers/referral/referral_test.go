package referral

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"isp-billing-service/internal/domain/customer"
	"isp-billing-service/internal/domain/referral"
	"isp-billing-service/internal/pkg/response"
	service "isp-billing-service/internal/service/referral"
	"isp-billing-service/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRouter(t *testing.T) (*gin.Engine, *testutil.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := testutil.NewStore()
	svc := service.NewReferralService(
		store.Codes, store.Transactions, store.Marketing, store.Customers, store.Ledger,
		store, testutil.DefaultSettings(), &testutil.Recorder{}, zap.NewNop(),
	)
	h := NewReferralHandler(svc)

	r := gin.New()
	r.POST("/referrals/validate", h.ValidateReferralCode)
	r.POST("/referrals/apply", h.ApplyReferral)
	r.GET("/referrals/codes/customer/:customer_id", h.GetCustomerReferralCode)
	r.POST("/referrals/marketing", h.CreateMarketingReferral)
	return r, store
}

func do(r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, response.Response) {
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		_ = json.NewEncoder(&buf).Encode(v)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func seedCode(store *testutil.Store, code string) (owner int64) {
	owner = store.AddCustomer(customer.Customer{Name: "Achieng"})
	store.AddCode(referral.ReferralCode{
		CustomerID: sql.NullInt64{Int64: owner, Valid: true},
		Code:       code,
		MaxUses:    5,
		ExpiresAt:  time.Now().Add(24 * time.Hour),
		IsActive:   true,
	})
	return owner
}

func TestValidateReferralCodeHandler(t *testing.T) {
	r, store := newRouter(t)
	seedCode(store, "REFGOOD1")

	t.Run("unknown code is a negative verdict", func(t *testing.T) {
		w, resp := do(r, http.MethodPost, "/referrals/validate", gin.H{"code": "REFNOPE1"})
		require.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, false, data["valid"])
		assert.Equal(t, referral.ReasonNotFound, data["reason"])
	})

	t.Run("valid code hides the code row", func(t *testing.T) {
		w, resp := do(r, http.MethodPost, "/referrals/validate", gin.H{"code": "refgood1"})
		require.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, true, data["valid"])
		assert.Equal(t, "Achieng", data["referrer_name"])
		assert.NotContains(t, data, "code")
	})

	t.Run("missing code is rejected by binding", func(t *testing.T) {
		w, resp := do(r, http.MethodPost, "/referrals/validate", gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, resp.Success)
	})
}

func TestApplyReferralHandler(t *testing.T) {
	r, store := newRouter(t)
	seedCode(store, "REFGOOD2")
	referred := store.AddCustomer(customer.Customer{Name: "Kamau"})

	body := gin.H{"code": "REFGOOD2", "referred_customer_id": referred}

	w, resp := do(r, http.MethodPost, "/referrals/apply", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, resp.Success)

	w, resp = do(r, http.MethodPost, "/referrals/apply", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, resp.Success)

	w, _ = do(r, http.MethodPost, "/referrals/apply", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCustomerReferralCodeHandler(t *testing.T) {
	r, store := newRouter(t)
	owner := seedCode(store, "REFGOOD3")

	w, resp := do(r, http.MethodGet, "/referrals/codes/customer/"+strconv.FormatInt(owner, 10), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "REFGOOD3", resp.Data.(map[string]interface{})["code"])

	w, _ = do(r, http.MethodGet, "/referrals/codes/customer/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(r, http.MethodGet, "/referrals/codes/customer/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateMarketingReferralHandler(t *testing.T) {
	r, _ := newRouter(t)

	w, resp := do(r, http.MethodPost, "/referrals/marketing", gin.H{"marketer_name": "Field Team"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := resp.Data.(map[string]interface{})
	assert.Contains(t, data, "code")
	assert.Contains(t, data, "marketing_referral")

	w, _ = do(r, http.MethodPost, "/referrals/marketing", gin.H{"marketer_name": "X", "marketer_email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
