package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	affiliatedomain "github.com/windimenu/windi/internal/affiliate/domain"
	affiliaterepository "github.com/windimenu/windi/internal/affiliate/repository"
	affiliateservice "github.com/windimenu/windi/internal/affiliate/service"
	auditdomain "github.com/windimenu/windi/internal/audit/domain"
	auditservice "github.com/windimenu/windi/internal/audit/service"
	"github.com/windimenu/windi/internal/authorization"
	businessdomain "github.com/windimenu/windi/internal/business/domain"
	businessrepository "github.com/windimenu/windi/internal/business/repository"
	"github.com/windimenu/windi/internal/clock"
	"github.com/windimenu/windi/internal/mirror/outbox"
	"github.com/windimenu/windi/internal/observability"
	paymentdomain "github.com/windimenu/windi/internal/payment/domain"
	"github.com/windimenu/windi/internal/payment/webhook"
	payoutrepository "github.com/windimenu/windi/internal/payout/repository"
	payoutservice "github.com/windimenu/windi/internal/payout/service"
	planrepository "github.com/windimenu/windi/internal/plan/repository"
	planservice "github.com/windimenu/windi/internal/plan/service"
	subscriptiondomain "github.com/windimenu/windi/internal/subscription/domain"
	subscriptionrepository "github.com/windimenu/windi/internal/subscription/repository"
	"github.com/windimenu/windi/pkg/db/dbtest"
	"go.uber.org/zap"
)

type fakeReconciler struct {
	outcome  webhook.Outcome
	err      error
	received []string
}

func (f *fakeReconciler) HandleWebhook(_ context.Context, paymentID string) (webhook.Outcome, error) {
	f.received = append(f.received, paymentID)
	return f.outcome, f.err
}

type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) ResolveGate(ctx context.Context, businessID snowflake.ID) (subscriptiondomain.Gate, error) {
	args := m.Called(ctx, businessID)
	return args.Get(0).(subscriptiondomain.Gate), args.Error(1)
}

func (m *MockSubscriptionService) StartCheckout(ctx context.Context, req subscriptiondomain.CheckoutRequest) (*subscriptiondomain.CheckoutResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscriptiondomain.CheckoutResult), args.Error(1)
}

func (m *MockSubscriptionService) Status(ctx context.Context, businessID, subscriptionID snowflake.ID) (*subscriptiondomain.StatusResult, error) {
	args := m.Called(ctx, businessID, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscriptiondomain.StatusResult), args.Error(1)
}

func (m *MockSubscriptionService) MarkPaid(ctx context.Context, subscriptionID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscriptiondomain.Subscription), args.Error(1)
}

func (m *MockSubscriptionService) CreatePaid(ctx context.Context, req subscriptiondomain.CreatePaidRequest) (*subscriptiondomain.Subscription, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscriptiondomain.Subscription), args.Error(1)
}

func (m *MockSubscriptionService) List(ctx context.Context, limit int) ([]subscriptiondomain.ListItem, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscriptiondomain.ListItem), args.Error(1)
}

func doRequest(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestMercadoPagoWebhook(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("query id is processed", func(t *testing.T) {
		rec := &fakeReconciler{outcome: webhook.OutcomeProcessed}
		srv := &Server{log: zap.NewNop(), reconciler: rec}

		resp := doRequest(srv.newRouter(), http.MethodPost, "/webhooks/mercadopago?type=payment&data.id=123", "", nil)

		require.Equal(t, http.StatusOK, resp.Code)
		body := decode(t, resp)
		assert.Equal(t, true, body["ok"])
		assert.NotContains(t, body, "duplicate")
		assert.Equal(t, []string{"123"}, rec.received)
	})

	t.Run("body id on the api alias reports duplicate", func(t *testing.T) {
		rec := &fakeReconciler{outcome: webhook.OutcomeDuplicate}
		srv := &Server{log: zap.NewNop(), reconciler: rec}

		resp := doRequest(srv.newRouter(), http.MethodPost, "/api/webhooks/mercadopago", `{"data":{"id":987}}`, nil)

		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, true, decode(t, resp)["duplicate"])
		assert.Equal(t, []string{"987"}, rec.received)
	})

	t.Run("failures are still acknowledged", func(t *testing.T) {
		rec := &fakeReconciler{outcome: webhook.OutcomeFailed, err: paymentdomain.ErrGatewayTimeout}
		srv := &Server{log: zap.NewNop(), reconciler: rec}

		resp := doRequest(srv.newRouter(), http.MethodPost, "/webhooks/mercadopago?id=55", "", nil)

		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, true, decode(t, resp)["ok"])
	})

	t.Run("missing id is ignored", func(t *testing.T) {
		rec := &fakeReconciler{outcome: webhook.OutcomeIgnored}
		srv := &Server{log: zap.NewNop(), reconciler: rec}

		resp := doRequest(srv.newRouter(), http.MethodPost, "/webhooks/mercadopago", "not json", nil)

		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, true, decode(t, resp)["ignored"])
		assert.Equal(t, []string{""}, rec.received)
	})
}

func TestSelectPlan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	businessID := snowflake.ID(42)
	headers := map[string]string{headerBusinessID: businessID.String()}

	t.Run("already allowed", func(t *testing.T) {
		subs := new(MockSubscriptionService)
		subs.On("ResolveGate", mock.Anything, businessID).
			Return(subscriptiondomain.LegacyGate(nil), nil)
		srv := &Server{log: zap.NewNop(), subscriptionSvc: subs}

		resp := doRequest(srv.newRouter(), http.MethodPost, "/api/onboarding/select-plan", `{"plan_code":"basic"}`, headers)

		require.Equal(t, http.StatusOK, resp.Code)
		body := decode(t, resp)
		assert.Equal(t, true, body["already_active"])
		assert.Equal(t, "/app", body["redirect_to"])
		subs.AssertNotCalled(t, "StartCheckout", mock.Anything, mock.Anything)
	})

	t.Run("starts checkout", func(t *testing.T) {
		subs := new(MockSubscriptionService)
		subs.On("ResolveGate", mock.Anything, businessID).
			Return(subscriptiondomain.MustPayGate(subscriptiondomain.MustPayPlanSelection, nil), nil)
		subs.On("StartCheckout", mock.Anything, subscriptiondomain.CheckoutRequest{BusinessID: businessID, PlanCode: "basic"}).
			Return(&subscriptiondomain.CheckoutResult{SubscriptionID: 7, CheckoutURL: "https://mp.example/init/7"}, nil)
		srv := &Server{log: zap.NewNop(), subscriptionSvc: subs}

		resp := doRequest(srv.newRouter(), http.MethodPost, "/api/onboarding/select-plan", `{"plan_code":" basic "}`, headers)

		require.Equal(t, http.StatusOK, resp.Code)
		body := decode(t, resp)
		assert.Equal(t, true, body["ok"])
		assert.Equal(t, "https://mp.example/init/7", body["checkout_url"])
		subs.AssertExpectations(t)
	})

	t.Run("gateway timeout", func(t *testing.T) {
		subs := new(MockSubscriptionService)
		subs.On("ResolveGate", mock.Anything, businessID).
			Return(subscriptiondomain.MustPayGate(subscriptiondomain.MustPayPlanSelection, nil), nil)
		subs.On("StartCheckout", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("create preference: %w", paymentdomain.ErrGatewayTimeout))
		srv := &Server{log: zap.NewNop(), subscriptionSvc: subs}

		resp := doRequest(srv.newRouter(), http.MethodPost, "/api/onboarding/select-plan", `{"plan_id":"3"}`, headers)

		require.Equal(t, http.StatusGatewayTimeout, resp.Code)
		body := decode(t, resp)
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, "gateway_timeout", body["error"].(map[string]any)["code"])
	})

	t.Run("gateway unavailable", func(t *testing.T) {
		subs := new(MockSubscriptionService)
		subs.On("ResolveGate", mock.Anything, businessID).
			Return(subscriptiondomain.MustPayGate(subscriptiondomain.MustPayPlanSelection, nil), nil)
		subs.On("StartCheckout", mock.Anything, mock.Anything).
			Return(nil, paymentdomain.ErrGatewayUnavailable)
		srv := &Server{log: zap.NewNop(), subscriptionSvc: subs}

		resp := doRequest(srv.newRouter(), http.MethodPost, "/api/onboarding/select-plan", `{"plan_code":"basic"}`, headers)

		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	})

	gatewayErrors := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"gateway rejected", fmt.Errorf("%w: status 400", paymentdomain.ErrGatewayRejected), http.StatusInternalServerError, "gateway_rejected"},
		{"missing checkout url", fmt.Errorf("%w: preference has no checkout url", paymentdomain.ErrGatewayFailed), http.StatusBadGateway, "gateway_failed"},
	}
	for _, tc := range gatewayErrors {
		t.Run(tc.name, func(t *testing.T) {
			subs := new(MockSubscriptionService)
			subs.On("ResolveGate", mock.Anything, businessID).
				Return(subscriptiondomain.MustPayGate(subscriptiondomain.MustPayPlanSelection, nil), nil)
			subs.On("StartCheckout", mock.Anything, mock.Anything).Return(nil, tc.err)
			srv := &Server{log: zap.NewNop(), subscriptionSvc: subs}

			resp := doRequest(srv.newRouter(), http.MethodPost, "/api/onboarding/select-plan", `{"plan_code":"basic"}`, headers)

			require.Equal(t, tc.status, resp.Code)
			assert.Equal(t, tc.code, decode(t, resp)["error"].(map[string]any)["code"])
		})
	}

	t.Run("no plan", func(t *testing.T) {
		srv := &Server{log: zap.NewNop(), subscriptionSvc: new(MockSubscriptionService)}

		resp := doRequest(srv.newRouter(), http.MethodPost, "/api/onboarding/select-plan", `{}`, headers)

		require.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "invalid_plan", decode(t, resp)["error"].(map[string]any)["code"])
	})

	t.Run("no business", func(t *testing.T) {
		srv := &Server{log: zap.NewNop(), subscriptionSvc: new(MockSubscriptionService)}

		resp := doRequest(srv.newRouter(), http.MethodPost, "/api/onboarding/select-plan", `{"plan_code":"basic"}`, nil)

		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("malformed business header", func(t *testing.T) {
		srv := &Server{log: zap.NewNop(), subscriptionSvc: new(MockSubscriptionService)}

		resp := doRequest(srv.newRouter(), http.MethodPost, "/api/onboarding/select-plan", `{"plan_code":"basic"}`,
			map[string]string{headerBusinessID: "abc"})

		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestSubscriptionStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	businessID := snowflake.ID(42)
	subID := snowflake.ID(9)
	headers := map[string]string{headerBusinessID: businessID.String()}

	subs := new(MockSubscriptionService)
	subs.On("Status", mock.Anything, businessID, subID).
		Return(&subscriptiondomain.StatusResult{SubscriptionID: &subID, Status: subscriptiondomain.SubscriptionStatusActive, Active: true}, nil)
	subs.On("Status", mock.Anything, businessID, snowflake.ID(10)).
		Return(nil, subscriptiondomain.ErrSubscriptionNotFound)
	srv := &Server{log: zap.NewNop(), subscriptionSvc: subs}
	router := srv.newRouter()

	resp := doRequest(router, http.MethodGet, "/api/subscription/status?sub=9", "", headers)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp)
	assert.Equal(t, "ACTIVE", body["status"])
	assert.Equal(t, true, body["active"])

	resp = doRequest(router, http.MethodGet, "/api/subscription/status?sub=10", "", headers)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAdminAuthorization(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	authz, err := authorization.NewAuthorizer(conn, zap.NewNop())
	require.NoError(t, err)
	plans := planservice.NewService(planservice.Params{
		DB:     conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   planrepository.NewRepository(conn),
		Outbox: outbox.NewChannel(),
		Clock:  clock.Fixed(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)),
	})
	audits := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.Fixed(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)),
	})
	srv := &Server{
		log:         zap.NewNop(),
		authz:       authz,
		planSvc:     plans,
		auditSvc:    audits,
		auditExport: auditservice.NewExportService(conn),
	}
	router := srv.newRouter()

	resp := doRequest(router, http.MethodGet, "/admin/plans", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = doRequest(router, http.MethodGet, "/admin/plans", "", map[string]string{headerUserRole: "COMMERCE"})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	admin := map[string]string{headerUserRole: "admin", headerUserID: "1"}
	resp = doRequest(router, http.MethodPost, "/admin/plans",
		`{"code":"pro","display_name":"Pro","price":"1500.50","max_products":20}`, admin)
	require.Equal(t, http.StatusCreated, resp.Code)
	created := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "PRO", created["code"])

	resp = doRequest(router, http.MethodPost, "/admin/plans", `{"code":"PRO","display_name":"Again","price":10}`, admin)
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "plan_code_taken", decode(t, resp)["error"].(map[string]any)["code"])

	resp = doRequest(router, http.MethodPost, fmt.Sprintf("/admin/plans/%v/toggle-active", created["id"]), "", admin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, decode(t, resp)["data"].(map[string]any)["is_active"])

	resp = doRequest(router, http.MethodGet, "/admin/plans", "", admin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode(t, resp)["data"], 1)

	var entries []auditdomain.AuditLog
	require.NoError(t, conn.Order("id ASC").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, "plan.create", entries[0].Action)
	assert.Equal(t, "ADMIN", entries[0].ActorRole)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, snowflake.ID(1), *entries[0].ActorID)
	assert.Equal(t, "plan.toggle_active", entries[1].Action)

	resp = doRequest(router, http.MethodGet, "/admin/audit-logs/export?start=2026-10-01&end=2026-10-01&format=json", "", admin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "2", resp.Header().Get("X-Record-Count"))
	assert.Len(t, resp.Header().Get("X-Checksum-SHA256"), 64)

	resp = doRequest(router, http.MethodGet, "/admin/audit-logs/export?start=2026-10-01&end=2026-10-01&format=xml", "", admin)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMetricsAndHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := observability.NewMetrics()
	metrics.WebhooksTotal.WithLabelValues(string(webhook.OutcomeProcessed)).Inc()
	srv := &Server{log: zap.NewNop(), metrics: metrics}
	router := srv.newRouter()

	resp := doRequest(router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `windi_webhooks_total{outcome="processed"} 1`)
	assert.Contains(t, resp.Body.String(), "go_goroutines")
	assert.Equal(t, 1, strings.Count(resp.Body.String(), "# TYPE go_goroutines "))

	resp = doRequest(router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAdminAffiliateViews(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	authz, err := authorization.NewAuthorizer(conn, zap.NewNop())
	require.NoError(t, err)
	affiliateRepo := affiliaterepository.NewRepository(conn)
	saleRepo := affiliaterepository.NewSaleRepository(conn)
	affiliates := affiliateservice.NewService(affiliateservice.Params{
		DB:           conn,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clock.Fixed(now),
		Outbox:       outbox.NewChannel(),
		Metrics:      observability.NewMetrics(),
		Repo:         affiliateRepo,
		SaleRepo:     saleRepo,
		BusinessRepo: businessrepository.NewRepository(conn),
		SubRepo:      subscriptionrepository.NewRepository(conn),
	})
	payouts := payoutservice.NewService(payoutservice.Params{
		DB:            conn,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clock.Fixed(now),
		Outbox:        outbox.NewChannel(),
		Metrics:       observability.NewMetrics(),
		Repo:          payoutrepository.NewRepository(conn),
		AffiliateRepo: affiliateRepo,
		SaleRepo:      saleRepo,
	})
	plans := planservice.NewService(planservice.Params{
		DB:     conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   planrepository.NewRepository(conn),
		Outbox: outbox.NewChannel(),
		Clock:  clock.Fixed(now),
	})
	audits := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.Fixed(now),
	})
	subs := new(MockSubscriptionService)
	srv := &Server{
		log:             zap.NewNop(),
		authz:           authz,
		affiliateSvc:    affiliates,
		payoutSvc:       payouts,
		planSvc:         plans,
		subscriptionSvc: subs,
		auditSvc:        audits,
	}
	router := srv.newRouter()
	admin := map[string]string{headerUserRole: "ADMIN", headerUserID: "1"}

	a := &affiliatedomain.Affiliate{
		ID:             node.Generate(),
		UserID:         node.Generate(),
		RefCode:        "ANA1234",
		CommissionRate: decimal.RequireFromString("0.25"),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, conn.Create(a).Error)
	business := &businessdomain.Business{ID: node.Generate(), BusinessName: "Cafe Central", AffiliateID: &a.ID, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, conn.Create(business).Error)
	sale := &affiliatedomain.Sale{
		ID:               node.Generate(),
		AffiliateID:      a.ID,
		BusinessID:       business.ID,
		SubscriptionID:   node.Generate(),
		PlanID:           node.Generate(),
		Amount:           decimal.NewFromInt(12999),
		CommissionRate:   decimal.RequireFromString("0.25"),
		CommissionAmount: decimal.NewFromInt(3250),
		PointsEarned:     130,
		Status:           affiliatedomain.SaleStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, conn.Create(sale).Error)

	resp := doRequest(router, http.MethodGet, "/admin/affiliates", "", admin)
	require.Equal(t, http.StatusOK, resp.Code)
	listed := decode(t, resp)["data"].([]any)
	require.Len(t, listed, 1)
	assert.Equal(t, a.ID.String(), listed[0].(map[string]any)["id"])
	assert.EqualValues(t, 1, listed[0].(map[string]any)["referrals_count"])

	resp = doRequest(router, http.MethodGet, "/admin/affiliate-sales", "", admin)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp)
	assert.Equal(t, "PENDING", body["status"])
	queue := body["sales"].([]any)
	require.Len(t, queue, 1)
	assert.Equal(t, "ANA1234", queue[0].(map[string]any)["ref_code"])
	assert.Equal(t, "Cafe Central", queue[0].(map[string]any)["business_name"])

	resp = doRequest(router, http.MethodGet, "/admin/affiliate-sales?status=paid", "", admin)
	require.Equal(t, http.StatusOK, resp.Code)
	body = decode(t, resp)
	assert.Equal(t, "PAID", body["status"])
	assert.Empty(t, body["sales"])

	resp = doRequest(router, http.MethodGet, "/admin/affiliate-sales?status=all", "", admin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode(t, resp)["sales"], 1)

	resp = doRequest(router, http.MethodGet, "/admin/affiliate-sales?status=settled", "", admin)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_sale_status", decode(t, resp)["error"].(map[string]any)["code"])

	resp = doRequest(router, http.MethodGet, "/admin/affiliates/"+a.ID.String(), "", admin)
	require.Equal(t, http.StatusOK, resp.Code)
	body = decode(t, resp)
	assert.Contains(t, body, "payouts")
	assert.Len(t, body["sales"], 1)

	resp = doRequest(router, http.MethodPost, "/admin/affiliates/"+a.ID.String()+"/toggle-active", "", admin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, decode(t, resp)["data"].(map[string]any)["is_active"])

	resp = doRequest(router, http.MethodPost, "/admin/affiliates/"+node.Generate().String()+"/toggle-active", "", admin)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	var entries []auditdomain.AuditLog
	require.NoError(t, conn.Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, "affiliate.toggle_active", entries[0].Action)

	subs.On("List", mock.Anything, 0).Return([]subscriptiondomain.ListItem{{
		Subscription: subscriptiondomain.Subscription{ID: 5, Status: subscriptiondomain.SubscriptionStatusActive},
		BusinessName: "Cafe Central",
		PlanName:     "Basic",
	}}, nil)
	resp = doRequest(router, http.MethodGet, "/admin/subscriptions", "", admin)
	require.Equal(t, http.StatusOK, resp.Code)
	body = decode(t, resp)
	listedSubs := body["subscriptions"].([]any)
	require.Len(t, listedSubs, 1)
	assert.Equal(t, "Cafe Central", listedSubs[0].(map[string]any)["business_name"])
	assert.Contains(t, body, "plans")

	resp = doRequest(router, http.MethodGet, "/admin/subscriptions?limit=abc", "", admin)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	subs.AssertExpectations(t)
}
