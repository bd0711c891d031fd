package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	affiliatedomain "github.com/windimenu/windi/internal/affiliate/domain"
	payoutdomain "github.com/windimenu/windi/internal/payout/domain"
	plandomain "github.com/windimenu/windi/internal/plan/domain"
	subscriptiondomain "github.com/windimenu/windi/internal/subscription/domain"
)

const dateLayout = "2006-01-02"

type reviewSaleRequest struct {
	ReviewNote  string `json:"review_note"`
	ReverseNote string `json:"reverse_note"`
}

func (s *Server) reviewRequest(c *gin.Context) (affiliatedomain.ReviewRequest, reviewSaleRequest, error) {
	saleID, err := parseIDParam(c, "id")
	if err != nil {
		return affiliatedomain.ReviewRequest{}, reviewSaleRequest{}, err
	}
	var body reviewSaleRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			return affiliatedomain.ReviewRequest{}, reviewSaleRequest{}, invalidRequestError()
		}
	}
	req := affiliatedomain.ReviewRequest{SaleID: saleID}
	if reviewer := userIDFromContext(c); reviewer != nil {
		req.ReviewerID = *reviewer
	}
	return req, body, nil
}

// ApproveSale
// POST /admin/affiliate-sales/:id/approve
func (s *Server) ApproveSale(c *gin.Context) {
	req, body, err := s.reviewRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.Note = strings.TrimSpace(body.ReviewNote)

	sale, err := s.affiliateSvc.Approve(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c, "affiliate_sale.approve", "affiliate_sale", sale.ID, map[string]any{"note": req.Note})
	respondData(c, sale)
}

// RejectSale
// POST /admin/affiliate-sales/:id/reject
func (s *Server) RejectSale(c *gin.Context) {
	req, body, err := s.reviewRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.Note = strings.TrimSpace(body.ReviewNote)

	sale, err := s.affiliateSvc.Reject(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c, "affiliate_sale.reject", "affiliate_sale", sale.ID, map[string]any{"note": req.Note})
	respondData(c, sale)
}

// ReverseSale
// POST /admin/affiliate-sales/:id/reverse
func (s *Server) ReverseSale(c *gin.Context) {
	req, body, err := s.reviewRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.Note = strings.TrimSpace(body.ReverseNote)
	if req.Note == "" {
		req.Note = strings.TrimSpace(body.ReviewNote)
	}

	sale, err := s.affiliateSvc.Reverse(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c, "affiliate_sale.reverse", "affiliate_sale", sale.ID, map[string]any{"note": req.Note})
	respondData(c, sale)
}

type registerAffiliateRequest struct {
	UserID         string          `json:"user_id"`
	Name           string          `json:"name"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

// RegisterAffiliate
// POST /admin/affiliates
func (s *Server) RegisterAffiliate(c *gin.Context) {
	var req registerAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID <= 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	affiliate, err := s.affiliateSvc.Register(c.Request.Context(), affiliatedomain.RegisterRequest{
		UserID:         userID,
		Seed:           req.Name,
		CommissionRate: req.CommissionRate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c, "affiliate.register", "affiliate", affiliate.ID, map[string]any{"ref_code": affiliate.RefCode})
	respondCreated(c, affiliate)
}

// AffiliateSummary
// GET /admin/affiliates/:id
func (s *Server) AffiliateSummary(c *gin.Context) {
	affiliateID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ctx := c.Request.Context()

	summary, err := s.affiliateSvc.Summary(ctx, affiliateID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	sales, err := s.affiliateSvc.ListSales(ctx, affiliateID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	payouts, err := s.payoutSvc.List(ctx, &affiliateID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, gin.H{"summary": summary, "sales": sales, "payouts": payouts})
}

// ListAffiliates
// GET /admin/affiliates
func (s *Server) ListAffiliates(c *gin.Context) {
	affiliates, err := s.affiliateSvc.ListAffiliates(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, affiliates)
}

// ToggleAffiliate
// POST /admin/affiliates/:id/toggle-active
func (s *Server) ToggleAffiliate(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	affiliate, err := s.affiliateSvc.ToggleActive(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c, "affiliate.toggle_active", "affiliate", affiliate.ID, map[string]any{"is_active": affiliate.IsActive})
	respondData(c, affiliate)
}

// ListAffiliateSales
// GET /admin/affiliate-sales?status=
func (s *Server) ListAffiliateSales(c *gin.Context) {
	status := strings.ToUpper(strings.TrimSpace(c.Query("status")))
	if status == "" {
		status = string(affiliatedomain.SaleStatusPending)
	}
	sales, err := s.affiliateSvc.ReviewQueue(c.Request.Context(), status)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, gin.H{"status": status, "sales": sales})
}

// ListPayouts
// GET /admin/affiliate-payouts?period_start=&period_end=&affiliate_id=
func (s *Server) ListPayouts(c *gin.Context) {
	start, end := payoutdomain.DefaultPeriod(s.clock.Now())
	var err error
	if raw := strings.TrimSpace(c.Query("period_start")); raw != "" {
		if start, err = time.Parse(dateLayout, raw); err != nil {
			AbortWithError(c, payoutdomain.ErrInvalidPeriod)
			return
		}
	}
	if raw := strings.TrimSpace(c.Query("period_end")); raw != "" {
		if end, err = time.Parse(dateLayout, raw); err != nil {
			AbortWithError(c, payoutdomain.ErrInvalidPeriod)
			return
		}
	}
	var affiliateID *snowflake.ID
	if raw := strings.TrimSpace(c.Query("affiliate_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		affiliateID = &id
	}

	ctx := c.Request.Context()
	candidates, err := s.payoutSvc.Candidates(ctx, start, end)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	payouts, err := s.payoutSvc.List(ctx, affiliateID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, gin.H{
		"period_start": start.Format(dateLayout),
		"period_end":   end.Format(dateLayout),
		"candidates":   candidates,
		"payouts":      payouts,
	})
}

type generatePayoutRequest struct {
	AffiliateID string `json:"affiliate_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	Method      string `json:"method"`
	Note        string `json:"note"`
}

// GeneratePayout
// POST /admin/affiliate-payouts/generate
func (s *Server) GeneratePayout(c *gin.Context) {
	var req generatePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	affiliateID, err := snowflake.ParseString(strings.TrimSpace(req.AffiliateID))
	if err != nil || affiliateID <= 0 {
		AbortWithError(c, invalidRequestError())
		return
	}
	start, err := time.Parse(dateLayout, strings.TrimSpace(req.PeriodStart))
	if err != nil {
		AbortWithError(c, payoutdomain.ErrInvalidPeriod)
		return
	}
	end, err := time.Parse(dateLayout, strings.TrimSpace(req.PeriodEnd))
	if err != nil {
		AbortWithError(c, payoutdomain.ErrInvalidPeriod)
		return
	}

	result, err := s.payoutSvc.Generate(c.Request.Context(), payoutdomain.GenerateRequest{
		AffiliateID: affiliateID,
		PeriodStart: start,
		PeriodEnd:   end,
		Method:      strings.TrimSpace(req.Method),
		Note:        strings.TrimSpace(req.Note),
		CreatedBy:   userIDFromContext(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c, "affiliate_payout.generate", "affiliate_payout", result.Payout.ID, map[string]any{
		"affiliate_id": affiliateID.String(),
		"amount_paid":  result.Payout.AmountPaid.StringFixed(2),
		"sales":        len(result.SaleIDs),
	})
	respondCreated(c, result)
}

// ListPlans
// GET /admin/plans
func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.planSvc.List(c.Request.Context(), false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, plans)
}

// CreatePlan
// POST /admin/plans
func (s *Server) CreatePlan(c *gin.Context) {
	var req plandomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	plan, err := s.planSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c, "plan.create", "plan", plan.ID, map[string]any{"code": plan.Code, "price": plan.Price.StringFixed(2)})
	respondCreated(c, plan)
}

// UpdatePlan
// POST /admin/plans/:id/update
func (s *Server) UpdatePlan(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req plandomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	plan, err := s.planSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c, "plan.update", "plan", plan.ID, nil)
	respondData(c, plan)
}

// TogglePlan
// POST /admin/plans/:id/toggle-active
func (s *Server) TogglePlan(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	plan, err := s.planSvc.ToggleActive(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c, "plan.toggle_active", "plan", plan.ID, map[string]any{"is_active": plan.IsActive})
	respondData(c, plan)
}

type createPaidRequest struct {
	BusinessID string          `json:"business_id"`
	PlanID     string          `json:"plan_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// CreatePaidSubscription
// POST /admin/subscriptions/create-paid
func (s *Server) CreatePaidSubscription(c *gin.Context) {
	var req createPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	businessID, err := snowflake.ParseString(strings.TrimSpace(req.BusinessID))
	if err != nil || businessID <= 0 {
		AbortWithError(c, subscriptiondomain.ErrInvalidBusiness)
		return
	}
	planID, err := snowflake.ParseString(strings.TrimSpace(req.PlanID))
	if err != nil || planID <= 0 {
		AbortWithError(c, subscriptiondomain.ErrInvalidPlan)
		return
	}

	sub, err := s.subscriptionSvc.CreatePaid(c.Request.Context(), subscriptiondomain.CreatePaidRequest{
		BusinessID: businessID,
		PlanID:     planID,
		Amount:     req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c, "subscription.create_paid", "subscription", sub.ID, map[string]any{"business_id": businessID.String()})
	respondCreated(c, sub)
}

// ListSubscriptions
// GET /admin/subscriptions?limit=
func (s *Server) ListSubscriptions(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			AbortWithError(c, invalidRequestError())
			return
		}
		limit = n
	}
	ctx := c.Request.Context()

	subscriptions, err := s.subscriptionSvc.List(ctx, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	plans, err := s.planSvc.List(ctx, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, gin.H{"subscriptions": subscriptions, "plans": plans})
}

// MarkSubscriptionPaid
// POST /admin/subscriptions/:id/mark-paid
func (s *Server) MarkSubscriptionPaid(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	sub, err := s.subscriptionSvc.MarkPaid(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c, "subscription.mark_paid", "subscription", sub.ID, nil)
	respondData(c, sub)
}
