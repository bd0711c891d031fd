package server

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/windimenu/windi/internal/subscription/domain"
)

// appRedirect is where a business with access lands.
const appRedirect = "/app"

type selectPlanRequest struct {
	PlanCode   string `json:"plan_code"`
	PlanID     string `json:"plan_id"`
	PayerEmail string `json:"payer_email"`
	PayerName  string `json:"payer_name"`
}

// SelectPlan
// POST /api/onboarding/select-plan
func (s *Server) SelectPlan(c *gin.Context) {
	businessID, _ := businessIDFromContext(c)

	var req selectPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	planCode := strings.TrimSpace(req.PlanCode)
	var planID snowflake.ID
	if raw := strings.TrimSpace(req.PlanID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		planID = id
	}
	if planCode == "" && planID == 0 {
		AbortWithError(c, subscriptiondomain.ErrInvalidPlan)
		return
	}

	ctx := c.Request.Context()
	gate, err := s.subscriptionSvc.ResolveGate(ctx, businessID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if gate.Allowed() {
		respondOK(c, gin.H{"already_active": true, "redirect_to": appRedirect})
		return
	}

	result, err := s.subscriptionSvc.StartCheckout(ctx, subscriptiondomain.CheckoutRequest{
		BusinessID: businessID,
		PlanCode:   planCode,
		PlanID:     planID,
		PayerEmail: strings.TrimSpace(req.PayerEmail),
		PayerName:  strings.TrimSpace(req.PayerName),
	})
	if errors.Is(err, subscriptiondomain.ErrAlreadyActive) {
		respondOK(c, gin.H{"already_active": true, "redirect_to": appRedirect})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, gin.H{
		"checkout_url":    result.CheckoutURL,
		"subscription_id": result.SubscriptionID,
		"reused":          result.Reused,
	})
}

// AttachReferral
// POST /api/onboarding/referral
func (s *Server) AttachReferral(c *gin.Context) {
	businessID, _ := businessIDFromContext(c)

	var req struct {
		RefCode string `json:"ref_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.affiliateSvc.AttachReferral(c.Request.Context(), businessID, req.RefCode); err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, nil)
}

// SubscriptionStatus
// GET /api/subscription/status?sub=
func (s *Server) SubscriptionStatus(c *gin.Context) {
	businessID, _ := businessIDFromContext(c)

	var subscriptionID snowflake.ID
	if raw := strings.TrimSpace(c.Query("sub")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		subscriptionID = id
	}

	status, err := s.subscriptionSvc.Status(c.Request.Context(), businessID, subscriptionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, gin.H{
		"status":          status.Status,
		"active":          status.Active,
		"subscription_id": status.SubscriptionID,
	})
}

// SubscriptionGate
// GET /api/subscription/gate
func (s *Server) SubscriptionGate(c *gin.Context) {
	businessID, _ := businessIDFromContext(c)

	gate, err := s.subscriptionSvc.ResolveGate(c.Request.Context(), businessID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, gin.H{"allowed": gate.Allowed(), "gate": gate})
}

// ProductQuota
// GET /api/products/quota
func (s *Server) ProductQuota(c *gin.Context) {
	businessID, _ := businessIDFromContext(c)

	quota, err := s.quotaSvc.CanCreateProduct(c.Request.Context(), businessID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, gin.H{
		"allowed": quota.Allowed,
		"limit":   quota.Limit,
		"used":    quota.Used,
	})
}

// ListActivePlans
// GET /api/plans
func (s *Server) ListActivePlans(c *gin.Context) {
	plans, err := s.planSvc.List(c.Request.Context(), true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, plans)
}

// LookupAffiliate
// GET /api/affiliates/:ref_code
func (s *Server) LookupAffiliate(c *gin.Context) {
	affiliate, err := s.affiliateSvc.FindByRefCode(c.Request.Context(), c.Param("ref_code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, gin.H{"ref_code": affiliate.RefCode, "active": affiliate.IsActive})
}
