package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/windimenu/windi/internal/payment/webhook"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// MercadoPagoWebhook
// POST /webhooks/mercadopago
//
// Always answers 200 so the gateway stops retrying; failures are logged by
// the reconciler and retried by the gateway's next notification.
func (s *Server) MercadoPagoWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		s.log.Warn("read webhook body", zap.Error(err))
		body = nil
	}

	paymentID := webhook.ExtractPaymentID(c.Request.URL.Query(), body)
	outcome, _ := s.reconciler.HandleWebhook(c.Request.Context(), paymentID)

	resp := gin.H{"ok": true}
	switch outcome {
	case webhook.OutcomeIgnored:
		resp["ignored"] = true
	case webhook.OutcomeDuplicate:
		resp["duplicate"] = true
	}
	c.JSON(http.StatusOK, resp)
}
