package handler

import (
	"context"
	"errors"
	"net/http"

	"printpay/internal/gateway/payos"
	"printpay/internal/repository"
	"printpay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type webhookProcessor interface {
	HandleWebhook(ctx context.Context, rawPayload []byte) error
}

// Webhook receives PayOS settlement callbacks.
// POST /api/v1/payment/webhook
//
// The response acknowledges only after verification and the state transition
// (or its idempotent no-op) complete. Verification failures get one
// undifferentiated 400 so the endpoint cannot be used as a signature oracle.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
		return
	}

	err = h.webhook.HandleWebhook(c.Request.Context(), payload)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, payos.ErrSignatureInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
	case errors.Is(err, repository.ErrTransactionNotFound):
		logrus.Warn("webhook for unknown order code")
		c.JSON(http.StatusNotFound, gin.H{"success": false})
	case errors.Is(err, repository.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"success": false})
	case errors.Is(err, service.ErrAmountMismatch):
		logrus.WithError(err).Warn("webhook amount mismatch")
		c.JSON(http.StatusConflict, gin.H{"success": false})
	default:
		logrus.WithError(err).Error("webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
	}
}
