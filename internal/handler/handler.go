package handler

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"printpay/internal/config"
	"printpay/internal/gateway/payos"
	"printpay/internal/infrastructure/cache"
	"printpay/internal/model"
	"printpay/internal/repository"
	"printpay/internal/service"
	"printpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const walletCacheTTL = 30 * time.Second

// Handler bundles the service dependencies for all routes.
type Handler struct {
	walletService  *service.WalletService
	paymentService *service.PaymentService
	refundService  *service.RefundService
	webhook        webhookProcessor
	redisClient    *redis.Client
}

func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	gateway := payos.NewClient(&cfg.PayOS)
	walletService := service.NewWalletService(db, cfg)
	paymentService := service.NewPaymentService(db, rdb, cfg, gateway, walletService)
	return &Handler{
		walletService:  walletService,
		paymentService: paymentService,
		refundService:  service.NewRefundService(db, rdb, cfg, walletService),
		webhook:        paymentService,
		redisClient:    rdb,
	}
}

func walletCacheKey(userID int64) string {
	return fmt.Sprintf("wallet:user:%d", userID)
}

func (h *Handler) invalidateWallet(c *gin.Context, userID int64) {
	if err := cache.Delete(c.Request.Context(), h.redisClient, walletCacheKey(userID)); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("failed to invalidate wallet cache")
	}
}

// businessError translates service-layer sentinel errors into response
// codes. Unknown errors are reported as server errors.
func businessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidArgument, err.Error())
	case errors.Is(err, repository.ErrInsufficientFunds):
		response.BusinessError(c, response.CodeInsufficientFunds, err.Error())
	case errors.Is(err, repository.ErrTransactionNotFound), errors.Is(err, repository.ErrOrderPaymentNotFound):
		response.BusinessError(c, response.CodeTransactionNotFound, err.Error())
	case errors.Is(err, repository.ErrInvalidState):
		response.BusinessError(c, response.CodeInvalidState, err.Error())
	case errors.Is(err, repository.ErrWalletNotFound):
		response.BusinessError(c, response.CodeWalletNotFound, err.Error())
	case errors.Is(err, service.ErrWalletInactive):
		response.BusinessError(c, response.CodeWalletInactive, err.Error())
	case errors.Is(err, service.ErrNotRefundable):
		response.BusinessError(c, response.CodeRefundFailed, err.Error())
	case errors.Is(err, payos.ErrGateway):
		response.BusinessError(c, response.CodeGatewayError, "payment gateway unavailable, try again")
	default:
		logrus.WithError(err).Error("unexpected service error")
		response.ServerError(c, "internal error")
	}
}

func userIDFromQuery(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "invalid user_id")
		return 0, false
	}
	return userID, true
}

// ============================================================
// wallet routes
// ============================================================

// GetWallet returns the wallet record, creating it on first access.
// GET /api/v1/wallet?user_id=xxx
func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := userIDFromQuery(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var cached model.Wallet
	if hit, err := cache.Get(ctx, h.redisClient, walletCacheKey(userID), &cached); err == nil && hit {
		response.Success(c, &cached)
		return
	}

	wallet, err := h.walletService.GetOrCreateWallet(ctx, userID)
	if err != nil {
		businessError(c, err)
		return
	}

	if err := cache.Set(ctx, h.redisClient, walletCacheKey(userID), wallet, walletCacheTTL); err != nil {
		logrus.WithError(err).Warn("failed to cache wallet")
	}

	response.Success(c, wallet)
}

// GetBalance returns just the balance.
// GET /api/v1/wallet/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := userIDFromQuery(c)
	if !ok {
		return
	}

	balance, err := h.walletService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}

type PayFromWalletRequest struct {
	UserID      int64           `json:"user_id" binding:"required"`
	OrderID     int64           `json:"order_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description"`
}

// PayFromWallet debits the wallet for an order.
// POST /api/v1/wallet/pay
func (h *Handler) PayFromWallet(c *gin.Context) {
	var req PayFromWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	trans, err := h.walletService.PayFromWallet(c.Request.Context(), &service.PayFromWalletRequest{
		UserID:      req.UserID,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		businessError(c, err)
		return
	}

	h.invalidateWallet(c, req.UserID)
	response.Success(c, trans)
}

type TopUpRequest struct {
	UserID      int64           `json:"user_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description"`
	ReturnURL   string          `json:"return_url"`
	CancelURL   string          `json:"cancel_url"`
}

// CreateTopUp creates a gateway checkout link for a wallet top-up.
// POST /api/v1/wallet/topup
func (h *Handler) CreateTopUp(c *gin.Context) {
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	checkout, err := h.paymentService.CreateTopUpPayment(c.Request.Context(),
		req.UserID, req.Amount, req.Description, req.ReturnURL, req.CancelURL)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, checkout)
}

// GetTransactionHistory pages the wallet ledger, newest first.
// GET /api/v1/wallet/transactions?user_id=xxx&page=1&page_size=10
func (h *Handler) GetTransactionHistory(c *gin.Context) {
	userID, ok := userIDFromQuery(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	transactions, total, err := h.walletService.GetTransactionHistory(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type RefundRequest struct {
	TransactionNo string `json:"transaction_no" binding:"required"`
	Reason        string `json:"reason"`
}

// Refund returns a completed wallet payment to the wallet.
// POST /api/v1/wallet/refund
func (h *Handler) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.refundService.Refund(c.Request.Context(), req.TransactionNo, req.Reason)
	if err != nil {
		businessError(c, err)
		return
	}

	if result.Transaction != nil {
		h.invalidateWallet(c, result.Transaction.UserID)
	}
	response.Success(c, result)
}

// ============================================================
// gateway payment routes
// ============================================================

type OrderPaymentRequest struct {
	OrderID     int64           `json:"order_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description"`
	ReturnURL   string          `json:"return_url"`
	CancelURL   string          `json:"cancel_url"`
}

// CreateOrderPayment creates a checkout link for an order paid directly
// through the gateway.
// POST /api/v1/payment/order
func (h *Handler) CreateOrderPayment(c *gin.Context) {
	var req OrderPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	checkout, err := h.paymentService.CreateOrderPayment(c.Request.Context(),
		req.OrderID, req.Amount, req.Description, req.ReturnURL, req.CancelURL)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, checkout)
}

// GetOrderPayment returns the latest gateway payment for an order.
// GET /api/v1/payment/detail?order_id=xxx
func (h *Handler) GetOrderPayment(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Query("order_id"), 10, 64)
	if err != nil || orderID <= 0 {
		response.ParamError(c, "invalid order_id")
		return
	}

	payment, err := h.paymentService.GetOrderPayment(c.Request.Context(), orderID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, payment)
}
