package handler

import (
	"trustbridge/internal/adapter/http/dto"
	"trustbridge/internal/core/ports"
	"trustbridge/pkg/apperror"
	"trustbridge/pkg/money"
	"trustbridge/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles wallet endpoints.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// Balances handles GET /api/v1/wallets.
func (h *WalletHandler) Balances(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	wallets, err := h.walletSvc.Balances(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WalletResponse, 0, len(wallets))
	for i := range wallets {
		items = append(items, dto.FromWallet(&wallets[i]))
	}
	response.OK(c, items)
}

// Deposit handles POST /api/v1/wallets/deposit (admin only, enforced by
// both the route middleware and the service).
func (h *WalletHandler) Deposit(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.Error(c, apperror.Validation("user_id must be a valid UUID"))
		return
	}
	amount, err := money.FromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation("amount must be a decimal string"))
		return
	}

	wallet, err := h.walletSvc.Deposit(c.Request.Context(), ports.DepositRequest{
		UserID:   userID,
		ActorID:  user.ID,
		Amount:   amount,
		Currency: req.Currency,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWallet(wallet))
}
