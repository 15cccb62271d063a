package handler

import (
	"context"
	"strconv"

	"trustbridge/internal/adapter/http/dto"
	"trustbridge/internal/adapter/http/middleware"
	"trustbridge/internal/core/domain"
	"trustbridge/internal/core/ports"
	"trustbridge/pkg/apperror"
	"trustbridge/pkg/money"
	"trustbridge/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransactionHandler handles escrow transaction endpoints.
type TransactionHandler struct {
	escrowSvc ports.EscrowService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(escrowSvc ports.EscrowService) *TransactionHandler {
	return &TransactionHandler{escrowSvc: escrowSvc}
}

// Create handles POST /api/v1/transactions.
func (h *TransactionHandler) Create(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	vendorID, err := uuid.Parse(req.VendorID)
	if err != nil {
		response.Error(c, apperror.Validation("vendor_id must be a valid UUID"))
		return
	}
	amount, err := money.FromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation("amount must be a decimal string"))
		return
	}

	txn, err := h.escrowSvc.Create(c.Request.Context(), ports.CreateTransactionRequest{
		BuyerID:     user.ID,
		VendorID:    vendorID,
		Amount:      amount,
		Currency:    req.Currency,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromTransaction(txn))
}

// Fund handles POST /api/v1/transactions/:id/fund.
func (h *TransactionHandler) Fund(c *gin.Context) {
	h.mutate(c, h.escrowSvc.Fund)
}

// Release handles POST /api/v1/transactions/:id/release.
func (h *TransactionHandler) Release(c *gin.Context) {
	h.mutate(c, h.escrowSvc.Release)
}

// Dispute handles POST /api/v1/transactions/:id/dispute.
func (h *TransactionHandler) Dispute(c *gin.Context) {
	h.mutate(c, h.escrowSvc.Dispute)
}

// Refund handles POST /api/v1/transactions/:id/refund.
func (h *TransactionHandler) Refund(c *gin.Context) {
	h.mutate(c, h.escrowSvc.Refund)
}

// mutate is the shared body for the four lifecycle endpoints: same path
// parameter, same request body, same response shape.
func (h *TransactionHandler) mutate(
	c *gin.Context,
	op func(ctx context.Context, txID, actorID uuid.UUID, expectedVersion int) (*domain.Transaction, error),
) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	txID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := op(c.Request.Context(), txID, user.ID, req.ExpectedVersion)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromTransaction(txn))
}

// Get handles GET /api/v1/transactions/:id.
func (h *TransactionHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	txID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	txn, err := h.escrowSvc.Get(c.Request.Context(), txID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canView(user, txn) {
		response.Error(c, apperror.ErrNotFound("transaction"))
		return
	}

	response.OK(c, dto.FromTransaction(txn))
}

// List handles GET /api/v1/transactions.
func (h *TransactionHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	params := ports.TransactionListParams{UserID: user.ID}

	// Admins may inspect any user's transactions.
	if raw := c.Query("user_id"); raw != "" {
		if !user.IsAdmin() {
			response.Error(c, apperror.ErrUnauthorized())
			return
		}
		uid, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, apperror.Validation("user_id must be a valid UUID"))
			return
		}
		params.UserID = uid
	}

	if raw := c.Query("status"); raw != "" {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			response.Error(c, apperror.Validation("unknown status filter"))
			return
		}
		params.Status = &status
	}

	params.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	params.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	txns, total, err := h.escrowSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, dto.FromTransaction(&txns[i]))
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 20
	}
	totalPages := int((total + int64(params.PageSize) - 1) / int64(params.PageSize))

	response.OK(c, dto.TransactionListResponse{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	})
}

// AuditTrail handles GET /api/v1/transactions/:id/audit.
func (h *TransactionHandler) AuditTrail(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	txID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	txn, err := h.escrowSvc.Get(c.Request.Context(), txID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canView(user, txn) {
		response.Error(c, apperror.ErrNotFound("transaction"))
		return
	}

	entries, err := h.escrowSvc.AuditTrail(c.Request.Context(), txID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.AuditLogResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.FromAuditLog(&entries[i]))
	}
	response.OK(c, items)
}

// canView restricts transaction reads to participants and admins.
func canView(user *domain.User, txn *domain.Transaction) bool {
	return user.IsAdmin() || user.ID == txn.BuyerID || user.ID == txn.VendorID
}

// currentUser pulls the authenticated user set by JWTAuth.
func currentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(middleware.CtxUserKey)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return nil, false
	}
	user, ok := v.(*domain.User)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return nil, false
	}
	return user, true
}

// pathUUID parses a UUID path parameter.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, apperror.Validation(name+" must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}
