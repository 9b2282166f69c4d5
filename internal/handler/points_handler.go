package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/otonoha/academy-backend/internal/model"
	"github.com/otonoha/academy-backend/internal/service"
)

type PointsHandler struct {
	ledger service.LedgerService
}

func NewPointsHandler(ledger service.LedgerService) *PointsHandler {
	return &PointsHandler{ledger: ledger}
}

type BalanceResponse struct {
	UserUID         string `json:"userUid"`
	TotalPoints     int64  `json:"totalPoints"`
	AvailablePoints int64  `json:"availablePoints"`
	UsedPoints      int64  `json:"usedPoints"`
	ExpiredPoints   int64  `json:"expiredPoints"`
	UpdatedAt       string `json:"updatedAt"`
}

func toBalanceResponse(p *model.UserPoints) BalanceResponse {
	return BalanceResponse{
		UserUID:         p.UserUID,
		TotalPoints:     p.TotalPoints,
		AvailablePoints: p.AvailablePoints,
		UsedPoints:      p.UsedPoints,
		ExpiredPoints:   p.ExpiredPoints,
		UpdatedAt:       p.UpdatedAt.Format(time.RFC3339),
	}
}

type TransactionResponse struct {
	ID              uint64  `json:"id"`
	TransactionType string  `json:"transactionType"`
	PointsChange    int64   `json:"pointsChange"`
	BalanceAfter    int64   `json:"balanceAfter"`
	SourceType      string  `json:"sourceType,omitempty"`
	SourceID        string  `json:"sourceId,omitempty"`
	Description     string  `json:"description,omitempty"`
	ExpiresAt       *string `json:"expiresAt,omitempty"`
	CreatedAt       string  `json:"createdAt"`
}

func toTransactionResponse(t *model.PointTransaction) TransactionResponse {
	var expiresAt *string
	if t.ExpiresAt != nil {
		v := t.ExpiresAt.Format(time.RFC3339)
		expiresAt = &v
	}
	return TransactionResponse{
		ID:              t.ID,
		TransactionType: string(t.TransactionType),
		PointsChange:    t.PointsChange,
		BalanceAfter:    t.BalanceAfter,
		SourceType:      t.SourceType,
		SourceID:        t.SourceID,
		Description:     t.Description,
		ExpiresAt:       expiresAt,
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
	}
}

// GET /api/me/points
func (h *PointsHandler) GetBalance(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	p, err := h.ledger.Balance(c.Request().Context(), uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal", "could not load balance"))
	}
	return c.JSON(http.StatusOK, toBalanceResponse(p))
}

// GET /api/me/transactions?limit=&cursor=
func (h *PointsHandler) ListTransactions(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	cursor, _ := strconv.ParseUint(c.QueryParam("cursor"), 10, 64)

	list, err := h.ledger.ListTransactions(c.Request().Context(), uid, limit, cursor)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal", "could not load transactions"))
	}
	resp := make([]TransactionResponse, 0, len(list))
	var next uint64
	for i := range list {
		resp = append(resp, toTransactionResponse(&list[i]))
		next = list[i].ID
	}
	return c.JSON(http.StatusOK, map[string]any{
		"transactions": resp,
		"nextCursor":   next,
	})
}

type grantRequest struct {
	UserUID     string         `json:"userUid"`
	Amount      int64          `json:"amount"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	ExpiresAt   *time.Time     `json:"expiresAt"`
}

// POST /api/admin/points/grant
func (h *PointsHandler) Grant(c echo.Context) error {
	var body grantRequest
	if err := c.Bind(&body); err != nil || body.UserUID == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "userUid and amount are required"))
	}
	txnType := model.TransactionType(body.Type)
	if body.Type == "" {
		txnType = model.TxEarnAdmin
	}
	res, err := h.ledger.Earn(c.Request().Context(), body.UserUID, body.Amount,
		txnType, model.SourceAdminGrant, body.Description, body.Metadata, body.ExpiresAt)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid_amount", err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal", "grant failed"))
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"balance":       res.Balance,
		"transactionId": res.TransactionID,
	})
}
