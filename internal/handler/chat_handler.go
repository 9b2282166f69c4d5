package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/otonoha/academy-backend/internal/service"
)

type ChatHandler struct {
	svc service.ChatService
}

func NewChatHandler(svc service.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type chatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Reply         string `json:"reply"`
	Cost          int64  `json:"cost"`
	Balance       int64  `json:"balance"`
	TransactionID uint64 `json:"transactionId"`
}

// POST /api/chat/messages
func (h *ChatHandler) SendMessage(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	var body chatRequest
	if err := c.Bind(&body); err != nil || body.Message == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "message is required"))
	}
	res, err := h.svc.SendMessage(c.Request().Context(), uid, body.Message)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientBalance):
			// The client turns this into the "buy more points" prompt.
			return c.JSON(http.StatusPaymentRequired, NewErrorResponse("insufficient_balance", "not enough points"))
		case errors.Is(err, service.ErrInvalidAmount):
			return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
		default:
			return c.JSON(http.StatusBadGateway, NewErrorResponse("companion_unavailable", "companion reply failed; points were refunded"))
		}
	}
	return c.JSON(http.StatusOK, ChatResponse{
		Reply:         res.Reply,
		Cost:          res.Cost,
		Balance:       res.Balance,
		TransactionID: res.TransactionID,
	})
}
