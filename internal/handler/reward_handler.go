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

type RewardHandler struct {
	svc service.FulfillmentService
}

func NewRewardHandler(svc service.FulfillmentService) *RewardHandler {
	return &RewardHandler{svc: svc}
}

type UserRewardResponse struct {
	ID             uint64  `json:"id"`
	RewardID       uint64  `json:"rewardId"`
	Name           string  `json:"name,omitempty"`
	RewardType     string  `json:"rewardType,omitempty"`
	Rarity         string  `json:"rarity,omitempty"`
	RewardCode     string  `json:"rewardCode"`
	Status         string  `json:"status"`
	UsageCount     int     `json:"usageCount"`
	UsageLimit     *int    `json:"usageLimit,omitempty"`
	ObtainedAt     string  `json:"obtainedAt"`
	ExpiresAt      *string `json:"expiresAt,omitempty"`
	UsedAt         *string `json:"usedAt,omitempty"`
	DeliveryStatus *string `json:"deliveryStatus,omitempty"`
}

func toUserRewardResponse(r *model.UserReward) UserRewardResponse {
	resp := UserRewardResponse{
		ID:         r.ID,
		RewardID:   r.RewardID,
		RewardCode: r.RewardCode,
		Status:     string(r.Status),
		UsageCount: r.UsageCount,
		UsageLimit: r.UsageLimit,
		ObtainedAt: r.ObtainedAt.Format(time.RFC3339),
	}
	if r.Reward != nil {
		resp.Name = r.Reward.Name
		resp.RewardType = string(r.Reward.RewardType)
		resp.Rarity = string(r.Reward.Rarity)
	}
	if r.ExpiresAt != nil {
		v := r.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &v
	}
	if r.UsedAt != nil {
		v := r.UsedAt.Format(time.RFC3339)
		resp.UsedAt = &v
	}
	if r.DeliveryStatus != nil {
		v := string(*r.DeliveryStatus)
		resp.DeliveryStatus = &v
	}
	return resp
}

// GET /api/me/rewards?status=&limit=
func (h *RewardHandler) ListMine(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	status := model.UserRewardStatus(c.QueryParam("status"))

	list, err := h.svc.ListUserRewards(c.Request().Context(), uid, status, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal", "could not load rewards"))
	}
	resp := make([]UserRewardResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toUserRewardResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

// POST /api/rewards/:id/redeem
func (h *RewardHandler) Redeem(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid reward id"))
	}
	ur, err := h.svc.Redeem(c.Request().Context(), uid, id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "reward not found"))
		case errors.Is(err, service.ErrAlreadyUsed):
			return c.JSON(http.StatusConflict, NewErrorResponse("already_used", "reward already used"))
		case errors.Is(err, service.ErrExpired):
			return c.JSON(http.StatusConflict, NewErrorResponse("expired", "reward expired"))
		case errors.Is(err, service.ErrRewardCancelled):
			return c.JSON(http.StatusConflict, NewErrorResponse("cancelled", "reward was cancelled"))
		default:
			return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal", "redeem failed"))
		}
	}
	return c.JSON(http.StatusOK, toUserRewardResponse(ur))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// POST /api/admin/rewards/:id/cancel
func (h *RewardHandler) Cancel(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid reward id"))
	}
	var body cancelRequest
	_ = c.Bind(&body)
	ur, err := h.svc.Cancel(c.Request().Context(), id, body.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "reward not found"))
		case errors.Is(err, service.ErrAlreadyUsed):
			return c.JSON(http.StatusConflict, NewErrorResponse("already_used", "reward already used"))
		default:
			return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal", "cancel failed"))
		}
	}
	return c.JSON(http.StatusOK, toUserRewardResponse(ur))
}

type deliveryRequest struct {
	Status string `json:"status"`
}

// POST /api/admin/rewards/:id/delivery
func (h *RewardHandler) UpdateDelivery(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid reward id"))
	}
	var body deliveryRequest
	if err := c.Bind(&body); err != nil || body.Status == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "status is required"))
	}
	ur, err := h.svc.UpdateDelivery(c.Request().Context(), id, model.DeliveryStatus(body.Status))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "reward not found"))
		case errors.Is(err, service.ErrForbidden):
			return c.JSON(http.StatusConflict, NewErrorResponse("invalid_transition", err.Error()))
		default:
			return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal", "update failed"))
		}
	}
	return c.JSON(http.StatusOK, toUserRewardResponse(ur))
}
