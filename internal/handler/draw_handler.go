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

type DrawHandler struct {
	svc service.DrawService
}

func NewDrawHandler(svc service.DrawService) *DrawHandler {
	return &DrawHandler{svc: svc}
}

type MachineResponse struct {
	ID             uint64  `json:"id"`
	MachineSlug    string  `json:"machineSlug"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	SingleDrawCost int64   `json:"singleDrawCost"`
	TenDrawCost    int64   `json:"tenDrawCost"`
	TenDrawBonus   int     `json:"tenDrawBonus"`
	StartTime      *string `json:"startTime,omitempty"`
	EndTime        *string `json:"endTime,omitempty"`
	IsActive       bool    `json:"isActive"`
}

func toMachineResponse(m *model.GachaMachine) MachineResponse {
	var start, end *string
	if m.StartTime != nil {
		v := m.StartTime.Format(time.RFC3339)
		start = &v
	}
	if m.EndTime != nil {
		v := m.EndTime.Format(time.RFC3339)
		end = &v
	}
	return MachineResponse{
		ID:             m.ID,
		MachineSlug:    m.MachineSlug,
		Name:           m.Name,
		Description:    m.Description,
		SingleDrawCost: m.SingleDrawCost,
		TenDrawCost:    m.TenDrawCost,
		TenDrawBonus:   m.TenDrawBonus,
		StartTime:      start,
		EndTime:        end,
		IsActive:       m.IsActive,
	}
}

// GET /api/machines
func (h *DrawHandler) ListMachines(c echo.Context) error {
	machines, err := h.svc.ListMachines(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal", "could not load machines"))
	}
	resp := make([]MachineResponse, 0, len(machines))
	for i := range machines {
		resp = append(resp, toMachineResponse(&machines[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

type drawRequest struct {
	DrawType string `json:"drawType"`
}

// POST /api/machines/:slug/draw
func (h *DrawHandler) Draw(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	var body drawRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	drawType := model.DrawType(body.DrawType)
	if drawType == "" {
		drawType = model.DrawSingle
	}

	res, err := h.svc.Draw(c.Request().Context(), uid, c.Param("slug"), drawType)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMachineNotFound):
			return c.JSON(http.StatusNotFound, NewErrorResponse("machine_not_found", "machine not found"))
		case errors.Is(err, service.ErrMachineInactive):
			return c.JSON(http.StatusConflict, NewErrorResponse("machine_inactive", "machine unavailable"))
		case errors.Is(err, service.ErrEmptyRewardPool):
			return c.JSON(http.StatusConflict, NewErrorResponse("empty_reward_pool", "machine has no rewards"))
		case errors.Is(err, service.ErrPoolExhausted):
			return c.JSON(http.StatusConflict, NewErrorResponse("pool_exhausted", "all rewards are out of stock"))
		case errors.Is(err, service.ErrInsufficientBalance):
			return c.JSON(http.StatusPaymentRequired, NewErrorResponse("insufficient_balance", "not enough points"))
		case errors.Is(err, service.ErrInvalidAmount):
			return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
		default:
			return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal", "draw failed"))
		}
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"drawHistoryId": res.DrawHistoryID,
		"pointsSpent":   res.PointsSpent,
		"balance":       res.Balance,
		"rewards":       res.Rewards,
	})
}

// GET /api/me/draws?limit=
func (h *DrawHandler) ListHistory(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	list, err := h.svc.ListHistory(c.Request().Context(), uid, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal", "could not load draw history"))
	}
	return c.JSON(http.StatusOK, list)
}

// GET /api/admin/machines/:slug/validate
func (h *DrawHandler) ValidateMachine(c echo.Context) error {
	warnings, err := h.svc.ValidateMachine(c.Request().Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, service.ErrMachineNotFound) {
			return c.JSON(http.StatusNotFound, NewErrorResponse("machine_not_found", "machine not found"))
		}
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal", "validation failed"))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":       len(warnings) == 0,
		"warnings": warnings,
	})
}
