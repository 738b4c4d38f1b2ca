package handler

import (
	"net/http"

	"beerstore/internal/config"
	"beerstore/internal/middleware"
	"beerstore/internal/usecase"

	"github.com/labstack/echo/v4"
)

type PointsHandler struct {
	uc *usecase.PointsUsecase
}

func NewPointsHandler(uc *usecase.PointsUsecase) *PointsHandler {
	return &PointsHandler{uc: uc}
}

type AdjustPointsRequest struct {
	Kind   string `json:"kind"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type BalanceResponse struct {
	UserID  int64 `json:"user_id"`
	Balance int64 `json:"balance"`
}

func (h *PointsHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	e.GET("/points", h.summary, middleware.AuthJWT(cfg))

	admin := e.Group("/admin")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.AdminRoleGuard())
	admin.POST("/users/:id/points", h.adjust)
}

func (h *PointsHandler) summary(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return badRequest(c, "invalid limit")
	}

	out, err := h.uc.Summary(c.Request().Context(), userID, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PointsHandler) adjust(c echo.Context) error {
	userID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	var req AdjustPointsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	bal, err := h.uc.AdminAdjust(c.Request().Context(), adminID, userID, usecase.AdminAdjustPointsInput{
		Kind:   req.Kind,
		Amount: req.Amount,
		Reason: req.Reason,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, BalanceResponse{UserID: userID, Balance: bal})
}
