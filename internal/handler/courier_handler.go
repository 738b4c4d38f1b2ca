package handler

import (
	"net/http"

	"beerstore/internal/config"
	"beerstore/internal/middleware"
	"beerstore/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 配達員と位置情報
type CourierHandler struct {
	uc *usecase.CourierUsecase
}

func NewCourierHandler(uc *usecase.CourierUsecase) *CourierHandler {
	return &CourierHandler{uc: uc}
}

type CourierCreateRequest struct {
	Name        string `json:"name"`
	VehicleType string `json:"vehicle_type"`
}

type PingRequest struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Speed     *float64 `json:"speed"`
	Label     string   `json:"label"`
}

func (h *CourierHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	// 配達アプリも管理者トークンで叩く
	g := e.Group("/couriers")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.AdminRoleGuard())

	g.POST("/:id/ping", h.ping)
	g.GET("/:id/route", h.route)
	g.GET("/:id/latest", h.latest)

	admin := e.Group("/admin")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.AdminRoleGuard())

	admin.POST("/couriers", h.create)
	admin.GET("/couriers", h.list)
}

func (h *CourierHandler) create(c echo.Context) error {
	var req CourierCreateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.Create(c.Request().Context(), adminID, usecase.CreateCourierInput{
		Name:        req.Name,
		VehicleType: req.VehicleType,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *CourierHandler) list(c echo.Context) error {
	out, err := h.uc.List(c.Request().Context(), c.QueryParam("active") == "true")
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CourierHandler) ping(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	var req PingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.RecordPing(c.Request().Context(), id, usecase.RecordPingInput{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Speed:     req.Speed,
		Label:     req.Label,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *CourierHandler) route(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	since, err := queryTime(c, "since")
	if err != nil {
		return badRequest(c, "invalid since")
	}

	out, err := h.uc.RouteSince(c.Request().Context(), id, since)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// ピンが無ければnull
func (h *CourierHandler) latest(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.uc.LatestPing(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
