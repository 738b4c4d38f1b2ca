package handler

import (
	"net/http"

	"beerstore/internal/config"
	"beerstore/internal/middleware"
	"beerstore/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// 日次締めと配送料見積もり
type ReportHandler struct {
	dailyCut *usecase.DailyCutUsecase
	orders   *usecase.OrderUsecase
}

func NewReportHandler(dailyCut *usecase.DailyCutUsecase, orders *usecase.OrderUsecase) *ReportHandler {
	return &ReportHandler{dailyCut: dailyCut, orders: orders}
}

func (h *ReportHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	e.GET("/reports/daily-cut", h.dailyCutReport, middleware.AuthJWT(cfg), middleware.AdminRoleGuard())

	// 見積もりは未ログインでも見られる
	e.GET("/shipping/quote", h.quote)
}

// date=YYYY-MM-DD（空なら店舗の今日）
func (h *ReportHandler) dailyCutReport(c echo.Context) error {
	out, err := h.dailyCut.Report(c.Request().Context(), c.QueryParam("date"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ReportHandler) quote(c echo.Context) error {
	subtotal := decimal.Zero
	if v := c.QueryParam("subtotal"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return badRequest(c, "invalid subtotal")
		}
		subtotal = d
	}

	out, err := h.orders.QuoteShipping(c.QueryParam("delivery"), subtotal, c.QueryParam("postal_code"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
