package server

import (
	"net/http"

	"beerstore/internal/config"
	"beerstore/internal/handler"
	"beerstore/internal/middleware"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// ルート登録に必要なhandler一式
type Handlers struct {
	Product      *handler.ProductHandler
	AdminProduct *handler.AdminProductHandler
	Cart         *handler.CartHandler
	Order        *handler.OrderHandler
	AdminOrder   *handler.AdminOrderHandler
	Points       *handler.PointsHandler
	Courier      *handler.CourierHandler
	Report       *handler.ReportHandler
	AuditLog     *handler.AuditLogHandler
}

// echoを組み立ててルートを登録する
func NewEcho(cfg config.Config, log *zap.Logger, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(log))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	h.Product.RegisterRoutes(e)
	h.AdminProduct.RegisterRoutes(e, cfg)
	h.Cart.RegisterRoutes(e, cfg)
	h.Order.RegisterRoutes(e, cfg)
	h.AdminOrder.RegisterRoutes(e, cfg)
	h.Points.RegisterRoutes(e, cfg)
	h.Courier.RegisterRoutes(e, cfg)
	h.Report.RegisterRoutes(e, cfg)
	h.AuditLog.RegisterRoutes(e, cfg)

	return e
}
