package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/evgrid/qr-charging/internal/config"
	"github.com/evgrid/qr-charging/internal/handler"
	"github.com/evgrid/qr-charging/internal/middleware"
)

// Register wires the guest charging endpoints under /qr/api/v1. The
// OTP endpoints run behind the redis token-bucket limiter; the payment
// callback endpoints require a gateway-signed bearer token.
func Register(e *echo.Echo, h *handler.QRHandler, cfg config.Config, rl config.RateLimitConfig, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	g := e.Group("/qr/api/v1")
	g.GET("/rates/:evse_uid", h.Rates)
	g.GET("/evse/:qr_code/:evse_uid", h.CheckEVSE)
	g.POST("/reserve", h.Reserve)
	g.POST("/reserve/pay", h.ReserveWithPayment)
	g.GET("/payments/verify/:transaction_id", h.VerifyPayment)
	g.GET("/mobile/:mobile_number/status", h.MobileNumberStatus)

	limited := g.Group("/otp", middleware.NewTokenBucket(rl, rdb))
	limited.POST("/verify", h.VerifyOTP)
	limited.POST("/resend", h.ResendOTP)

	callbacks := g.Group("/payments", middleware.PaymentToken(cfg.JWTSecret))
	callbacks.GET("/gcash/:token/:payment_id", h.GCashPayment)
	callbacks.GET("/maya/:token/:transaction_id", h.MayaPayment)
}
